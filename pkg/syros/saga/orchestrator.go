package saga

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wendelmax/syros/pkg/syros/clock"
	"github.com/wendelmax/syros/pkg/syros/config"
	"github.com/wendelmax/syros/pkg/syros/idgen"
	"github.com/wendelmax/syros/pkg/syros/observability"
	"github.com/wendelmax/syros/pkg/syros/syroserr"
)

// Executor dispatches a named action or compensation against its payload and
// returns the action's output. Unlike a closure-based StepHandler (a Go
// closure stored per Step at registration time), Executor is supplied once
// per Execute call: saga definitions travel over the wire as data
// (action identifiers + JSON payloads), so there is nothing to close over at
// definition time. The orchestrator looks up Step.Action/Step.Compensation
// through whatever Executor the caller passes in.
type Executor func(ctx context.Context, actionID string, payload any) (any, error)

// Orchestrator drives Saga executions through their steps, persisting state
// via a Store after every transition and invoking Step actions/compensations
// through an Executor. Execute is a blocking, resumable call (see
// Start/Execute) rather than a fire-and-forget goroutine dispatch, so a
// crashed process can recover an in-flight saga simply by calling Execute
// again with the same persisted state.
type Orchestrator struct {
	store   Store
	clock   clock.Clock
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	cancels sync.Map // saga ID -> chan struct{}, closed on Cancel

	// defaultStepTimeout/defaultMaxRetries apply to a Step that leaves
	// TimeoutSec/RetryPolicy unset
	// (saga.default_step_timeout_ms/max_retries_default).
	defaultStepTimeout time.Duration
	defaultMaxRetries  int
}

// NewOrchestrator builds an Orchestrator over store, using c for time and
// backoff waits (pass clock.SystemClock{} in production; a clock.FixedClock
// drives deterministic tests).
func NewOrchestrator(store Store, c clock.Clock, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, clock: c, logger: logger, metrics: observability.NoopMetrics{}}
}

// NewOrchestratorFromConfig builds an Orchestrator the same way
// NewOrchestrator does, then applies cfg's saga.* defaults for
// steps that don't specify their own timeout or retry policy.
func NewOrchestratorFromConfig(store Store, c clock.Clock, logger *slog.Logger, cfg config.Config) *Orchestrator {
	o := NewOrchestrator(store, c, logger)
	opts := cfg.Saga()
	o.defaultStepTimeout = opts.DefaultStepTimeout
	o.defaultMaxRetries = opts.MaxRetriesDefault
	return o
}

// SetMetrics attaches a metrics recorder for step and run-level instruments.
func (o *Orchestrator) SetMetrics(metrics observability.MetricsRecorder) {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	o.metrics = metrics
}

// Start persists a new saga in Pending status and returns immediately,
// without running any step. Execute must be called separately to run it;
// this split lets a caller durably register intent before committing to
// run it inline, and lets a supervisor resume execution after a crash by
// calling Execute against the same ID.
func (o *Orchestrator) Start(name string, steps []Step, metadata map[string]string) (*Saga, error) {
	if name == "" {
		return nil, syroserr.New(syroserr.InvalidArgument, "saga name must not be empty")
	}

	// A saga with zero steps is valid: it transitions Pending -> Completed
	// immediately on Execute, since runForward's loop simply has nothing to
	// iterate over.
	now := o.clock.Now()
	states := make([]StepState, len(steps))
	for i, st := range steps {
		states[i] = StepState{Name: st.Name, Status: StepPending}
	}

	sg := &Saga{
		ID:         idgen.New(),
		Name:       name,
		Status:     StatusPending,
		Steps:      steps,
		StepStates: states,
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata:   metadata,
		Version:    1,
	}
	if err := o.store.Create(sg); err != nil {
		return nil, err
	}
	observability.LogSagaStarted(o.logger, sg.ID, sg.Name, len(sg.Steps))
	return sg.Clone(), nil
}

// Status returns the current persisted saga record.
func (o *Orchestrator) Status(id string) (*Saga, error) {
	return o.store.Get(id)
}

// Cancel requests rollback of id, returning the saga's state after the
// request is applied (Compensating or Compensated).
// If an Execute call is currently in flight, Cancel signals it to stop
// advancing forward steps and begin compensation at its next opportunity;
// that call then drives the transition itself and Cancel returns the
// pre-transition record. If no Execute is in flight, Cancel persists the
// transition directly: a Pending saga moves straight to Compensated (nothing
// to undo), a Running saga moves to Compensating so the next Execute call
// resumes the compensation walk. Cancel on an unknown saga returns
// SagaNotFound; on an already-terminal saga it is a no-op returning the
// current record, so repeated cancels are idempotent.
func (o *Orchestrator) Cancel(id string) (*Saga, error) {
	hadWaiter := false
	if v, ok := o.cancels.Load(id); ok {
		hadWaiter = true
		ch := v.(chan struct{})
		select {
		case <-ch:
			// already closed
		default:
			close(ch)
		}
	}

	sg, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}
	if sg.Status.IsTerminal() {
		return sg, nil
	}
	if sg.Status == StatusPending {
		sg.Status = StatusCompensated
		if err := o.persist(sg); err != nil {
			return nil, err
		}
		return sg.Clone(), nil
	}
	if hadWaiter {
		// An in-flight Execute observed the signal above and will carry out
		// the Running -> Compensating -> Compensated transition itself.
		return sg, nil
	}
	if sg.Status == StatusRunning {
		sg.Status = StatusCompensating
		if err := o.persist(sg); err != nil {
			return nil, err
		}
		return sg.Clone(), nil
	}
	return sg, nil
}

func (o *Orchestrator) cancelChan(id string) chan struct{} {
	ch, _ := o.cancels.LoadOrStore(id, make(chan struct{}))
	return ch.(chan struct{})
}

func (o *Orchestrator) wasCancelled(cancelCh chan struct{}) bool {
	select {
	case <-cancelCh:
		return true
	default:
		return false
	}
}

// Execute runs sg forward from its persisted CurrentStep, blocking until it
// reaches a terminal status (Completed, Failed or Compensated) or ctx is
// cancelled. It is safe to call again after a crash: it resumes from
// whatever Status/CurrentStep was last persisted rather than assuming a
// clean start, so a restarted process recovers an in-flight saga without a
// separate recovery code path. Calling Execute again on an already-terminal
// saga is rejected with SagaInvalidTransition.
func (o *Orchestrator) Execute(ctx context.Context, id string, exec Executor) (*Saga, error) {
	sg, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}
	if sg.Status.IsTerminal() {
		return nil, syroserr.New(syroserr.SagaInvalidTransition, "saga %q is already %s", id, sg.Status)
	}

	defer o.cancels.Delete(id)
	cancelCh := o.cancelChan(id)

	// runCtx is cancelled either by the caller's ctx or by Cancel(id), so a
	// blocking in-flight step action is interrupted the moment Cancel is
	// called rather than only being noticed between steps.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-cancelCh:
			stop()
		case <-runCtx.Done():
		}
	}()

	switch sg.Status {
	case StatusPending, StatusRunning:
		return o.runForward(runCtx, sg, exec, cancelCh)
	case StatusCompensating:
		return o.runCompensate(ctx, sg, exec, len(sg.Steps)-1)
	default:
		return sg, nil
	}
}

func (o *Orchestrator) runForward(ctx context.Context, sg *Saga, exec Executor, cancelCh chan struct{}) (*Saga, error) {
	sg.Status = StatusRunning
	start := 0
	if sg.CurrentStep != nil {
		start = *sg.CurrentStep
	}

	for i := start; i < len(sg.Steps); i++ {
		select {
		case <-cancelCh:
			return o.runCompensate(context.Background(), sg, exec, i-1)
		case <-ctx.Done():
			if o.wasCancelled(cancelCh) {
				return o.runCompensate(context.Background(), sg, exec, i-1)
			}
			return sg, syroserr.Wrap(syroserr.Internal, ctx.Err(), "saga execution interrupted")
		default:
		}

		cs := i
		sg.CurrentStep = &cs
		if err := o.persist(sg); err != nil {
			return sg, err
		}

		output, err := o.runStep(ctx, sg, i, exec)
		if err != nil {
			sg.StepStates[i].Status = StepFailed
			sg.StepStates[i].Error = err.Error()
			if i == 0 {
				if o.wasCancelled(cancelCh) {
					// Cancelled before anything completed: an empty
					// compensation walk, ending Compensated like a cancel
					// observed between steps.
					return o.runCompensate(context.Background(), sg, exec, -1)
				}
				// Nothing completed yet, so there is nothing to compensate:
				// the saga goes straight to Failed.
				sg.Status = StatusFailed
				if perr := o.persist(sg); perr != nil {
					return sg, perr
				}
				o.recordTerminal(sg)
				return sg.Clone(), nil
			}
			if perr := o.persist(sg); perr != nil {
				return sg, perr
			}
			observability.LogSagaCompensating(o.logger, sg.ID, i-1)
			// If the step failed because Cancel interrupted it, ctx is
			// already dead; compensations must still run, so detach them.
			// A genuine step failure keeps the caller's live ctx.
			compCtx := ctx
			if o.wasCancelled(cancelCh) {
				compCtx = context.Background()
			}
			return o.runCompensate(compCtx, sg, exec, i-1)
		}

		sg.StepStates[i].Status = StepCompleted
		sg.StepStates[i].Output = output
		if err := o.persist(sg); err != nil {
			return sg, err
		}
	}

	sg.Status = StatusCompleted
	if err := o.persist(sg); err != nil {
		return sg, err
	}
	o.recordTerminal(sg)
	return sg.Clone(), nil
}

func (o *Orchestrator) recordTerminal(sg *Saga) {
	duration := sg.UpdatedAt.Sub(sg.CreatedAt)
	o.metrics.RecordSagaRun(context.Background(), string(sg.Status), duration)
	observability.LogSagaCompleted(o.logger, sg.ID, string(sg.Status), float64(duration.Milliseconds()))
}

// runStep invokes exec for step i with retries per its RetryPolicy.
func (o *Orchestrator) runStep(ctx context.Context, sg *Saga, i int, exec Executor) (any, error) {
	step := sg.Steps[i]
	sg.StepStates[i].Status = StepRunning

	maxRetries := step.RetryPolicy.maxRetries()
	if step.RetryPolicy == nil && o.defaultMaxRetries > 0 {
		maxRetries = o.defaultMaxRetries
	}
	timeout := time.Duration(step.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = o.defaultStepTimeout
	}

	var lastErr error
	maxAttempts := maxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sg.StepStates[i].Attempts = attempt

		stepCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		stepStart := o.clock.Now()
		output, err := exec(stepCtx, step.Action, step.Payload)
		if cancel != nil {
			cancel()
		}
		duration := o.clock.Now().Sub(stepStart)
		o.metrics.RecordSagaStep(ctx, step.Name, duration, err)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			wait := step.RetryPolicy.delay(attempt)
			if wait > 0 {
				if werr := o.clock.Sleep(ctx, wait); werr != nil {
					return nil, werr
				}
			}
		}
	}
	observability.LogSagaStepFailed(o.logger, sg.ID, step.Name, maxAttempts, lastErr)
	return nil, syroserr.Wrap(syroserr.StepExecutionFailed, lastErr, "step %q failed after %d attempt(s)", step.Name, maxAttempts)
}

// runCompensate walks steps from lastCompleted down to 0, invoking each
// step's Compensation (skipping steps with none). Compensation is best
// effort: a failing compensation is recorded and walking continues, so
// every compensatable step is attempted regardless of earlier compensation
// failures.
func (o *Orchestrator) runCompensate(ctx context.Context, sg *Saga, exec Executor, lastCompleted int) (*Saga, error) {
	sg.Status = StatusCompensating
	if err := o.persist(sg); err != nil {
		return sg, err
	}

	for i := lastCompleted; i >= 0; i-- {
		state := &sg.StepStates[i]
		if state.Status != StepCompleted {
			continue
		}
		step := sg.Steps[i]
		if step.Compensation == "" {
			state.Status = StepSkipped
			continue
		}

		timeout := time.Duration(step.TimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = o.defaultStepTimeout
		}
		stepCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		_, err := exec(stepCtx, step.Compensation, step.Payload)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			state.Status = StepFailed
			state.CompensateError = err.Error()
			observability.LogSagaCompensationFailed(o.logger, sg.ID, step.Name, err)
			continue
		}
		state.Status = StepCompensated
	}

	sg.Status = StatusCompensated
	if err := o.persist(sg); err != nil {
		return sg, err
	}
	o.recordTerminal(sg)
	return sg.Clone(), nil
}

func (o *Orchestrator) persist(sg *Saga) error {
	sg.UpdatedAt = o.clock.Now()
	return o.store.Update(sg, sg.Version)
}
