// Package coordinator implements the saga orchestration for trade workflows.
//
// A saga is a sequence of steps against remote services where each
// state-mutating step carries a compensating action. When a step fails, the
// orchestrator rolls back every previously committed step in reverse order,
// and the whole run is persisted to a durable saga log.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cryptosim/trading-sagas/internal/coordinator/sagalog"
	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
)

// Step represents a single unit of work in the saga.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	// Compensate undoes the effects of a committed Execute. Steps without
	// side effects (pure reads, final steps) return nil immediately.
	Compensate(ctx context.Context) error
}

// Mutator is an optional interface for steps whose Execute changes downstream
// state. Only committed mutator steps reporting Mutated()==true take part in
// rollback; pure reads and validations have nothing to undo.
type Mutator interface {
	Mutated() bool
}

// CriticalCompensator is an optional interface a Step can implement to mark
// its compensation as critical: if that compensation fails, money or assets
// are stuck in an inconsistent state that needs manual repair.
type CriticalCompensator interface {
	CompensationCritical() bool
}

// CompensationError records one failed compensating action during rollback.
type CompensationError struct {
	Step     string `json:"step"`
	Error    string `json:"error"`
	Critical bool   `json:"critical"`
}

// Status mirrors the terminal sagalog states for callers.
type Status = sagalog.Status

// Result is the outcome of a full saga run, success or failure.
type Result struct {
	SagaID string
	Status Status

	// FailedStep and Err are set when a step failed. Err is the step's
	// original error, suitable for errs.CodeOf / errs.HTTPStatus mapping.
	FailedStep string
	Err        error

	// RollbackAttempted is true when at least one committed step had to be
	// compensated. RollbackErrors lists the compensations that failed; an
	// empty slice with RollbackAttempted=true means a clean rollback.
	RollbackAttempted bool
	RollbackErrors    []CompensationError

	// CommittedSteps lists the step names that executed successfully, in
	// order. Useful for logging and for the saga log audit trail.
	CommittedSteps []string
}

// Succeeded reports whether every step committed.
func (r *Result) Succeeded() bool {
	return r.Status == sagalog.StatusCompleted
}

// Orchestrator manages the execution of a collection of Steps.
type Orchestrator struct {
	sagaID  string
	payload string
	steps   []Step
	repo    sagalog.Repository
	log     *slog.Logger
}

// NewOrchestrator builds an orchestrator for one saga execution.
// repo may be nil, in which case no durable log is written (unit tests).
func NewOrchestrator(sagaID, payload string, steps []Step, repo sagalog.Repository) *Orchestrator {
	return &Orchestrator{
		sagaID:  sagaID,
		payload: payload,
		steps:   steps,
		repo:    repo,
		log:     slog.Default().With("saga_id", sagaID),
	}
}

// Run executes the saga steps sequentially. If a step fails it compensates
// all previously committed steps in reverse order, then returns a Result
// describing exactly what happened. Run never panics over a step error; the
// returned Result is always usable.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	res := &Result{SagaID: o.sagaID}

	o.persist(ctx, sagalog.StatusStarted, "", o.payload, nil)

	var committed []Step
	for _, step := range o.steps {
		o.log.InfoContext(ctx, "executing saga step", "step", step.Name())

		if err := step.Execute(ctx); err != nil {
			o.log.WarnContext(ctx, "saga step failed, starting rollback",
				"step", step.Name(), "error", err)
			o.persist(ctx, sagalog.StatusFailed, step.Name(), "", []string{err.Error()})

			res.FailedStep = step.Name()
			res.Err = err
			o.compensate(ctx, committed, res)
			return res
		}

		committed = append(committed, step)
		res.CommittedSteps = append(res.CommittedSteps, step.Name())
		o.persist(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
	}

	o.log.InfoContext(ctx, "saga completed")
	res.Status = sagalog.StatusCompleted
	o.persist(ctx, sagalog.StatusCompleted, lastName(o.steps), "", nil)
	return res
}

// compensate rolls back committed steps in reverse (LIFO) order. It is
// best-effort-complete: one failed compensation does not stop the others,
// every failure is collected into the Result.
func (o *Orchestrator) compensate(ctx context.Context, committed []Step, res *Result) {
	var undo []Step
	for _, step := range committed {
		if m, ok := step.(Mutator); ok && m.Mutated() {
			undo = append(undo, step)
		}
	}
	if len(undo) == 0 {
		// Business-rule failures land here: the saga failed before anything
		// changed downstream, so there is nothing to roll back.
		res.Status = sagalog.StatusFailed
		return
	}
	committed = undo

	res.RollbackAttempted = true
	o.persist(ctx, sagalog.StatusCompensating, res.FailedStep, "", nil)

	// Rollback must survive the caller going away. A client disconnect
	// cancels the request context, and a refund issued on a dead context
	// fails instantly no matter how healthy the services are. Compensation
	// calls also get extra headroom downstream; a rollback that times out
	// leaves real inconsistencies behind.
	ctx = context.WithoutCancel(ctx)
	ctx = httpmeta.WithCompensation(ctx)

	critical := false
	for i := len(committed) - 1; i >= 0; i-- {
		step := committed[i]
		o.log.InfoContext(ctx, "compensating saga step", "step", step.Name())

		if err := step.Compensate(ctx); err != nil {
			ce := CompensationError{
				Step:     step.Name(),
				Error:    err.Error(),
				Critical: isCriticalCompensation(step),
			}
			res.RollbackErrors = append(res.RollbackErrors, ce)
			if ce.Critical {
				critical = true
				o.log.ErrorContext(ctx, "CRITICAL: compensation failed, manual intervention required",
					"step", step.Name(), "error", err)
			} else {
				o.log.ErrorContext(ctx, "compensation failed",
					"step", step.Name(), "error", err)
			}
		}
	}

	if critical {
		res.Status = sagalog.StatusCompensatedCritical
	} else {
		res.Status = sagalog.StatusCompensated
	}
	o.persist(ctx, res.Status, res.FailedStep, "", compensationMessages(res.RollbackErrors))
}

// persist writes a saga log entry, tolerating a nil repository. Log
// persistence failures are logged but never fail the saga itself.
func (o *Orchestrator) persist(ctx context.Context, status sagalog.Status, step, payload string, errMsgs []string) {
	if o.repo == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, payload, errMsgs)
	if err := o.repo.Save(ctx, entry); err != nil {
		o.log.ErrorContext(ctx, "failed to persist saga log entry",
			"status", string(status), "error", err)
	}
}

func isCriticalCompensation(step Step) bool {
	if cc, ok := step.(CriticalCompensator); ok {
		return cc.CompensationCritical()
	}
	return false
}

func compensationMessages(errs []CompensationError) []string {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, ce := range errs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", ce.Step, ce.Error))
	}
	return msgs
}

func lastName(steps []Step) string {
	if len(steps) == 0 {
		return ""
	}
	return steps[len(steps)-1].Name()
}
