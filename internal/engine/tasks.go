package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"buildline/internal/costs"
	"buildline/internal/domain"
	"buildline/internal/events"
)

func (e Engine) taskTransition(ctx context.Context, taskID string, fn func(tx *sql.Tx, t *domain.TaskProject) (bool, error)) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskProject(ctx, tx, taskID)
	if err != nil {
		return false, err
	}
	ok, err := fn(tx, &t)
	if err != nil || !ok {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (e Engine) saveTaskTx(ctx context.Context, tx *sql.Tx, t *domain.TaskProject, from domain.TaskStatus, evType, actorID string, extra events.Payload) error {
	t.UpdatedAt = e.ts()
	if err := e.Repo.UpdateTaskProject(ctx, tx, *t); err != nil {
		return err
	}
	payload := events.Payload{"from": from, "to": t.Status, "task_code": t.TaskCode, "phase_id": t.PhaseProjectID}
	for k, v := range extra {
		payload[k] = v
	}
	return e.appendEvent(ctx, tx, events.Record{Type: evType, ProjectID: t.ProjectID, EntityKind: "task", EntityID: t.ID, ActorID: actorID, Payload: payload})
}

func (e Engine) resourcesAvailable(ctx context.Context, t domain.TaskProject) (bool, error) {
	if e.Resources == nil {
		return true, nil
	}
	return e.Resources.Available(ctx, t)
}

// TaskCanStart reports whether the task is READY_TO_START, every prerequisite is
// COMPLETED and its resources are available.
func (e Engine) TaskCanStart(ctx context.Context, taskID string) (bool, error) {
	t, err := e.Repo.GetTaskProject(ctx, nil, taskID)
	if err != nil {
		return false, err
	}
	return e.taskCanStartTx(ctx, nil, t)
}

func (e Engine) taskCanStartTx(ctx context.Context, tx *sql.Tx, t domain.TaskProject) (bool, error) {
	if t.Status != domain.TaskReadyToStart {
		return false, nil
	}
	n, err := e.Repo.CountUnfinishedTaskPrereqs(ctx, tx, t.ID)
	if err != nil || n > 0 {
		return false, err
	}
	return e.resourcesAvailable(ctx, t)
}

// PrepareTask re-evaluates a task that has not been released yet. Its phase must be in progress.
func (e Engine) PrepareTask(ctx context.Context, taskID, actorID string) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		phase, err := e.Repo.GetPhaseProject(ctx, tx, t.PhaseProjectID)
		if err != nil {
			return false, err
		}
		if phase.Status != domain.PhaseInProgress {
			return false, nil
		}
		return e.prepareTaskTx(ctx, tx, t, actorID)
	})
}

// prepareTaskTx moves a preparable task to WAITING_PREREQUISITES, WAITING_RESOURCES or
// READY_TO_START, in that order of precedence.
func (e Engine) prepareTaskTx(ctx context.Context, tx *sql.Tx, t *domain.TaskProject, actorID string) (bool, error) {
	if !t.Status.Preparable() {
		return false, nil
	}
	n, err := e.Repo.CountUnfinishedTaskPrereqs(ctx, tx, t.ID)
	if err != nil {
		return false, err
	}
	next := domain.TaskReadyToStart
	if n > 0 {
		next = domain.TaskWaitingPrerequisites
	} else {
		ok, err := e.resourcesAvailable(ctx, *t)
		if err != nil {
			return false, err
		}
		if !ok {
			next = domain.TaskWaitingResources
		}
	}
	if next == t.Status {
		return true, nil
	}
	from := t.Status
	t.Status = next
	return true, e.saveTaskTx(ctx, tx, t, from, "task.prepared", actorID, events.Payload{"unfinished_prerequisites": n})
}

// StartTask starts a task that can start and creates its specifications from the
// model task's active resources. Specifications that already exist are kept.
func (e Engine) StartTask(ctx context.Context, taskID string, opts StartOptions) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		ok, err := e.taskCanStartTx(ctx, tx, *t)
		if err != nil || !ok {
			return false, err
		}
		from := t.Status
		t.Status = domain.TaskInProgress
		t.ActualStartDate = e.ts()
		if opts.AssignTo != "" {
			t.AssignedTo = opts.AssignTo
		}
		created, err := e.createTaskSpecsTx(ctx, tx, *t)
		if err != nil {
			return false, err
		}
		return true, e.saveTaskTx(ctx, tx, t, from, "task.started", opts.ActorID, events.Payload{"assigned_to": t.AssignedTo, "specifications_created": created})
	})
}

func (e Engine) createTaskSpecsTx(ctx context.Context, tx *sql.Tx, t domain.TaskProject) (int, error) {
	resources, err := e.Repo.ListTaskResources(ctx, tx, t.ModelTaskID, true)
	if err != nil {
		return 0, err
	}
	now := e.ts()
	created := 0
	for _, r := range resources {
		inserted, err := e.Repo.InsertTaskSpec(ctx, tx, domain.TaskSpecification{
			ID:              newID(),
			TaskProjectID:   t.ID,
			TaskResourceID:  r.ID,
			ResourceType:    r.ResourceType,
			Name:            r.Name,
			Unit:            r.Unit,
			PlannedQuantity: r.Quantity,
			ActualQuantity:  decimal.Zero,
			PlannedUnitCost: r.UnitCost,
			PlannedCost:     r.PlannedCost(),
			ActualCost:      decimal.Zero,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return created, fmt.Errorf("create specification for %s: %w", r.Name, err)
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// CompleteTask completes an in-progress or paused task, releases its dependents and
// re-checks its phase. Tasks that require approval complete through ApproveTask.
func (e Engine) CompleteTask(ctx context.Context, taskID, actorID string) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		if t.Status != domain.TaskInProgress && t.Status != domain.TaskPaused {
			return false, nil
		}
		if t.RequiresApproval {
			return false, nil
		}
		return true, e.completeTaskTx(ctx, tx, t, actorID)
	})
}

func (e Engine) completeTaskTx(ctx context.Context, tx *sql.Tx, t *domain.TaskProject, actorID string) error {
	now := e.now().UTC()
	from := t.Status
	t.Status = domain.TaskCompleted
	t.ActualEndDate = now.Format(time.RFC3339)
	t.ActualDurationHours = decimal.Zero
	if start, ok := parseTS(t.ActualStartDate); ok && now.After(start) {
		t.ActualDurationHours = costs.Hours(int64(now.Sub(start).Seconds()))
	}
	t.CompletionPercentage = hundred
	if err := e.saveTaskTx(ctx, tx, t, from, "task.completed", actorID, events.Payload{"actual_duration_hours": t.ActualDurationHours.String()}); err != nil {
		return err
	}
	released, err := e.releaseDependentTasksTx(ctx, tx, t.ID, actorID)
	if err != nil {
		return err
	}
	e.log().Debug("task completed", "task_id", t.ID, "phase_id", t.PhaseProjectID, "released", released)
	return e.checkPhaseCompletionTx(ctx, tx, t.PhaseProjectID, actorID)
}

func (e Engine) releaseDependentTasksTx(ctx context.Context, tx *sql.Tx, taskID, actorID string) ([]string, error) {
	deps, err := e.Repo.TaskDependents(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	var released []string
	for _, id := range deps {
		dep, err := e.Repo.GetTaskProject(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if _, err := e.prepareTaskTx(ctx, tx, &dep, actorID); err != nil {
			return nil, err
		}
		if dep.Status == domain.TaskReadyToStart {
			released = append(released, dep.ID)
		}
	}
	return released, nil
}

func (e Engine) RequestTaskApproval(ctx context.Context, taskID, actorID string) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		if t.Status != domain.TaskInProgress {
			return false, nil
		}
		t.Status = domain.TaskWaitingApproval
		return true, e.saveTaskTx(ctx, tx, t, domain.TaskInProgress, "task.approval_requested", actorID, nil)
	})
}

// ApproveTask completes a task waiting for approval with the same cascade as CompleteTask.
func (e Engine) ApproveTask(ctx context.Context, taskID, actorID string) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		if t.Status != domain.TaskWaitingApproval {
			return false, nil
		}
		return true, e.completeTaskTx(ctx, tx, t, actorID)
	})
}

func (e Engine) RejectTask(ctx context.Context, taskID, reason, actorID string) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		if t.Status != domain.TaskWaitingApproval {
			return false, nil
		}
		t.Status = domain.TaskReworkNeeded
		return true, e.saveTaskTx(ctx, tx, t, domain.TaskWaitingApproval, "task.rejected", actorID, events.Payload{"reason": reason})
	})
}

func (e Engine) PauseTask(ctx context.Context, taskID, actorID string) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		if t.Status != domain.TaskInProgress {
			return false, nil
		}
		t.Status = domain.TaskPaused
		return true, e.saveTaskTx(ctx, tx, t, domain.TaskInProgress, "task.paused", actorID, nil)
	})
}

// ResumeTask returns a paused task, or one sent back for rework, to IN_PROGRESS.
func (e Engine) ResumeTask(ctx context.Context, taskID, actorID string) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		if t.Status != domain.TaskPaused && t.Status != domain.TaskReworkNeeded {
			return false, nil
		}
		from := t.Status
		t.Status = domain.TaskInProgress
		return true, e.saveTaskTx(ctx, tx, t, from, "task.resumed", actorID, nil)
	})
}

// CancelTask cancels an unfinished task. Cancelled tasks no longer count toward phase
// completion, so the phase is re-checked.
func (e Engine) CancelTask(ctx context.Context, taskID, actorID string) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		if t.Status.Terminal() {
			return false, nil
		}
		from := t.Status
		t.Status = domain.TaskCancelled
		if err := e.saveTaskTx(ctx, tx, t, from, "task.cancelled", actorID, nil); err != nil {
			return false, err
		}
		return true, e.checkPhaseCompletionTx(ctx, tx, t.PhaseProjectID, actorID)
	})
}

func (e Engine) BlockTask(ctx context.Context, taskID, reason, actorID string) (bool, error) {
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		if t.Status.Terminal() {
			return false, nil
		}
		from := t.Status
		t.Status = domain.TaskBlocked
		return true, e.saveTaskTx(ctx, tx, t, from, "task.blocked", actorID, events.Payload{"reason": reason})
	})
}

// UpdateTaskProgress records partial completion of an in-progress task. Completion
// itself goes through CompleteTask.
func (e Engine) UpdateTaskProgress(ctx context.Context, taskID string, pct decimal.Decimal, actorID string) (bool, error) {
	if pct.IsNegative() || pct.GreaterThanOrEqual(hundred) {
		return false, invalid("completion_percentage", "must be at least 0 and below 100")
	}
	return e.taskTransition(ctx, taskID, func(tx *sql.Tx, t *domain.TaskProject) (bool, error) {
		if t.Status != domain.TaskInProgress {
			return false, nil
		}
		old := t.CompletionPercentage
		t.CompletionPercentage = pct.Round(2)
		if err := e.saveTaskTx(ctx, tx, t, t.Status, "task.progress", actorID, events.Payload{"old": old.String(), "new": t.CompletionPercentage.String()}); err != nil {
			return false, err
		}
		return true, e.checkPhaseCompletionTx(ctx, tx, t.PhaseProjectID, actorID)
	})
}

// RecordResourceUsage sets the actual quantity and cost of one specification and
// rolls the task's actual cost up from all of its specifications.
func (e Engine) RecordResourceUsage(ctx context.Context, specID string, qty, cost decimal.Decimal, actorID string) (domain.TaskSpecification, error) {
	v := &ValidationError{}
	if qty.IsNegative() {
		v.Add("actual_quantity", "must not be negative")
	}
	if cost.IsNegative() {
		v.Add("actual_cost", "must not be negative")
	}
	if err := v.Err(); err != nil {
		return domain.TaskSpecification{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskSpecification{}, err
	}
	defer tx.Rollback()

	spec, err := e.Repo.GetTaskSpec(ctx, tx, specID)
	if err != nil {
		return spec, err
	}
	t, err := e.Repo.GetTaskProject(ctx, tx, spec.TaskProjectID)
	if err != nil {
		return spec, err
	}
	if t.Status == domain.TaskCancelled {
		return spec, invalid("task", "task is cancelled")
	}
	now := e.ts()
	if err := e.Repo.UpdateTaskSpecUsage(ctx, tx, spec.ID, qty, cost, now); err != nil {
		return spec, err
	}
	specs, err := e.Repo.ListTaskSpecs(ctx, tx, t.ID)
	if err != nil {
		return spec, err
	}
	total := decimal.Zero
	for _, s := range specs {
		total = total.Add(s.ActualCost)
	}
	t.ActualCost = total
	t.UpdatedAt = now
	if err := e.Repo.UpdateTaskProject(ctx, tx, t); err != nil {
		return spec, err
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "task.resource_usage", ProjectID: t.ProjectID, EntityKind: "task_specification", EntityID: spec.ID, ActorID: actorID,
		Payload: events.Payload{"task_id": t.ID, "actual_quantity": qty.String(), "actual_cost": cost.String(), "task_actual_cost": total.String()}}); err != nil {
		return spec, err
	}
	spec, err = e.Repo.GetTaskSpec(ctx, tx, spec.ID)
	if err != nil {
		return spec, err
	}
	if err := tx.Commit(); err != nil {
		return spec, err
	}
	return spec, nil
}
