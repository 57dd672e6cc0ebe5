package engine

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"buildline/internal/costs"
	"buildline/internal/domain"
	"buildline/internal/events"
)

var (
	hundred    = decimal.NewFromInt(100)
	almostDone = decimal.RequireFromString("99.99")
)

// StartOptions are parameters for starting a phase or task.
type StartOptions struct {
	ActorID string
	// AssignTo is recorded as the responsible user when set.
	AssignTo string
}

// phaseTransition loads the phase inside a transaction and commits only when fn
// reports success. A false result leaves the database unchanged.
func (e Engine) phaseTransition(ctx context.Context, phaseID string, fn func(tx *sql.Tx, p *domain.PhaseProject) (bool, error)) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetPhaseProject(ctx, tx, phaseID)
	if err != nil {
		return false, err
	}
	ok, err := fn(tx, &p)
	if err != nil || !ok {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (e Engine) savePhaseTx(ctx context.Context, tx *sql.Tx, p *domain.PhaseProject, from domain.PhaseStatus, evType, actorID string, extra events.Payload) error {
	p.UpdatedAt = e.ts()
	if err := e.Repo.UpdatePhaseProject(ctx, tx, *p); err != nil {
		return err
	}
	payload := events.Payload{"from": from, "to": p.Status, "phase_code": p.PhaseCode}
	for k, v := range extra {
		payload[k] = v
	}
	return e.appendEvent(ctx, tx, events.Record{Type: evType, ProjectID: p.ProjectID, EntityKind: "phase", EntityID: p.ID, ActorID: actorID, Payload: payload})
}

// PhaseCanStart reports whether the phase is READY_TO_START with every prerequisite COMPLETED.
func (e Engine) PhaseCanStart(ctx context.Context, phaseID string) (bool, error) {
	p, err := e.Repo.GetPhaseProject(ctx, nil, phaseID)
	if err != nil {
		return false, err
	}
	return e.phaseCanStartTx(ctx, nil, p)
}

func (e Engine) phaseCanStartTx(ctx context.Context, tx *sql.Tx, p domain.PhaseProject) (bool, error) {
	if p.Status != domain.PhaseReadyToStart {
		return false, nil
	}
	n, err := e.Repo.CountUnfinishedPhasePrereqs(ctx, tx, p.ID)
	return n == 0, err
}

// PreparePhase moves a phase that has not started to READY_TO_START when its
// prerequisites are completed, otherwise to WAITING_PREREQUISITES.
func (e Engine) PreparePhase(ctx context.Context, phaseID, actorID string) (bool, error) {
	return e.phaseTransition(ctx, phaseID, func(tx *sql.Tx, p *domain.PhaseProject) (bool, error) {
		return e.preparePhaseTx(ctx, tx, p, actorID)
	})
}

func (e Engine) preparePhaseTx(ctx context.Context, tx *sql.Tx, p *domain.PhaseProject, actorID string) (bool, error) {
	if p.Status != domain.PhaseNotStarted && p.Status != domain.PhaseWaitingPrerequisites {
		return false, nil
	}
	n, err := e.Repo.CountUnfinishedPhasePrereqs(ctx, tx, p.ID)
	if err != nil {
		return false, err
	}
	next := domain.PhaseReadyToStart
	if n > 0 {
		next = domain.PhaseWaitingPrerequisites
	}
	if next == p.Status {
		return true, nil
	}
	from := p.Status
	p.Status = next
	return true, e.savePhaseTx(ctx, tx, p, from, "phase.prepared", actorID, events.Payload{"unfinished_prerequisites": n})
}

// PrepareProject prepares every phase of the project that has not started yet.
func (e Engine) PrepareProject(ctx context.Context, projectID, actorID string) ([]domain.PhaseProject, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetProject(ctx, tx, projectID); err != nil {
		return nil, err
	}
	phases, err := e.Repo.ListPhaseProjects(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range phases {
		if _, err := e.preparePhaseTx(ctx, tx, &phases[i], actorID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return phases, nil
}

// StartPhase starts a phase that can start, prepares its tasks and moves a planned
// project to IN_PROGRESS.
func (e Engine) StartPhase(ctx context.Context, phaseID string, opts StartOptions) (bool, error) {
	return e.phaseTransition(ctx, phaseID, func(tx *sql.Tx, p *domain.PhaseProject) (bool, error) {
		ok, err := e.phaseCanStartTx(ctx, tx, *p)
		if err != nil || !ok {
			return false, err
		}
		from := p.Status
		p.Status = domain.PhaseInProgress
		p.ActualStartDate = e.ts()
		if opts.AssignTo != "" {
			p.AssignedTo = opts.AssignTo
		}
		if err := e.savePhaseTx(ctx, tx, p, from, "phase.started", opts.ActorID, events.Payload{"assigned_to": p.AssignedTo}); err != nil {
			return false, err
		}
		tasks, err := e.Repo.ListTaskProjects(ctx, tx, p.ID)
		if err != nil {
			return false, err
		}
		for i := range tasks {
			if _, err := e.prepareTaskTx(ctx, tx, &tasks[i], opts.ActorID); err != nil {
				return false, err
			}
		}
		project, err := e.Repo.GetProject(ctx, tx, p.ProjectID)
		if err != nil {
			return false, err
		}
		if project.Status == domain.ProjectPlanned {
			if err := e.setProjectStatusTx(ctx, tx, project, domain.ProjectInProgress, opts.ActorID); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// CompletePhase completes an in-progress or paused phase whose tasks are all done.
// Phases that require inspection complete through RecordInspection instead.
func (e Engine) CompletePhase(ctx context.Context, phaseID, actorID string) (bool, error) {
	return e.phaseTransition(ctx, phaseID, func(tx *sql.Tx, p *domain.PhaseProject) (bool, error) {
		if p.Status != domain.PhaseInProgress && p.Status != domain.PhasePaused {
			return false, nil
		}
		if p.RequiresInspection {
			return false, nil
		}
		_, done, err := e.phaseCompletionTx(ctx, tx, p.ID)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
		return true, e.completePhaseTx(ctx, tx, p, actorID)
	})
}

// RecordInspection closes an inspection. A pass completes the phase; a failure leaves
// it in INSPECTION_FAILED until the next inspection.
func (e Engine) RecordInspection(ctx context.Context, phaseID string, passed bool, notes, actorID string) (bool, error) {
	return e.phaseTransition(ctx, phaseID, func(tx *sql.Tx, p *domain.PhaseProject) (bool, error) {
		if p.Status != domain.PhaseWaitingInspection && p.Status != domain.PhaseInspectionFailed {
			return false, nil
		}
		p.InspectionNotes = notes
		if passed {
			return true, e.completePhaseTx(ctx, tx, p, actorID)
		}
		from := p.Status
		p.Status = domain.PhaseInspectionFailed
		return true, e.savePhaseTx(ctx, tx, p, from, "phase.inspection_failed", actorID, events.Payload{"notes": notes})
	})
}

func (e Engine) PausePhase(ctx context.Context, phaseID, actorID string) (bool, error) {
	return e.phaseTransition(ctx, phaseID, func(tx *sql.Tx, p *domain.PhaseProject) (bool, error) {
		if p.Status != domain.PhaseInProgress {
			return false, nil
		}
		p.Status = domain.PhasePaused
		return true, e.savePhaseTx(ctx, tx, p, domain.PhaseInProgress, "phase.paused", actorID, nil)
	})
}

// ResumePhase resumes a paused phase. Tasks finished while it was paused complete it now.
func (e Engine) ResumePhase(ctx context.Context, phaseID, actorID string) (bool, error) {
	return e.phaseTransition(ctx, phaseID, func(tx *sql.Tx, p *domain.PhaseProject) (bool, error) {
		if p.Status != domain.PhasePaused {
			return false, nil
		}
		p.Status = domain.PhaseInProgress
		if err := e.savePhaseTx(ctx, tx, p, domain.PhasePaused, "phase.resumed", actorID, nil); err != nil {
			return false, err
		}
		return true, e.checkPhaseCompletionTx(ctx, tx, p.ID, actorID)
	})
}

// CancelPhase cancels the phase and its unfinished tasks. Dependent phases are not released.
func (e Engine) CancelPhase(ctx context.Context, phaseID, actorID string) (bool, error) {
	return e.phaseTransition(ctx, phaseID, func(tx *sql.Tx, p *domain.PhaseProject) (bool, error) {
		if p.Status.Terminal() {
			return false, nil
		}
		tasks, err := e.Repo.ListTaskProjects(ctx, tx, p.ID)
		if err != nil {
			return false, err
		}
		for i := range tasks {
			t := &tasks[i]
			if t.Status.Terminal() {
				continue
			}
			from := t.Status
			t.Status = domain.TaskCancelled
			if err := e.saveTaskTx(ctx, tx, t, from, "task.cancelled", actorID, events.Payload{"reason": "phase cancelled"}); err != nil {
				return false, err
			}
		}
		from := p.Status
		p.Status = domain.PhaseCancelled
		if err := e.savePhaseTx(ctx, tx, p, from, "phase.cancelled", actorID, nil); err != nil {
			return false, err
		}
		return true, e.checkProjectCompletionTx(ctx, tx, p.ProjectID, actorID)
	})
}

func (e Engine) BlockPhase(ctx context.Context, phaseID, reason, actorID string) (bool, error) {
	return e.phaseTransition(ctx, phaseID, func(tx *sql.Tx, p *domain.PhaseProject) (bool, error) {
		if p.Status.Terminal() {
			return false, nil
		}
		from := p.Status
		p.Status = domain.PhaseBlocked
		return true, e.savePhaseTx(ctx, tx, p, from, "phase.blocked", actorID, events.Payload{"reason": reason})
	})
}

// phaseCompletionTx returns the mean completion of the phase's tasks, ignoring cancelled
// ones, and whether every counted task reached 100%. A phase without tasks is complete.
// The mean is rounded for display only; an unfinished phase never reports 100.
func (e Engine) phaseCompletionTx(ctx context.Context, tx *sql.Tx, phaseID string) (decimal.Decimal, bool, error) {
	tasks, err := e.Repo.ListTaskProjects(ctx, tx, phaseID)
	if err != nil {
		return decimal.Zero, false, err
	}
	var values []decimal.Decimal
	done := true
	for _, t := range tasks {
		if t.Status == domain.TaskCancelled {
			continue
		}
		values = append(values, t.CompletionPercentage)
		if t.CompletionPercentage.LessThan(hundred) {
			done = false
		}
	}
	if len(values) == 0 {
		return hundred, true, nil
	}
	pct := costs.Mean(values)
	if !done && pct.GreaterThanOrEqual(hundred) {
		pct = almostDone
	}
	return pct, done, nil
}

// checkPhaseCompletionTx refreshes the phase percentage and, once every task is done,
// completes an in-progress phase or sends it to inspection.
func (e Engine) checkPhaseCompletionTx(ctx context.Context, tx *sql.Tx, phaseID, actorID string) error {
	p, err := e.Repo.GetPhaseProject(ctx, tx, phaseID)
	if err != nil {
		return err
	}
	pct, done, err := e.phaseCompletionTx(ctx, tx, phaseID)
	if err != nil {
		return err
	}
	if !done || p.Status != domain.PhaseInProgress {
		if pct.Equal(p.CompletionPercentage) {
			return nil
		}
		p.CompletionPercentage = pct
		p.UpdatedAt = e.ts()
		return e.Repo.UpdatePhaseProject(ctx, tx, p)
	}
	p.CompletionPercentage = pct
	if p.RequiresInspection {
		p.Status = domain.PhaseWaitingInspection
		e.log().Info("phase awaiting inspection", "phase_id", p.ID, "project_id", p.ProjectID)
		return e.savePhaseTx(ctx, tx, &p, domain.PhaseInProgress, "phase.inspection_requested", actorID, nil)
	}
	return e.completePhaseTx(ctx, tx, &p, actorID)
}

func (e Engine) completePhaseTx(ctx context.Context, tx *sql.Tx, p *domain.PhaseProject, actorID string) error {
	from := p.Status
	p.Status = domain.PhaseCompleted
	p.CompletionPercentage = hundred
	p.ActualEndDate = e.ts()
	if err := e.savePhaseTx(ctx, tx, p, from, "phase.completed", actorID, nil); err != nil {
		return err
	}
	released, err := e.releaseDependentPhasesTx(ctx, tx, p.ID, actorID)
	if err != nil {
		return err
	}
	e.log().Info("phase completed", "phase_id", p.ID, "project_id", p.ProjectID, "released", released)
	return e.checkProjectCompletionTx(ctx, tx, p.ProjectID, actorID)
}

// releaseDependentPhasesTx promotes dependents whose prerequisites are now all
// completed to READY_TO_START.
func (e Engine) releaseDependentPhasesTx(ctx context.Context, tx *sql.Tx, phaseID, actorID string) ([]string, error) {
	deps, err := e.Repo.PhaseDependents(ctx, tx, phaseID)
	if err != nil {
		return nil, err
	}
	var released []string
	for _, id := range deps {
		dep, err := e.Repo.GetPhaseProject(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if _, err := e.preparePhaseTx(ctx, tx, &dep, actorID); err != nil {
			return nil, err
		}
		if dep.Status == domain.PhaseReadyToStart {
			released = append(released, dep.ID)
		}
	}
	return released, nil
}

func (e Engine) setProjectStatusTx(ctx context.Context, tx *sql.Tx, p domain.Project, status domain.ProjectStatus, actorID string) error {
	if err := e.Repo.UpdateProjectStatus(ctx, tx, p.ID, status, e.ts()); err != nil {
		return err
	}
	return e.appendEvent(ctx, tx, events.Record{Type: "project.status", ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: actorID,
		Payload: events.Payload{"from": p.Status, "to": status}})
}

// checkProjectCompletionTx completes the project once every phase is completed or cancelled.
func (e Engine) checkProjectCompletionTx(ctx context.Context, tx *sql.Tx, projectID, actorID string) error {
	project, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return err
	}
	if project.Status == domain.ProjectCompleted {
		return nil
	}
	phases, err := e.Repo.ListPhaseProjects(ctx, tx, projectID)
	if err != nil {
		return err
	}
	for _, ph := range phases {
		if ph.Status != domain.PhaseCompleted && ph.Status != domain.PhaseCancelled {
			return nil
		}
	}
	e.log().Info("project completed", "project_id", projectID)
	return e.setProjectStatusTx(ctx, tx, project, domain.ProjectCompleted, actorID)
}
