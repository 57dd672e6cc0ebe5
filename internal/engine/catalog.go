package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"buildline/internal/domain"
	"buildline/internal/events"
)

func (e Engine) CreateModelProject(ctx context.Context, m domain.ModelProject, actorID string) (domain.ModelProject, error) {
	v := &ValidationError{}
	required(v, "code", m.Code)
	required(v, "name", m.Name)
	required(v, "county_id", m.CountyID)
	required(v, "project_type", m.ProjectType)
	if err := v.Err(); err != nil {
		return m, err
	}
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Version == "" {
		m.Version = "1"
	}
	m.Active = true
	m.CreatedAt = e.ts()
	m.UpdatedAt = m.CreatedAt
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		return e.createModelProjectTx(ctx, tx, m, actorID)
	})
	return m, err
}

func (e Engine) createModelProjectTx(ctx context.Context, tx *sql.Tx, m domain.ModelProject, actorID string) error {
	if _, err := e.Repo.GetCounty(ctx, tx, m.CountyID); err != nil {
		return lookup("county_id", "county", err)
	}
	if err := e.Repo.InsertModelProject(ctx, tx, m); err != nil {
		return fmt.Errorf("insert model project: %w", err)
	}
	return e.appendEvent(ctx, tx, events.Record{Type: "model_project.created", EntityKind: "model_project", EntityID: m.ID, ActorID: actorID,
		Payload: events.Payload{"code": m.Code, "version": m.Version}})
}

func (e Engine) SetModelProjectActive(ctx context.Context, id string, active bool, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetModelProjectActive(ctx, tx, id, active, e.ts()); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "model_project.updated", EntityKind: "model_project", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"active": active}})
	})
}

func (e Engine) CreateModelPhase(ctx context.Context, p domain.ModelPhase, actorID string) (domain.ModelPhase, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	p.Active = true
	p.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		return e.createModelPhaseTx(ctx, tx, p, actorID)
	})
	p.Prerequisites = nil
	return p, err
}

func (e Engine) createModelPhaseTx(ctx context.Context, tx *sql.Tx, p domain.ModelPhase, actorID string) error {
	v := &ValidationError{}
	required(v, "phase_code", p.PhaseCode)
	required(v, "name", p.Name)
	if p.ExecutionOrder < 1 {
		v.Add("execution_order", "must be positive")
	}
	if p.EstimatedDurationDays < 0 {
		v.Add("estimated_duration_days", "must not be negative")
	}
	if err := v.Err(); err != nil {
		return err
	}
	if _, err := e.Repo.GetModelProject(ctx, tx, p.ModelProjectID); err != nil {
		return lookup("model_project_id", "model project", err)
	}
	siblings, err := e.Repo.ListModelPhases(ctx, tx, p.ModelProjectID, false)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.PhaseCode == p.PhaseCode {
			v.Add("phase_code", fmt.Sprintf("%s already used in model project", p.PhaseCode))
		}
		if s.ExecutionOrder == p.ExecutionOrder {
			v.Add("execution_order", fmt.Sprintf("%d already used in model project", p.ExecutionOrder))
		}
	}
	if err := v.Err(); err != nil {
		return err
	}
	if err := e.Repo.InsertModelPhase(ctx, tx, p); err != nil {
		return fmt.Errorf("insert model phase: %w", err)
	}
	return e.appendEvent(ctx, tx, events.Record{Type: "model_phase.created", EntityKind: "model_phase", EntityID: p.ID, ActorID: actorID,
		Payload: events.Payload{"model_project_id": p.ModelProjectID, "phase_code": p.PhaseCode, "execution_order": p.ExecutionOrder}})
}

func (e Engine) SetModelPhaseActive(ctx context.Context, id string, active bool, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetModelPhaseActive(ctx, tx, id, active); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "model_phase.updated", EntityKind: "model_phase", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"active": active}})
	})
}

func (e Engine) CreateModelTask(ctx context.Context, t domain.ModelTask, actorID string) (domain.ModelTask, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	t.Active = true
	t.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		return e.createModelTaskTx(ctx, tx, t, actorID)
	})
	t.Prerequisites = nil
	return t, err
}

func (e Engine) createModelTaskTx(ctx context.Context, tx *sql.Tx, t domain.ModelTask, actorID string) error {
	v := &ValidationError{}
	required(v, "task_code", t.TaskCode)
	required(v, "name", t.Name)
	if t.ExecutionOrder < 1 {
		v.Add("execution_order", "must be positive")
	}
	if t.EstimatedDurationHours.IsNegative() {
		v.Add("estimated_duration_hours", "must not be negative")
	}
	if t.EstimatedCost.IsNegative() {
		v.Add("estimated_cost", "must not be negative")
	}
	if err := v.Err(); err != nil {
		return err
	}
	if _, err := e.Repo.GetModelPhase(ctx, tx, t.ModelPhaseID); err != nil {
		return lookup("model_phase_id", "model phase", err)
	}
	if t.CostSubGroupID != "" {
		if _, err := e.Repo.GetCostSubGroup(ctx, tx, t.CostSubGroupID); err != nil {
			return lookup("cost_subgroup_id", "cost subgroup", err)
		}
	}
	siblings, err := e.Repo.ListModelTasks(ctx, tx, t.ModelPhaseID, false)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.TaskCode == t.TaskCode {
			v.Add("task_code", fmt.Sprintf("%s already used in model phase", t.TaskCode))
		}
		if s.ExecutionOrder == t.ExecutionOrder {
			v.Add("execution_order", fmt.Sprintf("%d already used in model phase", t.ExecutionOrder))
		}
	}
	if err := v.Err(); err != nil {
		return err
	}
	if err := e.Repo.InsertModelTask(ctx, tx, t); err != nil {
		return fmt.Errorf("insert model task: %w", err)
	}
	return e.appendEvent(ctx, tx, events.Record{Type: "model_task.created", EntityKind: "model_task", EntityID: t.ID, ActorID: actorID,
		Payload: events.Payload{"model_phase_id": t.ModelPhaseID, "task_code": t.TaskCode, "execution_order": t.ExecutionOrder}})
}

func (e Engine) SetModelTaskActive(ctx context.Context, id string, active bool, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetModelTaskActive(ctx, tx, id, active); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "model_task.updated", EntityKind: "model_task", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"active": active}})
	})
}

func (e Engine) CreateTaskResource(ctx context.Context, r domain.TaskResource, actorID string) (domain.TaskResource, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	r.Active = true
	r.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		return e.createTaskResourceTx(ctx, tx, r, actorID)
	})
	return r, err
}

func (e Engine) createTaskResourceTx(ctx context.Context, tx *sql.Tx, r domain.TaskResource, actorID string) error {
	v := &ValidationError{}
	required(v, "name", r.Name)
	required(v, "unit", r.Unit)
	if !r.ResourceType.Valid() {
		v.Add("resource_type", fmt.Sprintf("unknown resource type %q", r.ResourceType))
	}
	if r.Quantity.IsNegative() {
		v.Add("quantity", "must not be negative")
	}
	if r.UnitCost.IsNegative() {
		v.Add("unit_cost", "must not be negative")
	}
	if err := v.Err(); err != nil {
		return err
	}
	if _, err := e.Repo.GetModelTask(ctx, tx, r.ModelTaskID); err != nil {
		return lookup("model_task_id", "model task", err)
	}
	if r.CostSubGroupID != "" {
		if _, err := e.Repo.GetCostSubGroup(ctx, tx, r.CostSubGroupID); err != nil {
			return lookup("cost_subgroup_id", "cost subgroup", err)
		}
	}
	if err := e.Repo.InsertTaskResource(ctx, tx, r); err != nil {
		return fmt.Errorf("insert task resource: %w", err)
	}
	return e.appendEvent(ctx, tx, events.Record{Type: "task_resource.created", EntityKind: "task_resource", EntityID: r.ID, ActorID: actorID,
		Payload: events.Payload{"model_task_id": r.ModelTaskID, "resource_type": r.ResourceType}})
}

func (e Engine) SetTaskResourceActive(ctx context.Context, id string, active bool, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetTaskResourceActive(ctx, tx, id, active); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "task_resource.updated", EntityKind: "task_resource", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"active": active}})
	})
}

// AddPhasePrerequisite records that phaseID depends on prereqID. Both phases must
// belong to the same model project and the edge must not close a cycle.
func (e Engine) AddPhasePrerequisite(ctx context.Context, phaseID, prereqID, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		return e.addPhasePrerequisiteTx(ctx, tx, phaseID, prereqID, actorID)
	})
}

func (e Engine) addPhasePrerequisiteTx(ctx context.Context, tx *sql.Tx, phaseID, prereqID, actorID string) error {
	phase, err := e.Repo.GetModelPhase(ctx, tx, phaseID)
	if err != nil {
		return err
	}
	prereq, err := e.Repo.GetModelPhase(ctx, tx, prereqID)
	if err != nil {
		return lookup("prerequisite_id", "prerequisite phase", err)
	}
	if phase.ModelProjectID != prereq.ModelProjectID {
		return invalid("prerequisite_id", "prerequisite phase belongs to another model project")
	}
	g, err := e.Repo.ModelPhaseGraph(ctx, tx, phase.ModelProjectID)
	if err != nil {
		return err
	}
	if g.WouldCycle(phaseID, prereqID) {
		return invalid("prerequisite_id", fmt.Sprintf("%s -> %s would create a cycle", phase.PhaseCode, prereq.PhaseCode))
	}
	if err := e.Repo.AddModelPhasePrereq(ctx, tx, phaseID, prereqID); err != nil {
		return err
	}
	return e.appendEvent(ctx, tx, events.Record{Type: "model_phase.prerequisite.added", EntityKind: "model_phase", EntityID: phaseID, ActorID: actorID,
		Payload: events.Payload{"prerequisite_id": prereqID}})
}

func (e Engine) RemovePhasePrerequisite(ctx context.Context, phaseID, prereqID, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.RemoveModelPhasePrereq(ctx, tx, phaseID, prereqID); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "model_phase.prerequisite.removed", EntityKind: "model_phase", EntityID: phaseID, ActorID: actorID,
			Payload: events.Payload{"prerequisite_id": prereqID}})
	})
}

// AddTaskPrerequisite is the task-level counterpart of AddPhasePrerequisite, scoped to one model phase.
func (e Engine) AddTaskPrerequisite(ctx context.Context, taskID, prereqID, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		return e.addTaskPrerequisiteTx(ctx, tx, taskID, prereqID, actorID)
	})
}

func (e Engine) addTaskPrerequisiteTx(ctx context.Context, tx *sql.Tx, taskID, prereqID, actorID string) error {
	task, err := e.Repo.GetModelTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	prereq, err := e.Repo.GetModelTask(ctx, tx, prereqID)
	if err != nil {
		return lookup("prerequisite_id", "prerequisite task", err)
	}
	if task.ModelPhaseID != prereq.ModelPhaseID {
		return invalid("prerequisite_id", "prerequisite task belongs to another model phase")
	}
	g, err := e.Repo.ModelTaskGraph(ctx, tx, task.ModelPhaseID)
	if err != nil {
		return err
	}
	if g.WouldCycle(taskID, prereqID) {
		return invalid("prerequisite_id", fmt.Sprintf("%s -> %s would create a cycle", task.TaskCode, prereq.TaskCode))
	}
	if err := e.Repo.AddModelTaskPrereq(ctx, tx, taskID, prereqID); err != nil {
		return err
	}
	return e.appendEvent(ctx, tx, events.Record{Type: "model_task.prerequisite.added", EntityKind: "model_task", EntityID: taskID, ActorID: actorID,
		Payload: events.Payload{"prerequisite_id": prereqID}})
}

func (e Engine) RemoveTaskPrerequisite(ctx context.Context, taskID, prereqID, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.RemoveModelTaskPrereq(ctx, tx, taskID, prereqID); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "model_task.prerequisite.removed", EntityKind: "model_task", EntityID: taskID, ActorID: actorID,
			Payload: events.Payload{"prerequisite_id": prereqID}})
	})
}

// BlockingPhases returns the active prerequisites of a model phase.
func (e Engine) BlockingPhases(ctx context.Context, phaseID string) ([]domain.ModelPhase, error) {
	if _, err := e.Repo.GetModelPhase(ctx, nil, phaseID); err != nil {
		return nil, err
	}
	ids, err := e.Repo.ModelPhasePrereqs(ctx, nil, phaseID, true)
	if err != nil {
		return nil, err
	}
	return e.modelPhases(ctx, ids)
}

// DependentPhases returns every model phase that lists phaseID as a prerequisite.
func (e Engine) DependentPhases(ctx context.Context, phaseID string) ([]domain.ModelPhase, error) {
	if _, err := e.Repo.GetModelPhase(ctx, nil, phaseID); err != nil {
		return nil, err
	}
	ids, err := e.Repo.ModelPhaseDependents(ctx, nil, phaseID, false)
	if err != nil {
		return nil, err
	}
	return e.modelPhases(ctx, ids)
}

func (e Engine) modelPhases(ctx context.Context, ids []string) ([]domain.ModelPhase, error) {
	out := make([]domain.ModelPhase, 0, len(ids))
	for _, id := range ids {
		p, err := e.Repo.GetModelPhase(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (e Engine) BlockingTasks(ctx context.Context, taskID string) ([]domain.ModelTask, error) {
	if _, err := e.Repo.GetModelTask(ctx, nil, taskID); err != nil {
		return nil, err
	}
	ids, err := e.Repo.ModelTaskPrereqs(ctx, nil, taskID, true)
	if err != nil {
		return nil, err
	}
	return e.modelTasks(ctx, ids)
}

func (e Engine) DependentTasks(ctx context.Context, taskID string) ([]domain.ModelTask, error) {
	if _, err := e.Repo.GetModelTask(ctx, nil, taskID); err != nil {
		return nil, err
	}
	ids, err := e.Repo.ModelTaskDependents(ctx, nil, taskID, false)
	if err != nil {
		return nil, err
	}
	return e.modelTasks(ctx, ids)
}

func (e Engine) modelTasks(ctx context.Context, ids []string) ([]domain.ModelTask, error) {
	out := make([]domain.ModelTask, 0, len(ids))
	for _, id := range ids {
		t, err := e.Repo.GetModelTask(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DuplicatePhaseToModel deep-copies a model phase, its tasks and their resources into
// another model project. Execution orders, codes and cost references are kept; task
// edges inside the phase are re-created between the copies and phase edges are not
// carried over.
func (e Engine) DuplicatePhaseToModel(ctx context.Context, phaseID, targetModelID, actorID string) (domain.ModelPhase, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ModelPhase{}, err
	}
	defer tx.Rollback()

	src, err := e.Repo.GetModelPhase(ctx, tx, phaseID)
	if err != nil {
		return domain.ModelPhase{}, err
	}
	now := e.ts()
	dst := src
	dst.ID = newID()
	dst.ModelProjectID = targetModelID
	dst.Prerequisites = nil
	dst.CreatedAt = now
	if err := e.createModelPhaseTx(ctx, tx, dst, actorID); err != nil {
		return domain.ModelPhase{}, err
	}
	tasks, err := e.Repo.ListModelTasks(ctx, tx, src.ID, false)
	if err != nil {
		return domain.ModelPhase{}, err
	}
	mapping := make(map[string]string, len(tasks))
	for _, t := range tasks {
		copyID, err := e.copyModelTaskTx(ctx, tx, t, dst.ID, actorID)
		if err != nil {
			return domain.ModelPhase{}, err
		}
		mapping[t.ID] = copyID
	}
	g, err := e.Repo.ModelTaskGraph(ctx, tx, src.ID)
	if err != nil {
		return domain.ModelPhase{}, err
	}
	for _, edge := range g.Remap(mapping).Edges() {
		if err := e.Repo.AddModelTaskPrereq(ctx, tx, edge.Node, edge.Prereq); err != nil {
			return domain.ModelPhase{}, err
		}
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "model_phase.duplicated", EntityKind: "model_phase", EntityID: dst.ID, ActorID: actorID,
		Payload: events.Payload{"source_id": src.ID, "model_project_id": targetModelID, "tasks": len(tasks)}}); err != nil {
		return domain.ModelPhase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ModelPhase{}, err
	}
	return dst, nil
}

// DuplicateTaskToPhase deep-copies a model task and its resources into another model
// phase. Prerequisite edges are not copied.
func (e Engine) DuplicateTaskToPhase(ctx context.Context, taskID, targetPhaseID, actorID string) (domain.ModelTask, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ModelTask{}, err
	}
	defer tx.Rollback()

	src, err := e.Repo.GetModelTask(ctx, tx, taskID)
	if err != nil {
		return domain.ModelTask{}, err
	}
	copyID, err := e.copyModelTaskTx(ctx, tx, src, targetPhaseID, actorID)
	if err != nil {
		return domain.ModelTask{}, err
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "model_task.duplicated", EntityKind: "model_task", EntityID: copyID, ActorID: actorID,
		Payload: events.Payload{"source_id": src.ID, "model_phase_id": targetPhaseID}}); err != nil {
		return domain.ModelTask{}, err
	}
	out, err := e.Repo.GetModelTask(ctx, tx, copyID)
	if err != nil {
		return domain.ModelTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ModelTask{}, err
	}
	return out, nil
}

func (e Engine) copyModelTaskTx(ctx context.Context, tx *sql.Tx, src domain.ModelTask, phaseID, actorID string) (string, error) {
	now := e.ts()
	dst := src
	dst.ID = newID()
	dst.ModelPhaseID = phaseID
	dst.Prerequisites = nil
	dst.CreatedAt = now
	if err := e.createModelTaskTx(ctx, tx, dst, actorID); err != nil {
		return "", err
	}
	resources, err := e.Repo.ListTaskResources(ctx, tx, src.ID, false)
	if err != nil {
		return "", err
	}
	for _, r := range resources {
		r.ID = newID()
		r.ModelTaskID = dst.ID
		r.CreatedAt = now
		if err := e.Repo.InsertTaskResource(ctx, tx, r); err != nil {
			return "", fmt.Errorf("copy task resource: %w", err)
		}
	}
	return dst.ID, nil
}

// TemplateTree is a model project with its phases, tasks and resources.
type TemplateTree struct {
	Model  domain.ModelProject `json:"model"`
	Phases []TemplatePhase     `json:"phases"`
}

type TemplatePhase struct {
	domain.ModelPhase
	Tasks []TemplateTask `json:"tasks"`
}

type TemplateTask struct {
	domain.ModelTask
	Resources []domain.TaskResource `json:"resources"`
	// PlannedResourceCost sums quantity times unit cost over active resources.
	PlannedResourceCost decimal.Decimal `json:"planned_resource_cost"`
}

func (e Engine) GetTemplateTree(ctx context.Context, modelID string) (TemplateTree, error) {
	m, err := e.Repo.GetModelProject(ctx, nil, modelID)
	if err != nil {
		return TemplateTree{}, err
	}
	tree := TemplateTree{Model: m}
	phases, err := e.Repo.ListModelPhases(ctx, nil, modelID, false)
	if err != nil {
		return tree, err
	}
	for _, p := range phases {
		tp := TemplatePhase{ModelPhase: p}
		tasks, err := e.Repo.ListModelTasks(ctx, nil, p.ID, false)
		if err != nil {
			return tree, err
		}
		for _, t := range tasks {
			res, err := e.Repo.ListTaskResources(ctx, nil, t.ID, false)
			if err != nil {
				return tree, err
			}
			tt := TemplateTask{ModelTask: t, Resources: res, PlannedResourceCost: decimal.Zero}
			for _, r := range res {
				if r.Active {
					tt.PlannedResourceCost = tt.PlannedResourceCost.Add(r.PlannedCost())
				}
			}
			tp.Tasks = append(tp.Tasks, tt)
		}
		tree.Phases = append(tree.Phases, tp)
	}
	return tree, nil
}
