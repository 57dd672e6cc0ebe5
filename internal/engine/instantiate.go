package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"buildline/internal/domain"
	"buildline/internal/events"
)

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID               string
	IncorporationID  string
	ModelProjectID   string
	Code             string
	Name             string
	LotNumber        string
	PlannedStartDate string
	ActorID          string
}

// Instantiation counts what InitializeFromModel created.
type Instantiation struct {
	Created    bool `json:"created"`
	Phases     int  `json:"phases"`
	Tasks      int  `json:"tasks"`
	PhaseEdges int  `json:"phase_edges"`
	TaskEdges  int  `json:"task_edges"`
}

// CreateProject inserts a project and expands its model project into phases and tasks
// in the same transaction.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, Instantiation, error) {
	v := &ValidationError{}
	required(v, "code", opts.Code)
	required(v, "name", opts.Name)
	required(v, "incorporation_id", opts.IncorporationID)
	required(v, "model_project_id", opts.ModelProjectID)
	if err := v.Err(); err != nil {
		return domain.Project{}, Instantiation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, Instantiation{}, err
	}
	defer tx.Rollback()

	inc, err := e.Repo.GetIncorporation(ctx, tx, opts.IncorporationID)
	if err != nil {
		return domain.Project{}, Instantiation{}, lookup("incorporation_id", "incorporation", err)
	}
	if !inc.Active {
		v.Add("incorporation_id", "incorporation is inactive")
	}
	model, err := e.Repo.GetModelProject(ctx, tx, opts.ModelProjectID)
	if err != nil {
		return domain.Project{}, Instantiation{}, lookup("model_project_id", "model project", err)
	}
	if !model.Active {
		v.Add("model_project_id", "model project is inactive")
	}
	if model.CountyID != inc.CountyID {
		v.Add("model_project_id", "model project county does not match incorporation county")
	}
	if err := v.Err(); err != nil {
		return domain.Project{}, Instantiation{}, err
	}

	now := e.ts()
	p := domain.Project{
		ID:               opts.ID,
		IncorporationID:  inc.ID,
		ModelProjectID:   model.ID,
		Code:             opts.Code,
		Name:             opts.Name,
		LotNumber:        opts.LotNumber,
		Status:           domain.ProjectPlanned,
		PlannedStartDate: opts.PlannedStartDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.ID == "" {
		p.ID = newID()
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, Instantiation{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "project.created", ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: opts.ActorID,
		Payload: events.Payload{"code": p.Code, "model_project_id": p.ModelProjectID}}); err != nil {
		return domain.Project{}, Instantiation{}, err
	}
	inst, err := e.initializeFromModelTx(ctx, tx, p, opts.ActorID)
	if err != nil {
		return domain.Project{}, Instantiation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, Instantiation{}, err
	}
	return p, inst, nil
}

// InitializeFromModel expands the project's model project. A project that already has
// phases is left untouched and Created is false.
func (e Engine) InitializeFromModel(ctx context.Context, projectID, actorID string) (Instantiation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Instantiation{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return Instantiation{}, err
	}
	inst, err := e.initializeFromModelTx(ctx, tx, p, actorID)
	if err != nil {
		return Instantiation{}, err
	}
	if !inst.Created {
		return inst, nil
	}
	if err := tx.Commit(); err != nil {
		return Instantiation{}, err
	}
	return inst, nil
}

func (e Engine) initializeFromModelTx(ctx context.Context, tx *sql.Tx, p domain.Project, actorID string) (Instantiation, error) {
	var inst Instantiation
	n, err := e.Repo.CountPhases(ctx, tx, p.ID)
	if err != nil {
		return inst, err
	}
	if n > 0 {
		e.log().Debug("project already instantiated", "project_id", p.ID, "phases", n)
		return inst, nil
	}
	modelPhases, err := e.Repo.ListModelPhases(ctx, tx, p.ModelProjectID, true)
	if err != nil {
		return inst, err
	}
	now := e.ts()
	phaseIDs := make(map[string]string, len(modelPhases))
	// model phase ID -> model task ID -> task instance ID
	taskIDs := make(map[string]map[string]string, len(modelPhases))
	for _, mp := range modelPhases {
		phase := domain.PhaseProject{
			ID:                    newID(),
			ProjectID:             p.ID,
			ModelPhaseID:          mp.ID,
			PhaseCode:             mp.PhaseCode,
			Name:                  mp.Name,
			ExecutionOrder:        mp.ExecutionOrder,
			Status:                domain.PhaseNotStarted,
			CompletionPercentage:  decimal.Zero,
			RequiresInspection:    mp.RequiresInspection,
			EstimatedDurationDays: mp.EstimatedDurationDays,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := e.Repo.InsertPhaseProject(ctx, tx, phase); err != nil {
			return inst, fmt.Errorf("insert phase %s: %w", mp.PhaseCode, err)
		}
		phaseIDs[mp.ID] = phase.ID
		inst.Phases++

		modelTasks, err := e.Repo.ListModelTasks(ctx, tx, mp.ID, true)
		if err != nil {
			return inst, err
		}
		taskIDs[mp.ID] = make(map[string]string, len(modelTasks))
		for _, mt := range modelTasks {
			task := domain.TaskProject{
				ID:                     newID(),
				PhaseProjectID:         phase.ID,
				ProjectID:              p.ID,
				ModelTaskID:            mt.ID,
				TaskCode:               mt.TaskCode,
				Name:                   mt.Name,
				Description:            mt.Description,
				ExecutionOrder:         mt.ExecutionOrder,
				Status:                 domain.TaskPending,
				CompletionPercentage:   decimal.Zero,
				EstimatedDurationHours: mt.EstimatedDurationHours,
				ActualDurationHours:    decimal.Zero,
				EstimatedCost:          mt.EstimatedCost,
				ActualCost:             decimal.Zero,
				CostSubGroupID:         mt.CostSubGroupID,
				RequiresApproval:       mt.RequiresApproval,
				CreatedAt:              now,
				UpdatedAt:              now,
			}
			if err := e.Repo.InsertTaskProject(ctx, tx, task); err != nil {
				return inst, fmt.Errorf("insert task %s/%s: %w", mp.PhaseCode, mt.TaskCode, err)
			}
			taskIDs[mp.ID][mt.ID] = task.ID
			inst.Tasks++
		}
	}

	// Edges whose endpoints were not instantiated are dropped by Remap.
	phaseGraph, err := e.Repo.ModelPhaseGraph(ctx, tx, p.ModelProjectID)
	if err != nil {
		return inst, err
	}
	for _, edge := range phaseGraph.Remap(phaseIDs).Edges() {
		if err := e.Repo.AddPhasePrereq(ctx, tx, edge.Node, edge.Prereq); err != nil {
			return inst, err
		}
		inst.PhaseEdges++
	}
	for _, mp := range modelPhases {
		taskGraph, err := e.Repo.ModelTaskGraph(ctx, tx, mp.ID)
		if err != nil {
			return inst, err
		}
		for _, edge := range taskGraph.Remap(taskIDs[mp.ID]).Edges() {
			if err := e.Repo.AddTaskPrereq(ctx, tx, edge.Node, edge.Prereq); err != nil {
				return inst, err
			}
			inst.TaskEdges++
		}
	}
	inst.Created = true
	if err := e.appendEvent(ctx, tx, events.Record{Type: "project.instantiated", ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: actorID,
		Payload: events.Payload{"phases": inst.Phases, "tasks": inst.Tasks, "phase_edges": inst.PhaseEdges, "task_edges": inst.TaskEdges}}); err != nil {
		return inst, err
	}
	e.log().Info("project instantiated", "project_id", p.ID, "model_project_id", p.ModelProjectID,
		"phases", inst.Phases, "tasks", inst.Tasks)
	return inst, nil
}

// ProjectTree is a project with its phases and their tasks.
type ProjectTree struct {
	Project domain.Project `json:"project"`
	Phases  []PhaseTree    `json:"phases"`
}

type PhaseTree struct {
	domain.PhaseProject
	Tasks []domain.TaskProject `json:"tasks"`
}

func (e Engine) GetProjectTree(ctx context.Context, projectID string) (ProjectTree, error) {
	p, err := e.Repo.GetProject(ctx, nil, projectID)
	if err != nil {
		return ProjectTree{}, err
	}
	tree := ProjectTree{Project: p}
	phases, err := e.Repo.ListPhaseProjects(ctx, nil, projectID)
	if err != nil {
		return tree, err
	}
	for _, ph := range phases {
		tasks, err := e.Repo.ListTaskProjects(ctx, nil, ph.ID)
		if err != nil {
			return tree, err
		}
		tree.Phases = append(tree.Phases, PhaseTree{PhaseProject: ph, Tasks: tasks})
	}
	return tree, nil
}
