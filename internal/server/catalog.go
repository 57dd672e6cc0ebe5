package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"buildline/internal/catalogfile"
	"buildline/internal/domain"
	"buildline/internal/engine"
)

type edgePath struct {
	ID             string `path:"id"`
	PrerequisiteID string `path:"prerequisite_id"`
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-model-projects",
		Method:      http.MethodGet,
		Path:        "/model-projects",
		Summary:     "List model projects",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		CountyID string `query:"county_id"`
	}) (*out[[]domain.ModelProject], error) {
		if _, err := requirePermission(ctx, e, "catalog.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListModelProjects(ctx, input.CountyID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})
	registerCreate(api, e, "create-model-project", "/model-projects", "Create model project", "catalog.write",
		func(ctx context.Context, req CreateModelProjectRequest, actorID string) (domain.ModelProject, error) {
			return e.CreateModelProject(ctx, domain.ModelProject{
				Code: req.Code, Name: req.Name, Version: req.Version, CountyID: req.CountyID,
				ProjectType: req.ProjectType, Description: req.Description,
			}, actorID)
		})
	registerGet(api, e, "get-template-tree", "/model-projects/{id}", "Model project with phases, tasks and resources", "catalog.read", e.GetTemplateTree)
	registerSetActive(api, e, "set-model-project-active", "/model-projects/{id}/active", "Activate or deactivate a model project", "catalog.write", e.SetModelProjectActive)

	registerCreate(api, e, "import-template", "/templates/import", "Import a model project from a template document", "catalog.write",
		func(ctx context.Context, req ImportTemplateRequest, actorID string) (engine.TemplateTree, error) {
			doc, err := catalogfile.Parse([]byte(req.YAML))
			if err != nil {
				return engine.TemplateTree{}, &engine.ValidationError{Fields: map[string][]string{"yaml": {err.Error()}}}
			}
			return e.ImportTemplate(ctx, doc, actorID)
		})

	huma.Register(api, huma.Operation{
		OperationID:   "create-model-phase",
		Method:        http.MethodPost,
		Path:          "/model-projects/{id}/phases",
		Summary:       "Add a phase to a model project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[CreateModelPhaseRequest]) (*out[domain.ModelPhase], error) {
		p, err := requirePermission(ctx, e, "catalog.write")
		if err != nil {
			return nil, handleError(err)
		}
		b := input.Body
		ph, err := e.CreateModelPhase(ctx, domain.ModelPhase{
			ModelProjectID: input.ID, PhaseCode: b.PhaseCode, Name: b.Name, Description: b.Description,
			ExecutionOrder: b.ExecutionOrder, EstimatedDurationDays: b.EstimatedDurationDays, RequiresInspection: b.RequiresInspection,
		}, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ph), nil
	})
	registerSetActive(api, e, "set-model-phase-active", "/model-phases/{id}/active", "Activate or deactivate a model phase", "catalog.write", e.SetModelPhaseActive)

	huma.Register(api, huma.Operation{
		OperationID:   "create-model-task",
		Method:        http.MethodPost,
		Path:          "/model-phases/{id}/tasks",
		Summary:       "Add a task to a model phase",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[CreateModelTaskRequest]) (*out[domain.ModelTask], error) {
		p, err := requirePermission(ctx, e, "catalog.write")
		if err != nil {
			return nil, handleError(err)
		}
		b := input.Body
		d := newDecimals()
		hours := d.parse("estimated_duration_hours", b.EstimatedDurationHours)
		cost := d.parse("estimated_cost", b.EstimatedCost)
		if err := d.err(); err != nil {
			return nil, handleError(err)
		}
		t, err := e.CreateModelTask(ctx, domain.ModelTask{
			ModelPhaseID: input.ID, TaskCode: b.TaskCode, Name: b.Name, Description: b.Description,
			ExecutionOrder: b.ExecutionOrder, EstimatedDurationHours: hours, EstimatedCost: cost,
			CostSubGroupID: b.CostSubGroupID, RequiresApproval: b.RequiresApproval,
		}, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})
	registerSetActive(api, e, "set-model-task-active", "/model-tasks/{id}/active", "Activate or deactivate a model task", "catalog.write", e.SetModelTaskActive)

	huma.Register(api, huma.Operation{
		OperationID:   "create-task-resource",
		Method:        http.MethodPost,
		Path:          "/model-tasks/{id}/resources",
		Summary:       "Add a planned resource to a model task",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[CreateTaskResourceRequest]) (*out[domain.TaskResource], error) {
		p, err := requirePermission(ctx, e, "catalog.write")
		if err != nil {
			return nil, handleError(err)
		}
		b := input.Body
		d := newDecimals()
		qty := d.parse("quantity", b.Quantity)
		unitCost := d.parse("unit_cost", b.UnitCost)
		if err := d.err(); err != nil {
			return nil, handleError(err)
		}
		res, err := e.CreateTaskResource(ctx, domain.TaskResource{
			ModelTaskID: input.ID, ResourceType: domain.ResourceType(b.ResourceType), Name: b.Name, Unit: b.Unit,
			Quantity: qty, UnitCost: unitCost, CostSubGroupID: b.CostSubGroupID,
		}, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})
	registerSetActive(api, e, "set-task-resource-active", "/task-resources/{id}/active", "Activate or deactivate a task resource", "catalog.write", e.SetTaskResourceActive)

	registerEdges(api, e, "model-phase", "/model-phases", e.AddPhasePrerequisite, e.RemovePhasePrerequisite)
	registerEdges(api, e, "model-task", "/model-tasks", e.AddTaskPrerequisite, e.RemoveTaskPrerequisite)
	registerGet(api, e, "blocking-model-phases", "/model-phases/{id}/blocking", "Active phases this phase waits on", "catalog.read", e.BlockingPhases)
	registerGet(api, e, "dependent-model-phases", "/model-phases/{id}/dependents", "Active phases waiting on this phase", "catalog.read", e.DependentPhases)
	registerGet(api, e, "blocking-model-tasks", "/model-tasks/{id}/blocking", "Active tasks this task waits on", "catalog.read", e.BlockingTasks)
	registerGet(api, e, "dependent-model-tasks", "/model-tasks/{id}/dependents", "Active tasks waiting on this task", "catalog.read", e.DependentTasks)

	huma.Register(api, huma.Operation{
		OperationID:   "duplicate-model-phase",
		Method:        http.MethodPost,
		Path:          "/model-phases/{id}/duplicate",
		Summary:       "Copy a phase with its tasks into another model project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[DuplicateRequest]) (*out[domain.ModelPhase], error) {
		p, err := requirePermission(ctx, e, "catalog.write")
		if err != nil {
			return nil, handleError(err)
		}
		ph, err := e.DuplicatePhaseToModel(ctx, input.ID, input.Body.TargetID, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ph), nil
	})
	huma.Register(api, huma.Operation{
		OperationID:   "duplicate-model-task",
		Method:        http.MethodPost,
		Path:          "/model-tasks/{id}/duplicate",
		Summary:       "Copy a task with its resources into another model phase",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[DuplicateRequest]) (*out[domain.ModelTask], error) {
		p, err := requirePermission(ctx, e, "catalog.write")
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.DuplicateTaskToPhase(ctx, input.ID, input.Body.TargetID, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})
}

func registerEdges(api huma.API, e engine.Engine, kind, base string,
	add func(ctx context.Context, id, prereqID, actorID string) error,
	remove func(ctx context.Context, id, prereqID, actorID string) error,
) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-" + kind + "-prerequisite",
		Method:        http.MethodPost,
		Path:          base + "/{id}/prerequisites",
		Summary:       "Add a prerequisite edge",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[PrerequisiteRequest]) (*struct{}, error) {
		p, err := requirePermission(ctx, e, "catalog.write")
		if err != nil {
			return nil, handleError(err)
		}
		if err := add(ctx, input.ID, input.Body.PrerequisiteID, p.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
	huma.Register(api, huma.Operation{
		OperationID:   "remove-" + kind + "-prerequisite",
		Method:        http.MethodDelete,
		Path:          base + "/{id}/prerequisites/{prerequisite_id}",
		Summary:       "Remove a prerequisite edge",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *edgePath) (*struct{}, error) {
		p, err := requirePermission(ctx, e, "catalog.write")
		if err != nil {
			return nil, handleError(err)
		}
		if err := remove(ctx, input.ID, input.PrerequisiteID, p.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
