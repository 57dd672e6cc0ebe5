package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"buildline/internal/domain"
	"buildline/internal/engine"
	"buildline/internal/repo"
)

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		IncorporationID string `query:"incorporation_id"`
		Status          string `query:"status" enum:"PLANNED,IN_PROGRESS,COMPLETED"`
	}) (*out[[]domain.Project], error) {
		if _, err := requirePermission(ctx, e, "project.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{IncorporationID: input.IncorporationID, Status: input.Status})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	registerCreate(api, e, "create-project", "/projects", "Create a project and instantiate its model", "project.write",
		func(ctx context.Context, req CreateProjectRequest, actorID string) (ProjectCreatedResponse, error) {
			p, inst, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
				ID:               req.ID,
				IncorporationID:  req.IncorporationID,
				ModelProjectID:   req.ModelProjectID,
				Code:             req.Code,
				Name:             req.Name,
				LotNumber:        req.LotNumber,
				PlannedStartDate: req.PlannedStartDate,
				ActorID:          actorID,
			})
			return ProjectCreatedResponse{Project: p, Instantiation: inst}, err
		})

	registerGet(api, e, "get-project", "/projects/{id}", "Project with phases and tasks", "project.read", e.GetProjectTree)
	registerGet(api, e, "project-costs", "/projects/{id}/costs", "Estimated and actual cost per phase and task", "project.read", e.ProjectCosts)

	huma.Register(api, huma.Operation{
		OperationID: "initialize-project",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/initialize",
		Summary:     "Instantiate the model project if the project has no phases yet",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idPath) (*out[engine.Instantiation], error) {
		p, err := requirePermission(ctx, e, "project.write")
		if err != nil {
			return nil, handleError(err)
		}
		inst, err := e.InitializeFromModel(ctx, input.ID, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(inst), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "prepare-project",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/prepare",
		Summary:     "Re-evaluate readiness of every phase",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idPath) (*out[[]domain.PhaseProject], error) {
		p, err := requirePermission(ctx, e, "execution.write")
		if err != nil {
			return nil, handleError(err)
		}
		phases, err := e.PrepareProject(ctx, input.ID, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(phases)), nil
	})
}

type lifecycleFunc func(ctx context.Context, id string, req ActionRequest, actorID string) (bool, error)

func registerPhases(api huma.API, e engine.Engine) {
	getPhase := func(ctx context.Context, id string) (domain.PhaseProject, error) {
		return e.Repo.GetPhaseProject(ctx, nil, id)
	}
	registerGet(api, e, "get-phase", "/phases/{id}", "Get project phase", "project.read", getPhase)
	registerCanStart(api, e, "phase", "/phases/{id}/can-start", e.PhaseCanStart)

	actions := []struct {
		name string
		fn   lifecycleFunc
	}{
		{"prepare", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.PreparePhase(ctx, id, actor)
		}},
		{"start", func(ctx context.Context, id string, req ActionRequest, actor string) (bool, error) {
			return e.StartPhase(ctx, id, engine.StartOptions{ActorID: actor, AssignTo: req.AssignTo})
		}},
		{"complete", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.CompletePhase(ctx, id, actor)
		}},
		{"pause", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.PausePhase(ctx, id, actor)
		}},
		{"resume", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.ResumePhase(ctx, id, actor)
		}},
		{"cancel", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.CancelPhase(ctx, id, actor)
		}},
		{"block", func(ctx context.Context, id string, req ActionRequest, actor string) (bool, error) {
			return e.BlockPhase(ctx, id, req.Reason, actor)
		}},
	}
	for _, a := range actions {
		registerAction(api, e, "phase", "/phases/{id}/"+a.name, a.name, a.fn, getPhase, func(p domain.PhaseProject) string { return string(p.Status) })
	}

	huma.Register(api, huma.Operation{
		OperationID: "phase-inspection",
		Method:      http.MethodPost,
		Path:        "/phases/{id}/inspection",
		Summary:     "Record an inspection result",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idBodyInput[InspectionRequest]) (*out[domain.PhaseProject], error) {
		p, err := requirePermission(ctx, e, "execution.write")
		if err != nil {
			return nil, handleError(err)
		}
		ok, err := e.RecordInspection(ctx, input.ID, input.Body.Passed, input.Body.Notes, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		phase, err := getPhase(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !ok {
			return nil, preconditionFailed("record inspection for", "phase", string(phase.Status))
		}
		return reply(phase), nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	getTask := func(ctx context.Context, id string) (domain.TaskProject, error) {
		return e.Repo.GetTaskProject(ctx, nil, id)
	}
	registerGet(api, e, "get-task", "/tasks/{id}", "Task with specifications and variance", "project.read",
		func(ctx context.Context, id string) (TaskDetailResponse, error) {
			t, err := getTask(ctx, id)
			if err != nil {
				return TaskDetailResponse{}, err
			}
			specs, err := e.Repo.ListTaskSpecs(ctx, nil, id)
			if err != nil {
				return TaskDetailResponse{}, err
			}
			res := TaskDetailResponse{TaskProject: t, Specifications: []SpecificationResponse{}, Variance: engine.TaskVariance(t)}
			for _, s := range specs {
				res.Specifications = append(res.Specifications, SpecificationResponse{TaskSpecification: s, SpecVariance: engine.SpecificationVariance(s)})
			}
			return res, nil
		})
	registerCanStart(api, e, "task", "/tasks/{id}/can-start", e.TaskCanStart)

	actions := []struct {
		name string
		fn   lifecycleFunc
	}{
		{"prepare", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.PrepareTask(ctx, id, actor)
		}},
		{"start", func(ctx context.Context, id string, req ActionRequest, actor string) (bool, error) {
			return e.StartTask(ctx, id, engine.StartOptions{ActorID: actor, AssignTo: req.AssignTo})
		}},
		{"complete", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.CompleteTask(ctx, id, actor)
		}},
		{"pause", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.PauseTask(ctx, id, actor)
		}},
		{"resume", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.ResumeTask(ctx, id, actor)
		}},
		{"cancel", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.CancelTask(ctx, id, actor)
		}},
		{"block", func(ctx context.Context, id string, req ActionRequest, actor string) (bool, error) {
			return e.BlockTask(ctx, id, req.Reason, actor)
		}},
		{"request-approval", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.RequestTaskApproval(ctx, id, actor)
		}},
		{"approve", func(ctx context.Context, id string, _ ActionRequest, actor string) (bool, error) {
			return e.ApproveTask(ctx, id, actor)
		}},
		{"reject", func(ctx context.Context, id string, req ActionRequest, actor string) (bool, error) {
			return e.RejectTask(ctx, id, req.Reason, actor)
		}},
	}
	for _, a := range actions {
		registerAction(api, e, "task", "/tasks/{id}/"+a.name, a.name, a.fn, getTask, func(t domain.TaskProject) string { return string(t.Status) })
	}

	huma.Register(api, huma.Operation{
		OperationID: "task-progress",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}/progress",
		Summary:     "Report completion percentage of a running task",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idBodyInput[ProgressRequest]) (*out[domain.TaskProject], error) {
		p, err := requirePermission(ctx, e, "execution.write")
		if err != nil {
			return nil, handleError(err)
		}
		d := newDecimals()
		pct := d.parse("percentage", input.Body.Percentage)
		if err := d.err(); err != nil {
			return nil, handleError(err)
		}
		ok, err := e.UpdateTaskProgress(ctx, input.ID, pct, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := getTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !ok {
			return nil, preconditionFailed("report progress for", "task", string(t.Status))
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "specification-usage",
		Method:      http.MethodPost,
		Path:        "/specifications/{id}/usage",
		Summary:     "Record actual quantity and cost of a task specification",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idBodyInput[UsageRequest]) (*out[SpecificationResponse], error) {
		p, err := requirePermission(ctx, e, "execution.write")
		if err != nil {
			return nil, handleError(err)
		}
		d := newDecimals()
		qty := d.parse("quantity", input.Body.Quantity)
		cost := d.parse("cost", input.Body.Cost)
		if err := d.err(); err != nil {
			return nil, handleError(err)
		}
		s, err := e.RecordResourceUsage(ctx, input.ID, qty, cost, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(SpecificationResponse{TaskSpecification: s, SpecVariance: engine.SpecificationVariance(s)}), nil
	})
}

func registerCanStart(api huma.API, e engine.Engine, kind, path string, check func(ctx context.Context, id string) (bool, error)) {
	huma.Register(api, huma.Operation{
		OperationID: kind + "-can-start",
		Method:      http.MethodGet,
		Path:        path,
		Summary:     "Whether every prerequisite is completed",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[CanStartResponse], error) {
		if _, err := requirePermission(ctx, e, "project.read"); err != nil {
			return nil, handleError(err)
		}
		ok, err := check(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(CanStartResponse{ID: input.ID, CanStart: ok}), nil
	})
}

// registerAction exposes a boolean lifecycle call. A false result maps to 400 with the
// entity's current status.
func registerAction[T any](api huma.API, e engine.Engine, kind, path, action string, fn lifecycleFunc,
	get func(ctx context.Context, id string) (T, error), status func(T) string,
) {
	huma.Register(api, huma.Operation{
		OperationID: kind + "-" + action,
		Method:      http.MethodPost,
		Path:        path,
		Summary:     action + " " + kind,
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idPath) (*out[T], error) {
		p, err := requirePermission(ctx, e, "execution.write")
		if err != nil {
			return nil, handleError(err)
		}
		var req ActionRequest
		if err := optionalBody(ctx, &req); err != nil {
			return nil, err
		}
		ok, err := fn(ctx, input.ID, req, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		v, err := get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !ok {
			return nil, preconditionFailed(action, kind, status(v))
		}
		return reply(v), nil
	})
}
