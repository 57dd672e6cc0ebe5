package engine

import (
	"context"
	"fmt"

	"buildline/internal/catalogfile"
	"buildline/internal/domain"
	"buildline/internal/events"
)

// ImportTemplate creates a model project and its whole phase/task/resource tree from a
// template document in one transaction.
func (e Engine) ImportTemplate(ctx context.Context, doc catalogfile.Document, actorID string) (TemplateTree, error) {
	if err := doc.Validate(); err != nil {
		return TemplateTree{}, invalid("document", err.Error())
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TemplateTree{}, err
	}
	defer tx.Rollback()

	county, err := e.Repo.GetCountyByCode(ctx, tx, doc.County)
	if err != nil {
		return TemplateTree{}, lookup("county", "county "+doc.County, err)
	}
	subgroups := map[string]string{}
	subgroupID := func(code string) (string, error) {
		if code == "" {
			return "", nil
		}
		if id, ok := subgroups[code]; ok {
			return id, nil
		}
		sg, err := e.Repo.GetCostSubGroupByCode(ctx, tx, code)
		if err != nil {
			return "", lookup("cost_subgroup", "cost subgroup "+code, err)
		}
		subgroups[code] = sg.ID
		return sg.ID, nil
	}

	now := e.ts()
	model := domain.ModelProject{
		ID:          newID(),
		Code:        doc.Code,
		Name:        doc.Name,
		Version:     doc.Version,
		CountyID:    county.ID,
		ProjectType: doc.ProjectType,
		Description: doc.Description,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if model.Version == "" {
		model.Version = "1"
	}
	if err := e.createModelProjectTx(ctx, tx, model, actorID); err != nil {
		return TemplateTree{}, err
	}

	phaseIDs := map[string]string{}
	var taskCount int
	for _, p := range doc.Phases {
		phase := domain.ModelPhase{
			ID:                    newID(),
			ModelProjectID:        model.ID,
			PhaseCode:             p.Code,
			Name:                  p.Name,
			Description:           p.Description,
			ExecutionOrder:        p.Order,
			EstimatedDurationDays: p.DurationDays,
			RequiresInspection:    p.RequiresInspection,
			Active:                !p.Inactive,
			CreatedAt:             now,
		}
		if err := e.createModelPhaseTx(ctx, tx, phase, actorID); err != nil {
			return TemplateTree{}, fmt.Errorf("phase %s: %w", p.Code, err)
		}
		phaseIDs[p.Code] = phase.ID

		taskIDs := map[string]string{}
		for _, t := range p.Tasks {
			sg, err := subgroupID(t.CostSubGroup)
			if err != nil {
				return TemplateTree{}, err
			}
			task := domain.ModelTask{
				ID:                     newID(),
				ModelPhaseID:           phase.ID,
				TaskCode:               t.Code,
				Name:                   t.Name,
				Description:            t.Description,
				ExecutionOrder:         t.Order,
				EstimatedDurationHours: t.DurationHours,
				EstimatedCost:          t.Cost,
				CostSubGroupID:         sg,
				RequiresApproval:       t.RequiresApproval,
				Active:                 !t.Inactive,
				CreatedAt:              now,
			}
			if err := e.createModelTaskTx(ctx, tx, task, actorID); err != nil {
				return TemplateTree{}, fmt.Errorf("task %s/%s: %w", p.Code, t.Code, err)
			}
			taskIDs[t.Code] = task.ID
			taskCount++
			for _, r := range t.Resources {
				rsg, err := subgroupID(r.CostSubGroup)
				if err != nil {
					return TemplateTree{}, err
				}
				res := domain.TaskResource{
					ID:             newID(),
					ModelTaskID:    task.ID,
					ResourceType:   domain.ResourceType(r.Type),
					Name:           r.Name,
					Unit:           r.Unit,
					Quantity:       r.Quantity,
					UnitCost:       r.UnitCost,
					CostSubGroupID: rsg,
					Active:         true,
					CreatedAt:      now,
				}
				if err := e.createTaskResourceTx(ctx, tx, res, actorID); err != nil {
					return TemplateTree{}, fmt.Errorf("resource %s/%s/%s: %w", p.Code, t.Code, r.Name, err)
				}
			}
		}
		for _, t := range p.Tasks {
			for _, pre := range t.Prerequisites {
				if err := e.addTaskPrerequisiteTx(ctx, tx, taskIDs[t.Code], taskIDs[pre], actorID); err != nil {
					return TemplateTree{}, fmt.Errorf("task %s/%s: %w", p.Code, t.Code, err)
				}
			}
		}
	}
	for _, p := range doc.Phases {
		for _, pre := range p.Prerequisites {
			if err := e.addPhasePrerequisiteTx(ctx, tx, phaseIDs[p.Code], phaseIDs[pre], actorID); err != nil {
				return TemplateTree{}, fmt.Errorf("phase %s: %w", p.Code, err)
			}
		}
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "model_project.imported", EntityKind: "model_project", EntityID: model.ID, ActorID: actorID,
		Payload: events.Payload{"code": model.Code, "phases": len(doc.Phases), "tasks": taskCount}}); err != nil {
		return TemplateTree{}, err
	}
	if err := tx.Commit(); err != nil {
		return TemplateTree{}, err
	}
	e.log().Info("template imported", "model_project_id", model.ID, "code", model.Code, "phases", len(doc.Phases), "tasks", taskCount)
	return e.GetTemplateTree(ctx, model.ID)
}
