package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildline/internal/catalogfile"
	"buildline/internal/domain"
	"buildline/internal/engine"
)

func TestPrerequisiteCyclesRejected(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	e, ctx := env.Engine, env.Ctx

	cases := map[string]func() error{
		"task self edge":     func() error { return e.AddTaskPrerequisite(ctx, h.EXC.ID, h.EXC.ID, "tester") },
		"task back edge":     func() error { return e.AddTaskPrerequisite(ctx, h.EXC.ID, h.POUR.ID, "tester") },
		"phase back edge":    func() error { return e.AddPhasePrerequisite(ctx, h.FND.ID, h.FRM.ID, "tester") },
		"task across phases": func() error { return e.AddTaskPrerequisite(ctx, h.ROOF.ID, h.EXC.ID, "tester") },
	}
	for name, add := range cases {
		t.Run(name, func(t *testing.T) {
			err := add()
			v, ok := engine.AsValidation(err)
			require.True(t, ok, "got %v", err)
			assert.Contains(t, v.Fields, "prerequisite_id")
		})
	}

	prereqs, err := e.Repo.ModelTaskPrereqs(ctx, nil, h.EXC.ID, false)
	require.NoError(t, err)
	assert.Empty(t, prereqs)
}

func TestModelSiblingConflicts(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)

	_, err := env.Engine.CreateModelPhase(env.Ctx, domain.ModelPhase{ModelProjectID: h.Model.ID, PhaseCode: "FND", Name: "Again", ExecutionOrder: 2}, "tester")
	v, ok := engine.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "phase_code")
	assert.Contains(t, v.Fields, "execution_order")

	_, err = env.Engine.CreateModelTask(env.Ctx, domain.ModelTask{ModelPhaseID: h.FND.ID, TaskCode: "NEW", Name: "New", ExecutionOrder: 0}, "tester")
	v, ok = engine.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "execution_order")
}

func TestBlockingAndDependents(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	e, ctx := env.Engine, env.Ctx

	blocking, err := e.BlockingTasks(ctx, h.POUR.ID)
	require.NoError(t, err)
	require.Len(t, blocking, 1)
	assert.Equal(t, "EXC", blocking[0].TaskCode)

	dependents, err := e.DependentTasks(ctx, h.OLD.ID)
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, "POUR", dependents[0].TaskCode)

	phases, err := e.BlockingPhases(ctx, h.FRM.ID)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, "FND", phases[0].PhaseCode)

	require.NoError(t, e.RemovePhasePrerequisite(ctx, h.FRM.ID, h.FND.ID, "tester"))
	phases, err = e.DependentPhases(ctx, h.FND.ID)
	require.NoError(t, err)
	assert.Empty(t, phases)
}

func TestTemplateTreePlannedCost(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	require.NoError(t, env.Engine.SetTaskResourceActive(env.Ctx, h.Formwork.ID, false, "tester"))

	tree, err := env.Engine.GetTemplateTree(env.Ctx, h.Model.ID)
	require.NoError(t, err)
	require.Len(t, tree.Phases, 2)
	fnd := tree.Phases[0]
	assert.Equal(t, "FND", fnd.PhaseCode)
	require.Len(t, fnd.Tasks, 3)
	pour := fnd.Tasks[1]
	assert.Equal(t, "POUR", pour.TaskCode)
	assert.Len(t, pour.Resources, 2)
	assertDec(t, "1500", pour.PlannedResourceCost)
}

func TestDuplicatePhaseToModel(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	e, ctx := env.Engine, env.Ctx

	_, err := e.DuplicatePhaseToModel(ctx, h.FND.ID, h.Model.ID, "tester")
	_, ok := engine.AsValidation(err)
	require.True(t, ok, "same code in the same model must be rejected, got %v", err)

	target, err := e.CreateModelProject(ctx, domain.ModelProject{Code: "SH2", Name: "Simple House v2", Version: "2", CountyID: s.County.ID, ProjectType: "SINGLE_FAMILY"}, "tester")
	require.NoError(t, err)
	copied, err := e.DuplicatePhaseToModel(ctx, h.FND.ID, target.ID, "tester")
	require.NoError(t, err)
	assert.NotEqual(t, h.FND.ID, copied.ID)
	assert.Equal(t, "FND", copied.PhaseCode)

	tree, err := e.GetTemplateTree(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, tree.Phases, 1)
	tasks := map[string]engine.TemplateTask{}
	for _, task := range tree.Phases[0].Tasks {
		tasks[task.TaskCode] = task
	}
	require.Len(t, tasks, 3)
	assert.False(t, tasks["OLD"].Active)
	assert.Len(t, tasks["POUR"].Resources, 2)

	prereqs, err := e.Repo.ModelTaskPrereqs(ctx, nil, tasks["POUR"].ID, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{tasks["EXC"].ID, tasks["OLD"].ID}, prereqs)

	// the source keeps its own edges
	prereqs, err = e.Repo.ModelTaskPrereqs(ctx, nil, h.POUR.ID, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{h.EXC.ID, h.OLD.ID}, prereqs)
}

func TestDuplicateTaskToPhase(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	e, ctx := env.Engine, env.Ctx

	rework, err := e.CreateModelPhase(ctx, domain.ModelPhase{ModelProjectID: h.Model.ID, PhaseCode: "PATCH", Name: "Patch work", ExecutionOrder: 3}, "tester")
	require.NoError(t, err)
	copied, err := e.DuplicateTaskToPhase(ctx, h.POUR.ID, rework.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, rework.ID, copied.ModelPhaseID)
	assert.Equal(t, "POUR", copied.TaskCode)
	assertDec(t, "5000", copied.EstimatedCost)

	res, err := e.Repo.ListTaskResources(ctx, nil, copied.ID, false)
	require.NoError(t, err)
	assert.Len(t, res, 2)
	prereqs, err := e.Repo.ModelTaskPrereqs(ctx, nil, copied.ID, false)
	require.NoError(t, err)
	assert.Empty(t, prereqs)
}

const townhouse = `
code: TH
name: Townhouse
county: MIA
project_type: TOWNHOUSE
phases:
  - code: SITE
    name: Site work
    order: 1
    tasks:
      - code: CLR
        name: Clearing
        order: 1
        duration_hours: 6
        cost: "750.50"
        cost_subgroup: SITE-CLR
        resources:
          - type: EQUIPMENT
            name: Excavator
            unit: day
            quantity: 1
            unit_cost: "600"
      - code: GRD
        name: Grading
        order: 2
        prerequisites: [CLR]
  - code: SLAB
    name: Slab
    order: 2
    requires_inspection: true
    prerequisites: [SITE]
    tasks:
      - code: FORM
        name: Formwork
        order: 1
        requires_approval: true
`

func TestImportTemplate(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	e, ctx := env.Engine, env.Ctx
	group, err := e.CreateCostGroup(ctx, domain.CostGroup{Code: "SITE", Name: "Site"}, "tester")
	require.NoError(t, err)
	sub, err := e.CreateCostSubGroup(ctx, domain.CostSubGroup{CostGroupID: group.ID, Code: "SITE-CLR", Name: "Clearing"}, "tester")
	require.NoError(t, err)

	doc, err := catalogfile.Parse([]byte(townhouse))
	require.NoError(t, err)
	tree, err := e.ImportTemplate(ctx, doc, "tester")
	require.NoError(t, err)
	assert.Equal(t, s.County.ID, tree.Model.CountyID)
	assert.Equal(t, "1", tree.Model.Version)
	require.Len(t, tree.Phases, 2)
	sitePhase := tree.Phases[0]
	require.Len(t, sitePhase.Tasks, 2)
	assert.Equal(t, sub.ID, sitePhase.Tasks[0].CostSubGroupID)
	assertDec(t, "750.50", sitePhase.Tasks[0].EstimatedCost)
	assertDec(t, "600", sitePhase.Tasks[0].PlannedResourceCost)
	assert.True(t, tree.Phases[1].RequiresInspection)
	assert.True(t, tree.Phases[1].Tasks[0].RequiresApproval)

	blocking, err := e.BlockingTasks(ctx, sitePhase.Tasks[1].ID)
	require.NoError(t, err)
	require.Len(t, blocking, 1)
	assert.Equal(t, "CLR", blocking[0].TaskCode)
	phases, err := e.BlockingPhases(ctx, tree.Phases[1].ID)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, "SITE", phases[0].PhaseCode)
}

func TestImportTemplateRollsBackOnUnknownSubgroup(t *testing.T) {
	env := newTestEnv(t)
	seedSite(t, env)
	doc, err := catalogfile.Parse([]byte(townhouse))
	require.NoError(t, err)

	_, err = env.Engine.ImportTemplate(env.Ctx, doc, "tester")
	v, ok := engine.AsValidation(err)
	require.True(t, ok, "got %v", err)
	assert.Contains(t, v.Fields, "cost_subgroup")

	models, err := env.Engine.Repo.ListModelProjects(env.Ctx, "")
	require.NoError(t, err)
	assert.Empty(t, models)
}
