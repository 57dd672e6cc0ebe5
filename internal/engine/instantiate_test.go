package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildline/internal/domain"
	"buildline/internal/engine"
	"buildline/internal/repo"
)

func TestCreateProjectCopiesActiveTemplate(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)

	p, inst, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		IncorporationID: s.Incorporation.ID,
		ModelProjectID:  h.Model.ID,
		Code:            "L-101",
		Name:            "Lot 101",
		LotNumber:       "101",
		ActorID:         "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectPlanned, p.Status)
	assert.Equal(t, engine.Instantiation{Created: true, Phases: 2, Tasks: 4, PhaseEdges: 1, TaskEdges: 2}, inst)

	got := loadInstance(t, env, p.ID)
	require.Len(t, got.Phases, 2)
	require.Len(t, got.Tasks, 4)
	assert.NotContains(t, got.Tasks, "OLD")
	for code, ph := range got.Phases {
		assert.Equal(t, domain.PhaseNotStarted, ph.Status, code)
		assertDec(t, "0", ph.CompletionPercentage, code)
	}
	for code, task := range got.Tasks {
		assert.Equal(t, domain.TaskPending, task.Status, code)
		assertDec(t, "0", task.ActualCost, code)
		assert.Equal(t, p.ID, task.ProjectID, code)
	}
	assert.True(t, got.Phases["FRM"].RequiresInspection)
	assert.True(t, got.Tasks["WALLS"].RequiresApproval)
	assertDec(t, "5000", got.Tasks["POUR"].EstimatedCost)
	assertDec(t, "16", got.Tasks["POUR"].EstimatedDurationHours)
	assert.Equal(t, h.POUR.ID, got.Tasks["POUR"].ModelTaskID)
	assert.Equal(t, got.Phases["FND"].ID, got.Tasks["POUR"].PhaseProjectID)
}

func TestInstantiatedGraphMirrorsTemplate(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	got := newProject(t, env, s, h.Model, "L-102")
	r, ctx := env.Engine.Repo, env.Ctx

	prereqs, err := r.PhasePrereqs(ctx, nil, got.Phases["FRM"].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{got.Phases["FND"].ID}, prereqs)

	// POUR -> OLD pointed at an inactive task and is not carried over
	prereqs, err = r.TaskPrereqs(ctx, nil, got.Tasks["POUR"].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{got.Tasks["EXC"].ID}, prereqs)

	prereqs, err = r.TaskPrereqs(ctx, nil, got.Tasks["ROOF"].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{got.Tasks["WALLS"].ID}, prereqs)

	prereqs, err = r.TaskPrereqs(ctx, nil, got.Tasks["EXC"].ID)
	require.NoError(t, err)
	assert.Empty(t, prereqs)
}

func TestInstantiatedGraphsMatchRemappedTemplateGraphs(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	got := newProject(t, env, s, h.Model, "L-104")
	r, ctx := env.Engine.Repo, env.Ctx

	phaseIDs := map[string]string{}
	for _, ph := range got.Phases {
		phaseIDs[ph.ModelPhaseID] = ph.ID
	}
	model, err := r.ModelPhaseGraph(ctx, nil, h.Model.ID)
	require.NoError(t, err)
	actual, err := r.PhaseGraph(ctx, nil, got.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Remap(phaseIDs).Edges(), actual.Edges())
	assert.ElementsMatch(t, []string{got.Phases["FND"].ID, got.Phases["FRM"].ID}, actual.Nodes())

	for code, mp := range map[string]domain.ModelPhase{"FND": h.FND, "FRM": h.FRM} {
		taskIDs := map[string]string{}
		for _, task := range got.Tasks {
			if task.PhaseProjectID == got.Phases[code].ID {
				taskIDs[task.ModelTaskID] = task.ID
			}
		}
		modelTasks, err := r.ModelTaskGraph(ctx, nil, mp.ID)
		require.NoError(t, err)
		tasks, err := r.TaskGraph(ctx, nil, got.Phases[code].ID)
		require.NoError(t, err)
		assert.Equal(t, modelTasks.Remap(taskIDs).Edges(), tasks.Edges(), code)
		assert.Len(t, tasks.Nodes(), len(taskIDs), code)
	}
}

func TestInactiveTemplatePhaseIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	e, ctx := env.Engine, env.Ctx

	// FRM lists FND as a prerequisite
	require.NoError(t, e.SetModelPhaseActive(ctx, h.FND.ID, false, "tester"))
	p, inst, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
		IncorporationID: s.Incorporation.ID,
		ModelProjectID:  h.Model.ID,
		Code:            "L-105",
		Name:            "Lot 105",
		ActorID:         "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.Instantiation{Created: true, Phases: 1, Tasks: 2, PhaseEdges: 0, TaskEdges: 1}, inst)

	got := loadInstance(t, env, p.ID)
	require.Len(t, got.Phases, 1)
	assert.NotContains(t, got.Phases, "FND")
	assert.NotContains(t, got.Tasks, "EXC")
	assert.NotContains(t, got.Tasks, "POUR")

	prereqs, err := e.Repo.PhasePrereqs(ctx, nil, got.Phases["FRM"].ID)
	require.NoError(t, err)
	assert.Empty(t, prereqs)

	_, err = e.PrepareProject(ctx, p.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReadyToStart, phaseStatus(t, env, got.Phases["FRM"].ID))
}

func TestInitializeFromModelIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	got := newProject(t, env, s, h.Model, "L-103")

	// template changes after instantiation do not leak into the project
	_, err := env.Engine.CreateModelPhase(env.Ctx, domain.ModelPhase{ModelProjectID: h.Model.ID, PhaseCode: "RFG", Name: "Roofing", ExecutionOrder: 3}, "tester")
	require.NoError(t, err)

	inst, err := env.Engine.InitializeFromModel(env.Ctx, got.Project.ID, "tester")
	require.NoError(t, err)
	assert.False(t, inst.Created)
	assert.Zero(t, inst.Phases)

	n, err := env.Engine.Repo.CountPhases(env.Ctx, nil, got.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	e, ctx := env.Engine, env.Ctx

	other, err := e.CreateCounty(ctx, domain.County{Code: "BRO", Name: "Broward"}, "tester")
	require.NoError(t, err)
	foreign, err := e.CreateModelProject(ctx, domain.ModelProject{Code: "BR", Name: "Broward House", CountyID: other.ID, ProjectType: "SINGLE_FAMILY"}, "tester")
	require.NoError(t, err)

	_, _, err = e.CreateProject(ctx, engine.ProjectCreateOptions{IncorporationID: s.Incorporation.ID, ModelProjectID: foreign.ID, Code: "X1", Name: "X1"})
	v, ok := engine.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields["model_project_id"], "model project county does not match incorporation county")

	require.NoError(t, e.SetModelProjectActive(ctx, h.Model.ID, false, "tester"))
	_, _, err = e.CreateProject(ctx, engine.ProjectCreateOptions{IncorporationID: s.Incorporation.ID, ModelProjectID: h.Model.ID, Code: "X2", Name: "X2"})
	v, ok = engine.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields["model_project_id"], "model project is inactive")

	_, _, err = e.CreateProject(ctx, engine.ProjectCreateOptions{IncorporationID: "missing", ModelProjectID: h.Model.ID, Code: "X3", Name: "X3"})
	v, ok = engine.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "incorporation_id")

	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{})
	require.NoError(t, err)
	assert.Empty(t, projects)
}
