package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildline/internal/domain"
	"buildline/internal/engine"
)

func startOpts() engine.StartOptions {
	return engine.StartOptions{ActorID: "tester"}
}

// mustOK asserts that a lifecycle call succeeded and committed.
func mustOK(t *testing.T) func(bool, error) {
	return func(ok bool, err error) {
		t.Helper()
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestPhaseStartGating(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	got := newProject(t, env, s, h.Model, "L-201")
	e, ctx := env.Engine, env.Ctx
	fnd, frm := got.Phases["FND"], got.Phases["FRM"]

	can, err := e.PhaseCanStart(ctx, fnd.ID)
	require.NoError(t, err)
	assert.False(t, can, "NOT_STARTED phases are not startable")
	ok, err := e.StartPhase(ctx, fnd.ID, startOpts())
	require.NoError(t, err)
	assert.False(t, ok)

	phases, err := e.PrepareProject(ctx, got.Project.ID, "tester")
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, domain.PhaseReadyToStart, phaseStatus(t, env, fnd.ID))
	assert.Equal(t, domain.PhaseWaitingPrerequisites, phaseStatus(t, env, frm.ID))

	ok, err = e.StartPhase(ctx, frm.ID, startOpts())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.PhaseWaitingPrerequisites, phaseStatus(t, env, frm.ID))

	user, err := e.CreateUser(ctx, domain.User{Email: "lead@example.com", FullName: "Site Lead", ProfileID: "field"}, "tester")
	require.NoError(t, err)
	mustOK(t)(e.StartPhase(ctx, fnd.ID, engine.StartOptions{ActorID: "tester", AssignTo: user.ID}))
	started, err := e.Repo.GetPhaseProject(ctx, nil, fnd.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInProgress, started.Status)
	assert.Equal(t, user.ID, started.AssignedTo)
	assert.NotEmpty(t, started.ActualStartDate)

	project, err := e.Repo.GetProject(ctx, nil, got.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectInProgress, project.Status)

	// starting the phase prepares its tasks
	assert.Equal(t, domain.TaskReadyToStart, taskStatus(t, env, got.Tasks["EXC"].ID))
	assert.Equal(t, domain.TaskWaitingPrerequisites, taskStatus(t, env, got.Tasks["POUR"].ID))
	assert.Equal(t, domain.TaskPending, taskStatus(t, env, got.Tasks["WALLS"].ID))

	ok, err = e.StartTask(ctx, got.Tasks["POUR"].ID, startOpts())
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestSimpleHouseLifecycle drives one project from creation to completion.
func TestSimpleHouseLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	got := newProject(t, env, s, h.Model, "L-202")
	e, ctx := env.Engine, env.Ctx
	fnd, frm := got.Phases["FND"], got.Phases["FRM"]
	exc, pour, walls, roof := got.Tasks["EXC"], got.Tasks["POUR"], got.Tasks["WALLS"], got.Tasks["ROOF"]

	_, err := e.PrepareProject(ctx, got.Project.ID, "tester")
	require.NoError(t, err)
	mustOK(t)(e.StartPhase(ctx, fnd.ID, startOpts()))

	// foundation
	mustOK(t)(e.StartTask(ctx, exc.ID, startOpts()))
	env.advance(4 * time.Hour)
	mustOK(t)(e.CompleteTask(ctx, exc.ID, "tester"))
	done, err := e.Repo.GetTaskProject(ctx, nil, exc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, done.Status)
	assertDec(t, "4", done.ActualDurationHours)
	assertDec(t, "100", done.CompletionPercentage)
	assert.Equal(t, domain.TaskReadyToStart, taskStatus(t, env, pour.ID), "completing EXC releases POUR")

	ph, err := e.Repo.GetPhaseProject(ctx, nil, fnd.ID)
	require.NoError(t, err)
	assertDec(t, "50", ph.CompletionPercentage)
	assert.Equal(t, domain.PhaseInProgress, ph.Status)

	mustOK(t)(e.StartTask(ctx, pour.ID, startOpts()))
	specs, err := e.Repo.ListTaskSpecs(ctx, nil, pour.ID)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	var concrete domain.TaskSpecification
	for _, sp := range specs {
		if sp.TaskResourceID == h.Concrete.ID {
			concrete = sp
		}
	}
	require.NotEmpty(t, concrete.ID)
	assertDec(t, "10", concrete.PlannedQuantity)
	assertDec(t, "1500", concrete.PlannedCost)
	assertDec(t, "0", concrete.ActualQuantity)

	used, err := e.RecordResourceUsage(ctx, concrete.ID, dec("12"), dec("1900"), "tester")
	require.NoError(t, err)
	assertDec(t, "12", used.ActualQuantity)
	sv := engine.SpecificationVariance(used)
	assertDec(t, "20", sv.QuantityVariance)
	assertDec(t, "26.67", sv.CostVariance)

	ok, err := e.UpdateTaskProgress(ctx, pour.ID, dec("100"), "tester")
	_, isValidation := engine.AsValidation(err)
	assert.True(t, isValidation)
	assert.False(t, ok)
	mustOK(t)(e.UpdateTaskProgress(ctx, pour.ID, dec("40"), "tester"))
	ph, err = e.Repo.GetPhaseProject(ctx, nil, fnd.ID)
	require.NoError(t, err)
	assertDec(t, "70", ph.CompletionPercentage)

	env.advance(12 * time.Hour)
	mustOK(t)(e.CompleteTask(ctx, pour.ID, "tester"))
	assert.Equal(t, domain.PhaseCompleted, phaseStatus(t, env, fnd.ID), "no inspection: phase completes with its last task")
	assert.Equal(t, domain.PhaseReadyToStart, phaseStatus(t, env, frm.ID), "framing released")

	// framing
	mustOK(t)(e.StartPhase(ctx, frm.ID, startOpts()))
	mustOK(t)(e.StartTask(ctx, walls.ID, startOpts()))
	ok, err = e.CompleteTask(ctx, walls.ID, "tester")
	require.NoError(t, err)
	assert.False(t, ok, "approval-gated task cannot be completed directly")

	mustOK(t)(e.RequestTaskApproval(ctx, walls.ID, "tester"))
	mustOK(t)(e.RejectTask(ctx, walls.ID, "studs off-center", "tester"))
	assert.Equal(t, domain.TaskReworkNeeded, taskStatus(t, env, walls.ID))
	assert.Equal(t, domain.TaskWaitingPrerequisites, taskStatus(t, env, roof.ID))
	mustOK(t)(e.ResumeTask(ctx, walls.ID, "tester"))
	mustOK(t)(e.RequestTaskApproval(ctx, walls.ID, "tester"))
	mustOK(t)(e.ApproveTask(ctx, walls.ID, "tester"))
	assert.Equal(t, domain.TaskCompleted, taskStatus(t, env, walls.ID))
	assert.Equal(t, domain.TaskReadyToStart, taskStatus(t, env, roof.ID))

	mustOK(t)(e.StartTask(ctx, roof.ID, startOpts()))
	mustOK(t)(e.CompleteTask(ctx, roof.ID, "tester"))
	assert.Equal(t, domain.PhaseWaitingInspection, phaseStatus(t, env, frm.ID))

	ok, err = e.CompletePhase(ctx, frm.ID, "tester")
	require.NoError(t, err)
	assert.False(t, ok, "inspected phases complete through an inspection")

	mustOK(t)(e.RecordInspection(ctx, frm.ID, false, "missing hurricane straps", "tester"))
	assert.Equal(t, domain.PhaseInspectionFailed, phaseStatus(t, env, frm.ID))
	mustOK(t)(e.RecordInspection(ctx, frm.ID, true, "straps installed", "tester"))
	final, err := e.Repo.GetPhaseProject(ctx, nil, frm.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, final.Status)
	assert.Equal(t, "straps installed", final.InspectionNotes)

	project, err := e.Repo.GetProject(ctx, nil, got.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectCompleted, project.Status)

	costs, err := e.ProjectCosts(ctx, got.Project.ID)
	require.NoError(t, err)
	assertDec(t, "20000", costs.EstimatedCost)
	assertDec(t, "1900", costs.ActualCost)
	assertDec(t, "-90.5", costs.CostVariance)
	require.Len(t, costs.Phases, 2)
	assertDec(t, "6000", costs.Phases[0].EstimatedCost)
	assertDec(t, "-50", costs.Phases[0].Tasks[0].TimeVariance, "EXC took 4 of 8 hours")
}

func TestCancelledTasksLeaveCompletionMean(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	got := newProject(t, env, s, h.Model, "L-203")
	e, ctx := env.Engine, env.Ctx
	fnd, frm := got.Phases["FND"], got.Phases["FRM"]

	_, err := e.PrepareProject(ctx, got.Project.ID, "tester")
	require.NoError(t, err)
	mustOK(t)(e.StartPhase(ctx, fnd.ID, startOpts()))
	mustOK(t)(e.StartTask(ctx, got.Tasks["EXC"].ID, startOpts()))
	mustOK(t)(e.CompleteTask(ctx, got.Tasks["EXC"].ID, "tester"))
	mustOK(t)(e.CancelTask(ctx, got.Tasks["POUR"].ID, "tester"))

	assert.Equal(t, domain.PhaseCompleted, phaseStatus(t, env, fnd.ID))
	assert.Equal(t, domain.PhaseReadyToStart, phaseStatus(t, env, frm.ID))

	_, err = e.RecordResourceUsage(ctx, "missing", dec("1"), dec("1"), "tester")
	assert.Error(t, err)

	ok, err := e.CancelTask(ctx, got.Tasks["POUR"].ID, "tester")
	require.NoError(t, err)
	assert.False(t, ok, "terminal tasks stay put")
}

func TestCancelPhaseKeepsDependentsWaiting(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	got := newProject(t, env, s, h.Model, "L-204")
	e, ctx := env.Engine, env.Ctx
	fnd, frm := got.Phases["FND"], got.Phases["FRM"]

	_, err := e.PrepareProject(ctx, got.Project.ID, "tester")
	require.NoError(t, err)
	mustOK(t)(e.StartPhase(ctx, fnd.ID, startOpts()))
	mustOK(t)(e.CancelPhase(ctx, fnd.ID, "tester"))

	assert.Equal(t, domain.PhaseCancelled, phaseStatus(t, env, fnd.ID))
	assert.Equal(t, domain.TaskCancelled, taskStatus(t, env, got.Tasks["EXC"].ID))
	assert.Equal(t, domain.TaskCancelled, taskStatus(t, env, got.Tasks["POUR"].ID))
	assert.Equal(t, domain.PhaseWaitingPrerequisites, phaseStatus(t, env, frm.ID))

	mustOK(t)(e.BlockPhase(ctx, frm.ID, "permit revoked", "tester"))
	project, err := e.Repo.GetProject(ctx, nil, got.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectInProgress, project.Status)
}

func TestPausedPhaseCompletesOnResume(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	got := newProject(t, env, s, h.Model, "L-205")
	e, ctx := env.Engine, env.Ctx
	fnd := got.Phases["FND"]

	_, err := e.PrepareProject(ctx, got.Project.ID, "tester")
	require.NoError(t, err)
	mustOK(t)(e.StartPhase(ctx, fnd.ID, startOpts()))
	mustOK(t)(e.StartTask(ctx, got.Tasks["EXC"].ID, startOpts()))
	mustOK(t)(e.PausePhase(ctx, fnd.ID, "tester"))

	mustOK(t)(e.PauseTask(ctx, got.Tasks["EXC"].ID, "tester"))
	mustOK(t)(e.CompleteTask(ctx, got.Tasks["EXC"].ID, "tester"))
	mustOK(t)(e.CancelTask(ctx, got.Tasks["POUR"].ID, "tester"))
	ph, err := e.Repo.GetPhaseProject(ctx, nil, fnd.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePaused, ph.Status)
	assertDec(t, "100", ph.CompletionPercentage)

	mustOK(t)(e.ResumePhase(ctx, fnd.ID, "tester"))
	assert.Equal(t, domain.PhaseCompleted, phaseStatus(t, env, fnd.ID))
}

func TestPhaseStaysOpenUntilEveryTaskFinishes(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	e, ctx := env.Engine, env.Ctx

	model, err := e.CreateModelProject(ctx, domain.ModelProject{Code: "SHED", Name: "Garden Shed", CountyID: s.County.ID, ProjectType: "SINGLE_FAMILY"}, "tester")
	require.NoError(t, err)
	slab, err := e.CreateModelPhase(ctx, domain.ModelPhase{ModelProjectID: model.ID, PhaseCode: "SLB", Name: "Slab", ExecutionOrder: 1}, "tester")
	require.NoError(t, err)
	_, err = e.CreateModelTask(ctx, domain.ModelTask{ModelPhaseID: slab.ID, TaskCode: "FORM", Name: "Formwork", ExecutionOrder: 1, EstimatedCost: dec("400")}, "tester")
	require.NoError(t, err)
	_, err = e.CreateModelTask(ctx, domain.ModelTask{ModelPhaseID: slab.ID, TaskCode: "MESH", Name: "Rebar mesh", ExecutionOrder: 2, EstimatedCost: dec("300")}, "tester")
	require.NoError(t, err)

	got := newProject(t, env, s, model, "L-207")
	phase, form, mesh := got.Phases["SLB"], got.Tasks["FORM"], got.Tasks["MESH"]
	_, err = e.PrepareProject(ctx, got.Project.ID, "tester")
	require.NoError(t, err)
	mustOK(t)(e.StartPhase(ctx, phase.ID, startOpts()))
	mustOK(t)(e.StartTask(ctx, form.ID, startOpts()))
	mustOK(t)(e.StartTask(ctx, mesh.ID, startOpts()))

	// (99.99 + 100) / 2 rounds to 100.00 but FORM is not done
	mustOK(t)(e.UpdateTaskProgress(ctx, form.ID, dec("99.99"), "tester"))
	mustOK(t)(e.CompleteTask(ctx, mesh.ID, "tester"))
	assert.Equal(t, domain.TaskInProgress, taskStatus(t, env, form.ID))
	ph, err := e.Repo.GetPhaseProject(ctx, nil, phase.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInProgress, ph.Status)
	assertDec(t, "99.99", ph.CompletionPercentage)

	ok, err := e.CompletePhase(ctx, phase.ID, "tester")
	require.NoError(t, err)
	assert.False(t, ok)
	project, err := e.Repo.GetProject(ctx, nil, got.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectInProgress, project.Status)

	mustOK(t)(e.CompleteTask(ctx, form.ID, "tester"))
	assert.Equal(t, domain.PhaseCompleted, phaseStatus(t, env, phase.ID))
}

type stockroom struct{ inStock bool }

func (s *stockroom) Available(context.Context, domain.TaskProject) (bool, error) {
	return s.inStock, nil
}

func TestTasksWaitForResources(t *testing.T) {
	env := newTestEnv(t)
	s := seedSite(t, env)
	h := seedSimpleHouse(t, env, s.County)
	got := newProject(t, env, s, h.Model, "L-206")
	stock := &stockroom{}
	e, ctx := env.Engine, env.Ctx
	e.Resources = stock

	_, err := e.PrepareProject(ctx, got.Project.ID, "tester")
	require.NoError(t, err)
	mustOK(t)(e.StartPhase(ctx, got.Phases["FND"].ID, startOpts()))
	exc := got.Tasks["EXC"].ID
	assert.Equal(t, domain.TaskWaitingResources, taskStatus(t, env, exc))
	assert.Equal(t, domain.TaskWaitingPrerequisites, taskStatus(t, env, got.Tasks["POUR"].ID), "prerequisites outrank resources")

	ok, err := e.StartTask(ctx, exc, startOpts())
	require.NoError(t, err)
	assert.False(t, ok)

	stock.inStock = true
	mustOK(t)(e.PrepareTask(ctx, exc, "tester"))
	assert.Equal(t, domain.TaskReadyToStart, taskStatus(t, env, exc))
	mustOK(t)(e.StartTask(ctx, exc, startOpts()))
	mustOK(t)(e.BlockTask(ctx, exc, "equipment failure", "tester"))
	assert.Equal(t, domain.TaskBlocked, taskStatus(t, env, exc))
}
