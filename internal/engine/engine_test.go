package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildline/internal/config"
	"buildline/internal/db"
	"buildline/internal/domain"
	"buildline/internal/engine"
	"buildline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	// Clock is read by Engine.Now; tests advance it to simulate elapsed work.
	Clock *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	eng := engine.New(conn, cfg)
	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return clock }
	ctx := context.Background()
	require.NoError(t, eng.SyncProfiles(ctx, cfg))
	require.NoError(t, eng.SyncChoices(ctx, cfg))
	return testEnv{Engine: eng, Ctx: ctx, Clock: &clock}
}

func (env testEnv) advance(d time.Duration) {
	*env.Clock = env.Clock.Add(d)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

// site holds the reference rows most tests need.
type site struct {
	County        domain.County
	Incorporation domain.Incorporation
	Payment       domain.PaymentMethod
}

func seedSite(t *testing.T, env testEnv) site {
	t.Helper()
	e, ctx := env.Engine, env.Ctx
	county, err := e.CreateCounty(ctx, domain.County{Code: "MIA", Name: "Miami-Dade", State: "FL"}, "tester")
	require.NoError(t, err)
	inc, err := e.CreateIncorporation(ctx, domain.Incorporation{Code: "SUN", Name: "Sunrise Estates", CountyID: county.ID}, "tester")
	require.NoError(t, err)
	pm, err := e.CreatePaymentMethod(ctx, domain.PaymentMethod{Code: "CASH", Name: "Cash"}, "tester")
	require.NoError(t, err)
	return site{County: county, Incorporation: inc, Payment: pm}
}

// simpleHouse is the template used across tests:
//
//	FND (order 1): EXC -> POUR (POUR needs EXC), plus inactive OLD that POUR also lists
//	FRM (order 2, needs FND, inspected): WALLS (approval) -> ROOF
type simpleHouse struct {
	Model              domain.ModelProject
	FND, FRM           domain.ModelPhase
	EXC, POUR, OLD     domain.ModelTask
	WALLS, ROOF        domain.ModelTask
	Concrete, Formwork domain.TaskResource
}

func seedSimpleHouse(t *testing.T, env testEnv, county domain.County) simpleHouse {
	t.Helper()
	e, ctx := env.Engine, env.Ctx
	var h simpleHouse
	var err error
	h.Model, err = e.CreateModelProject(ctx, domain.ModelProject{Code: "SH", Name: "Simple House", CountyID: county.ID, ProjectType: "SINGLE_FAMILY"}, "tester")
	require.NoError(t, err)

	h.FND, err = e.CreateModelPhase(ctx, domain.ModelPhase{ModelProjectID: h.Model.ID, PhaseCode: "FND", Name: "Foundation", ExecutionOrder: 1, EstimatedDurationDays: 10}, "tester")
	require.NoError(t, err)
	h.FRM, err = e.CreateModelPhase(ctx, domain.ModelPhase{ModelProjectID: h.Model.ID, PhaseCode: "FRM", Name: "Framing", ExecutionOrder: 2, EstimatedDurationDays: 15, RequiresInspection: true}, "tester")
	require.NoError(t, err)
	require.NoError(t, e.AddPhasePrerequisite(ctx, h.FRM.ID, h.FND.ID, "tester"))

	h.EXC, err = e.CreateModelTask(ctx, domain.ModelTask{ModelPhaseID: h.FND.ID, TaskCode: "EXC", Name: "Excavation", ExecutionOrder: 1,
		EstimatedDurationHours: dec("8"), EstimatedCost: dec("1000")}, "tester")
	require.NoError(t, err)
	h.POUR, err = e.CreateModelTask(ctx, domain.ModelTask{ModelPhaseID: h.FND.ID, TaskCode: "POUR", Name: "Pour footings", ExecutionOrder: 2,
		EstimatedDurationHours: dec("16"), EstimatedCost: dec("5000")}, "tester")
	require.NoError(t, err)
	h.OLD, err = e.CreateModelTask(ctx, domain.ModelTask{ModelPhaseID: h.FND.ID, TaskCode: "OLD", Name: "Retired survey", ExecutionOrder: 3,
		EstimatedDurationHours: dec("2"), EstimatedCost: dec("300")}, "tester")
	require.NoError(t, err)
	require.NoError(t, e.AddTaskPrerequisite(ctx, h.POUR.ID, h.EXC.ID, "tester"))
	require.NoError(t, e.AddTaskPrerequisite(ctx, h.POUR.ID, h.OLD.ID, "tester"))
	require.NoError(t, e.SetModelTaskActive(ctx, h.OLD.ID, false, "tester"))

	h.Concrete, err = e.CreateTaskResource(ctx, domain.TaskResource{ModelTaskID: h.POUR.ID, ResourceType: domain.ResourceMaterial,
		Name: "Concrete", Unit: "m3", Quantity: dec("10"), UnitCost: dec("150")}, "tester")
	require.NoError(t, err)
	h.Formwork, err = e.CreateTaskResource(ctx, domain.TaskResource{ModelTaskID: h.POUR.ID, ResourceType: domain.ResourceLabor,
		Name: "Formwork crew", Unit: "h", Quantity: dec("16"), UnitCost: dec("45")}, "tester")
	require.NoError(t, err)

	h.WALLS, err = e.CreateModelTask(ctx, domain.ModelTask{ModelPhaseID: h.FRM.ID, TaskCode: "WALLS", Name: "Wall framing", ExecutionOrder: 1,
		EstimatedDurationHours: dec("40"), EstimatedCost: dec("8000"), RequiresApproval: true}, "tester")
	require.NoError(t, err)
	h.ROOF, err = e.CreateModelTask(ctx, domain.ModelTask{ModelPhaseID: h.FRM.ID, TaskCode: "ROOF", Name: "Roof trusses", ExecutionOrder: 2,
		EstimatedDurationHours: dec("24"), EstimatedCost: dec("6000")}, "tester")
	require.NoError(t, err)
	require.NoError(t, e.AddTaskPrerequisite(ctx, h.ROOF.ID, h.WALLS.ID, "tester"))
	return h
}

// instance indexes an instantiated project by phase and task code.
type instance struct {
	Project domain.Project
	Phases  map[string]domain.PhaseProject
	Tasks   map[string]domain.TaskProject
}

func newProject(t *testing.T, env testEnv, s site, model domain.ModelProject, code string) instance {
	t.Helper()
	p, inst, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		IncorporationID: s.Incorporation.ID,
		ModelProjectID:  model.ID,
		Code:            code,
		Name:            "Lot " + code,
		ActorID:         "tester",
	})
	require.NoError(t, err)
	require.True(t, inst.Created)
	return loadInstance(t, env, p.ID)
}

func loadInstance(t *testing.T, env testEnv, projectID string) instance {
	t.Helper()
	tree, err := env.Engine.GetProjectTree(env.Ctx, projectID)
	require.NoError(t, err)
	out := instance{Project: tree.Project, Phases: map[string]domain.PhaseProject{}, Tasks: map[string]domain.TaskProject{}}
	for _, ph := range tree.Phases {
		out.Phases[ph.PhaseCode] = ph.PhaseProject
		for _, task := range ph.Tasks {
			out.Tasks[task.TaskCode] = task
		}
	}
	return out
}

func phaseStatus(t *testing.T, env testEnv, id string) domain.PhaseStatus {
	t.Helper()
	p, err := env.Engine.Repo.GetPhaseProject(env.Ctx, nil, id)
	require.NoError(t, err)
	return p.Status
}

func taskStatus(t *testing.T, env testEnv, id string) domain.TaskStatus {
	t.Helper()
	task, err := env.Engine.Repo.GetTaskProject(env.Ctx, nil, id)
	require.NoError(t, err)
	return task.Status
}

func TestReferenceValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateCounty(env.Ctx, domain.County{}, "tester")
	v, ok := engine.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "code")
	assert.Contains(t, v.Fields, "name")

	_, err = env.Engine.CreateIncorporation(env.Ctx, domain.Incorporation{Code: "X", Name: "X", CountyID: "missing"}, "tester")
	v, ok = engine.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"county not found"}, v.Fields["county_id"])
}

func TestUsersAndAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	e, ctx := env.Engine, env.Ctx

	_, err := e.CreateUser(ctx, domain.User{Email: "nope", FullName: "A", ProfileID: "admin"}, "tester")
	_, ok := engine.AsValidation(err)
	require.True(t, ok)

	u, err := e.CreateUser(ctx, domain.User{Email: "ana@example.com", FullName: "Ana", ProfileID: "field"}, "tester")
	require.NoError(t, err)
	allowed, err := e.Auth.UserHasPermission(ctx, nil, u.ID, "execution.write")
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = e.Auth.UserHasPermission(ctx, nil, u.ID, "lead.convert")
	require.NoError(t, err)
	assert.False(t, allowed)

	key, plain, err := e.CreateAPIKey(ctx, u.ID, "tablet", "tester")
	require.NoError(t, err)
	assert.NotEqual(t, plain, key.KeyHash)
	found, err := e.Repo.GetAPIKeyByHash(ctx, key.KeyHash)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.UserID)

	u.Active = false
	_, err = e.UpdateUser(ctx, u, "tester")
	require.NoError(t, err)
	_, err = e.Repo.GetAPIKeyByHash(ctx, key.KeyHash)
	assert.Error(t, err)
	allowed, err = e.Auth.UserHasPermission(ctx, nil, u.ID, "execution.write")
	require.NoError(t, err)
	assert.False(t, allowed)
}
