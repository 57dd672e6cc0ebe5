package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildline/internal/app"
	"buildline/internal/config"
	"buildline/internal/domain"
	"buildline/internal/engine"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	rt, err := app.Open(ctx, app.Options{Workspace: t.TempDir(), LogMode: "production"})
	require.NoError(t, err)
	e := rt.Engine
	_, err = e.CreateUser(ctx, domain.User{ID: "admin", Email: "admin@example.com", FullName: "Admin", ProfileID: "admin"}, "tester")
	require.NoError(t, err)
	_, err = e.CreateUser(ctx, domain.User{ID: "viewer", Email: "viewer@example.com", FullName: "Viewer", ProfileID: "viewer"}, "tester")
	require.NoError(t, err)

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyUserHeader: true},
	})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		rt.Close()
	})
	return &testServer{URL: "http://" + ln.Addr().String() + "/v1", Engine: e, client: &http.Client{}}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, data
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

func as(user string) map[string]string {
	return map[string]string{"X-User-Id": user}
}

// call fails the test unless the response has the wanted status, then decodes into out.
func (s *testServer) call(t *testing.T, want int, method, path string, body, out any) {
	t.Helper()
	status, data := s.do(t, method, path, body, as("admin"))
	require.Equal(t, want, status, "%s %s: %s", method, path, data)
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out))
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

// fixture is a county with one incorporation, a payment method and a one-phase model.
type fixture struct {
	Incorporation domain.Incorporation
	Payment       domain.PaymentMethod
	Model         domain.ModelProject
}

func seedFixture(t *testing.T, s *testServer) fixture {
	t.Helper()
	var f fixture
	var county domain.County
	s.call(t, http.StatusCreated, http.MethodPost, "/counties", map[string]any{"code": "MIA", "name": "Miami-Dade"}, &county)
	s.call(t, http.StatusCreated, http.MethodPost, "/incorporations",
		map[string]any{"code": "SUN", "name": "Sunrise Estates", "county_id": county.ID}, &f.Incorporation)
	s.call(t, http.StatusCreated, http.MethodPost, "/payment-methods", map[string]any{"code": "CASH", "name": "Cash"}, &f.Payment)
	s.call(t, http.StatusCreated, http.MethodPost, "/model-projects",
		map[string]any{"code": "SH", "name": "Simple House", "county_id": county.ID, "project_type": "SINGLE_FAMILY"}, &f.Model)

	var phase domain.ModelPhase
	s.call(t, http.StatusCreated, http.MethodPost, "/model-projects/"+f.Model.ID+"/phases",
		map[string]any{"phase_code": "FND", "name": "Foundation", "execution_order": 1}, &phase)
	var task domain.ModelTask
	s.call(t, http.StatusCreated, http.MethodPost, "/model-phases/"+phase.ID+"/tasks",
		map[string]any{"task_code": "EXC", "name": "Excavation", "execution_order": 1, "estimated_duration_hours": "8", "estimated_cost": "1000"}, &task)
	s.call(t, http.StatusCreated, http.MethodPost, "/model-tasks/"+task.ID+"/resources",
		map[string]any{"resource_type": "EQUIPMENT", "name": "Excavator", "unit": "h", "quantity": "8", "unit_cost": "90"}, nil)
	return f
}

func (s *testServer) createProject(t *testing.T, f fixture, code string) engine.ProjectTree {
	t.Helper()
	var created ProjectCreatedResponse
	s.call(t, http.StatusCreated, http.MethodPost, "/projects", map[string]any{
		"incorporation_id": f.Incorporation.ID, "model_project_id": f.Model.ID, "code": code, "name": "Lot " + code,
	}, &created)
	assert.True(t, created.Instantiation.Created)
	assert.Equal(t, 1, created.Instantiation.Phases)
	var tree engine.ProjectTree
	s.call(t, http.StatusOK, http.MethodGet, "/projects/"+created.Project.ID, nil, &tree)
	require.Len(t, tree.Phases, 1)
	require.Len(t, tree.Phases[0].Tasks, 1)
	return tree
}

func TestDocsServedOutsideBasePath(t *testing.T) {
	s := newTestServer(t)
	res, err := s.client.Get(strings.TrimSuffix(s.URL, "/v1") + DocsPath)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/v1/openapi.json")

	status, _ := s.do(t, http.MethodGet, "/openapi.json", nil, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status, data := s.do(t, http.MethodGet, "/counties", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", decodeError(t, data).Error.Code)

	status, _ = s.do(t, http.MethodGet, "/counties", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/counties", nil, as("viewer"))
	assert.Equal(t, http.StatusOK, status)
	status, data = s.do(t, http.MethodPost, "/counties", map[string]any{"code": "MIA", "name": "Miami-Dade"}, as("viewer"))
	assert.Equal(t, http.StatusForbidden, status)
	env := decodeError(t, data)
	assert.Equal(t, "forbidden", env.Error.Code)
	assert.Equal(t, "catalog.write", env.Error.Details["permission"])
}

func TestJWTPermissionsClaim(t *testing.T) {
	s := newTestServer(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "viewer", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Permissions:      []string{"catalog.write"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	status, data := s.do(t, http.MethodPost, "/counties", map[string]any{"code": "MIA", "name": "Miami-Dade"},
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusCreated, status, string(data))

	var me MeResponse
	status, data = s.do(t, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "viewer", me.User.ID)
	assert.Equal(t, []string{"catalog.write"}, me.Permissions)
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t)
	var created APIKeyCreatedResponse
	s.call(t, http.StatusCreated, http.MethodPost, "/users/viewer/api-keys", map[string]any{"name": "ci"}, &created)
	require.NotEmpty(t, created.Key)

	status, data := s.do(t, http.MethodGet, "/me", nil, map[string]string{"X-Api-Key": created.Key})
	require.Equal(t, http.StatusOK, status, string(data))
	var me MeResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "viewer", me.User.ID)
	assert.Contains(t, me.Permissions, "project.read")
	assert.NotContains(t, string(data), "key_hash")

	s.call(t, http.StatusNoContent, http.MethodDelete, "/api-keys/"+created.APIKey.ID, nil, nil)
	status, _ = s.do(t, http.MethodGet, "/me", nil, map[string]string{"X-Api-Key": created.Key})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestProjectExecutionFlow(t *testing.T) {
	s := newTestServer(t)
	f := seedFixture(t, s)
	tree := s.createProject(t, f, "L-101")
	phase := tree.Phases[0]
	task := phase.Tasks[0]
	assert.Equal(t, domain.PhaseNotStarted, phase.Status)

	status, data := s.do(t, http.MethodPost, "/tasks/"+task.ID+"/start", nil, as("admin"))
	require.Equal(t, http.StatusBadRequest, status)
	env := decodeError(t, data)
	assert.Equal(t, "precondition_failed", env.Error.Code)
	assert.Equal(t, string(domain.TaskPending), env.Error.Details["status"])

	var phases []domain.PhaseProject
	s.call(t, http.StatusOK, http.MethodPost, "/projects/"+tree.Project.ID+"/prepare", nil, &phases)
	require.Len(t, phases, 1)
	assert.Equal(t, domain.PhaseReadyToStart, phases[0].Status)

	var can CanStartResponse
	s.call(t, http.StatusOK, http.MethodGet, "/phases/"+phase.ID+"/can-start", nil, &can)
	assert.True(t, can.CanStart)

	var started domain.PhaseProject
	s.call(t, http.StatusOK, http.MethodPost, "/phases/"+phase.ID+"/start", map[string]any{"assign_to": "admin"}, &started)
	assert.Equal(t, domain.PhaseInProgress, started.Status)
	assert.Equal(t, "admin", started.AssignedTo)

	var running domain.TaskProject
	s.call(t, http.StatusOK, http.MethodPost, "/tasks/"+task.ID+"/start", nil, &running)
	assert.Equal(t, domain.TaskInProgress, running.Status)

	var detail TaskDetailResponse
	s.call(t, http.StatusOK, http.MethodGet, "/tasks/"+task.ID, nil, &detail)
	require.Len(t, detail.Specifications, 1)
	spec := detail.Specifications[0]
	assertDec(t, "720", spec.PlannedCost)

	var used SpecificationResponse
	s.call(t, http.StatusOK, http.MethodPost, "/specifications/"+spec.ID+"/usage", map[string]any{"quantity": "10", "cost": "900"}, &used)
	assertDec(t, "25", used.CostVariance)

	status, data = s.do(t, http.MethodPut, "/tasks/"+task.ID+"/progress", map[string]any{"percentage": "abc"}, as("admin"))
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_failed", decodeError(t, data).Error.Code)
	s.call(t, http.StatusOK, http.MethodPut, "/tasks/"+task.ID+"/progress", map[string]any{"percentage": "50"}, nil)

	var done domain.TaskProject
	s.call(t, http.StatusOK, http.MethodPost, "/tasks/"+task.ID+"/complete", nil, &done)
	assert.Equal(t, domain.TaskCompleted, done.Status)

	var finished domain.PhaseProject
	s.call(t, http.StatusOK, http.MethodGet, "/phases/"+phase.ID, nil, &finished)
	assert.Equal(t, domain.PhaseCompleted, finished.Status)

	status, _ = s.do(t, http.MethodPost, "/phases/"+phase.ID+"/pause", nil, as("admin"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/phases/"+phase.ID+"/start", nil, as("viewer"))
	assert.Equal(t, http.StatusForbidden, status)

	var events PaginatedEvents
	s.call(t, http.StatusOK, http.MethodGet, "/events?limit=2&project_id="+tree.Project.ID, nil, &events)
	assert.Len(t, events.Items, 2)
	assert.NotEmpty(t, events.NextCursor)
}

func TestLeadConversion(t *testing.T) {
	s := newTestServer(t)
	f := seedFixture(t, s)
	tree := s.createProject(t, f, "L-201")

	var lead domain.Lead
	s.call(t, http.StatusCreated, http.MethodPost, "/leads", map[string]any{
		"full_name": "Maria Lopez", "source": "REALTOR", "estimated_value": "300000", "incorporation_id": f.Incorporation.ID,
	}, &lead)
	assert.Equal(t, domain.LeadPending, lead.Status)

	status, data := s.do(t, http.MethodPost, "/leads/"+lead.ID+"/convert", map[string]any{
		"payment_method_id":  "",
		"management_company": "INTERNAL",
		"project_ids":        []string{tree.Project.ID},
		"owners": []map[string]any{
			{"full_name": "Maria Lopez", "percentage": "60"},
			{"full_name": "Jorge Lopez", "percentage": "50"},
		},
	}, as("admin"))
	require.Equal(t, http.StatusBadRequest, status, string(data))
	env := decodeError(t, data)
	assert.Equal(t, "validation_failed", env.Error.Code)
	errs, ok := env.Error.Details["errors"].([]any)
	require.True(t, ok)
	var codes []string
	for _, raw := range errs {
		is := raw.(map[string]any)
		codes = append(codes, is["field"].(string)+":"+is["code"].(string))
	}
	assert.ElementsMatch(t, []string{"payment_method_id:required", "owners:ownership_exceeded"}, codes)

	var res engine.ConversionResult
	s.call(t, http.StatusCreated, http.MethodPost, "/leads/"+lead.ID+"/convert", map[string]any{
		"payment_method_id":  f.Payment.ID,
		"management_company": "INTERNAL",
		"project_ids":        []string{tree.Project.ID},
		"owners":             []map[string]any{{"full_name": "Maria Lopez", "percentage": "100"}},
	}, &res)
	require.NotNil(t, res.Contract)
	assertDec(t, "300000", res.Contract.ContractValue)
	require.Len(t, res.Projects, 1)
	require.Len(t, res.Owners, 1)

	var detail engine.ContractDetail
	s.call(t, http.StatusOK, http.MethodGet, "/contracts/"+res.Contract.ID, nil, &detail)
	assertDec(t, "100", detail.OwnershipTotal)

	status, data = s.do(t, http.MethodPost, "/contracts/"+res.Contract.ID+"/owners",
		map[string]any{"full_name": "Jorge Lopez", "percentage": "1"}, as("admin"))
	assert.Equal(t, http.StatusBadRequest, status, string(data))

	var leads PaginatedLeads
	s.call(t, http.StatusOK, http.MethodGet, "/leads?status=CONVERTED", nil, &leads)
	require.Len(t, leads.Items, 1)
	assert.Equal(t, res.Contract.ID, leads.Items[0].ContractID)
}

func TestWebhookDelivery(t *testing.T) {
	s := newTestServer(t)
	got := make(chan *http.Request, 4)
	bodies := make(chan []byte, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- r
		bodies <- b
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	e := s.Engine
	cfg := *e.Config
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"county.*"}, Secret: "s3cret"}}
	e.Config = &cfg
	d := NewWebhookDispatcher(e, nil)
	ctx := context.Background()
	d.DispatchOnce(ctx)

	s.call(t, http.StatusCreated, http.MethodPost, "/payment-methods", map[string]any{"code": "CASH", "name": "Cash"}, nil)
	s.call(t, http.StatusCreated, http.MethodPost, "/counties", map[string]any{"code": "MIA", "name": "Miami-Dade"}, nil)
	d.DispatchOnce(ctx)

	require.Len(t, got, 1)
	req := <-got
	assert.Equal(t, "county.created", req.Header.Get("X-Buildline-Event"))
	assert.Equal(t, "s3cret", req.Header.Get("X-Buildline-Secret"))
	var evt webhookEvent
	require.NoError(t, json.Unmarshal(<-bodies, &evt))
	assert.Equal(t, "county", evt.EntityKind)

	d.DispatchOnce(ctx)
	assert.Len(t, got, 0)
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{"phase.*", "lead.converted", " "})
	assert.True(t, f.match("phase.started"))
	assert.True(t, f.match("lead.converted"))
	assert.False(t, f.match("lead.created"))
	assert.True(t, newEventFilter(nil).match("anything"))
}
