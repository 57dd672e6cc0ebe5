package buildlinesdk_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildline/internal/app"
	"buildline/internal/domain"
	"buildline/internal/server"
	buildlinesdk "buildline/sdk/go"
)

func TestClientAgainstServer(t *testing.T) {
	ctx := context.Background()
	rt, err := app.Open(ctx, app.Options{Workspace: t.TempDir(), LogMode: "production"})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	e := rt.Engine

	user, err := e.CreateUser(ctx, domain.User{Email: "pm@example.com", FullName: "Project Manager", ProfileID: "admin"}, "tester")
	require.NoError(t, err)
	_, key, err := e.CreateAPIKey(ctx, user.ID, "sdk", "tester")
	require.NoError(t, err)

	county, err := e.CreateCounty(ctx, domain.County{Code: "MIA", Name: "Miami-Dade"}, "tester")
	require.NoError(t, err)
	inc, err := e.CreateIncorporation(ctx, domain.Incorporation{Code: "SUN", Name: "Sunrise", CountyID: county.ID}, "tester")
	require.NoError(t, err)
	model, err := e.CreateModelProject(ctx, domain.ModelProject{Code: "SH", Name: "Simple House", CountyID: county.ID, ProjectType: "SINGLE_FAMILY"}, "tester")
	require.NoError(t, err)
	phase, err := e.CreateModelPhase(ctx, domain.ModelPhase{ModelProjectID: model.ID, PhaseCode: "FND", Name: "Foundation", ExecutionOrder: 1}, "tester")
	require.NoError(t, err)
	_, err = e.CreateModelTask(ctx, domain.ModelTask{ModelPhaseID: phase.ID, TaskCode: "EXC", Name: "Excavation", ExecutionOrder: 1,
		EstimatedCost: decimal.NewFromInt(1000)}, "tester")
	require.NoError(t, err)

	handler, err := server.New(server.Config{Engine: e, BasePath: "/v1"})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := buildlinesdk.New(srv.URL + "/v1")
	client.APIKey = key

	p, err := client.CreateProject(ctx, inc.ID, model.ID, "L-1", "Lot 1")
	require.NoError(t, err)
	tree, err := client.ProjectTree(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tree.Phases, 1)
	require.Len(t, tree.Phases[0].Tasks, 1)
	phaseID, taskID := tree.Phases[0].ID, tree.Phases[0].Tasks[0].ID
	assert.True(t, decimal.NewFromInt(1000).Equal(tree.Phases[0].Tasks[0].EstimatedCost))

	_, err = client.PhaseAction(ctx, phaseID, "start")
	require.Error(t, err)
	assert.True(t, buildlinesdk.IsPreconditionFailed(err))

	_, err = client.PrepareProject(ctx, p.ID)
	require.NoError(t, err)
	started, err := client.PhaseAction(ctx, phaseID, "start")
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", started.Status)

	_, err = client.TaskAction(ctx, taskID, "start")
	require.NoError(t, err)
	running, err := client.UpdateTaskProgress(ctx, taskID, decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(running.CompletionPercentage))
	done, err := client.TaskAction(ctx, taskID, "complete")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", done.Status)

	page, err := client.EventsPage(ctx, 3, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	next, err := client.EventsPage(ctx, 3, page.NextCursor)
	require.NoError(t, err)
	require.NotEmpty(t, next.Items)
	assert.Less(t, next.Items[0].ID, page.Items[2].ID)

	lead, err := e.CreateLead(ctx, domain.Lead{FullName: "Maria Lopez", IncorporationID: inc.ID, EstimatedValue: decimal.NewFromInt(250000)}, "tester")
	require.NoError(t, err)
	_, err = client.ConvertLead(ctx, lead.ID, buildlinesdk.ConvertLeadRequest{ManagementCompany: "NONE", ProjectIDs: []string{p.ID}})
	var apiErr *buildlinesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "validation_failed", apiErr.Code)
	assert.Contains(t, apiErr.Details, "errors")
}
