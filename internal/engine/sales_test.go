package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildline/internal/domain"
	"buildline/internal/engine"
	"buildline/internal/repo"
)

type salesFixture struct {
	site
	House   simpleHouse
	Lots    []instance
	Realtor domain.Realtor
	HOA     domain.HOA
	Lead    domain.Lead
}

func seedSales(t *testing.T, env testEnv) salesFixture {
	t.Helper()
	e, ctx := env.Engine, env.Ctx
	f := salesFixture{site: seedSite(t, env)}
	f.House = seedSimpleHouse(t, env, f.County)
	f.Lots = []instance{
		newProject(t, env, f.site, f.House.Model, "L-301"),
		newProject(t, env, f.site, f.House.Model, "L-302"),
	}
	var err error
	f.Realtor, err = e.CreateRealtor(ctx, domain.Realtor{Name: "Coastal Realty", Email: "deals@coastal.example"}, "tester")
	require.NoError(t, err)
	f.HOA, err = e.CreateHOA(ctx, domain.HOA{Name: "Palm Grove HOA", CountyID: f.County.ID}, "tester")
	require.NoError(t, err)
	f.Lead, err = e.CreateLead(ctx, domain.Lead{
		FullName:        "Maria Lopez",
		Email:           "maria@example.com",
		Source:          "REALTOR",
		EstimatedValue:  dec("450000"),
		IncorporationID: f.Incorporation.ID,
		RealtorID:       f.Realtor.ID,
	}, "tester")
	require.NoError(t, err)
	return f
}

func (f salesFixture) options() engine.ConversionOptions {
	return engine.ConversionOptions{
		LeadID:            f.Lead.ID,
		PaymentMethodID:   f.Payment.ID,
		ManagementCompany: domain.ManagementInternal,
		HOAID:             f.HOA.ID,
		SignedDate:        "2024-03-01",
		ProjectIDs:        []string{f.Lots[0].Project.ID, f.Lots[1].Project.ID},
		Owners: []engine.OwnerInput{
			{FullName: "Maria Lopez", Percentage: dec("60")},
			{FullName: "Jorge Lopez", Percentage: dec("30")},
		},
		ActorID: "tester",
	}
}

func codes(issues []engine.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Field+":"+is.Code)
	}
	return out
}

func TestConvertLead(t *testing.T) {
	env := newTestEnv(t)
	f := seedSales(t, env)
	e, ctx := env.Engine, env.Ctx

	res, err := e.ConvertLead(ctx, f.options())
	require.NoError(t, err)
	require.True(t, res.OK(), "errors: %v", codes(res.Errors))
	assert.Equal(t, []string{"contract_value:defaulted"}, codes(res.Warnings))
	require.NotNil(t, res.Contract)
	c := *res.Contract
	assert.Equal(t, "CTR-2024-00001", c.Number)
	assert.Equal(t, "DRAFT", c.Status)
	assert.Equal(t, f.Realtor.ID, c.RealtorID, "realtor defaults to the lead's")
	assert.Equal(t, f.HOA.ID, c.HOAID)
	assertDec(t, "450000", c.ContractValue, "value defaults to the lead estimate")

	require.Len(t, res.Projects, 2)
	for _, cp := range res.Projects {
		assertDec(t, "225000", cp.AgreedPrice)
		assertDec(t, "20000", cp.EstimatedCost)
	}
	require.Len(t, res.Owners, 2)

	lead, err := e.Repo.GetLead(ctx, nil, f.Lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadConverted, lead.Status)
	assert.Equal(t, c.ID, lead.ContractID)

	again, err := e.ConvertLead(ctx, f.options())
	require.NoError(t, err)
	assert.False(t, again.OK())
	assert.Contains(t, codes(again.Errors), "lead_id:lead_not_convertible")
	assert.Contains(t, codes(again.Errors), "project_ids:already_contracted")
	assert.Nil(t, again.Contract)

	projCosts, err := e.ContractProjectCosts(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, projCosts, 2)
	assertDec(t, "-100", projCosts[0].CostVariance)
	assertDec(t, "225000", projCosts[0].Margin)
}

func TestConvertLeadCollectsErrors(t *testing.T) {
	env := newTestEnv(t)
	f := seedSales(t, env)
	e, ctx := env.Engine, env.Ctx

	other, err := e.CreateCounty(ctx, domain.County{Code: "BRO", Name: "Broward"}, "tester")
	require.NoError(t, err)
	farHOA, err := e.CreateHOA(ctx, domain.HOA{Name: "Lakeside HOA", CountyID: other.ID}, "tester")
	require.NoError(t, err)

	opts := f.options()
	opts.PaymentMethodID = ""
	opts.ManagementCompany = "OUTSOURCED"
	opts.HOAID = farHOA.ID
	opts.RealtorID = "missing"
	opts.ProjectIDs = append(opts.ProjectIDs, opts.ProjectIDs[0], "nope")
	opts.Owners = append(opts.Owners, engine.OwnerInput{FullName: "Ana Lopez", Percentage: dec("20")})

	res, err := e.ConvertLead(ctx, opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"payment_method_id:required",
		"management_company:invalid_choice",
		"hoa_id:county_mismatch",
		"realtor_id:not_found",
		"project_ids:duplicate",
		"project_ids:not_found",
		"owners:ownership_exceeded",
	}, codes(res.Errors))
	assert.Nil(t, res.Contract)

	contracts, err := e.Repo.ListContracts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, contracts)
	lead, err := e.Repo.GetLead(ctx, nil, f.Lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadPending, lead.Status)
}

func TestConvertLeadWarnings(t *testing.T) {
	env := newTestEnv(t)
	f := seedSales(t, env)
	e, ctx := env.Engine, env.Ctx

	cfg := *e.Config
	cfg.Conversion.InitialContractStatus = "SIGNED"
	e.Config = &cfg
	require.NoError(t, e.SetRealtorActive(ctx, f.Realtor.ID, false, "tester"))

	opts := f.options()
	opts.ContractValue = dec("455000.01")
	opts.ProjectIDs = []string{f.Lots[0].Project.ID, f.Lots[1].Project.ID}
	res, err := e.ConvertLead(ctx, opts)
	require.NoError(t, err)
	require.True(t, res.OK(), "errors: %v", codes(res.Errors))
	assert.ElementsMatch(t, []string{
		"realtor_id:inactive",
		"contract_value:value_mismatch",
		"status:status_fallback",
	}, codes(res.Warnings))
	assert.Empty(t, res.Contract.RealtorID)
	assert.Equal(t, "DRAFT", res.Contract.Status)

	// shares round to cents and the last project takes what is left
	prices := map[string]string{}
	for _, cp := range res.Projects {
		prices[cp.ProjectID] = cp.AgreedPrice.StringFixed(2)
	}
	assert.Equal(t, "227500.01", prices[f.Lots[0].Project.ID])
	assert.Equal(t, "227500.00", prices[f.Lots[1].Project.ID])
}

func TestContractOwnershipCap(t *testing.T) {
	env := newTestEnv(t)
	f := seedSales(t, env)
	e, ctx := env.Engine, env.Ctx

	res, err := e.ConvertLead(ctx, f.options())
	require.NoError(t, err)
	require.True(t, res.OK())
	contractID := res.Contract.ID

	_, err = e.AddContractOwner(ctx, contractID, engine.OwnerInput{FullName: "Ana Lopez", Percentage: dec("20")}, "tester")
	v, ok := engine.AsValidation(err)
	require.True(t, ok, "60+30+20 must be rejected, got %v", err)
	assert.Contains(t, v.Fields, "percentage")

	detail, err := e.GetContractDetail(ctx, contractID)
	require.NoError(t, err)
	assert.Len(t, detail.Owners, 2, "rejected owner rolled back")
	assertDec(t, "90", detail.OwnershipTotal)

	ana, err := e.AddContractOwner(ctx, contractID, engine.OwnerInput{FullName: "Ana Lopez", Percentage: dec("10")}, "tester")
	require.NoError(t, err)
	detail, err = e.GetContractDetail(ctx, contractID)
	require.NoError(t, err)
	assertDec(t, "100", detail.OwnershipTotal)

	require.NoError(t, e.RemoveContractOwner(ctx, contractID, ana.ID, "tester"))
	err = e.RemoveContractOwner(ctx, contractID, ana.ID, "tester")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = e.AddContractOwner(ctx, contractID, engine.OwnerInput{FullName: "Zero", Percentage: dec("0")}, "tester")
	_, ok = engine.AsValidation(err)
	assert.True(t, ok)
}

func TestContractStatusAndLinking(t *testing.T) {
	env := newTestEnv(t)
	f := seedSales(t, env)
	e, ctx := env.Engine, env.Ctx

	opts := f.options()
	opts.ProjectIDs = opts.ProjectIDs[:1]
	res, err := e.ConvertLead(ctx, opts)
	require.NoError(t, err)
	require.True(t, res.OK())
	contractID := res.Contract.ID

	c, err := e.SetContractStatus(ctx, contractID, "ACTIVE", "tester")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", c.Status)
	_, err = e.SetContractStatus(ctx, contractID, "ON_HOLD", "tester")
	_, ok := engine.AsValidation(err)
	assert.True(t, ok)

	cp, err := e.LinkContractProject(ctx, contractID, f.Lots[1].Project.ID, dec("300000"), "tester")
	require.NoError(t, err)
	assertDec(t, "20000", cp.EstimatedCost)
	_, err = e.LinkContractProject(ctx, contractID, f.Lots[1].Project.ID, dec("1"), "tester")
	v, ok := engine.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "project_id")

	detail, err := e.GetContractDetail(ctx, contractID)
	require.NoError(t, err)
	assert.Len(t, detail.Projects, 2)
}

func TestLeadLifecycle(t *testing.T) {
	env := newTestEnv(t)
	e, ctx := env.Engine, env.Ctx

	_, err := e.CreateLead(ctx, domain.Lead{FullName: "Walk In", Source: "BILLBOARD"}, "tester")
	v, ok := engine.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "source")

	lead, err := e.CreateLead(ctx, domain.Lead{FullName: "Walk In", Source: "WALK_IN"}, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadPending, lead.Status)

	lead, err = e.SetLeadStatus(ctx, lead.ID, domain.LeadQualified, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadQualified, lead.Status)

	for _, to := range []domain.LeadStatus{domain.LeadPending, domain.LeadConverted, "MAYBE"} {
		_, err = e.SetLeadStatus(ctx, lead.ID, to, "tester")
		_, ok = engine.AsValidation(err)
		assert.True(t, ok, "QUALIFIED -> %s", to)
	}

	lead, err = e.SetLeadStatus(ctx, lead.ID, domain.LeadLost, "tester")
	require.NoError(t, err)
	res, err := e.ConvertLead(ctx, engine.ConversionOptions{LeadID: lead.ID, ManagementCompany: domain.ManagementNone})
	require.NoError(t, err)
	assert.Contains(t, codes(res.Errors), "lead_id:lead_not_convertible")
	assert.Contains(t, codes(res.Errors), "incorporation_id:required")
}
