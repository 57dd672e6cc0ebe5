package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"buildline/internal/domain"
	"buildline/internal/events"
	"buildline/internal/repo"
)

const defaultContractPrefix = "CTR"

func (e Engine) CreateLead(ctx context.Context, l domain.Lead, actorID string) (domain.Lead, error) {
	v := &ValidationError{}
	required(v, "full_name", l.FullName)
	if l.Status == "" {
		l.Status = domain.LeadPending
	}
	if l.Status != domain.LeadPending && l.Status != domain.LeadQualified {
		v.Add("status", "new leads must be PENDING or QUALIFIED")
	}
	if l.EstimatedValue.IsNegative() {
		v.Add("estimated_value", "must not be negative")
	}
	if l.Source != "" {
		table, err := e.choiceTable(ctx)
		if err != nil {
			return l, err
		}
		if !table.IsActive(domain.ChoiceLeadSource, l.Source) {
			v.Add("source", fmt.Sprintf("unknown lead source %q", l.Source))
		}
	}
	if err := v.Err(); err != nil {
		return l, err
	}
	if l.ID == "" {
		l.ID = newID()
	}
	l.ContractID = ""
	l.ConvertedAt = ""
	l.CreatedAt = e.ts()
	l.UpdatedAt = l.CreatedAt
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if l.IncorporationID != "" {
			if _, err := e.Repo.GetIncorporation(ctx, tx, l.IncorporationID); err != nil {
				return lookup("incorporation_id", "incorporation", err)
			}
		}
		if l.RealtorID != "" {
			if _, err := e.Repo.GetRealtor(ctx, tx, l.RealtorID); err != nil {
				return lookup("realtor_id", "realtor", err)
			}
		}
		if err := e.Repo.InsertLead(ctx, tx, l); err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "lead.created", EntityKind: "lead", EntityID: l.ID, ActorID: actorID,
			Payload: events.Payload{"status": l.Status, "source": l.Source}})
	})
	return l, err
}

var leadTransitions = map[domain.LeadStatus][]domain.LeadStatus{
	domain.LeadPending:      {domain.LeadQualified, domain.LeadDisqualified, domain.LeadLost},
	domain.LeadQualified:    {domain.LeadDisqualified, domain.LeadLost},
	domain.LeadDisqualified: {domain.LeadPending},
	domain.LeadLost:         {domain.LeadPending},
}

func ensureLeadTransition(from, to domain.LeadStatus) error {
	if to == domain.LeadConverted {
		return invalid("status", "leads become CONVERTED only through conversion")
	}
	if !to.Valid() {
		return invalid("status", fmt.Sprintf("unknown lead status %q", to))
	}
	for _, s := range leadTransitions[from] {
		if s == to {
			return nil
		}
	}
	return invalid("status", fmt.Sprintf("invalid lead status transition %s -> %s", from, to))
}

func (e Engine) SetLeadStatus(ctx context.Context, leadID string, status domain.LeadStatus, actorID string) (domain.Lead, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Lead{}, err
	}
	defer tx.Rollback()
	l, err := e.Repo.GetLead(ctx, tx, leadID)
	if err != nil {
		return l, err
	}
	if err := ensureLeadTransition(l.Status, status); err != nil {
		return l, err
	}
	now := e.ts()
	if err := e.Repo.UpdateLeadStatus(ctx, tx, l.ID, status, now); err != nil {
		return l, err
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "lead.status", EntityKind: "lead", EntityID: l.ID, ActorID: actorID,
		Payload: events.Payload{"from": l.Status, "to": status}}); err != nil {
		return l, err
	}
	if err := tx.Commit(); err != nil {
		return l, err
	}
	l.Status = status
	l.UpdatedAt = now
	return l, nil
}

// OwnerInput describes one fractional owner.
type OwnerInput struct {
	FullName   string
	Email      string
	Percentage decimal.Decimal
}

// ConversionOptions are parameters for converting a lead into a contract.
type ConversionOptions struct {
	LeadID string
	// IncorporationID defaults to the lead's incorporation.
	IncorporationID   string
	PaymentMethodID   string
	ManagementCompany domain.ManagementCompany
	// RealtorID defaults to the lead's realtor.
	RealtorID string
	HOAID     string
	// ContractValue defaults to the lead's estimated value when zero.
	ContractValue decimal.Decimal
	SignedDate    string
	ProjectIDs    []string
	Owners        []OwnerInput
	ActorID       string
}

// ConversionResult is the outcome of ConvertLead. Contract is nil unless OK.
type ConversionResult struct {
	Result
	Contract *domain.Contract        `json:"contract,omitempty"`
	Projects []domain.ContractProject `json:"projects"`
	Owners   []domain.ContractOwner   `json:"owners"`
}

// ConvertLead validates the lead and its commercial references and creates the
// contract, its projects and owners in one transaction. Business rule failures are
// reported in the result's Errors with a nil error; the returned error is reserved for
// a missing lead and storage failures.
func (e Engine) ConvertLead(ctx context.Context, opts ConversionOptions) (ConversionResult, error) {
	var out ConversionResult
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	lead, err := e.Repo.GetLead(ctx, tx, opts.LeadID)
	if err != nil {
		return out, err
	}
	res := &out.Result
	if !lead.Status.Convertible() {
		res.fail("lead_id", "lead_not_convertible", fmt.Sprintf("lead status %s cannot be converted", lead.Status))
	}

	incID := opts.IncorporationID
	if incID == "" {
		incID = lead.IncorporationID
	}
	var inc domain.Incorporation
	incOK := false
	if incID == "" {
		res.fail("incorporation_id", "required", "incorporation is required")
	} else if inc, err = e.Repo.GetIncorporation(ctx, tx, incID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return out, err
		}
		res.fail("incorporation_id", "not_found", "incorporation not found")
	} else if !inc.Active {
		res.fail("incorporation_id", "inactive", "incorporation is inactive")
	} else {
		incOK = true
	}

	if opts.PaymentMethodID == "" {
		res.fail("payment_method_id", "required", "payment method is required")
	} else if pm, err := e.Repo.GetPaymentMethod(ctx, tx, opts.PaymentMethodID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return out, err
		}
		res.fail("payment_method_id", "not_found", "payment method not found")
	} else if !pm.Active {
		res.fail("payment_method_id", "inactive", "payment method is inactive")
	}

	if !opts.ManagementCompany.Valid() {
		res.fail("management_company", "invalid_choice", fmt.Sprintf("unknown management company %q", opts.ManagementCompany))
	}

	hoaID := ""
	if opts.HOAID != "" {
		hoa, err := e.Repo.GetHOA(ctx, tx, opts.HOAID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			res.fail("hoa_id", "not_found", "hoa not found")
		case err != nil:
			return out, err
		case incOK && hoa.CountyID != inc.CountyID:
			res.fail("hoa_id", "county_mismatch", "hoa county does not match incorporation county")
		case !hoa.Active:
			res.warn("hoa_id", "inactive", "hoa is inactive and was not linked")
		default:
			hoaID = hoa.ID
		}
	}

	realtorID := opts.RealtorID
	if realtorID == "" {
		realtorID = lead.RealtorID
	}
	if realtorID != "" {
		realtor, err := e.Repo.GetRealtor(ctx, tx, realtorID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			res.fail("realtor_id", "not_found", "realtor not found")
			realtorID = ""
		case err != nil:
			return out, err
		case !realtor.Active:
			res.warn("realtor_id", "inactive", "realtor is inactive and was not linked")
			realtorID = ""
		}
	}

	value := opts.ContractValue
	if value.IsZero() {
		value = lead.EstimatedValue
		if !value.IsZero() {
			res.warn("contract_value", "defaulted", fmt.Sprintf("contract value taken from lead estimate %s", value.StringFixed(2)))
		}
	}
	if value.IsNegative() {
		res.fail("contract_value", "negative", "contract value must not be negative")
	} else if !lead.EstimatedValue.IsZero() && !value.Equal(lead.EstimatedValue) {
		res.warn("contract_value", "value_mismatch",
			fmt.Sprintf("contract value %s differs from lead estimate %s", value.StringFixed(2), lead.EstimatedValue.StringFixed(2)))
	}

	seen := map[string]bool{}
	for _, pid := range opts.ProjectIDs {
		if seen[pid] {
			res.fail("project_ids", "duplicate", fmt.Sprintf("project %s listed twice", pid))
			continue
		}
		seen[pid] = true
		p, err := e.Repo.GetProject(ctx, tx, pid)
		if errors.Is(err, repo.ErrNotFound) {
			res.fail("project_ids", "not_found", fmt.Sprintf("project %s not found", pid))
			continue
		}
		if err != nil {
			return out, err
		}
		if incID != "" && p.IncorporationID != incID {
			res.fail("project_ids", "incorporation_mismatch", fmt.Sprintf("project %s belongs to another incorporation", p.Code))
		}
		if _, err := e.Repo.ContractIDForProject(ctx, tx, pid); err == nil {
			res.fail("project_ids", "already_contracted", fmt.Sprintf("project %s is already under contract", p.Code))
		} else if !errors.Is(err, repo.ErrNotFound) {
			return out, err
		}
	}

	ownerTotal := decimal.Zero
	for i, o := range opts.Owners {
		field := fmt.Sprintf("owners[%d]", i)
		if strings.TrimSpace(o.FullName) == "" {
			res.fail(field+".full_name", "required", "owner name is required")
		}
		if !o.Percentage.IsPositive() || o.Percentage.GreaterThan(hundred) {
			res.fail(field+".percentage", "out_of_range", "percentage must be above 0 and at most 100")
		}
		ownerTotal = ownerTotal.Add(o.Percentage)
	}
	if ownerTotal.GreaterThan(hundred) {
		res.fail("owners", "ownership_exceeded", fmt.Sprintf("owner percentages sum to %s, above 100", ownerTotal.StringFixed(2)))
	}

	table, err := e.choiceTable(ctx)
	if err != nil {
		return out, err
	}
	wanted := ""
	if e.Config != nil {
		wanted = e.Config.Conversion.InitialContractStatus
	}
	status, err := table.Resolve(domain.ChoiceContractStatus, wanted)
	if err != nil {
		res.fail("status", "no_active_status", err.Error())
	} else if status.Fallback {
		res.warn("status", "status_fallback",
			fmt.Sprintf("contract status %q unavailable, used %s", status.Requested, status.Choice.Code))
		e.log().Warn("contract status fallback", "requested", status.Requested, "used", status.Choice.Code)
	}

	if !res.OK() {
		e.log().Info("lead conversion rejected", "lead_id", lead.ID, "errors", len(res.Errors))
		return out, nil
	}

	now := e.ts()
	number, err := e.nextContractNumber(ctx, tx)
	if err != nil {
		return out, err
	}
	contract := domain.Contract{
		ID:                newID(),
		Number:            number,
		LeadID:            lead.ID,
		IncorporationID:   inc.ID,
		PaymentMethodID:   opts.PaymentMethodID,
		RealtorID:         realtorID,
		HOAID:             hoaID,
		ManagementCompany: opts.ManagementCompany,
		Status:            status.Choice.Code,
		ContractValue:     value,
		SignedDate:        opts.SignedDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.Repo.InsertContract(ctx, tx, contract); err != nil {
		return out, fmt.Errorf("insert contract: %w", err)
	}
	shares := splitEvenly(value, len(opts.ProjectIDs))
	for i, pid := range opts.ProjectIDs {
		cp, err := e.linkContractProjectTx(ctx, tx, contract, pid, shares[i])
		if err != nil {
			return out, err
		}
		out.Projects = append(out.Projects, cp)
	}
	for _, o := range opts.Owners {
		owner, err := e.insertOwnerTx(ctx, tx, contract.ID, o)
		if err != nil {
			return out, err
		}
		out.Owners = append(out.Owners, owner)
	}
	if err := e.Repo.MarkLeadConverted(ctx, tx, lead.ID, contract.ID, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			out.Result = Result{}
			out.Projects, out.Owners = nil, nil
			out.fail("lead_id", "lead_not_convertible", "lead was converted concurrently")
			return out, nil
		}
		return out, err
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "contract.created", EntityKind: "contract", EntityID: contract.ID, ActorID: opts.ActorID,
		Payload: events.Payload{"number": contract.Number, "lead_id": lead.ID, "status": contract.Status, "projects": len(out.Projects)}}); err != nil {
		return out, err
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "lead.converted", EntityKind: "lead", EntityID: lead.ID, ActorID: opts.ActorID,
		Payload: events.Payload{"contract_id": contract.ID, "warnings": len(res.Warnings)}}); err != nil {
		return out, err
	}
	if err := tx.Commit(); err != nil {
		return out, err
	}
	out.Contract = &contract
	e.log().Info("lead converted", "lead_id", lead.ID, "contract_id", contract.ID, "number", contract.Number, "warnings", len(res.Warnings))
	return out, nil
}

// nextContractNumber returns <prefix>-<year>-<sequence> with a per-year sequence.
func (e Engine) nextContractNumber(ctx context.Context, tx *sql.Tx) (string, error) {
	prefix := defaultContractPrefix
	if e.Config != nil && e.Config.Conversion.ContractNumberPrefix != "" {
		prefix = e.Config.Conversion.ContractNumberPrefix
	}
	stem := fmt.Sprintf("%s-%d-", prefix, e.now().UTC().Year())
	n, err := e.Repo.CountContractsWithPrefix(ctx, tx, stem)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", stem, n+1), nil
}

// splitEvenly divides total into n shares rounded to cents; the last share absorbs the remainder.
func splitEvenly(total decimal.Decimal, n int) []decimal.Decimal {
	if n == 0 {
		return nil
	}
	share := total.DivRound(decimal.NewFromInt(int64(n)), 2)
	out := make([]decimal.Decimal, n)
	rest := total
	for i := 0; i < n-1; i++ {
		out[i] = share
		rest = rest.Sub(share)
	}
	out[n-1] = rest
	return out
}

func (e Engine) projectEstimatedCostTx(ctx context.Context, tx *sql.Tx, projectID string) (decimal.Decimal, error) {
	tasks, err := e.Repo.ListProjectTasks(ctx, tx, projectID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range tasks {
		total = total.Add(t.EstimatedCost)
	}
	return total, nil
}

func (e Engine) linkContractProjectTx(ctx context.Context, tx *sql.Tx, c domain.Contract, projectID string, price decimal.Decimal) (domain.ContractProject, error) {
	est, err := e.projectEstimatedCostTx(ctx, tx, projectID)
	if err != nil {
		return domain.ContractProject{}, err
	}
	cp := domain.ContractProject{
		ContractID:    c.ID,
		ProjectID:     projectID,
		AgreedPrice:   price,
		EstimatedCost: est,
		CreatedAt:     e.ts(),
	}
	if err := e.Repo.InsertContractProject(ctx, tx, cp); err != nil {
		return cp, fmt.Errorf("link project %s: %w", projectID, err)
	}
	return cp, nil
}

// LinkContractProject adds a project of the contract's incorporation to the contract.
func (e Engine) LinkContractProject(ctx context.Context, contractID, projectID string, agreedPrice decimal.Decimal, actorID string) (domain.ContractProject, error) {
	if agreedPrice.IsNegative() {
		return domain.ContractProject{}, invalid("agreed_price", "must not be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContractProject{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContract(ctx, tx, contractID)
	if err != nil {
		return domain.ContractProject{}, err
	}
	p, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return domain.ContractProject{}, lookup("project_id", "project", err)
	}
	if p.IncorporationID != c.IncorporationID {
		return domain.ContractProject{}, invalid("project_id", "project belongs to another incorporation")
	}
	if _, err := e.Repo.ContractIDForProject(ctx, tx, projectID); err == nil {
		return domain.ContractProject{}, invalid("project_id", "project is already under contract")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.ContractProject{}, err
	}
	cp, err := e.linkContractProjectTx(ctx, tx, c, projectID, agreedPrice)
	if err != nil {
		return cp, err
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "contract.project_linked", ProjectID: projectID, EntityKind: "contract", EntityID: c.ID, ActorID: actorID,
		Payload: events.Payload{"agreed_price": agreedPrice.String(), "estimated_cost": cp.EstimatedCost.String()}}); err != nil {
		return cp, err
	}
	if err := tx.Commit(); err != nil {
		return cp, err
	}
	return cp, nil
}

func (e Engine) insertOwnerTx(ctx context.Context, tx *sql.Tx, contractID string, in OwnerInput) (domain.ContractOwner, error) {
	o := domain.ContractOwner{
		ID:         newID(),
		ContractID: contractID,
		FullName:   in.FullName,
		Email:      in.Email,
		Percentage: in.Percentage,
		CreatedAt:  e.ts(),
	}
	if err := e.Repo.InsertContractOwner(ctx, tx, o); err != nil {
		return o, fmt.Errorf("insert owner: %w", err)
	}
	return o, nil
}

// AddContractOwner inserts an owner and re-reads the contract's total inside the same
// transaction, rolling back when it exceeds 100. SQLite admits one writer at a time,
// so a concurrent insert sees the committed total.
func (e Engine) AddContractOwner(ctx context.Context, contractID string, in OwnerInput, actorID string) (domain.ContractOwner, error) {
	v := &ValidationError{}
	required(v, "full_name", in.FullName)
	if !in.Percentage.IsPositive() || in.Percentage.GreaterThan(hundred) {
		v.Add("percentage", "must be above 0 and at most 100")
	}
	if err := v.Err(); err != nil {
		return domain.ContractOwner{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContractOwner{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetContract(ctx, tx, contractID); err != nil {
		return domain.ContractOwner{}, err
	}
	o, err := e.insertOwnerTx(ctx, tx, contractID, in)
	if err != nil {
		return o, err
	}
	total, err := e.Repo.OwnershipTotal(ctx, tx, contractID)
	if err != nil {
		return o, err
	}
	if total.GreaterThan(hundred) {
		return domain.ContractOwner{}, invalid("percentage",
			fmt.Sprintf("ownership would total %s, above 100", total.StringFixed(2)))
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "contract.owner_added", EntityKind: "contract", EntityID: contractID, ActorID: actorID,
		Payload: events.Payload{"owner_id": o.ID, "percentage": o.Percentage.String(), "total": total.String()}}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

func (e Engine) RemoveContractOwner(ctx context.Context, contractID, ownerID, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteContractOwner(ctx, tx, contractID, ownerID); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "contract.owner_removed", EntityKind: "contract", EntityID: contractID, ActorID: actorID,
			Payload: events.Payload{"owner_id": ownerID}})
	})
}

// SetContractStatus moves a contract to another active contract status.
func (e Engine) SetContractStatus(ctx context.Context, contractID, code, actorID string) (domain.Contract, error) {
	table, err := e.choiceTable(ctx)
	if err != nil {
		return domain.Contract{}, err
	}
	if !table.IsActive(domain.ChoiceContractStatus, code) {
		return domain.Contract{}, invalid("status", fmt.Sprintf("unknown or inactive contract status %q", code))
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContract(ctx, tx, contractID)
	if err != nil {
		return c, err
	}
	now := e.ts()
	if err := e.Repo.UpdateContractStatus(ctx, tx, c.ID, code, now); err != nil {
		return c, err
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "contract.status", EntityKind: "contract", EntityID: c.ID, ActorID: actorID,
		Payload: events.Payload{"from": c.Status, "to": code}}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	c.Status = code
	c.UpdatedAt = now
	return c, nil
}

// ContractDetail is a contract with its projects and owners.
type ContractDetail struct {
	domain.Contract
	Projects       []domain.ContractProject `json:"projects"`
	Owners         []domain.ContractOwner   `json:"owners"`
	OwnershipTotal decimal.Decimal          `json:"ownership_total"`
}

func (e Engine) GetContractDetail(ctx context.Context, contractID string) (ContractDetail, error) {
	c, err := e.Repo.GetContract(ctx, nil, contractID)
	if err != nil {
		return ContractDetail{}, err
	}
	d := ContractDetail{Contract: c, OwnershipTotal: decimal.Zero}
	if d.Projects, err = e.Repo.ListContractProjects(ctx, nil, c.ID); err != nil {
		return d, err
	}
	if d.Owners, err = e.Repo.ListContractOwners(ctx, nil, c.ID); err != nil {
		return d, err
	}
	for _, o := range d.Owners {
		d.OwnershipTotal = d.OwnershipTotal.Add(o.Percentage)
	}
	return d, nil
}
