package server

import (
	"strings"

	"github.com/shopspring/decimal"

	"buildline/internal/domain"
	"buildline/internal/engine"
)

// Request payloads. Money, quantities and percentages travel as decimal strings.

type CreateCountyRequest struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	State string `json:"state,omitempty"`
}

type CreateIncorporationRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	CountyID string `json:"county_id"`
	Address  string `json:"address,omitempty"`
}

type CreateRealtorRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type CreateHOARequest struct {
	Name     string `json:"name"`
	CountyID string `json:"county_id"`
}

type CreatePaymentMethodRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type CreateCostGroupRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

type CreateModelProjectRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	CountyID    string `json:"county_id"`
	ProjectType string `json:"project_type"`
	Description string `json:"description,omitempty"`
}

type CreateModelPhaseRequest struct {
	PhaseCode             string `json:"phase_code"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	ExecutionOrder        int    `json:"execution_order"`
	EstimatedDurationDays int    `json:"estimated_duration_days,omitempty"`
	RequiresInspection    bool   `json:"requires_inspection,omitempty"`
}

type CreateModelTaskRequest struct {
	TaskCode               string `json:"task_code"`
	Name                   string `json:"name"`
	Description            string `json:"description,omitempty"`
	ExecutionOrder         int    `json:"execution_order"`
	EstimatedDurationHours string `json:"estimated_duration_hours,omitempty" example:"16"`
	EstimatedCost          string `json:"estimated_cost,omitempty" example:"5000.00"`
	CostSubGroupID         string `json:"cost_subgroup_id,omitempty"`
	RequiresApproval       bool   `json:"requires_approval,omitempty"`
}

type CreateTaskResourceRequest struct {
	ResourceType   string `json:"resource_type" enum:"MATERIAL,LABOR,EQUIPMENT"`
	Name           string `json:"name"`
	Unit           string `json:"unit"`
	Quantity       string `json:"quantity" example:"10"`
	UnitCost       string `json:"unit_cost" example:"150.00"`
	CostSubGroupID string `json:"cost_subgroup_id,omitempty"`
}

type PrerequisiteRequest struct {
	PrerequisiteID string `json:"prerequisite_id"`
}

type DuplicateRequest struct {
	TargetID string `json:"target_id" doc:"model project (for phases) or model phase (for tasks) receiving the copy"`
}

type ImportTemplateRequest struct {
	YAML string `json:"yaml" doc:"template document in the catalog file format"`
}

type CreateProjectRequest struct {
	ID               string `json:"id,omitempty"`
	IncorporationID  string `json:"incorporation_id"`
	ModelProjectID   string `json:"model_project_id"`
	Code             string `json:"code"`
	Name             string `json:"name"`
	LotNumber        string `json:"lot_number,omitempty"`
	PlannedStartDate string `json:"planned_start_date,omitempty" format:"date"`
}

// ActionRequest is the optional body of lifecycle actions.
type ActionRequest struct {
	AssignTo string `json:"assign_to,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type InspectionRequest struct {
	Passed bool   `json:"passed"`
	Notes  string `json:"notes,omitempty"`
}

type ProgressRequest struct {
	Percentage string `json:"percentage" example:"40"`
}

type UsageRequest struct {
	Quantity string `json:"quantity" example:"12"`
	Cost     string `json:"cost" example:"1900.00"`
}

type CreateLeadRequest struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Source          string `json:"source,omitempty"`
	EstimatedValue  string `json:"estimated_value,omitempty" example:"450000"`
	IncorporationID string `json:"incorporation_id,omitempty"`
	RealtorID       string `json:"realtor_id,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type OwnerRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email,omitempty"`
	Percentage string `json:"percentage" example:"60"`
}

type ConvertLeadRequest struct {
	IncorporationID   string         `json:"incorporation_id,omitempty"`
	PaymentMethodID   string         `json:"payment_method_id"`
	ManagementCompany string         `json:"management_company" enum:"INTERNAL,EXTERNAL,NONE"`
	RealtorID         string         `json:"realtor_id,omitempty"`
	HOAID             string         `json:"hoa_id,omitempty"`
	ContractValue     string         `json:"contract_value,omitempty"`
	SignedDate        string         `json:"signed_date,omitempty" format:"date"`
	ProjectIDs        []string       `json:"project_ids,omitempty"`
	Owners            []OwnerRequest `json:"owners,omitempty"`
}

type LinkProjectRequest struct {
	ProjectID   string `json:"project_id"`
	AgreedPrice string `json:"agreed_price" example:"225000"`
}

type CreateUserRequest struct {
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	ProfileID string `json:"profile_id"`
}

type UpdateUserRequest struct {
	FullName  string `json:"full_name,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
	Active    *bool  `json:"active,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type ProjectCreatedResponse struct {
	Project       domain.Project       `json:"project"`
	Instantiation engine.Instantiation `json:"instantiation"`
}

type CanStartResponse struct {
	ID       string `json:"id"`
	CanStart bool   `json:"can_start"`
}

type SpecificationResponse struct {
	domain.TaskSpecification
	engine.SpecVariance
}

type TaskDetailResponse struct {
	domain.TaskProject
	Specifications []SpecificationResponse `json:"specifications"`
	Variance       engine.Variance         `json:"variance"`
}

type APIKeyCreatedResponse struct {
	APIKey domain.APIKey `json:"api_key"`
	Key    string        `json:"key" doc:"plain key, shown once"`
}

type MeResponse struct {
	User        domain.User `json:"user"`
	Permissions []string    `json:"permissions"`
}

type PaginatedLeads struct {
	Items      []domain.Lead `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type PaginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// decimals parses named decimal strings, collecting failures per field.
type decimals struct {
	v *engine.ValidationError
}

func newDecimals() *decimals {
	return &decimals{v: &engine.ValidationError{}}
}

// parse returns zero for an empty string.
func (d *decimals) parse(field, raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	n, err := decimal.NewFromString(raw)
	if err != nil {
		d.v.Add(field, "must be a decimal number")
		return decimal.Zero
	}
	return n
}

func (d *decimals) err() error {
	return d.v.Err()
}
