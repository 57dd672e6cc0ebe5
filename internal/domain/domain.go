package domain

import "github.com/shopspring/decimal"

type County struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	State     string `json:"state,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CostGroup struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type CostSubGroup struct {
	ID          string `json:"id"`
	CostGroupID string `json:"cost_group_id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// ModelProject is a reusable construction template scoped to a county and project type.
type ModelProject struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	CountyID    string `json:"county_id"`
	ProjectType string `json:"project_type"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type ModelPhase struct {
	ID                    string   `json:"id"`
	ModelProjectID        string   `json:"model_project_id"`
	PhaseCode             string   `json:"phase_code"`
	Name                  string   `json:"name"`
	Description           string   `json:"description,omitempty"`
	ExecutionOrder        int      `json:"execution_order"`
	EstimatedDurationDays int      `json:"estimated_duration_days"`
	RequiresInspection    bool     `json:"requires_inspection"`
	Active                bool     `json:"active"`
	Prerequisites         []string `json:"prerequisites,omitempty"`
	CreatedAt             string   `json:"created_at" format:"date-time"`
}

type ModelTask struct {
	ID                     string          `json:"id"`
	ModelPhaseID           string          `json:"model_phase_id"`
	TaskCode               string          `json:"task_code"`
	Name                   string          `json:"name"`
	Description            string          `json:"description,omitempty"`
	ExecutionOrder         int             `json:"execution_order"`
	EstimatedDurationHours decimal.Decimal `json:"estimated_duration_hours"`
	EstimatedCost          decimal.Decimal `json:"estimated_cost"`
	CostSubGroupID         string          `json:"cost_subgroup_id,omitempty"`
	RequiresApproval       bool            `json:"requires_approval"`
	Active                 bool            `json:"active"`
	Prerequisites          []string        `json:"prerequisites,omitempty"`
	CreatedAt              string          `json:"created_at" format:"date-time"`
}

type TaskResource struct {
	ID             string          `json:"id"`
	ModelTaskID    string          `json:"model_task_id"`
	ResourceType   ResourceType    `json:"resource_type"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	CostSubGroupID string          `json:"cost_subgroup_id,omitempty"`
	Active         bool            `json:"active"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
}

// PlannedCost is quantity times unit cost.
func (r TaskResource) PlannedCost() decimal.Decimal {
	return r.Quantity.Mul(r.UnitCost)
}

type Incorporation struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	CountyID  string `json:"county_id"`
	Address   string `json:"address,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID               string        `json:"id"`
	IncorporationID  string        `json:"incorporation_id"`
	ModelProjectID   string        `json:"model_project_id"`
	Code             string        `json:"code"`
	Name             string        `json:"name"`
	LotNumber        string        `json:"lot_number,omitempty"`
	Status           ProjectStatus `json:"status"`
	PlannedStartDate string        `json:"planned_start_date,omitempty"`
	CreatedAt        string        `json:"created_at" format:"date-time"`
	UpdatedAt        string        `json:"updated_at" format:"date-time"`
}

type PhaseProject struct {
	ID                    string          `json:"id"`
	ProjectID             string          `json:"project_id"`
	ModelPhaseID          string          `json:"model_phase_id"`
	PhaseCode             string          `json:"phase_code"`
	Name                  string          `json:"name"`
	ExecutionOrder        int             `json:"execution_order"`
	Status                PhaseStatus     `json:"status"`
	CompletionPercentage  decimal.Decimal `json:"completion_percentage"`
	RequiresInspection    bool            `json:"requires_inspection"`
	EstimatedDurationDays int             `json:"estimated_duration_days"`
	AssignedTo            string          `json:"assigned_to,omitempty"`
	ActualStartDate       string          `json:"actual_start_date,omitempty"`
	ActualEndDate         string          `json:"actual_end_date,omitempty"`
	InspectionNotes       string          `json:"inspection_notes,omitempty"`
	Prerequisites         []string        `json:"prerequisites,omitempty"`
	CreatedAt             string          `json:"created_at" format:"date-time"`
	UpdatedAt             string          `json:"updated_at" format:"date-time"`
}

type TaskProject struct {
	ID                     string          `json:"id"`
	PhaseProjectID         string          `json:"phase_project_id"`
	ProjectID              string          `json:"project_id"`
	ModelTaskID            string          `json:"model_task_id"`
	TaskCode               string          `json:"task_code"`
	Name                   string          `json:"name"`
	Description            string          `json:"description,omitempty"`
	ExecutionOrder         int             `json:"execution_order"`
	Status                 TaskStatus      `json:"status"`
	CompletionPercentage   decimal.Decimal `json:"completion_percentage"`
	EstimatedDurationHours decimal.Decimal `json:"estimated_duration_hours"`
	ActualDurationHours    decimal.Decimal `json:"actual_duration_hours"`
	EstimatedCost          decimal.Decimal `json:"estimated_cost"`
	ActualCost             decimal.Decimal `json:"actual_cost"`
	CostSubGroupID         string          `json:"cost_subgroup_id,omitempty"`
	RequiresApproval       bool            `json:"requires_approval"`
	AssignedTo             string          `json:"assigned_to,omitempty"`
	ActualStartDate        string          `json:"actual_start_date,omitempty"`
	ActualEndDate          string          `json:"actual_end_date,omitempty"`
	Prerequisites          []string        `json:"prerequisites,omitempty"`
	CreatedAt              string          `json:"created_at" format:"date-time"`
	UpdatedAt              string          `json:"updated_at" format:"date-time"`
}

// TaskSpecification tracks planned versus actual usage of one template resource on one task.
type TaskSpecification struct {
	ID              string          `json:"id"`
	TaskProjectID   string          `json:"task_project_id"`
	TaskResourceID  string          `json:"task_resource_id"`
	ResourceType    ResourceType    `json:"resource_type"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit"`
	PlannedQuantity decimal.Decimal `json:"planned_quantity"`
	ActualQuantity  decimal.Decimal `json:"actual_quantity"`
	PlannedUnitCost decimal.Decimal `json:"planned_unit_cost"`
	PlannedCost     decimal.Decimal `json:"planned_cost"`
	ActualCost      decimal.Decimal `json:"actual_cost"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
}

type Realtor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type HOA struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CountyID  string `json:"county_id"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type PaymentMethod struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Lead struct {
	ID              string          `json:"id"`
	FullName        string          `json:"full_name"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	Source          string          `json:"source,omitempty"`
	Status          LeadStatus      `json:"status"`
	EstimatedValue  decimal.Decimal `json:"estimated_value"`
	IncorporationID string          `json:"incorporation_id,omitempty"`
	RealtorID       string          `json:"realtor_id,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	ContractID      string          `json:"contract_id,omitempty"`
	ConvertedAt     string          `json:"converted_at,omitempty"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
}

type Contract struct {
	ID                string            `json:"id"`
	Number            string            `json:"number"`
	LeadID            string            `json:"lead_id"`
	IncorporationID   string            `json:"incorporation_id"`
	PaymentMethodID   string            `json:"payment_method_id"`
	RealtorID         string            `json:"realtor_id,omitempty"`
	HOAID             string            `json:"hoa_id,omitempty"`
	ManagementCompany ManagementCompany `json:"management_company"`
	Status            string            `json:"status"`
	ContractValue     decimal.Decimal   `json:"contract_value"`
	SignedDate        string            `json:"signed_date,omitempty"`
	CreatedAt         string            `json:"created_at" format:"date-time"`
	UpdatedAt         string            `json:"updated_at" format:"date-time"`
}

type ContractProject struct {
	ContractID    string          `json:"contract_id"`
	ProjectID     string          `json:"project_id"`
	AgreedPrice   decimal.Decimal `json:"agreed_price"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	CreatedAt     string          `json:"created_at" format:"date-time"`
}

type ContractOwner struct {
	ID         string          `json:"id"`
	ContractID string          `json:"contract_id"`
	FullName   string          `json:"full_name"`
	Email      string          `json:"email,omitempty"`
	Percentage decimal.Decimal `json:"percentage"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	ProfileID string `json:"profile_id"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Profile struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// StatusChoice is one row of the status_choices lookup table.
type StatusChoice struct {
	ID        int64  `json:"id"`
	Domain    string `json:"domain"`
	Code      string `json:"code"`
	Label     string `json:"label"`
	SortOrder int    `json:"sort_order"`
	Active    bool   `json:"active"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
