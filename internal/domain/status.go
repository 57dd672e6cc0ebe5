package domain

type PhaseStatus string

const (
	PhaseNotStarted           PhaseStatus = "NOT_STARTED"
	PhaseWaitingPrerequisites PhaseStatus = "WAITING_PREREQUISITES"
	PhaseReadyToStart         PhaseStatus = "READY_TO_START"
	PhaseInProgress           PhaseStatus = "IN_PROGRESS"
	PhasePaused               PhaseStatus = "PAUSED"
	PhaseWaitingInspection    PhaseStatus = "WAITING_INSPECTION"
	PhaseInspectionFailed     PhaseStatus = "INSPECTION_FAILED"
	PhaseCompleted            PhaseStatus = "COMPLETED"
	PhaseCancelled            PhaseStatus = "CANCELLED"
	PhaseBlocked              PhaseStatus = "BLOCKED"
)

// Terminal reports whether no further transition is allowed.
func (s PhaseStatus) Terminal() bool {
	switch s {
	case PhaseCompleted, PhaseCancelled, PhaseBlocked:
		return true
	}
	return false
}

func (s PhaseStatus) Valid() bool {
	switch s {
	case PhaseNotStarted, PhaseWaitingPrerequisites, PhaseReadyToStart, PhaseInProgress, PhasePaused,
		PhaseWaitingInspection, PhaseInspectionFailed, PhaseCompleted, PhaseCancelled, PhaseBlocked:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskPending              TaskStatus = "PENDING"
	TaskWaitingResources     TaskStatus = "WAITING_RESOURCES"
	TaskWaitingPrerequisites TaskStatus = "WAITING_PREREQUISITES"
	TaskReadyToStart         TaskStatus = "READY_TO_START"
	TaskInProgress           TaskStatus = "IN_PROGRESS"
	TaskPaused               TaskStatus = "PAUSED"
	TaskWaitingApproval      TaskStatus = "WAITING_APPROVAL"
	TaskReworkNeeded         TaskStatus = "REWORK_NEEDED"
	TaskCompleted            TaskStatus = "COMPLETED"
	TaskCancelled            TaskStatus = "CANCELLED"
	TaskBlocked              TaskStatus = "BLOCKED"
)

func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskCancelled, TaskBlocked:
		return true
	}
	return false
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskWaitingResources, TaskWaitingPrerequisites, TaskReadyToStart, TaskInProgress,
		TaskPaused, TaskWaitingApproval, TaskReworkNeeded, TaskCompleted, TaskCancelled, TaskBlocked:
		return true
	}
	return false
}

// Preparable reports whether the task has not yet been released for work.
func (s TaskStatus) Preparable() bool {
	switch s {
	case TaskPending, TaskWaitingResources, TaskWaitingPrerequisites:
		return true
	}
	return false
}

type ProjectStatus string

const (
	ProjectPlanned    ProjectStatus = "PLANNED"
	ProjectInProgress ProjectStatus = "IN_PROGRESS"
	ProjectCompleted  ProjectStatus = "COMPLETED"
)

type LeadStatus string

const (
	LeadPending      LeadStatus = "PENDING"
	LeadQualified    LeadStatus = "QUALIFIED"
	LeadConverted    LeadStatus = "CONVERTED"
	LeadDisqualified LeadStatus = "DISQUALIFIED"
	LeadLost         LeadStatus = "LOST"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadPending, LeadQualified, LeadConverted, LeadDisqualified, LeadLost:
		return true
	}
	return false
}

// Convertible reports whether a lead in this status may become a contract.
func (s LeadStatus) Convertible() bool {
	return s == LeadPending || s == LeadQualified
}

type ManagementCompany string

const (
	ManagementInternal ManagementCompany = "INTERNAL"
	ManagementExternal ManagementCompany = "EXTERNAL"
	ManagementNone     ManagementCompany = "NONE"
)

func (m ManagementCompany) Valid() bool {
	switch m {
	case ManagementInternal, ManagementExternal, ManagementNone:
		return true
	}
	return false
}

type ResourceType string

const (
	ResourceMaterial  ResourceType = "MATERIAL"
	ResourceLabor     ResourceType = "LABOR"
	ResourceEquipment ResourceType = "EQUIPMENT"
)

func (r ResourceType) Valid() bool {
	switch r {
	case ResourceMaterial, ResourceLabor, ResourceEquipment:
		return true
	}
	return false
}

// Choice domains stored in status_choices.
const (
	ChoiceContractStatus = "contract_status"
	ChoiceLeadSource     = "lead_source"
)
