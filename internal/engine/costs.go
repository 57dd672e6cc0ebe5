package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"buildline/internal/costs"
	"buildline/internal/domain"
)

// Variance is the cost and time deviation of one unit of work, in percent.
type Variance struct {
	costs.Summary
	CostVariance decimal.Decimal `json:"cost_variance"`
	TimeVariance decimal.Decimal `json:"time_variance"`
}

func newVariance(s costs.Summary) Variance {
	return Variance{Summary: s, CostVariance: s.CostVariance(), TimeVariance: s.TimeVariance()}
}

func taskSummary(t domain.TaskProject) costs.Summary {
	return costs.Summary{
		EstimatedCost:  t.EstimatedCost,
		ActualCost:     t.ActualCost,
		EstimatedHours: t.EstimatedDurationHours,
		ActualHours:    t.ActualDurationHours,
	}
}

// TaskVariance returns the task's cost and time variance.
func TaskVariance(t domain.TaskProject) Variance {
	return newVariance(taskSummary(t))
}

// SpecVariance is the quantity and cost deviation of one task specification.
type SpecVariance struct {
	QuantityVariance decimal.Decimal `json:"quantity_variance"`
	CostVariance     decimal.Decimal `json:"cost_variance"`
}

func SpecificationVariance(s domain.TaskSpecification) SpecVariance {
	return SpecVariance{
		QuantityVariance: costs.Variance(s.ActualQuantity, s.PlannedQuantity),
		CostVariance:     costs.Variance(s.ActualCost, s.PlannedCost),
	}
}

type TaskCost struct {
	TaskID   string            `json:"task_id"`
	TaskCode string            `json:"task_code"`
	Name     string            `json:"name"`
	Status   domain.TaskStatus `json:"status"`
	Variance
}

type PhaseCost struct {
	PhaseID   string             `json:"phase_id"`
	PhaseCode string             `json:"phase_code"`
	Name      string             `json:"name"`
	Status    domain.PhaseStatus `json:"status"`
	Variance
	Tasks []TaskCost `json:"tasks"`
}

// ProjectCost rolls task figures up to phases and the project. Cancelled tasks are left out.
type ProjectCost struct {
	ProjectID string `json:"project_id"`
	Variance
	Phases []PhaseCost `json:"phases"`
}

func (e Engine) ProjectCosts(ctx context.Context, projectID string) (ProjectCost, error) {
	if _, err := e.Repo.GetProject(ctx, nil, projectID); err != nil {
		return ProjectCost{}, err
	}
	phases, err := e.Repo.ListPhaseProjects(ctx, nil, projectID)
	if err != nil {
		return ProjectCost{}, err
	}
	out := ProjectCost{ProjectID: projectID}
	var total costs.Summary
	for _, ph := range phases {
		tasks, err := e.Repo.ListTaskProjects(ctx, nil, ph.ID)
		if err != nil {
			return out, err
		}
		pc := PhaseCost{PhaseID: ph.ID, PhaseCode: ph.PhaseCode, Name: ph.Name, Status: ph.Status}
		var sum costs.Summary
		for _, t := range tasks {
			if t.Status == domain.TaskCancelled {
				continue
			}
			ts := taskSummary(t)
			sum = sum.Add(ts)
			pc.Tasks = append(pc.Tasks, TaskCost{TaskID: t.ID, TaskCode: t.TaskCode, Name: t.Name, Status: t.Status, Variance: newVariance(ts)})
		}
		pc.Variance = newVariance(sum)
		total = total.Add(sum)
		out.Phases = append(out.Phases, pc)
	}
	out.Variance = newVariance(total)
	return out, nil
}

// ContractProjectCost compares the contract's estimate and price with actual spend.
type ContractProjectCost struct {
	domain.ContractProject
	ActualCost   decimal.Decimal `json:"actual_cost"`
	CostVariance decimal.Decimal `json:"cost_variance"`
	// Margin is agreed price minus actual cost.
	Margin decimal.Decimal `json:"margin"`
}

func (e Engine) ContractProjectCosts(ctx context.Context, contractID string) ([]ContractProjectCost, error) {
	if _, err := e.Repo.GetContract(ctx, nil, contractID); err != nil {
		return nil, err
	}
	cps, err := e.Repo.ListContractProjects(ctx, nil, contractID)
	if err != nil {
		return nil, err
	}
	out := make([]ContractProjectCost, 0, len(cps))
	for _, cp := range cps {
		tasks, err := e.Repo.ListProjectTasks(ctx, nil, cp.ProjectID)
		if err != nil {
			return nil, err
		}
		actual := decimal.Zero
		for _, t := range tasks {
			actual = actual.Add(t.ActualCost)
		}
		out = append(out, ContractProjectCost{
			ContractProject: cp,
			ActualCost:      actual,
			CostVariance:    costs.Variance(actual, cp.EstimatedCost),
			Margin:          cp.AgreedPrice.Sub(actual),
		})
	}
	return out, nil
}
