package repo

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"buildline/internal/domain"
	"buildline/internal/graph"
)

const projectColumns = `id,incorporation_id,model_project_id,code,name,COALESCE(lot_number,''),status,COALESCE(planned_start_date,''),created_at,updated_at`

func scanProject(s scanner) (domain.Project, error) {
	var p domain.Project
	err := s.Scan(&p.ID, &p.IncorporationID, &p.ModelProjectID, &p.Code, &p.Name, &p.LotNumber, &p.Status, &p.PlannedStartDate, &p.CreatedAt, &p.UpdatedAt)
	return p, notFound(err)
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,incorporation_id,model_project_id,code,name,lot_number,status,planned_start_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.IncorporationID, p.ModelProjectID, p.Code, p.Name, nullable(p.LotNumber), string(p.Status), nullable(p.PlannedStartDate), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) UpdateProjectStatus(ctx context.Context, tx *sql.Tx, id string, status domain.ProjectStatus, now string) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE projects SET status=?, updated_at=? WHERE id=?`, string(status), now, id))
}

// ProjectFilters narrows ListProjects.
type ProjectFilters struct {
	IncorporationID string
	Status          string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE 1=1`
	var args []any
	if f.IncorporationID != "" {
		query += ` AND incorporation_id=?`
		args = append(args, f.IncorporationID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPhases is the instantiation guard: a project with phases is never re-instantiated.
func (r Repo) CountPhases(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM phase_projects WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

const phaseProjectColumns = `id,project_id,model_phase_id,phase_code,name,execution_order,status,completion_percentage,requires_inspection,estimated_duration_days,COALESCE(assigned_to,''),COALESCE(actual_start_date,''),COALESCE(actual_end_date,''),COALESCE(inspection_notes,''),created_at,updated_at`

func scanPhaseProject(s scanner) (domain.PhaseProject, error) {
	var p domain.PhaseProject
	err := s.Scan(&p.ID, &p.ProjectID, &p.ModelPhaseID, &p.PhaseCode, &p.Name, &p.ExecutionOrder, &p.Status, &p.CompletionPercentage,
		&p.RequiresInspection, &p.EstimatedDurationDays, &p.AssignedTo, &p.ActualStartDate, &p.ActualEndDate, &p.InspectionNotes, &p.CreatedAt, &p.UpdatedAt)
	return p, notFound(err)
}

func (r Repo) InsertPhaseProject(ctx context.Context, tx *sql.Tx, p domain.PhaseProject) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO phase_projects(id,project_id,model_phase_id,phase_code,name,execution_order,status,completion_percentage,requires_inspection,estimated_duration_days,assigned_to,actual_start_date,actual_end_date,inspection_notes,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.ModelPhaseID, p.PhaseCode, p.Name, p.ExecutionOrder, string(p.Status), p.CompletionPercentage,
		p.RequiresInspection, p.EstimatedDurationDays, nullable(p.AssignedTo), nullable(p.ActualStartDate), nullable(p.ActualEndDate), nullable(p.InspectionNotes), p.CreatedAt, p.UpdatedAt)
	return err
}

// UpdatePhaseProject writes the mutable execution fields.
func (r Repo) UpdatePhaseProject(ctx context.Context, tx *sql.Tx, p domain.PhaseProject) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE phase_projects SET status=?, completion_percentage=?, assigned_to=?, actual_start_date=?, actual_end_date=?, inspection_notes=?, updated_at=? WHERE id=?`,
		string(p.Status), p.CompletionPercentage, nullable(p.AssignedTo), nullable(p.ActualStartDate), nullable(p.ActualEndDate), nullable(p.InspectionNotes), p.UpdatedAt, p.ID))
}

func (r Repo) GetPhaseProject(ctx context.Context, tx *sql.Tx, id string) (domain.PhaseProject, error) {
	p, err := scanPhaseProject(r.q(tx).QueryRowContext(ctx, `SELECT `+phaseProjectColumns+` FROM phase_projects WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	p.Prerequisites, err = r.PhasePrereqs(ctx, tx, id)
	return p, err
}

func (r Repo) ListPhaseProjects(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.PhaseProject, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+phaseProjectColumns+` FROM phase_projects WHERE project_id=? ORDER BY execution_order`, projectID)
	if err != nil {
		return nil, err
	}
	var out []domain.PhaseProject
	for rows.Next() {
		p, err := scanPhaseProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Prerequisites, err = r.PhasePrereqs(ctx, tx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r Repo) AddPhasePrereq(ctx context.Context, tx *sql.Tx, phaseID, prereqID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO phase_project_prereqs(phase_id,prereq_id) VALUES (?,?)`, phaseID, prereqID)
	return err
}

func (r Repo) PhasePrereqs(ctx context.Context, tx *sql.Tx, phaseID string) ([]string, error) {
	return queryStrings(ctx, r.q(tx), `SELECT e.prereq_id FROM phase_project_prereqs e JOIN phase_projects p ON p.id=e.prereq_id WHERE e.phase_id=? ORDER BY p.execution_order`, phaseID)
}

func (r Repo) PhaseDependents(ctx context.Context, tx *sql.Tx, phaseID string) ([]string, error) {
	return queryStrings(ctx, r.q(tx), `SELECT e.phase_id FROM phase_project_prereqs e JOIN phase_projects p ON p.id=e.phase_id WHERE e.prereq_id=? ORDER BY p.execution_order`, phaseID)
}

// CountUnfinishedPhasePrereqs counts prerequisites of phaseID that are not COMPLETED.
func (r Repo) CountUnfinishedPhasePrereqs(ctx context.Context, tx *sql.Tx, phaseID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM phase_project_prereqs e JOIN phase_projects p ON p.id=e.prereq_id
WHERE e.phase_id=? AND p.status<>?`, phaseID, string(domain.PhaseCompleted)).Scan(&n)
	return n, err
}

// PhaseGraph loads the instantiated phase graph of a project.
func (r Repo) PhaseGraph(ctx context.Context, tx *sql.Tx, projectID string) (*graph.DepGraph, error) {
	g := graph.New()
	ids, err := queryStrings(ctx, r.q(tx), `SELECT id FROM phase_projects WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		g.AddNode(id)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT e.phase_id,e.prereq_id FROM phase_project_prereqs e
JOIN phase_projects p ON p.id=e.phase_id WHERE p.project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	return g, loadEdges(rows, g)
}

const taskProjectColumns = `id,phase_project_id,project_id,model_task_id,task_code,name,COALESCE(description,''),execution_order,status,completion_percentage,estimated_duration_hours,actual_duration_hours,estimated_cost,actual_cost,COALESCE(cost_subgroup_id,''),requires_approval,COALESCE(assigned_to,''),COALESCE(actual_start_date,''),COALESCE(actual_end_date,''),created_at,updated_at`

func scanTaskProject(s scanner) (domain.TaskProject, error) {
	var t domain.TaskProject
	err := s.Scan(&t.ID, &t.PhaseProjectID, &t.ProjectID, &t.ModelTaskID, &t.TaskCode, &t.Name, &t.Description, &t.ExecutionOrder, &t.Status,
		&t.CompletionPercentage, &t.EstimatedDurationHours, &t.ActualDurationHours, &t.EstimatedCost, &t.ActualCost, &t.CostSubGroupID,
		&t.RequiresApproval, &t.AssignedTo, &t.ActualStartDate, &t.ActualEndDate, &t.CreatedAt, &t.UpdatedAt)
	return t, notFound(err)
}

func (r Repo) InsertTaskProject(ctx context.Context, tx *sql.Tx, t domain.TaskProject) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_projects(id,phase_project_id,project_id,model_task_id,task_code,name,description,execution_order,status,completion_percentage,estimated_duration_hours,actual_duration_hours,estimated_cost,actual_cost,cost_subgroup_id,requires_approval,assigned_to,actual_start_date,actual_end_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.PhaseProjectID, t.ProjectID, t.ModelTaskID, t.TaskCode, t.Name, nullable(t.Description), t.ExecutionOrder, string(t.Status),
		t.CompletionPercentage, t.EstimatedDurationHours, t.ActualDurationHours, t.EstimatedCost, t.ActualCost, nullable(t.CostSubGroupID),
		t.RequiresApproval, nullable(t.AssignedTo), nullable(t.ActualStartDate), nullable(t.ActualEndDate), t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTaskProject writes the mutable execution fields.
func (r Repo) UpdateTaskProject(ctx context.Context, tx *sql.Tx, t domain.TaskProject) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE task_projects SET status=?, completion_percentage=?, actual_duration_hours=?, actual_cost=?, assigned_to=?, actual_start_date=?, actual_end_date=?, updated_at=? WHERE id=?`,
		string(t.Status), t.CompletionPercentage, t.ActualDurationHours, t.ActualCost, nullable(t.AssignedTo), nullable(t.ActualStartDate), nullable(t.ActualEndDate), t.UpdatedAt, t.ID))
}

func (r Repo) GetTaskProject(ctx context.Context, tx *sql.Tx, id string) (domain.TaskProject, error) {
	t, err := scanTaskProject(r.q(tx).QueryRowContext(ctx, `SELECT `+taskProjectColumns+` FROM task_projects WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	t.Prerequisites, err = r.TaskPrereqs(ctx, tx, id)
	return t, err
}

func (r Repo) ListTaskProjects(ctx context.Context, tx *sql.Tx, phaseProjectID string) ([]domain.TaskProject, error) {
	return r.listTaskProjects(ctx, tx, `phase_project_id=?`, phaseProjectID)
}

func (r Repo) ListProjectTasks(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.TaskProject, error) {
	return r.listTaskProjects(ctx, tx, `project_id=?`, projectID)
}

func (r Repo) listTaskProjects(ctx context.Context, tx *sql.Tx, where string, arg string) ([]domain.TaskProject, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+taskProjectColumns+` FROM task_projects WHERE `+where+` ORDER BY phase_project_id, execution_order`, arg)
	if err != nil {
		return nil, err
	}
	var out []domain.TaskProject
	for rows.Next() {
		t, err := scanTaskProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Prerequisites, err = r.TaskPrereqs(ctx, tx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r Repo) AddTaskPrereq(ctx context.Context, tx *sql.Tx, taskID, prereqID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO task_project_prereqs(task_id,prereq_id) VALUES (?,?)`, taskID, prereqID)
	return err
}

func (r Repo) TaskPrereqs(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	return queryStrings(ctx, r.q(tx), `SELECT e.prereq_id FROM task_project_prereqs e JOIN task_projects t ON t.id=e.prereq_id WHERE e.task_id=? ORDER BY t.execution_order`, taskID)
}

func (r Repo) TaskDependents(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	return queryStrings(ctx, r.q(tx), `SELECT e.task_id FROM task_project_prereqs e JOIN task_projects t ON t.id=e.task_id WHERE e.prereq_id=? ORDER BY t.execution_order`, taskID)
}

// CountUnfinishedTaskPrereqs counts prerequisites of taskID that are not COMPLETED.
func (r Repo) CountUnfinishedTaskPrereqs(ctx context.Context, tx *sql.Tx, taskID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM task_project_prereqs e JOIN task_projects t ON t.id=e.prereq_id
WHERE e.task_id=? AND t.status<>?`, taskID, string(domain.TaskCompleted)).Scan(&n)
	return n, err
}

// TaskGraph loads the instantiated task graph of one phase.
func (r Repo) TaskGraph(ctx context.Context, tx *sql.Tx, phaseProjectID string) (*graph.DepGraph, error) {
	g := graph.New()
	ids, err := queryStrings(ctx, r.q(tx), `SELECT id FROM task_projects WHERE phase_project_id=?`, phaseProjectID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		g.AddNode(id)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT e.task_id,e.prereq_id FROM task_project_prereqs e
JOIN task_projects t ON t.id=e.task_id WHERE t.phase_project_id=?`, phaseProjectID)
	if err != nil {
		return nil, err
	}
	return g, loadEdges(rows, g)
}

const taskSpecColumns = `id,task_project_id,task_resource_id,resource_type,name,unit,planned_quantity,actual_quantity,planned_unit_cost,planned_cost,actual_cost,created_at,updated_at`

func scanTaskSpec(s scanner) (domain.TaskSpecification, error) {
	var t domain.TaskSpecification
	err := s.Scan(&t.ID, &t.TaskProjectID, &t.TaskResourceID, &t.ResourceType, &t.Name, &t.Unit, &t.PlannedQuantity, &t.ActualQuantity,
		&t.PlannedUnitCost, &t.PlannedCost, &t.ActualCost, &t.CreatedAt, &t.UpdatedAt)
	return t, notFound(err)
}

// InsertTaskSpec ignores a second row for the same task and resource and reports whether it inserted.
func (r Repo) InsertTaskSpec(ctx context.Context, tx *sql.Tx, t domain.TaskSpecification) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO task_specifications(id,task_project_id,task_resource_id,resource_type,name,unit,planned_quantity,actual_quantity,planned_unit_cost,planned_cost,actual_cost,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TaskProjectID, t.TaskResourceID, string(t.ResourceType), t.Name, t.Unit, t.PlannedQuantity, t.ActualQuantity,
		t.PlannedUnitCost, t.PlannedCost, t.ActualCost, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) UpdateTaskSpecUsage(ctx context.Context, tx *sql.Tx, id string, qty, cost decimal.Decimal, now string) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE task_specifications SET actual_quantity=?, actual_cost=?, updated_at=? WHERE id=?`, qty, cost, now, id))
}

func (r Repo) GetTaskSpec(ctx context.Context, tx *sql.Tx, id string) (domain.TaskSpecification, error) {
	return scanTaskSpec(r.q(tx).QueryRowContext(ctx, `SELECT `+taskSpecColumns+` FROM task_specifications WHERE id=?`, id))
}

func (r Repo) ListTaskSpecs(ctx context.Context, tx *sql.Tx, taskProjectID string) ([]domain.TaskSpecification, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+taskSpecColumns+` FROM task_specifications WHERE task_project_id=? ORDER BY created_at, id`, taskProjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.TaskSpecification
	for rows.Next() {
		t, err := scanTaskSpec(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
