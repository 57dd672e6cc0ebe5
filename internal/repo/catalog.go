package repo

import (
	"context"
	"database/sql"

	"buildline/internal/domain"
	"buildline/internal/graph"
)

const costGroupColumns = `id,code,name,COALESCE(description,''),active,created_at`

func scanCostGroup(s scanner) (domain.CostGroup, error) {
	var g domain.CostGroup
	err := s.Scan(&g.ID, &g.Code, &g.Name, &g.Description, &g.Active, &g.CreatedAt)
	return g, notFound(err)
}

func (r Repo) InsertCostGroup(ctx context.Context, tx *sql.Tx, g domain.CostGroup) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO cost_groups(id,code,name,description,active,created_at) VALUES (?,?,?,?,?,?)`,
		g.ID, g.Code, g.Name, nullable(g.Description), g.Active, g.CreatedAt)
	return err
}

func (r Repo) GetCostGroup(ctx context.Context, tx *sql.Tx, id string) (domain.CostGroup, error) {
	return scanCostGroup(r.q(tx).QueryRowContext(ctx, `SELECT `+costGroupColumns+` FROM cost_groups WHERE id=?`, id))
}

func (r Repo) ListCostGroups(ctx context.Context) ([]domain.CostGroup, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+costGroupColumns+` FROM cost_groups ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CostGroup
	for rows.Next() {
		g, err := scanCostGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const costSubGroupColumns = `id,cost_group_id,code,name,COALESCE(description,''),active,created_at`

func scanCostSubGroup(s scanner) (domain.CostSubGroup, error) {
	var g domain.CostSubGroup
	err := s.Scan(&g.ID, &g.CostGroupID, &g.Code, &g.Name, &g.Description, &g.Active, &g.CreatedAt)
	return g, notFound(err)
}

func (r Repo) InsertCostSubGroup(ctx context.Context, tx *sql.Tx, g domain.CostSubGroup) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO cost_subgroups(id,cost_group_id,code,name,description,active,created_at) VALUES (?,?,?,?,?,?,?)`,
		g.ID, g.CostGroupID, g.Code, g.Name, nullable(g.Description), g.Active, g.CreatedAt)
	return err
}

func (r Repo) GetCostSubGroup(ctx context.Context, tx *sql.Tx, id string) (domain.CostSubGroup, error) {
	return scanCostSubGroup(r.q(tx).QueryRowContext(ctx, `SELECT `+costSubGroupColumns+` FROM cost_subgroups WHERE id=?`, id))
}

func (r Repo) GetCostSubGroupByCode(ctx context.Context, tx *sql.Tx, code string) (domain.CostSubGroup, error) {
	return scanCostSubGroup(r.q(tx).QueryRowContext(ctx, `SELECT `+costSubGroupColumns+` FROM cost_subgroups WHERE code=?`, code))
}

func (r Repo) ListCostSubGroups(ctx context.Context, groupID string) ([]domain.CostSubGroup, error) {
	query := `SELECT ` + costSubGroupColumns + ` FROM cost_subgroups`
	var args []any
	if groupID != "" {
		query += ` WHERE cost_group_id=?`
		args = append(args, groupID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY code`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CostSubGroup
	for rows.Next() {
		g, err := scanCostSubGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const modelProjectColumns = `id,code,name,version,county_id,project_type,COALESCE(description,''),active,created_at,updated_at`

func scanModelProject(s scanner) (domain.ModelProject, error) {
	var m domain.ModelProject
	err := s.Scan(&m.ID, &m.Code, &m.Name, &m.Version, &m.CountyID, &m.ProjectType, &m.Description, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	return m, notFound(err)
}

func (r Repo) InsertModelProject(ctx context.Context, tx *sql.Tx, m domain.ModelProject) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO model_projects(id,code,name,version,county_id,project_type,description,active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Code, m.Name, m.Version, m.CountyID, m.ProjectType, nullable(m.Description), m.Active, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetModelProject(ctx context.Context, tx *sql.Tx, id string) (domain.ModelProject, error) {
	return scanModelProject(r.q(tx).QueryRowContext(ctx, `SELECT `+modelProjectColumns+` FROM model_projects WHERE id=?`, id))
}

func (r Repo) SetModelProjectActive(ctx context.Context, tx *sql.Tx, id string, active bool, now string) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE model_projects SET active=?, updated_at=? WHERE id=?`, active, now, id))
}

func (r Repo) ListModelProjects(ctx context.Context, countyID string) ([]domain.ModelProject, error) {
	query := `SELECT ` + modelProjectColumns + ` FROM model_projects`
	var args []any
	if countyID != "" {
		query += ` WHERE county_id=?`
		args = append(args, countyID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY code, version`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ModelProject
	for rows.Next() {
		m, err := scanModelProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const modelPhaseColumns = `id,model_project_id,phase_code,name,COALESCE(description,''),execution_order,estimated_duration_days,requires_inspection,active,created_at`

func scanModelPhase(s scanner) (domain.ModelPhase, error) {
	var p domain.ModelPhase
	err := s.Scan(&p.ID, &p.ModelProjectID, &p.PhaseCode, &p.Name, &p.Description, &p.ExecutionOrder, &p.EstimatedDurationDays, &p.RequiresInspection, &p.Active, &p.CreatedAt)
	return p, notFound(err)
}

func (r Repo) InsertModelPhase(ctx context.Context, tx *sql.Tx, p domain.ModelPhase) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO model_phases(id,model_project_id,phase_code,name,description,execution_order,estimated_duration_days,requires_inspection,active,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ModelProjectID, p.PhaseCode, p.Name, nullable(p.Description), p.ExecutionOrder, p.EstimatedDurationDays, p.RequiresInspection, p.Active, p.CreatedAt)
	return err
}

func (r Repo) GetModelPhase(ctx context.Context, tx *sql.Tx, id string) (domain.ModelPhase, error) {
	p, err := scanModelPhase(r.q(tx).QueryRowContext(ctx, `SELECT `+modelPhaseColumns+` FROM model_phases WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	p.Prerequisites, err = r.ModelPhasePrereqs(ctx, tx, id, false)
	return p, err
}

func (r Repo) SetModelPhaseActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE model_phases SET active=? WHERE id=?`, active, id))
}

// ListModelPhases returns phases of a model project ordered by execution order.
func (r Repo) ListModelPhases(ctx context.Context, tx *sql.Tx, modelProjectID string, activeOnly bool) ([]domain.ModelPhase, error) {
	query := `SELECT ` + modelPhaseColumns + ` FROM model_phases WHERE model_project_id=?`
	if activeOnly {
		query += ` AND active=1`
	}
	rows, err := r.q(tx).QueryContext(ctx, query+` ORDER BY execution_order`, modelProjectID)
	if err != nil {
		return nil, err
	}
	var out []domain.ModelPhase
	for rows.Next() {
		p, err := scanModelPhase(rows)
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
		if out[i].Prerequisites, err = r.ModelPhasePrereqs(ctx, tx, out[i].ID, false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ModelPhasePrereqs lists prerequisite phase IDs, optionally only active ones.
func (r Repo) ModelPhasePrereqs(ctx context.Context, tx *sql.Tx, phaseID string, activeOnly bool) ([]string, error) {
	query := `SELECT e.prereq_id FROM model_phase_prereqs e JOIN model_phases p ON p.id=e.prereq_id WHERE e.phase_id=?`
	if activeOnly {
		query += ` AND p.active=1`
	}
	return queryStrings(ctx, r.q(tx), query+` ORDER BY p.execution_order`, phaseID)
}

// ModelPhaseDependents lists phases that require phaseID.
func (r Repo) ModelPhaseDependents(ctx context.Context, tx *sql.Tx, phaseID string, activeOnly bool) ([]string, error) {
	query := `SELECT e.phase_id FROM model_phase_prereqs e JOIN model_phases p ON p.id=e.phase_id WHERE e.prereq_id=?`
	if activeOnly {
		query += ` AND p.active=1`
	}
	return queryStrings(ctx, r.q(tx), query+` ORDER BY p.execution_order`, phaseID)
}

func (r Repo) AddModelPhasePrereq(ctx context.Context, tx *sql.Tx, phaseID, prereqID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO model_phase_prereqs(phase_id,prereq_id) VALUES (?,?)`, phaseID, prereqID)
	return err
}

func (r Repo) RemoveModelPhasePrereq(ctx context.Context, tx *sql.Tx, phaseID, prereqID string) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `DELETE FROM model_phase_prereqs WHERE phase_id=? AND prereq_id=?`, phaseID, prereqID))
}

// ModelPhaseGraph loads every phase and phase edge of a model project.
func (r Repo) ModelPhaseGraph(ctx context.Context, tx *sql.Tx, modelProjectID string) (*graph.DepGraph, error) {
	g := graph.New()
	ids, err := queryStrings(ctx, r.q(tx), `SELECT id FROM model_phases WHERE model_project_id=?`, modelProjectID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		g.AddNode(id)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT e.phase_id,e.prereq_id FROM model_phase_prereqs e
JOIN model_phases p ON p.id=e.phase_id WHERE p.model_project_id=?`, modelProjectID)
	if err != nil {
		return nil, err
	}
	return g, loadEdges(rows, g)
}

func loadEdges(rows *sql.Rows, g *graph.DepGraph) error {
	defer rows.Close()
	for rows.Next() {
		var node, prereq string
		if err := rows.Scan(&node, &prereq); err != nil {
			return err
		}
		g.AddEdge(node, prereq)
	}
	return rows.Err()
}

const modelTaskColumns = `id,model_phase_id,task_code,name,COALESCE(description,''),execution_order,estimated_duration_hours,estimated_cost,COALESCE(cost_subgroup_id,''),requires_approval,active,created_at`

func scanModelTask(s scanner) (domain.ModelTask, error) {
	var t domain.ModelTask
	err := s.Scan(&t.ID, &t.ModelPhaseID, &t.TaskCode, &t.Name, &t.Description, &t.ExecutionOrder,
		&t.EstimatedDurationHours, &t.EstimatedCost, &t.CostSubGroupID, &t.RequiresApproval, &t.Active, &t.CreatedAt)
	return t, notFound(err)
}

func (r Repo) InsertModelTask(ctx context.Context, tx *sql.Tx, t domain.ModelTask) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO model_tasks(id,model_phase_id,task_code,name,description,execution_order,estimated_duration_hours,estimated_cost,cost_subgroup_id,requires_approval,active,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ModelPhaseID, t.TaskCode, t.Name, nullable(t.Description), t.ExecutionOrder,
		t.EstimatedDurationHours, t.EstimatedCost, nullable(t.CostSubGroupID), t.RequiresApproval, t.Active, t.CreatedAt)
	return err
}

func (r Repo) GetModelTask(ctx context.Context, tx *sql.Tx, id string) (domain.ModelTask, error) {
	t, err := scanModelTask(r.q(tx).QueryRowContext(ctx, `SELECT `+modelTaskColumns+` FROM model_tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	t.Prerequisites, err = r.ModelTaskPrereqs(ctx, tx, id, false)
	return t, err
}

func (r Repo) SetModelTaskActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE model_tasks SET active=? WHERE id=?`, active, id))
}

func (r Repo) ListModelTasks(ctx context.Context, tx *sql.Tx, modelPhaseID string, activeOnly bool) ([]domain.ModelTask, error) {
	query := `SELECT ` + modelTaskColumns + ` FROM model_tasks WHERE model_phase_id=?`
	if activeOnly {
		query += ` AND active=1`
	}
	rows, err := r.q(tx).QueryContext(ctx, query+` ORDER BY execution_order`, modelPhaseID)
	if err != nil {
		return nil, err
	}
	var out []domain.ModelTask
	for rows.Next() {
		t, err := scanModelTask(rows)
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
		if out[i].Prerequisites, err = r.ModelTaskPrereqs(ctx, tx, out[i].ID, false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r Repo) ModelTaskPrereqs(ctx context.Context, tx *sql.Tx, taskID string, activeOnly bool) ([]string, error) {
	query := `SELECT e.prereq_id FROM model_task_prereqs e JOIN model_tasks t ON t.id=e.prereq_id WHERE e.task_id=?`
	if activeOnly {
		query += ` AND t.active=1`
	}
	return queryStrings(ctx, r.q(tx), query+` ORDER BY t.execution_order`, taskID)
}

func (r Repo) ModelTaskDependents(ctx context.Context, tx *sql.Tx, taskID string, activeOnly bool) ([]string, error) {
	query := `SELECT e.task_id FROM model_task_prereqs e JOIN model_tasks t ON t.id=e.task_id WHERE e.prereq_id=?`
	if activeOnly {
		query += ` AND t.active=1`
	}
	return queryStrings(ctx, r.q(tx), query+` ORDER BY t.execution_order`, taskID)
}

func (r Repo) AddModelTaskPrereq(ctx context.Context, tx *sql.Tx, taskID, prereqID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO model_task_prereqs(task_id,prereq_id) VALUES (?,?)`, taskID, prereqID)
	return err
}

func (r Repo) RemoveModelTaskPrereq(ctx context.Context, tx *sql.Tx, taskID, prereqID string) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `DELETE FROM model_task_prereqs WHERE task_id=? AND prereq_id=?`, taskID, prereqID))
}

// ModelTaskGraph loads every task and task edge of a model phase.
func (r Repo) ModelTaskGraph(ctx context.Context, tx *sql.Tx, modelPhaseID string) (*graph.DepGraph, error) {
	g := graph.New()
	ids, err := queryStrings(ctx, r.q(tx), `SELECT id FROM model_tasks WHERE model_phase_id=?`, modelPhaseID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		g.AddNode(id)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT e.task_id,e.prereq_id FROM model_task_prereqs e
JOIN model_tasks t ON t.id=e.task_id WHERE t.model_phase_id=?`, modelPhaseID)
	if err != nil {
		return nil, err
	}
	return g, loadEdges(rows, g)
}

const taskResourceColumns = `id,model_task_id,resource_type,name,unit,quantity,unit_cost,COALESCE(cost_subgroup_id,''),active,created_at`

func scanTaskResource(s scanner) (domain.TaskResource, error) {
	var t domain.TaskResource
	err := s.Scan(&t.ID, &t.ModelTaskID, &t.ResourceType, &t.Name, &t.Unit, &t.Quantity, &t.UnitCost, &t.CostSubGroupID, &t.Active, &t.CreatedAt)
	return t, notFound(err)
}

func (r Repo) InsertTaskResource(ctx context.Context, tx *sql.Tx, t domain.TaskResource) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_resources(id,model_task_id,resource_type,name,unit,quantity,unit_cost,cost_subgroup_id,active,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ModelTaskID, string(t.ResourceType), t.Name, t.Unit, t.Quantity, t.UnitCost, nullable(t.CostSubGroupID), t.Active, t.CreatedAt)
	return err
}

func (r Repo) GetTaskResource(ctx context.Context, tx *sql.Tx, id string) (domain.TaskResource, error) {
	return scanTaskResource(r.q(tx).QueryRowContext(ctx, `SELECT `+taskResourceColumns+` FROM task_resources WHERE id=?`, id))
}

func (r Repo) SetTaskResourceActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE task_resources SET active=? WHERE id=?`, active, id))
}

func (r Repo) ListTaskResources(ctx context.Context, tx *sql.Tx, modelTaskID string, activeOnly bool) ([]domain.TaskResource, error) {
	query := `SELECT ` + taskResourceColumns + ` FROM task_resources WHERE model_task_id=?`
	if activeOnly {
		query += ` AND active=1`
	}
	rows, err := r.q(tx).QueryContext(ctx, query+` ORDER BY created_at, id`, modelTaskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.TaskResource
	for rows.Next() {
		t, err := scanTaskResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
