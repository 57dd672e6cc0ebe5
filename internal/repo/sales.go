package repo

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"buildline/internal/domain"
)

const leadColumns = `id,full_name,COALESCE(email,''),COALESCE(phone,''),COALESCE(source,''),status,estimated_value,COALESCE(incorporation_id,''),COALESCE(realtor_id,''),COALESCE(notes,''),COALESCE(contract_id,''),COALESCE(converted_at,''),created_at,updated_at`

func scanLead(s scanner) (domain.Lead, error) {
	var l domain.Lead
	err := s.Scan(&l.ID, &l.FullName, &l.Email, &l.Phone, &l.Source, &l.Status, &l.EstimatedValue, &l.IncorporationID, &l.RealtorID,
		&l.Notes, &l.ContractID, &l.ConvertedAt, &l.CreatedAt, &l.UpdatedAt)
	return l, notFound(err)
}

func (r Repo) InsertLead(ctx context.Context, tx *sql.Tx, l domain.Lead) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO leads(id,full_name,email,phone,source,status,estimated_value,incorporation_id,realtor_id,notes,contract_id,converted_at,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.FullName, nullable(l.Email), nullable(l.Phone), nullable(l.Source), string(l.Status), l.EstimatedValue,
		nullable(l.IncorporationID), nullable(l.RealtorID), nullable(l.Notes), nullable(l.ContractID), nullable(l.ConvertedAt), l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) GetLead(ctx context.Context, tx *sql.Tx, id string) (domain.Lead, error) {
	return scanLead(r.q(tx).QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id=?`, id))
}

func (r Repo) UpdateLeadStatus(ctx context.Context, tx *sql.Tx, id string, status domain.LeadStatus, now string) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE leads SET status=?, updated_at=? WHERE id=?`, string(status), now, id))
}

// MarkLeadConverted only succeeds while the lead is still convertible, which
// stops two conversions of the same lead from both committing.
func (r Repo) MarkLeadConverted(ctx context.Context, tx *sql.Tx, id, contractID, now string) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE leads SET status=?, contract_id=?, converted_at=?, updated_at=? WHERE id=? AND status IN (?,?)`,
		string(domain.LeadConverted), contractID, now, now, id, string(domain.LeadPending), string(domain.LeadQualified)))
}

// LeadFilters narrows ListLeads.
type LeadFilters struct {
	Status string
	Limit  int
	// Cursor is the created_at|id pair of the last row of the previous page.
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListLeads(ctx context.Context, f LeadFilters) ([]domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const contractColumns = `id,number,lead_id,incorporation_id,payment_method_id,COALESCE(realtor_id,''),COALESCE(hoa_id,''),management_company,status,contract_value,COALESCE(signed_date,''),created_at,updated_at`

func scanContract(s scanner) (domain.Contract, error) {
	var c domain.Contract
	err := s.Scan(&c.ID, &c.Number, &c.LeadID, &c.IncorporationID, &c.PaymentMethodID, &c.RealtorID, &c.HOAID, &c.ManagementCompany,
		&c.Status, &c.ContractValue, &c.SignedDate, &c.CreatedAt, &c.UpdatedAt)
	return c, notFound(err)
}

func (r Repo) InsertContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO contracts(id,number,lead_id,incorporation_id,payment_method_id,realtor_id,hoa_id,management_company,status,contract_value,signed_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Number, c.LeadID, c.IncorporationID, c.PaymentMethodID, nullable(c.RealtorID), nullable(c.HOAID), string(c.ManagementCompany),
		c.Status, c.ContractValue, nullable(c.SignedDate), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetContract(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return scanContract(r.q(tx).QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=?`, id))
}

func (r Repo) UpdateContractStatus(ctx context.Context, tx *sql.Tx, id, status, now string) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE contracts SET status=?, updated_at=? WHERE id=?`, status, now, id))
}

func (r Repo) ListContracts(ctx context.Context, incorporationID string) ([]domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts`
	var args []any
	if incorporationID != "" {
		query += ` WHERE incorporation_id=?`
		args = append(args, incorporationID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountContractsWithPrefix counts contract numbers starting with prefix.
func (r Repo) CountContractsWithPrefix(ctx context.Context, tx *sql.Tx, prefix string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts WHERE number LIKE ?`, prefix+"%").Scan(&n)
	return n, err
}

func (r Repo) InsertContractProject(ctx context.Context, tx *sql.Tx, cp domain.ContractProject) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO contract_projects(contract_id,project_id,agreed_price,estimated_cost,created_at) VALUES (?,?,?,?,?)`,
		cp.ContractID, cp.ProjectID, cp.AgreedPrice, cp.EstimatedCost, cp.CreatedAt)
	return err
}

func (r Repo) GetContractProject(ctx context.Context, tx *sql.Tx, contractID, projectID string) (domain.ContractProject, error) {
	var cp domain.ContractProject
	err := r.q(tx).QueryRowContext(ctx, `SELECT contract_id,project_id,agreed_price,estimated_cost,created_at FROM contract_projects WHERE contract_id=? AND project_id=?`,
		contractID, projectID).Scan(&cp.ContractID, &cp.ProjectID, &cp.AgreedPrice, &cp.EstimatedCost, &cp.CreatedAt)
	return cp, notFound(err)
}

// ContractIDForProject returns the contract a project is sold under, or ErrNotFound.
func (r Repo) ContractIDForProject(ctx context.Context, tx *sql.Tx, projectID string) (string, error) {
	var id string
	err := r.q(tx).QueryRowContext(ctx, `SELECT contract_id FROM contract_projects WHERE project_id=?`, projectID).Scan(&id)
	return id, notFound(err)
}

func (r Repo) ListContractProjects(ctx context.Context, tx *sql.Tx, contractID string) ([]domain.ContractProject, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT contract_id,project_id,agreed_price,estimated_cost,created_at FROM contract_projects WHERE contract_id=? ORDER BY created_at, project_id`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ContractProject
	for rows.Next() {
		var cp domain.ContractProject
		if err := rows.Scan(&cp.ContractID, &cp.ProjectID, &cp.AgreedPrice, &cp.EstimatedCost, &cp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (r Repo) InsertContractOwner(ctx context.Context, tx *sql.Tx, o domain.ContractOwner) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO contract_owners(id,contract_id,full_name,email,percentage,created_at) VALUES (?,?,?,?,?,?)`,
		o.ID, o.ContractID, o.FullName, nullable(o.Email), o.Percentage, o.CreatedAt)
	return err
}

func (r Repo) DeleteContractOwner(ctx context.Context, tx *sql.Tx, contractID, ownerID string) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `DELETE FROM contract_owners WHERE contract_id=? AND id=?`, contractID, ownerID))
}

func (r Repo) ListContractOwners(ctx context.Context, tx *sql.Tx, contractID string) ([]domain.ContractOwner, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,contract_id,full_name,COALESCE(email,''),percentage,created_at FROM contract_owners WHERE contract_id=? ORDER BY created_at, id`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ContractOwner
	for rows.Next() {
		var o domain.ContractOwner
		if err := rows.Scan(&o.ID, &o.ContractID, &o.FullName, &o.Email, &o.Percentage, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OwnershipTotal sums owner percentages in Go; the column is TEXT so SQL SUM would lose precision.
func (r Repo) OwnershipTotal(ctx context.Context, tx *sql.Tx, contractID string) (decimal.Decimal, error) {
	owners, err := r.ListContractOwners(ctx, tx, contractID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range owners {
		total = total.Add(o.Percentage)
	}
	return total, nil
}
