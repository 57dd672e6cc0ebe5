package repo

import (
	"context"
	"database/sql"

	"buildline/internal/domain"
)

const countyColumns = `id,code,name,COALESCE(state,''),active,created_at`

func scanCounty(s scanner) (domain.County, error) {
	var c domain.County
	err := s.Scan(&c.ID, &c.Code, &c.Name, &c.State, &c.Active, &c.CreatedAt)
	return c, notFound(err)
}

func (r Repo) InsertCounty(ctx context.Context, tx *sql.Tx, c domain.County) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO counties(id,code,name,state,active,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Code, c.Name, nullable(c.State), c.Active, c.CreatedAt)
	return err
}

func (r Repo) GetCounty(ctx context.Context, tx *sql.Tx, id string) (domain.County, error) {
	return scanCounty(r.q(tx).QueryRowContext(ctx, `SELECT `+countyColumns+` FROM counties WHERE id=?`, id))
}

func (r Repo) GetCountyByCode(ctx context.Context, tx *sql.Tx, code string) (domain.County, error) {
	return scanCounty(r.q(tx).QueryRowContext(ctx, `SELECT `+countyColumns+` FROM counties WHERE code=?`, code))
}

func (r Repo) ListCounties(ctx context.Context) ([]domain.County, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+countyColumns+` FROM counties ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.County
	for rows.Next() {
		c, err := scanCounty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const incorporationColumns = `id,code,name,county_id,COALESCE(address,''),active,created_at`

func scanIncorporation(s scanner) (domain.Incorporation, error) {
	var i domain.Incorporation
	err := s.Scan(&i.ID, &i.Code, &i.Name, &i.CountyID, &i.Address, &i.Active, &i.CreatedAt)
	return i, notFound(err)
}

func (r Repo) InsertIncorporation(ctx context.Context, tx *sql.Tx, i domain.Incorporation) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO incorporations(id,code,name,county_id,address,active,created_at) VALUES (?,?,?,?,?,?,?)`,
		i.ID, i.Code, i.Name, i.CountyID, nullable(i.Address), i.Active, i.CreatedAt)
	return err
}

func (r Repo) GetIncorporation(ctx context.Context, tx *sql.Tx, id string) (domain.Incorporation, error) {
	return scanIncorporation(r.q(tx).QueryRowContext(ctx, `SELECT `+incorporationColumns+` FROM incorporations WHERE id=?`, id))
}

func (r Repo) SetIncorporationActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE incorporations SET active=? WHERE id=?`, active, id))
}

func (r Repo) ListIncorporations(ctx context.Context) ([]domain.Incorporation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+incorporationColumns+` FROM incorporations ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Incorporation
	for rows.Next() {
		i, err := scanIncorporation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

const realtorColumns = `id,name,COALESCE(email,''),COALESCE(phone,''),active,created_at`

func scanRealtor(s scanner) (domain.Realtor, error) {
	var x domain.Realtor
	err := s.Scan(&x.ID, &x.Name, &x.Email, &x.Phone, &x.Active, &x.CreatedAt)
	return x, notFound(err)
}

func (r Repo) InsertRealtor(ctx context.Context, tx *sql.Tx, x domain.Realtor) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO realtors(id,name,email,phone,active,created_at) VALUES (?,?,?,?,?,?)`,
		x.ID, x.Name, nullable(x.Email), nullable(x.Phone), x.Active, x.CreatedAt)
	return err
}

func (r Repo) GetRealtor(ctx context.Context, tx *sql.Tx, id string) (domain.Realtor, error) {
	return scanRealtor(r.q(tx).QueryRowContext(ctx, `SELECT `+realtorColumns+` FROM realtors WHERE id=?`, id))
}

func (r Repo) SetRealtorActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE realtors SET active=? WHERE id=?`, active, id))
}

func (r Repo) ListRealtors(ctx context.Context) ([]domain.Realtor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+realtorColumns+` FROM realtors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Realtor
	for rows.Next() {
		x, err := scanRealtor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

const hoaColumns = `id,name,county_id,active,created_at`

func scanHOA(s scanner) (domain.HOA, error) {
	var h domain.HOA
	err := s.Scan(&h.ID, &h.Name, &h.CountyID, &h.Active, &h.CreatedAt)
	return h, notFound(err)
}

func (r Repo) InsertHOA(ctx context.Context, tx *sql.Tx, h domain.HOA) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO hoas(id,name,county_id,active,created_at) VALUES (?,?,?,?,?)`,
		h.ID, h.Name, h.CountyID, h.Active, h.CreatedAt)
	return err
}

func (r Repo) GetHOA(ctx context.Context, tx *sql.Tx, id string) (domain.HOA, error) {
	return scanHOA(r.q(tx).QueryRowContext(ctx, `SELECT `+hoaColumns+` FROM hoas WHERE id=?`, id))
}

func (r Repo) ListHOAs(ctx context.Context, countyID string) ([]domain.HOA, error) {
	query := `SELECT ` + hoaColumns + ` FROM hoas`
	var args []any
	if countyID != "" {
		query += ` WHERE county_id=?`
		args = append(args, countyID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.HOA
	for rows.Next() {
		h, err := scanHOA(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const paymentMethodColumns = `id,code,name,active,created_at`

func scanPaymentMethod(s scanner) (domain.PaymentMethod, error) {
	var p domain.PaymentMethod
	err := s.Scan(&p.ID, &p.Code, &p.Name, &p.Active, &p.CreatedAt)
	return p, notFound(err)
}

func (r Repo) InsertPaymentMethod(ctx context.Context, tx *sql.Tx, p domain.PaymentMethod) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO payment_methods(id,code,name,active,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Code, p.Name, p.Active, p.CreatedAt)
	return err
}

func (r Repo) GetPaymentMethod(ctx context.Context, tx *sql.Tx, id string) (domain.PaymentMethod, error) {
	return scanPaymentMethod(r.q(tx).QueryRowContext(ctx, `SELECT `+paymentMethodColumns+` FROM payment_methods WHERE id=?`, id))
}

func (r Repo) SetPaymentMethodActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	return affectedOne(r.q(tx).ExecContext(ctx, `UPDATE payment_methods SET active=? WHERE id=?`, active, id))
}

func (r Repo) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+paymentMethodColumns+` FROM payment_methods ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PaymentMethod
	for rows.Next() {
		p, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertStatusChoice inserts or refreshes a choice keyed by (domain, code).
func (r Repo) UpsertStatusChoice(ctx context.Context, tx *sql.Tx, c domain.StatusChoice) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO status_choices(domain,code,label,sort_order,active) VALUES (?,?,?,?,?)
ON CONFLICT(domain,code) DO UPDATE SET label=excluded.label, sort_order=excluded.sort_order, active=excluded.active`,
		c.Domain, c.Code, c.Label, c.SortOrder, c.Active)
	return err
}

func (r Repo) ListStatusChoices(ctx context.Context) ([]domain.StatusChoice, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,domain,code,label,sort_order,active FROM status_choices ORDER BY domain, sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StatusChoice
	for rows.Next() {
		var c domain.StatusChoice
		if err := rows.Scan(&c.ID, &c.Domain, &c.Code, &c.Label, &c.SortOrder, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
