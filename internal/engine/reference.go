package engine

import (
	"context"
	"database/sql"
	"strings"

	"buildline/internal/domain"
	"buildline/internal/events"
)

func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func required(v *ValidationError, field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "required")
	}
}

func (e Engine) CreateCounty(ctx context.Context, c domain.County, actorID string) (domain.County, error) {
	v := &ValidationError{}
	required(v, "code", c.Code)
	required(v, "name", c.Name)
	if err := v.Err(); err != nil {
		return c, err
	}
	if c.ID == "" {
		c.ID = newID()
	}
	c.Active = true
	c.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertCounty(ctx, tx, c); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "county.created", EntityKind: "county", EntityID: c.ID, ActorID: actorID,
			Payload: events.Payload{"code": c.Code}})
	})
	return c, err
}

func (e Engine) CreateIncorporation(ctx context.Context, inc domain.Incorporation, actorID string) (domain.Incorporation, error) {
	v := &ValidationError{}
	required(v, "code", inc.Code)
	required(v, "name", inc.Name)
	required(v, "county_id", inc.CountyID)
	if err := v.Err(); err != nil {
		return inc, err
	}
	if inc.ID == "" {
		inc.ID = newID()
	}
	inc.Active = true
	inc.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetCounty(ctx, tx, inc.CountyID); err != nil {
			return lookup("county_id", "county", err)
		}
		if err := e.Repo.InsertIncorporation(ctx, tx, inc); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "incorporation.created", EntityKind: "incorporation", EntityID: inc.ID, ActorID: actorID,
			Payload: events.Payload{"code": inc.Code, "county_id": inc.CountyID}})
	})
	return inc, err
}

func (e Engine) SetIncorporationActive(ctx context.Context, id string, active bool, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetIncorporationActive(ctx, tx, id, active); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "incorporation.updated", EntityKind: "incorporation", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"active": active}})
	})
}

func (e Engine) CreateRealtor(ctx context.Context, r domain.Realtor, actorID string) (domain.Realtor, error) {
	v := &ValidationError{}
	required(v, "name", r.Name)
	if err := v.Err(); err != nil {
		return r, err
	}
	if r.ID == "" {
		r.ID = newID()
	}
	r.Active = true
	r.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertRealtor(ctx, tx, r); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "realtor.created", EntityKind: "realtor", EntityID: r.ID, ActorID: actorID})
	})
	return r, err
}

func (e Engine) SetRealtorActive(ctx context.Context, id string, active bool, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetRealtorActive(ctx, tx, id, active); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "realtor.updated", EntityKind: "realtor", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"active": active}})
	})
}

func (e Engine) CreateHOA(ctx context.Context, h domain.HOA, actorID string) (domain.HOA, error) {
	v := &ValidationError{}
	required(v, "name", h.Name)
	required(v, "county_id", h.CountyID)
	if err := v.Err(); err != nil {
		return h, err
	}
	if h.ID == "" {
		h.ID = newID()
	}
	h.Active = true
	h.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetCounty(ctx, tx, h.CountyID); err != nil {
			return lookup("county_id", "county", err)
		}
		if err := e.Repo.InsertHOA(ctx, tx, h); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "hoa.created", EntityKind: "hoa", EntityID: h.ID, ActorID: actorID,
			Payload: events.Payload{"county_id": h.CountyID}})
	})
	return h, err
}

func (e Engine) CreatePaymentMethod(ctx context.Context, p domain.PaymentMethod, actorID string) (domain.PaymentMethod, error) {
	v := &ValidationError{}
	required(v, "code", p.Code)
	required(v, "name", p.Name)
	if err := v.Err(); err != nil {
		return p, err
	}
	if p.ID == "" {
		p.ID = newID()
	}
	p.Active = true
	p.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertPaymentMethod(ctx, tx, p); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "payment_method.created", EntityKind: "payment_method", EntityID: p.ID, ActorID: actorID,
			Payload: events.Payload{"code": p.Code}})
	})
	return p, err
}

func (e Engine) SetPaymentMethodActive(ctx context.Context, id string, active bool, actorID string) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetPaymentMethodActive(ctx, tx, id, active); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "payment_method.updated", EntityKind: "payment_method", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"active": active}})
	})
}

func (e Engine) CreateCostGroup(ctx context.Context, g domain.CostGroup, actorID string) (domain.CostGroup, error) {
	v := &ValidationError{}
	required(v, "code", g.Code)
	required(v, "name", g.Name)
	if err := v.Err(); err != nil {
		return g, err
	}
	if g.ID == "" {
		g.ID = newID()
	}
	g.Active = true
	g.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertCostGroup(ctx, tx, g); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "cost_group.created", EntityKind: "cost_group", EntityID: g.ID, ActorID: actorID,
			Payload: events.Payload{"code": g.Code}})
	})
	return g, err
}

func (e Engine) CreateCostSubGroup(ctx context.Context, g domain.CostSubGroup, actorID string) (domain.CostSubGroup, error) {
	v := &ValidationError{}
	required(v, "code", g.Code)
	required(v, "name", g.Name)
	required(v, "cost_group_id", g.CostGroupID)
	if err := v.Err(); err != nil {
		return g, err
	}
	if g.ID == "" {
		g.ID = newID()
	}
	g.Active = true
	g.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetCostGroup(ctx, tx, g.CostGroupID); err != nil {
			return lookup("cost_group_id", "cost group", err)
		}
		if err := e.Repo.InsertCostSubGroup(ctx, tx, g); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "cost_subgroup.created", EntityKind: "cost_subgroup", EntityID: g.ID, ActorID: actorID,
			Payload: events.Payload{"code": g.Code, "cost_group_id": g.CostGroupID}})
	})
	return g, err
}
