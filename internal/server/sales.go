package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"buildline/internal/domain"
	"buildline/internal/engine"
	"buildline/internal/repo"
)

func registerLeads(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-leads",
		Method:      http.MethodGet,
		Path:        "/leads",
		Summary:     "List leads, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*out[PaginatedLeads], error) {
		if _, err := requirePermission(ctx, e, "lead.read"); err != nil {
			return nil, handleError(err)
		}
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.ListLeads(ctx, repo.LeadFilters{Status: input.Status, Limit: limit + 1, CursorCreatedAt: ts, CursorID: id})
		if err != nil {
			return nil, handleError(err)
		}
		res := PaginatedLeads{Items: nonNilSlice(items)}
		if len(items) > limit {
			res.Items = items[:limit]
			last := res.Items[limit-1]
			res.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		return reply(res), nil
	})

	registerGet(api, e, "get-lead", "/leads/{id}", "Get lead", "lead.read",
		func(ctx context.Context, id string) (domain.Lead, error) { return e.Repo.GetLead(ctx, nil, id) })

	registerCreate(api, e, "create-lead", "/leads", "Create lead", "lead.write",
		func(ctx context.Context, req CreateLeadRequest, actorID string) (domain.Lead, error) {
			d := newDecimals()
			value := d.parse("estimated_value", req.EstimatedValue)
			if err := d.err(); err != nil {
				return domain.Lead{}, err
			}
			return e.CreateLead(ctx, domain.Lead{
				FullName: req.FullName, Email: req.Email, Phone: req.Phone, Source: req.Source,
				EstimatedValue: value, IncorporationID: req.IncorporationID, RealtorID: req.RealtorID, Notes: req.Notes,
			}, actorID)
		})

	huma.Register(api, huma.Operation{
		OperationID: "set-lead-status",
		Method:      http.MethodPut,
		Path:        "/leads/{id}/status",
		Summary:     "Move a lead to another status",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idBodyInput[SetStatusRequest]) (*out[domain.Lead], error) {
		p, err := requirePermission(ctx, e, "lead.write")
		if err != nil {
			return nil, handleError(err)
		}
		l, err := e.SetLeadStatus(ctx, input.ID, domain.LeadStatus(input.Body.Status), p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "convert-lead",
		Method:        http.MethodPost,
		Path:          "/leads/{id}/convert",
		Summary:       "Convert a lead into a contract",
		Description:   "Creates the contract with its projects and owners in one transaction. Warnings report fallbacks that were applied; any error aborts the conversion and is returned in the error details.",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[ConvertLeadRequest]) (*out[engine.ConversionResult], error) {
		p, err := requirePermission(ctx, e, "lead.convert")
		if err != nil {
			return nil, handleError(err)
		}
		b := input.Body
		d := newDecimals()
		opts := engine.ConversionOptions{
			LeadID:            input.ID,
			IncorporationID:   b.IncorporationID,
			PaymentMethodID:   b.PaymentMethodID,
			ManagementCompany: domain.ManagementCompany(b.ManagementCompany),
			RealtorID:         b.RealtorID,
			HOAID:             b.HOAID,
			ContractValue:     d.parse("contract_value", b.ContractValue),
			SignedDate:        b.SignedDate,
			ProjectIDs:        b.ProjectIDs,
			ActorID:           p.UserID,
		}
		for _, o := range b.Owners {
			opts.Owners = append(opts.Owners, engine.OwnerInput{FullName: o.FullName, Email: o.Email, Percentage: d.parse("owners", o.Percentage)})
		}
		if err := d.err(); err != nil {
			return nil, handleError(err)
		}
		res, err := e.ConvertLead(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		if !res.OK() {
			return nil, newAPIError(http.StatusBadRequest, "validation_failed", res.Err().Error(), map[string]any{
				"errors":   res.Errors,
				"warnings": nonNilSlice(res.Warnings),
			})
		}
		res.Warnings = nonNilSlice(res.Warnings)
		return reply(res), nil
	})
}

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List contracts",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		IncorporationID string `query:"incorporation_id"`
	}) (*out[[]domain.Contract], error) {
		if _, err := requirePermission(ctx, e, "contract.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListContracts(ctx, input.IncorporationID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	registerGet(api, e, "get-contract", "/contracts/{id}", "Contract with projects, owners and ownership total", "contract.read", e.GetContractDetail)
	registerGet(api, e, "contract-costs", "/contracts/{id}/costs", "Agreed price, estimated and actual cost per contract project", "contract.read", e.ContractProjectCosts)

	huma.Register(api, huma.Operation{
		OperationID: "set-contract-status",
		Method:      http.MethodPut,
		Path:        "/contracts/{id}/status",
		Summary:     "Set contract status",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idBodyInput[SetStatusRequest]) (*out[domain.Contract], error) {
		p, err := requirePermission(ctx, e, "contract.write")
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.SetContractStatus(ctx, input.ID, input.Body.Status, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "link-contract-project",
		Method:        http.MethodPost,
		Path:          "/contracts/{id}/projects",
		Summary:       "Put a project under the contract",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[LinkProjectRequest]) (*out[domain.ContractProject], error) {
		p, err := requirePermission(ctx, e, "contract.write")
		if err != nil {
			return nil, handleError(err)
		}
		d := newDecimals()
		price := d.parse("agreed_price", input.Body.AgreedPrice)
		if err := d.err(); err != nil {
			return nil, handleError(err)
		}
		cp, err := e.LinkContractProject(ctx, input.ID, input.Body.ProjectID, price, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(cp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-contract-owner",
		Method:        http.MethodPost,
		Path:          "/contracts/{id}/owners",
		Summary:       "Add a fractional owner",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[OwnerRequest]) (*out[domain.ContractOwner], error) {
		p, err := requirePermission(ctx, e, "contract.write")
		if err != nil {
			return nil, handleError(err)
		}
		d := newDecimals()
		pct := d.parse("percentage", input.Body.Percentage)
		if err := d.err(); err != nil {
			return nil, handleError(err)
		}
		o, err := e.AddContractOwner(ctx, input.ID, engine.OwnerInput{FullName: input.Body.FullName, Email: input.Body.Email, Percentage: pct}, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-contract-owner",
		Method:        http.MethodDelete,
		Path:          "/contracts/{id}/owners/{owner_id}",
		Summary:       "Remove an owner",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		OwnerID string `path:"owner_id"`
	}) (*struct{}, error) {
		p, err := requirePermission(ctx, e, "contract.write")
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.RemoveContractOwner(ctx, input.ID, input.OwnerID, p.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
