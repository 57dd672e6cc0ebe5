package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"buildline/internal/domain"
	"buildline/internal/engine"
)

type idPath struct {
	ID string `path:"id"`
}

type bodyInput[T any] struct {
	Body T
}

type idBodyInput[T any] struct {
	ID   string `path:"id"`
	Body T
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
}

func registerList[T any](api huma.API, e engine.Engine, opID, path, summary, perm string, list func(ctx context.Context) ([]T, error)) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodGet,
		Path:        path,
		Summary:     summary,
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*out[[]T], error) {
		if _, err := requirePermission(ctx, e, perm); err != nil {
			return nil, handleError(err)
		}
		items, err := list(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})
}

func registerGet[T any](api huma.API, e engine.Engine, opID, path, summary, perm string, get func(ctx context.Context, id string) (T, error)) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodGet,
		Path:        path,
		Summary:     summary,
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[T], error) {
		if _, err := requirePermission(ctx, e, perm); err != nil {
			return nil, handleError(err)
		}
		v, err := get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})
}

func registerCreate[Req, T any](api huma.API, e engine.Engine, opID, path, summary, perm string, create func(ctx context.Context, req Req, actorID string) (T, error)) {
	huma.Register(api, huma.Operation{
		OperationID:   opID,
		Method:        http.MethodPost,
		Path:          path,
		Summary:       summary,
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *bodyInput[Req]) (*out[T], error) {
		p, err := requirePermission(ctx, e, perm)
		if err != nil {
			return nil, handleError(err)
		}
		v, err := create(ctx, input.Body, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})
}

func registerSetActive(api huma.API, e engine.Engine, opID, path, summary, perm string, set func(ctx context.Context, id string, active bool, actorID string) error) {
	huma.Register(api, huma.Operation{
		OperationID:   opID,
		Method:        http.MethodPut,
		Path:          path,
		Summary:       summary,
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[SetActiveRequest]) (*struct{}, error) {
		p, err := requirePermission(ctx, e, perm)
		if err != nil {
			return nil, handleError(err)
		}
		if err := set(ctx, input.ID, input.Body.Active, p.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerReference(api huma.API, e engine.Engine) {
	r := e.Repo
	registerList(api, e, "list-counties", "/counties", "List counties", "catalog.read", r.ListCounties)
	registerCreate(api, e, "create-county", "/counties", "Create county", "catalog.write",
		func(ctx context.Context, req CreateCountyRequest, actorID string) (domain.County, error) {
			return e.CreateCounty(ctx, domain.County{Code: req.Code, Name: req.Name, State: req.State}, actorID)
		})

	registerList(api, e, "list-incorporations", "/incorporations", "List incorporations", "catalog.read", r.ListIncorporations)
	registerGet(api, e, "get-incorporation", "/incorporations/{id}", "Get incorporation", "catalog.read",
		func(ctx context.Context, id string) (domain.Incorporation, error) { return r.GetIncorporation(ctx, nil, id) })
	registerCreate(api, e, "create-incorporation", "/incorporations", "Create incorporation", "catalog.write",
		func(ctx context.Context, req CreateIncorporationRequest, actorID string) (domain.Incorporation, error) {
			return e.CreateIncorporation(ctx, domain.Incorporation{Code: req.Code, Name: req.Name, CountyID: req.CountyID, Address: req.Address}, actorID)
		})
	registerSetActive(api, e, "set-incorporation-active", "/incorporations/{id}/active", "Activate or deactivate an incorporation", "catalog.write", e.SetIncorporationActive)

	registerList(api, e, "list-realtors", "/realtors", "List realtors", "lead.read", r.ListRealtors)
	registerCreate(api, e, "create-realtor", "/realtors", "Create realtor", "lead.write",
		func(ctx context.Context, req CreateRealtorRequest, actorID string) (domain.Realtor, error) {
			return e.CreateRealtor(ctx, domain.Realtor{Name: req.Name, Email: req.Email, Phone: req.Phone}, actorID)
		})
	registerSetActive(api, e, "set-realtor-active", "/realtors/{id}/active", "Activate or deactivate a realtor", "lead.write", e.SetRealtorActive)

	huma.Register(api, huma.Operation{
		OperationID: "list-hoas",
		Method:      http.MethodGet,
		Path:        "/hoas",
		Summary:     "List HOAs",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		CountyID string `query:"county_id"`
	}) (*out[[]domain.HOA], error) {
		if _, err := requirePermission(ctx, e, "catalog.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := r.ListHOAs(ctx, input.CountyID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})
	registerCreate(api, e, "create-hoa", "/hoas", "Create HOA", "catalog.write",
		func(ctx context.Context, req CreateHOARequest, actorID string) (domain.HOA, error) {
			return e.CreateHOA(ctx, domain.HOA{Name: req.Name, CountyID: req.CountyID}, actorID)
		})

	registerList(api, e, "list-payment-methods", "/payment-methods", "List payment methods", "catalog.read", r.ListPaymentMethods)
	registerCreate(api, e, "create-payment-method", "/payment-methods", "Create payment method", "catalog.write",
		func(ctx context.Context, req CreatePaymentMethodRequest, actorID string) (domain.PaymentMethod, error) {
			return e.CreatePaymentMethod(ctx, domain.PaymentMethod{Code: req.Code, Name: req.Name}, actorID)
		})
	registerSetActive(api, e, "set-payment-method-active", "/payment-methods/{id}/active", "Activate or deactivate a payment method", "catalog.write", e.SetPaymentMethodActive)

	registerList(api, e, "list-cost-groups", "/cost-groups", "List cost groups", "catalog.read", r.ListCostGroups)
	registerCreate(api, e, "create-cost-group", "/cost-groups", "Create cost group", "catalog.write",
		func(ctx context.Context, req CreateCostGroupRequest, actorID string) (domain.CostGroup, error) {
			return e.CreateCostGroup(ctx, domain.CostGroup{Code: req.Code, Name: req.Name, Description: req.Description}, actorID)
		})
	huma.Register(api, huma.Operation{
		OperationID: "list-cost-subgroups",
		Method:      http.MethodGet,
		Path:        "/cost-groups/{id}/subgroups",
		Summary:     "List cost subgroups of a group",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *idPath) (*out[[]domain.CostSubGroup], error) {
		if _, err := requirePermission(ctx, e, "catalog.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := r.ListCostSubGroups(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID:   "create-cost-subgroup",
		Method:        http.MethodPost,
		Path:          "/cost-groups/{id}/subgroups",
		Summary:       "Create cost subgroup",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[CreateCostGroupRequest]) (*out[domain.CostSubGroup], error) {
		p, err := requirePermission(ctx, e, "catalog.write")
		if err != nil {
			return nil, handleError(err)
		}
		g, err := e.CreateCostSubGroup(ctx, domain.CostSubGroup{
			CostGroupID: input.ID, Code: input.Body.Code, Name: input.Body.Name, Description: input.Body.Description,
		}, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(g), nil
	})

	registerList(api, e, "list-status-choices", "/choices", "List status choices", "catalog.read", r.ListStatusChoices)
}
