package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"buildline/internal/domain"
	"buildline/internal/engine"
	"buildline/internal/repo"
)

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user and effective permissions",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*out[MeResponse], error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, nil, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		perms := p.Permissions
		if len(perms) == 0 {
			perms, err = e.Auth.UserPermissions(ctx, nil, p.UserID)
			if err != nil {
				return nil, handleError(err)
			}
		}
		return reply(MeResponse{User: u, Permissions: nonNilSlice(perms)}), nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	registerList(api, e, "list-users", "/users", "List users", "user.admin", e.Repo.ListUsers)
	registerList(api, e, "list-profiles", "/profiles", "List profiles with their permissions", "user.admin", e.Repo.ListProfiles)
	registerCreate(api, e, "create-user", "/users", "Create user", "user.admin",
		func(ctx context.Context, req CreateUserRequest, actorID string) (domain.User, error) {
			return e.CreateUser(ctx, domain.User{Email: req.Email, FullName: req.FullName, ProfileID: req.ProfileID}, actorID)
		})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{id}",
		Summary:     "Change a user's name, profile or active flag",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idBodyInput[UpdateUserRequest]) (*out[domain.User], error) {
		p, err := requirePermission(ctx, e, "user.admin")
		if err != nil {
			return nil, handleError(err)
		}
		cur, err := e.Repo.GetUser(ctx, nil, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		active := cur.Active
		if input.Body.Active != nil {
			active = *input.Body.Active
		}
		u, err := e.UpdateUser(ctx, domain.User{ID: input.ID, FullName: input.Body.FullName, ProfileID: input.Body.ProfileID, Active: active}, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{id}/api-keys",
		Summary:       "Issue an API key",
		Description:   "The plain key is only returned by this call.",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *idBodyInput[CreateAPIKeyRequest]) (*out[APIKeyCreatedResponse], error) {
		p, err := requirePermission(ctx, e, "user.admin")
		if err != nil {
			return nil, handleError(err)
		}
		key, plain, err := e.CreateAPIKey(ctx, input.ID, input.Body.Name, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(APIKeyCreatedResponse{APIKey: key, Key: plain}), nil
	})
	registerGet(api, e, "list-api-keys", "/users/{id}/api-keys", "List a user's API keys", "user.admin", e.Repo.ListAPIKeys)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if _, err := requirePermission(ctx, e, "user.admin"); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit events, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor" doc:"id of the last event of the previous page"`
	}) (*out[PaginatedEvents], error) {
		if _, err := requirePermission(ctx, e, "events.read"); err != nil {
			return nil, handleError(err)
		}
		var cursor int64
		if input.Cursor != "" {
			n, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || n <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursor = n
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.LatestEvents(ctx, limit+1, cursor, repo.EventFilter{
			ProjectID: input.ProjectID, Type: input.Type, EntityKind: input.EntityKind, EntityID: input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := PaginatedEvents{Items: nonNilSlice(items)}
		if len(items) > limit {
			res.Items = items[:limit]
			res.NextCursor = strconv.FormatInt(res.Items[limit-1].ID, 10)
		}
		return reply(res), nil
	})
}
