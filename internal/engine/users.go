package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/mail"
	"sort"

	"buildline/internal/config"
	"buildline/internal/domain"
	"buildline/internal/events"
	"buildline/internal/repo"
)

// SyncProfiles writes the permission catalog and the configured profiles. Profiles
// missing from the config are left in place.
func (e Engine) SyncProfiles(ctx context.Context, cfg *config.Config) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range config.Permissions {
			if err := e.Repo.InsertPermission(ctx, tx, p, ""); err != nil {
				return err
			}
		}
		ids := make([]string, 0, len(cfg.Profiles))
		for id := range cfg.Profiles {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			p := cfg.Profiles[id]
			if err := e.Repo.UpsertProfile(ctx, tx, id, p.Description); err != nil {
				return fmt.Errorf("profile %s: %w", id, err)
			}
			if err := e.Repo.SetProfilePermissions(ctx, tx, id, p.Permissions); err != nil {
				return fmt.Errorf("profile %s: %w", id, err)
			}
		}
		return nil
	})
}

// SyncChoices upserts the configured status choices in config order.
func (e Engine) SyncChoices(ctx context.Context, cfg *config.Config) error {
	return e.withTx(ctx, func(tx *sql.Tx) error {
		for dom, entries := range cfg.Choices {
			for i, c := range entries {
				label := c.Label
				if label == "" {
					label = c.Code
				}
				if err := e.Repo.UpsertStatusChoice(ctx, tx, domain.StatusChoice{
					Domain: dom, Code: c.Code, Label: label, SortOrder: i + 1, Active: c.IsActive(),
				}); err != nil {
					return fmt.Errorf("choice %s/%s: %w", dom, c.Code, err)
				}
			}
		}
		return nil
	})
}

func (e Engine) CreateUser(ctx context.Context, u domain.User, actorID string) (domain.User, error) {
	v := &ValidationError{}
	required(v, "full_name", u.FullName)
	required(v, "profile_id", u.ProfileID)
	if _, err := mail.ParseAddress(u.Email); err != nil {
		v.Add("email", "invalid email address")
	}
	if err := v.Err(); err != nil {
		return u, err
	}
	if u.ID == "" {
		u.ID = newID()
	}
	u.Active = true
	u.CreatedAt = e.ts()
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetProfile(ctx, tx, u.ProfileID); err != nil {
			return lookup("profile_id", "profile", err)
		}
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "user.created", EntityKind: "user", EntityID: u.ID, ActorID: actorID,
			Payload: events.Payload{"email": u.Email, "profile_id": u.ProfileID}})
	})
	return u, err
}

// UpdateUser changes a user's name, profile or active flag.
func (e Engine) UpdateUser(ctx context.Context, u domain.User, actorID string) (domain.User, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()
	cur, err := e.Repo.GetUser(ctx, tx, u.ID)
	if err != nil {
		return u, err
	}
	if u.FullName != "" {
		cur.FullName = u.FullName
	}
	if u.ProfileID != "" && u.ProfileID != cur.ProfileID {
		if _, err := e.Repo.GetProfile(ctx, tx, u.ProfileID); err != nil {
			return u, lookup("profile_id", "profile", err)
		}
		cur.ProfileID = u.ProfileID
	}
	cur.Active = u.Active
	if err := e.Repo.UpdateUser(ctx, tx, cur); err != nil {
		return u, err
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: "user.updated", EntityKind: "user", EntityID: cur.ID, ActorID: actorID,
		Payload: events.Payload{"profile_id": cur.ProfileID, "active": cur.Active}}); err != nil {
		return u, err
	}
	if err := tx.Commit(); err != nil {
		return u, err
	}
	return cur, nil
}

// CreateAPIKey issues a key for a user. The plain key is returned once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (domain.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "bl_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        newID(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.ts(),
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetUser(ctx, tx, userID); err != nil {
			return lookup("user_id", "user", err)
		}
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{Type: "apikey.created", EntityKind: "api_key", EntityID: key.ID, ActorID: actorID,
			Payload: events.Payload{"user_id": userID, "name": name}})
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}
