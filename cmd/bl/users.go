package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"buildline/internal/domain"
	"buildline/internal/engine"
)

func userCmd() *cobra.Command {
	uc := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Users hold one profile; profiles and their permissions come from buildline.yml.",
	}
	var u domain.User
	create := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateUser(ctx, u, actor())
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	create.Flags().StringVar(&u.ID, "id", "", "user id (generated when empty)")
	create.Flags().StringVar(&u.Email, "email", "", "email")
	create.Flags().StringVar(&u.FullName, "name", "", "full name")
	create.Flags().StringVar(&u.ProfileID, "profile", "", "profile id")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("profile")
	uc.AddCommand(create)

	uc.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printOut(items, func() {
					tw := newTable("ID", "Email", "Name", "Profile", "Active")
					for _, it := range items {
						tw.AppendRow(table.Row{it.ID, it.Email, it.FullName, it.ProfileID, it.Active})
					}
					tw.Render()
				})
			})
		},
	})

	uc.AddCommand(&cobra.Command{
		Use:   "profiles",
		Short: "List profiles with their permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProfiles(ctx)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})
	return uc
}

func apiKeyCmd() *cobra.Command {
	kc := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var userID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, userID, name, actor())
				if err != nil {
					return err
				}
				return printOut(map[string]any{"api_key": key, "key": plain}, func() {
					fmt.Printf("api key %s for %s\n%s\n", key.ID, key.UserID, plain)
				})
			})
		},
	}
	create.Flags().StringVar(&userID, "user", "", "user id")
	create.Flags().StringVar(&name, "name", "", "key name")
	_ = create.MarkFlagRequired("user")
	kc.AddCommand(create)

	var listUser string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, listUser)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	list.Flags().StringVar(&listUser, "user", "", "user filter")
	kc.AddCommand(list)

	kc.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return kc
}
