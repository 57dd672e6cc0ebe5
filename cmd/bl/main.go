package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"buildline/internal/app"
	"buildline/internal/db"
	"buildline/internal/engine"
	"buildline/internal/migrate"
	"buildline/internal/repo"
	"buildline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Buildline CLI",
	Long: `Buildline runs a home builder's catalog, projects and sales pipeline.
- Catalog: counties, incorporations, cost groups and model projects (phases, tasks, resources and their prerequisites).
- Projects: lots instantiated from a model project; phases and tasks move through their lifecycles and roll up progress and cost.
- Sales: leads become contracts with projects and fractional owners in one step.
- Everything writes to the event log; view it with 'bl events tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BUILDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (defaults to <workspace>/buildline.yml)")
	rootCmd.PersistentFlags().String("log-mode", "", "log mode: development or production")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in events")
	for _, name := range []string{"workspace", "config", "log-mode", "json", "actor-id"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(countyCmd())
	rootCmd.AddCommand(incorporationCmd())
	rootCmd.AddCommand(paymentMethodCmd())
	rootCmd.AddCommand(costGroupCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(leadCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the API with bearer (BUILDLINE_JWT_SECRET) and X-Api-Key authentication and delivers configured webhooks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			if addr == "" {
				addr = rt.Config.Server.Addr
			}
			if basePath == "" {
				basePath = rt.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:             viper.GetString("jwt-secret"),
				AllowLegacyUserHeader: legacyHeader,
			}
			if authCfg.JWTSecret == "" && !legacyHeader {
				rt.Log.Warn("BUILDLINE_JWT_SECRET not set; only API keys will authenticate")
			}
			handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg, Logger: rt.Log})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			server.StartWebhookDispatcher(ctx, rt.Engine, rt.Log)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			rt.Log.Info("serving", "addr", addr, "base_path", basePath, "openapi", basePath+"/openapi.json", "docs", server.DocsPath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	cmd.Flags().BoolVar(&legacyHeader, "allow-user-header", false, "trust X-User-Id without credentials (local use only)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "buildline.yml sets server defaults, profiles and their permissions, status choices, conversion defaults and webhooks.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.LoadConfig(runtimeOptions())
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.LoadConfig(runtimeOptions())
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": errString(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func migrateCmd() *cobra.Command {
	m := &cobra.Command{Use: "migrate", Short: "Database schema"}
	m.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied version and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			st, err := migrate.Status(cmd.Context(), conn)
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	})
	m.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			return migrate.MigrateContext(cmd.Context(), conn)
		},
	})
	return m
}

func eventsCmd() *cobra.Command {
	ev := &cobra.Command{Use: "events", Short: "Audit event log"}
	var n int
	var f repo.EventFilter
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor")
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	ev.AddCommand(tail)
	return ev
}

// --- helpers ---

func runtimeOptions() app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		LogMode:    viper.GetString("log-mode"),
	}
}

func openRuntime(ctx context.Context) (*app.Runtime, error) {
	return app.Open(ctx, runtimeOptions())
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func actor() string {
	return viper.GetString("actor-id")
}

// lifecycle runs a boolean state transition and reports a refused one as an error.
func lifecycle(action, id string, fn func(ctx context.Context, e engine.Engine) (bool, error)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
			ok, err := fn(ctx, e)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cannot %s %s in its current status", action, id)
			}
			fmt.Printf("%s: %s ok\n", id, action)
			return nil
		})
	}
}

func parseDecimal(flag, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %q is not a decimal number", flag, raw)
	}
	return d, nil
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(headers))
	return tw
}

// printOut prints v as JSON, or renders it with render unless --json is set.
func printOut(v any, render func()) error {
	if viper.GetBool("json") || render == nil {
		return printJSON(v)
	}
	render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
