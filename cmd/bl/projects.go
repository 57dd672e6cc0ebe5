package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"buildline/internal/engine"
	"buildline/internal/repo"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "A project is one lot built from a model project. Creating it copies the active phases, tasks and prerequisites of the model.",
	}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())

	prj.AddCommand(&cobra.Command{
		Use:   "tree <project-id>",
		Short: "Show phases and tasks with status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tree, err := e.GetProjectTree(ctx, args[0])
				if err != nil {
					return err
				}
				return printOut(tree, func() {
					fmt.Printf("%s %s [%s]\n", tree.Project.Code, tree.Project.Name, tree.Project.Status)
					tw := newTable("Phase", "Task", "ID", "Status", "Done %")
					for _, ph := range tree.Phases {
						tw.AppendRow(table.Row{ph.PhaseCode, "", ph.ID, ph.Status, ph.CompletionPercentage.StringFixed(2)})
						for _, t := range ph.Tasks {
							tw.AppendRow(table.Row{"", t.TaskCode, t.ID, t.Status, t.CompletionPercentage.StringFixed(2)})
						}
					}
					tw.Render()
				})
			})
		},
	})

	prj.AddCommand(&cobra.Command{
		Use:   "costs <project-id>",
		Short: "Estimated against actual cost and time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pc, err := e.ProjectCosts(ctx, args[0])
				if err != nil {
					return err
				}
				return printOut(pc, func() {
					tw := newTable("Phase", "Task", "Est. cost", "Actual cost", "Cost var %", "Time var %")
					for _, ph := range pc.Phases {
						tw.AppendRow(varianceRow(ph.PhaseCode, "", ph.Variance))
						for _, t := range ph.Tasks {
							tw.AppendRow(varianceRow("", t.TaskCode, t.Variance))
						}
					}
					tw.AppendFooter(varianceRow("TOTAL", "", pc.Variance))
					tw.Render()
				})
			})
		},
	})

	prj.AddCommand(&cobra.Command{
		Use:   "initialize <project-id>",
		Short: "Instantiate the model project when the project has no phases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inst, err := e.InitializeFromModel(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSON(inst)
			})
		},
	})

	prj.AddCommand(&cobra.Command{
		Use:   "prepare <project-id>",
		Short: "Mark phases ready to start or waiting on prerequisites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				phases, err := e.PrepareProject(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printOut(phases, func() {
					tw := newTable("Phase", "ID", "Status")
					for _, ph := range phases {
						tw.AppendRow(table.Row{ph.PhaseCode, ph.ID, ph.Status})
					}
					tw.Render()
				})
			})
		},
	})
	return prj
}

func varianceRow(phase, task string, v engine.Variance) table.Row {
	return table.Row{phase, task, v.EstimatedCost.StringFixed(2), v.ActualCost.StringFixed(2), v.CostVariance.StringFixed(2), v.TimeVariance.StringFixed(2)}
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project from a model project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, inst, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Printf("created %s (%s): %d phases, %d tasks, %d phase and %d task prerequisites\n",
						p.Code, p.ID, inst.Phases, inst.Tasks, inst.PhaseEdges, inst.TaskEdges)
					return nil
				}
				return printJSON(map[string]any{"project": p, "instantiation": inst})
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.IncorporationID, "incorporation", "", "incorporation id")
	cmd.Flags().StringVar(&opts.ModelProjectID, "model", "", "model project id")
	cmd.Flags().StringVar(&opts.Code, "code", "", "project code")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.LotNumber, "lot", "", "lot number")
	cmd.Flags().StringVar(&opts.PlannedStartDate, "start", "", "planned start date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("incorporation")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				return printOut(items, func() {
					tw := newTable("ID", "Code", "Name", "Lot", "Status")
					for _, p := range items {
						tw.AppendRow(table.Row{p.ID, p.Code, p.Name, p.LotNumber, p.Status})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.IncorporationID, "incorporation", "", "incorporation filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func phaseCmd() *cobra.Command {
	ph := &cobra.Command{Use: "phase", Short: "Drive project phases"}
	var assignTo, reason, notes string
	var passed bool

	start := &cobra.Command{Use: "start <phase-id>", Short: "Start a ready phase", Args: cobra.ExactArgs(1)}
	start.RunE = func(cmd *cobra.Command, args []string) error {
		return lifecycle("start", args[0], func(ctx context.Context, e engine.Engine) (bool, error) {
			return e.StartPhase(ctx, args[0], engine.StartOptions{ActorID: actor(), AssignTo: assignTo})
		})(cmd, args)
	}
	start.Flags().StringVar(&assignTo, "assign", "", "user id to assign")
	ph.AddCommand(start)

	simple := map[string]struct {
		short string
		fn    func(ctx context.Context, e engine.Engine, id string) (bool, error)
	}{
		"prepare":  {"Re-evaluate readiness", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.PreparePhase(ctx, id, actor()) }},
		"complete": {"Complete a phase", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.CompletePhase(ctx, id, actor()) }},
		"pause":    {"Pause a running phase", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.PausePhase(ctx, id, actor()) }},
		"resume":   {"Resume a paused phase", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.ResumePhase(ctx, id, actor()) }},
		"cancel":   {"Cancel a phase", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.CancelPhase(ctx, id, actor()) }},
	}
	for name, a := range simple {
		ph.AddCommand(idCommand(name, a.short, a.fn))
	}

	block := &cobra.Command{Use: "block <phase-id>", Short: "Block a phase", Args: cobra.ExactArgs(1)}
	block.RunE = func(cmd *cobra.Command, args []string) error {
		return lifecycle("block", args[0], func(ctx context.Context, e engine.Engine) (bool, error) {
			return e.BlockPhase(ctx, args[0], reason, actor())
		})(cmd, args)
	}
	block.Flags().StringVar(&reason, "reason", "", "why the phase is blocked")
	ph.AddCommand(block)

	inspect := &cobra.Command{Use: "inspect <phase-id>", Short: "Record an inspection result", Args: cobra.ExactArgs(1)}
	inspect.RunE = func(cmd *cobra.Command, args []string) error {
		return lifecycle("record inspection for", args[0], func(ctx context.Context, e engine.Engine) (bool, error) {
			return e.RecordInspection(ctx, args[0], passed, notes, actor())
		})(cmd, args)
	}
	inspect.Flags().BoolVar(&passed, "passed", false, "inspection passed")
	inspect.Flags().StringVar(&notes, "notes", "", "inspection notes")
	ph.AddCommand(inspect)
	return ph
}

func taskCmd() *cobra.Command {
	tk := &cobra.Command{Use: "task", Short: "Drive project tasks"}
	var assignTo, reason, pct, qty, cost string

	start := &cobra.Command{Use: "start <task-id>", Short: "Start a ready task", Args: cobra.ExactArgs(1)}
	start.RunE = func(cmd *cobra.Command, args []string) error {
		return lifecycle("start", args[0], func(ctx context.Context, e engine.Engine) (bool, error) {
			return e.StartTask(ctx, args[0], engine.StartOptions{ActorID: actor(), AssignTo: assignTo})
		})(cmd, args)
	}
	start.Flags().StringVar(&assignTo, "assign", "", "user id to assign")
	tk.AddCommand(start)

	simple := map[string]struct {
		short string
		fn    func(ctx context.Context, e engine.Engine, id string) (bool, error)
	}{
		"prepare":          {"Re-evaluate readiness", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.PrepareTask(ctx, id, actor()) }},
		"complete":         {"Complete a task", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.CompleteTask(ctx, id, actor()) }},
		"pause":            {"Pause a running task", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.PauseTask(ctx, id, actor()) }},
		"resume":           {"Resume a paused task", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.ResumeTask(ctx, id, actor()) }},
		"cancel":           {"Cancel a task", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.CancelTask(ctx, id, actor()) }},
		"request-approval": {"Submit a task for approval", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.RequestTaskApproval(ctx, id, actor()) }},
		"approve":          {"Approve a task", func(ctx context.Context, e engine.Engine, id string) (bool, error) { return e.ApproveTask(ctx, id, actor()) }},
	}
	for name, a := range simple {
		tk.AddCommand(idCommand(name, a.short, a.fn))
	}

	for _, name := range []string{"block", "reject"} {
		name := name
		c := &cobra.Command{Use: name + " <task-id>", Short: name + " a task", Args: cobra.ExactArgs(1)}
		c.RunE = func(cmd *cobra.Command, args []string) error {
			return lifecycle(name, args[0], func(ctx context.Context, e engine.Engine) (bool, error) {
				if name == "block" {
					return e.BlockTask(ctx, args[0], reason, actor())
				}
				return e.RejectTask(ctx, args[0], reason, actor())
			})(cmd, args)
		}
		c.Flags().StringVar(&reason, "reason", "", "reason")
		tk.AddCommand(c)
	}

	progress := &cobra.Command{Use: "progress <task-id>", Short: "Report completion percentage", Args: cobra.ExactArgs(1)}
	progress.RunE = func(cmd *cobra.Command, args []string) error {
		p, err := parseDecimal("percent", pct)
		if err != nil {
			return err
		}
		return lifecycle("report progress for", args[0], func(ctx context.Context, e engine.Engine) (bool, error) {
			return e.UpdateTaskProgress(ctx, args[0], p, actor())
		})(cmd, args)
	}
	progress.Flags().StringVar(&pct, "percent", "", "completion percentage below 100")
	_ = progress.MarkFlagRequired("percent")
	tk.AddCommand(progress)

	usage := &cobra.Command{Use: "usage <specification-id>", Short: "Record actual resource usage", Args: cobra.ExactArgs(1)}
	usage.RunE = func(cmd *cobra.Command, args []string) error {
		q, err := parseDecimal("quantity", qty)
		if err != nil {
			return err
		}
		c, err := parseDecimal("cost", cost)
		if err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
			spec, err := e.RecordResourceUsage(ctx, args[0], q, c, actor())
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"specification": spec, "variance": engine.SpecificationVariance(spec)})
		})
	}
	usage.Flags().StringVar(&qty, "quantity", "", "actual quantity")
	usage.Flags().StringVar(&cost, "cost", "", "actual cost")
	tk.AddCommand(usage)

	tk.AddCommand(&cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its specifications and variance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTaskProject(ctx, nil, args[0])
				if err != nil {
					return err
				}
				specs, err := e.Repo.ListTaskSpecs(ctx, nil, t.ID)
				if err != nil {
					return err
				}
				return printOut(map[string]any{"task": t, "specifications": specs, "variance": engine.TaskVariance(t)}, func() {
					fmt.Printf("%s %s [%s] %s%%\n", t.TaskCode, t.Name, t.Status, t.CompletionPercentage.StringFixed(2))
					tw := newTable("Spec", "Name", "Planned qty", "Actual qty", "Planned cost", "Actual cost", "Cost var %")
					for _, s := range specs {
						v := engine.SpecificationVariance(s)
						tw.AppendRow(table.Row{s.ID, s.Name, s.PlannedQuantity.String(), s.ActualQuantity.String(),
							s.PlannedCost.StringFixed(2), s.ActualCost.StringFixed(2), v.CostVariance.StringFixed(2)})
					}
					tw.Render()
				})
			})
		},
	})
	return tk
}

func idCommand(name, short string, fn func(ctx context.Context, e engine.Engine, id string) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lifecycle(name, args[0], func(ctx context.Context, e engine.Engine) (bool, error) {
				return fn(ctx, e, args[0])
			})(cmd, args)
		},
	}
}
