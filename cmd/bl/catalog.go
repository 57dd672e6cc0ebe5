package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"buildline/internal/catalogfile"
	"buildline/internal/domain"
	"buildline/internal/engine"
)

func countyCmd() *cobra.Command {
	c := &cobra.Command{Use: "county", Short: "Manage counties"}
	var county domain.County
	create := &cobra.Command{
		Use:   "create",
		Short: "Create county",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateCounty(ctx, county, actor())
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	create.Flags().StringVar(&county.Code, "code", "", "county code")
	create.Flags().StringVar(&county.Name, "name", "", "county name")
	create.Flags().StringVar(&county.State, "state", "", "state")
	_ = create.MarkFlagRequired("code")
	_ = create.MarkFlagRequired("name")
	c.AddCommand(create)
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List counties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCounties(ctx)
				if err != nil {
					return err
				}
				return printOut(items, func() {
					tw := newTable("ID", "Code", "Name", "State")
					for _, it := range items {
						tw.AppendRow(table.Row{it.ID, it.Code, it.Name, it.State})
					}
					tw.Render()
				})
			})
		},
	})
	return c
}

func incorporationCmd() *cobra.Command {
	c := &cobra.Command{Use: "incorporation", Short: "Manage incorporations"}
	var inc domain.Incorporation
	create := &cobra.Command{
		Use:   "create",
		Short: "Create incorporation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateIncorporation(ctx, inc, actor())
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	create.Flags().StringVar(&inc.Code, "code", "", "incorporation code")
	create.Flags().StringVar(&inc.Name, "name", "", "name")
	create.Flags().StringVar(&inc.CountyID, "county", "", "county id")
	create.Flags().StringVar(&inc.Address, "address", "", "address")
	_ = create.MarkFlagRequired("code")
	_ = create.MarkFlagRequired("county")
	c.AddCommand(create)
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List incorporations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListIncorporations(ctx)
				if err != nil {
					return err
				}
				return printOut(items, func() {
					tw := newTable("ID", "Code", "Name", "County", "Active")
					for _, it := range items {
						tw.AppendRow(table.Row{it.ID, it.Code, it.Name, it.CountyID, it.Active})
					}
					tw.Render()
				})
			})
		},
	})
	return c
}

func paymentMethodCmd() *cobra.Command {
	c := &cobra.Command{Use: "payment-method", Short: "Manage payment methods"}
	var pm domain.PaymentMethod
	create := &cobra.Command{
		Use:   "create",
		Short: "Create payment method",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreatePaymentMethod(ctx, pm, actor())
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	create.Flags().StringVar(&pm.Code, "code", "", "code")
	create.Flags().StringVar(&pm.Name, "name", "", "name")
	_ = create.MarkFlagRequired("code")
	c.AddCommand(create)
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List payment methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListPaymentMethods(ctx)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})
	return c
}

func costGroupCmd() *cobra.Command {
	c := &cobra.Command{Use: "cost-group", Short: "Manage cost groups and subgroups"}
	var g domain.CostGroup
	create := &cobra.Command{
		Use:   "create",
		Short: "Create cost group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateCostGroup(ctx, g, actor())
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	create.Flags().StringVar(&g.Code, "code", "", "code")
	create.Flags().StringVar(&g.Name, "name", "", "name")
	create.Flags().StringVar(&g.Description, "description", "", "description")
	c.AddCommand(create)

	var sg domain.CostSubGroup
	sub := &cobra.Command{
		Use:   "add-subgroup <group-id>",
		Short: "Create cost subgroup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sg.CostGroupID = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateCostSubGroup(ctx, sg, actor())
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	sub.Flags().StringVar(&sg.Code, "code", "", "code")
	sub.Flags().StringVar(&sg.Name, "name", "", "name")
	c.AddCommand(sub)
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cost groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCostGroups(ctx)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	})
	return c
}

func templateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "template",
		Short: "Model projects",
		Long:  "A template file describes one model project with its phases, tasks, resources and prerequisites by code.",
	}
	c.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import a model project from a template file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := catalogfile.Load(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tree, err := e.ImportTemplate(ctx, doc, actor())
				if err != nil {
					return err
				}
				return printOut(tree, func() { renderTemplate(tree) })
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check a template file without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := catalogfile.Load(args[0])
			if err != nil {
				return err
			}
			if err := doc.Validate(); err != nil {
				return err
			}
			fmt.Println("template OK")
			return nil
		},
	})
	var countyID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List model projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListModelProjects(ctx, countyID)
				if err != nil {
					return err
				}
				return printOut(items, func() {
					tw := newTable("ID", "Code", "Name", "Version", "County", "Active")
					for _, it := range items {
						tw.AppendRow(table.Row{it.ID, it.Code, it.Name, it.Version, it.CountyID, it.Active})
					}
					tw.Render()
				})
			})
		},
	}
	list.Flags().StringVar(&countyID, "county", "", "county filter")
	c.AddCommand(list)
	c.AddCommand(&cobra.Command{
		Use:   "show <model-project-id>",
		Short: "Show a model project tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tree, err := e.GetTemplateTree(ctx, args[0])
				if err != nil {
					return err
				}
				return printOut(tree, func() { renderTemplate(tree) })
			})
		},
	})
	return c
}

func renderTemplate(tree engine.TemplateTree) {
	fmt.Printf("%s %s (%s)\n", tree.Model.Code, tree.Model.Name, tree.Model.ID)
	tw := newTable("Phase", "Task", "Est. hours", "Est. cost", "Resources", "Active")
	for _, ph := range tree.Phases {
		tw.AppendRow(table.Row{ph.PhaseCode, "", "", "", "", ph.Active})
		for _, t := range ph.Tasks {
			tw.AppendRow(table.Row{"", t.TaskCode, t.EstimatedDurationHours.String(), t.EstimatedCost.StringFixed(2), len(t.Resources), t.Active})
		}
	}
	tw.Render()
}
