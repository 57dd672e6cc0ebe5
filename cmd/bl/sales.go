package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"buildline/internal/domain"
	"buildline/internal/engine"
	"buildline/internal/repo"
)

func leadCmd() *cobra.Command {
	ld := &cobra.Command{Use: "lead", Short: "Manage sales leads"}

	var l domain.Lead
	var value string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create lead",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseDecimal("value", value)
			if err != nil {
				return err
			}
			l.EstimatedValue = v
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateLead(ctx, l, actor())
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	create.Flags().StringVar(&l.FullName, "name", "", "full name")
	create.Flags().StringVar(&l.Email, "email", "", "email")
	create.Flags().StringVar(&l.Phone, "phone", "", "phone")
	create.Flags().StringVar(&l.Source, "source", "", "lead source choice code")
	create.Flags().StringVar(&value, "value", "", "estimated value")
	create.Flags().StringVar(&l.IncorporationID, "incorporation", "", "incorporation id")
	create.Flags().StringVar(&l.RealtorID, "realtor", "", "realtor id")
	_ = create.MarkFlagRequired("name")
	ld.AddCommand(create)

	var f repo.LeadFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List leads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListLeads(ctx, f)
				if err != nil {
					return err
				}
				return printOut(items, func() {
					tw := newTable("ID", "Name", "Status", "Value", "Contract")
					for _, it := range items {
						tw.AppendRow(table.Row{it.ID, it.FullName, it.Status, it.EstimatedValue.StringFixed(2), it.ContractID})
					}
					tw.Render()
				})
			})
		},
	}
	list.Flags().StringVar(&f.Status, "status", "", "status filter")
	list.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	ld.AddCommand(list)

	ld.AddCommand(&cobra.Command{
		Use:   "status <lead-id> <status>",
		Short: "Move a lead to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SetLeadStatus(ctx, args[0], domain.LeadStatus(strings.ToUpper(args[1])), actor())
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	})
	ld.AddCommand(leadConvertCmd())
	return ld
}

func leadConvertCmd() *cobra.Command {
	var opts engine.ConversionOptions
	var mgmt, value string
	var owners []string
	cmd := &cobra.Command{
		Use:   "convert <lead-id>",
		Short: "Convert a lead into a contract",
		Long: `Creates the contract, links the projects and adds the owners in one transaction.
Owners are given as "Full Name=percentage", repeatable. The contract value is split evenly
across the projects; the last project absorbs any rounding remainder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.LeadID = args[0]
			opts.ActorID = actor()
			opts.ManagementCompany = domain.ManagementCompany(strings.ToUpper(mgmt))
			v, err := parseDecimal("value", value)
			if err != nil {
				return err
			}
			opts.ContractValue = v
			for _, raw := range owners {
				name, pct, ok := strings.Cut(raw, "=")
				if !ok {
					return fmt.Errorf("--owner %q: want \"Full Name=percentage\"", raw)
				}
				p, err := parseDecimal("owner", pct)
				if err != nil {
					return err
				}
				opts.Owners = append(opts.Owners, engine.OwnerInput{FullName: strings.TrimSpace(name), Percentage: p})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ConvertLead(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(res); err != nil {
						return err
					}
					return res.Err()
				}
				for _, w := range res.Warnings {
					fmt.Printf("warning: %s: %s\n", w.Field, w.Message)
				}
				if !res.OK() {
					for _, is := range res.Errors {
						fmt.Printf("error: %s: %s\n", is.Field, is.Message)
					}
					return fmt.Errorf("lead %s was not converted", opts.LeadID)
				}
				fmt.Printf("contract %s (%s): %d projects, %d owners\n", res.Contract.Number, res.Contract.ID, len(res.Projects), len(res.Owners))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.IncorporationID, "incorporation", "", "incorporation id (defaults to the lead's)")
	cmd.Flags().StringVar(&opts.PaymentMethodID, "payment-method", "", "payment method id")
	cmd.Flags().StringVar(&mgmt, "management", string(domain.ManagementNone), "management company: INTERNAL, EXTERNAL or NONE")
	cmd.Flags().StringVar(&opts.RealtorID, "realtor", "", "realtor id (defaults to the lead's)")
	cmd.Flags().StringVar(&opts.HOAID, "hoa", "", "hoa id")
	cmd.Flags().StringVar(&value, "value", "", "contract value (defaults to the lead estimate)")
	cmd.Flags().StringVar(&opts.SignedDate, "signed", "", "signed date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&opts.ProjectIDs, "project", nil, "project id (repeatable)")
	cmd.Flags().StringArrayVar(&owners, "owner", nil, `owner as "Full Name=percentage" (repeatable)`)
	return cmd
}

func contractCmd() *cobra.Command {
	ct := &cobra.Command{Use: "contract", Short: "Inspect and manage contracts"}
	var incorporationID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListContracts(ctx, incorporationID)
				if err != nil {
					return err
				}
				return printOut(items, func() {
					tw := newTable("ID", "Number", "Status", "Value", "Signed")
					for _, c := range items {
						tw.AppendRow(table.Row{c.ID, c.Number, c.Status, c.ContractValue.StringFixed(2), c.SignedDate})
					}
					tw.Render()
				})
			})
		},
	}
	list.Flags().StringVar(&incorporationID, "incorporation", "", "incorporation filter")
	ct.AddCommand(list)

	ct.AddCommand(&cobra.Command{
		Use:   "show <contract-id>",
		Short: "Show a contract with projects, owners and costs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetContractDetail(ctx, args[0])
				if err != nil {
					return err
				}
				costs, err := e.ContractProjectCosts(ctx, args[0])
				if err != nil {
					return err
				}
				return printOut(map[string]any{"contract": d, "costs": costs}, func() {
					fmt.Printf("%s [%s] value %s, ownership %s%%\n", d.Number, d.Status, d.ContractValue.StringFixed(2), d.OwnershipTotal.StringFixed(2))
					tw := newTable("Project", "Agreed price", "Estimated", "Actual", "Margin")
					for _, c := range costs {
						tw.AppendRow(table.Row{c.ProjectID, c.AgreedPrice.StringFixed(2), c.EstimatedCost.StringFixed(2), c.ActualCost.StringFixed(2), c.Margin.StringFixed(2)})
					}
					tw.Render()
					ow := newTable("Owner", "Email", "%")
					for _, o := range d.Owners {
						ow.AppendRow(table.Row{o.FullName, o.Email, o.Percentage.StringFixed(2)})
					}
					ow.Render()
				})
			})
		},
	})

	ct.AddCommand(&cobra.Command{
		Use:   "status <contract-id> <status>",
		Short: "Set contract status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SetContractStatus(ctx, args[0], strings.ToUpper(args[1]), actor())
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	})

	var ownerName, ownerEmail, ownerPct string
	addOwner := &cobra.Command{
		Use:   "add-owner <contract-id>",
		Short: "Add a fractional owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := parseDecimal("percent", ownerPct)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.AddContractOwner(ctx, args[0], engine.OwnerInput{FullName: ownerName, Email: ownerEmail, Percentage: pct}, actor())
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	addOwner.Flags().StringVar(&ownerName, "name", "", "owner full name")
	addOwner.Flags().StringVar(&ownerEmail, "email", "", "owner email")
	addOwner.Flags().StringVar(&ownerPct, "percent", "", "ownership percentage")
	ct.AddCommand(addOwner)
	return ct
}
