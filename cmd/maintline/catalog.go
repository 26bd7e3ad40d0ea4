package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"maintline/internal/app"
	"maintline/internal/domain"
	"maintline/internal/engine"
)

func machineCmd() *cobra.Command {
	m := &cobra.Command{Use: "machine", Short: "Manage machines, their engines and activities"}
	m.AddCommand(machineCreateCmd())
	m.AddCommand(machineListCmd())
	m.AddCommand(engineAddCmd())
	m.AddCommand(activityAddCmd())
	return m
}

func machineCreateCmd() *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.CreateMachine(ctx, args[0], location)
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "where the machine stands")
	return cmd
}

func machineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List machines with their activities and engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListMachines(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, m := range items {
					acts := make([]string, 0, len(m.Activities))
					for _, act := range m.Activities {
						acts = append(acts, fmt.Sprintf("%d:%s", act.Code, act.Name))
					}
					engs := make([]string, 0, len(m.Engines))
					for _, e := range m.Engines {
						engs = append(engs, fmt.Sprintf("%d:%s", e.Code, e.Function))
					}
					rows = append(rows, table.Row{m.Code, m.Name, strings.Join(acts, ", "), strings.Join(engs, ", ")})
				}
				return printTable(items, table.Row{"Code", "Name", "Activities", "Engines"}, rows)
			})
		},
	}
}

func engineAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-engine <machine> <function>",
		Short: "Add an engine to a machine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := engine.ParseCode(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e, err := a.Engine.CreateEngine(ctx, code, args[1])
				if err != nil {
					return err
				}
				return printJSON(e)
			})
		},
	}
}

func activityAddCmd() *cobra.Command {
	var typ string
	var frequency int
	var items []string
	cmd := &cobra.Command{
		Use:   "add-activity <machine> <name>",
		Short: "Add an activity to a machine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := engine.ParseCode(args[0])
			if err != nil {
				return err
			}
			opts := engine.CreateActivityOptions{
				MachineCode: code,
				Name:        args[1],
				Type:        domain.ActivityType(strings.ToUpper(typ)),
				CheckItems:  items,
			}
			if frequency > 0 {
				opts.FrequencyHours = &frequency
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				act, err := a.Engine.CreateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(act)
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(domain.ActivityCorrective), "PLANNED_PREVENTIVE, CORRECTIVE or INSPECTION")
	cmd.Flags().IntVar(&frequency, "frequency-hours", 0, "recurrence of preventive activities")
	cmd.Flags().StringArrayVar(&items, "check-item", nil, "check item description (INSPECTION only, repeatable)")
	return cmd
}

func storeCmd() *cobra.Command {
	s := &cobra.Command{Use: "store", Short: "Manage spare-part store lines"}
	s.AddCommand(storeCreateCmd())
	s.AddCommand(storeListCmd())
	s.AddCommand(storeDeleteCmd())
	return s
}

func storeCreateCmd() *cobra.Command {
	var machine int64
	var unit string
	var amount, minimum float64
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a store line, reviving a deleted one with the same name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.CreateStore(ctx, engine.CreateStoreOptions{
					MachineCode:   machine,
					Name:          args[0],
					Unit:          unit,
					Amount:        amount,
					MinimumAmount: minimum,
					ActorID:       actor(),
				})
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	cmd.Flags().Int64Var(&machine, "machine", 0, "machine code")
	cmd.Flags().StringVar(&unit, "unit", "unit", "unit of measure")
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount in stock")
	cmd.Flags().Float64Var(&minimum, "minimum", 0, "minimum amount before a below-minimum event")
	_ = cmd.MarkFlagRequired("machine")
	return cmd
}

func storeListCmd() *cobra.Command {
	var machine int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live store lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListStores(ctx, machine)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, s := range items {
					low := ""
					if s.Amount < s.MinimumAmount {
						low = "LOW"
					}
					rows = append(rows, table.Row{s.ID, s.MachineCode, s.Name, s.Amount, s.Unit, s.MinimumAmount, low})
				}
				return printTable(items, table.Row{"ID", "Machine", "Name", "Amount", "Unit", "Minimum", ""}, rows)
			})
		},
	}
	cmd.Flags().Int64Var(&machine, "machine", 0, "restrict to one machine")
	return cmd
}

func storeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft delete a store line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := engine.ParseCode(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteStore(ctx, id, actor())
			})
		},
	}
}
