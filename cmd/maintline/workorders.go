package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"maintline/internal/app"
	"maintline/internal/domain"
	"maintline/internal/engine"
	"maintline/internal/workflow"
	maintlinesdk "maintline/sdk/go"
)

func workOrderCmd() *cobra.Command {
	wo := &cobra.Command{
		Use:     "workorder",
		Aliases: []string{"wo"},
		Short:   "Create, inspect and advance work orders",
	}
	wo.AddCommand(workOrderCreateCmd())
	wo.AddCommand(workOrderListCmd())
	wo.AddCommand(workOrderShowCmd())
	wo.AddCommand(workOrderAdvanceCmd())
	wo.AddCommand(workOrderDeleteCmd())
	wo.AddCommand(workOrderPlanCmd())
	return wo
}

func workOrderCreateCmd() *cobra.Command {
	var machine, engineCode, activity int64
	var priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work order in PLANNED",
		RunE: func(cmd *cobra.Command, args []string) error {
			var eng, act *int64
			if engineCode > 0 {
				eng = &engineCode
			}
			if activity > 0 {
				act = &activity
			}
			if c, ok := remoteClient(); ok {
				in := maintlinesdk.CreateWorkOrderInput{MachineCode: machine, EngineCode: eng, ActivityCode: act}
				if priority != "" {
					in.Priority = &priority
				}
				w, err := c.CreateWorkOrder(cmd.Context(), in)
				if err != nil {
					return err
				}
				return printJSON(w)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.CreateWorkOrder(ctx, engine.CreateWorkOrderOptions{
					MachineCode:  machine,
					EngineCode:   eng,
					ActivityCode: act,
					Priority:     domain.Priority(strings.ToUpper(priority)),
					ActorID:      actor(),
				})
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().Int64Var(&machine, "machine", 0, "machine code")
	cmd.Flags().Int64Var(&engineCode, "engine", 0, "engine code")
	cmd.Flags().Int64Var(&activity, "activity", 0, "activity code")
	cmd.Flags().StringVar(&priority, "priority", "", "URGENT, IMPORTANT or NORMAL")
	_ = cmd.MarkFlagRequired("machine")
	return cmd
}

func workOrderListCmd() *cobra.Command {
	var rangeKind, date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders of a WEEKLY, MONTHLY or ANNUAL window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c, ok := remoteClient(); ok {
				items, err := c.ListWorkOrders(cmd.Context(), strings.ToUpper(rangeKind), date)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, w := range items {
					rows = append(rows, table.Row{w.Code, w.MachineName, deref(w.ActivityName), w.State, w.Priority, w.CreatedAt.Format("2006-01-02")})
				}
				return printTable(items, workOrderHeader, rows)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts, err := a.Engine.ParseListOptions(strings.ToUpper(rangeKind), date)
				if err != nil {
					return err
				}
				items, err := a.Engine.ListWorkOrders(ctx, opts)
				if err != nil {
					return err
				}
				return printWorkOrders(items)
			})
		},
	}
	cmd.Flags().StringVar(&rangeKind, "range", "", "WEEKLY (default), MONTHLY or ANNUAL")
	cmd.Flags().StringVar(&date, "date", "", "reference day YYYY-MM-DD (default today)")
	return cmd
}

var workOrderHeader = table.Row{"Code", "Machine", "Activity", "State", "Priority", "Created"}

func printWorkOrders(items []domain.WorkOrder) error {
	rows := make([]table.Row, 0, len(items))
	for _, w := range items {
		rows = append(rows, table.Row{w.Code, w.MachineName, deref(w.ActivityName), w.State, w.Priority, w.CreatedAt.Format("2006-01-02")})
	}
	return printTable(items, workOrderHeader, rows)
}

func workOrderShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Show a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := engine.ParseCode(args[0])
			if err != nil {
				return err
			}
			if c, ok := remoteClient(); ok {
				w, err := c.GetWorkOrder(cmd.Context(), code)
				if err != nil {
					return err
				}
				return printJSON(w)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.GetWorkOrder(ctx, code)
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
}

func workOrderAdvanceCmd() *cobra.Command {
	var payloadArg string
	cmd := &cobra.Command{
		Use:   "advance <code> <state>",
		Short: "Move a work order to its next state",
		Long: `Advance sends the next state together with its payload.
DOING requires security_measures and protection_equipments; DONE accepts
end_date, observations, failure_cause, check_list_verified and stores.
--payload takes inline JSON or @file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := engine.ParseCode(args[0])
			if err != nil {
				return err
			}
			fields, err := readPayload(payloadArg)
			if err != nil {
				return err
			}
			state := strings.ToUpper(args[1])
			if c, ok := remoteClient(); ok {
				w, err := c.Advance(cmd.Context(), code, state, fields)
				if err != nil {
					return err
				}
				return printJSON(w)
			}
			fields["state"] = state
			raw, err := json.Marshal(fields)
			if err != nil {
				return err
			}
			p, err := workflow.DecodePayload(raw)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.UpdateWorkOrder(ctx, code, p, actor())
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().StringVar(&payloadArg, "payload", "", "JSON object or @path to a JSON file")
	return cmd
}

func readPayload(arg string) (map[string]any, error) {
	fields := map[string]any{}
	if arg == "" {
		return fields, nil
	}
	data := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, err
		}
		data = b
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return fields, nil
}

func workOrderDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete a work order that is not DONE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := engine.ParseCode(args[0])
			if err != nil {
				return err
			}
			if c, ok := remoteClient(); ok {
				return c.DeleteWorkOrder(cmd.Context(), code)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteWorkOrder(ctx, code, actor())
			})
		},
	}
}

func workOrderPlanCmd() *cobra.Command {
	var day string
	var onSchedule bool
	cmd := &cobra.Command{
		Use:   "plan <code>",
		Short: "Plan a work order on a day, or flag it on schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := engine.ParseCode(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				upd := engine.ScheduleUpdate{ActorID: actor()}
				if cmd.Flags().Changed("day") {
					d, err := a.Engine.ReferenceDate(day)
					if err != nil {
						return err
					}
					upd.DaySchedule = &d
				}
				if cmd.Flags().Changed("on-schedule") {
					upd.OnSchedule = &onSchedule
				}
				w, err := a.Engine.SetOnSchedule(ctx, code, upd)
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "planned day YYYY-MM-DD")
	cmd.Flags().BoolVar(&onSchedule, "on-schedule", false, "flag as on schedule (clears the day)")
	return cmd
}
