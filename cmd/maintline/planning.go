package main

import (
	"context"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"maintline/internal/app"
	"maintline/internal/domain"
	"maintline/internal/engine"
	"maintline/internal/repo"
)

func scheduleCmd() *cobra.Command {
	var date string
	var strict bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the weekly schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c, ok := remoteClient(); ok {
				items, err := c.Schedule(cmd.Context(), date, strict)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, w := range items {
					rows = append(rows, table.Row{w.Code, w.MachineName, deref(w.ActivityName), w.State, day(w.DaySchedule), deref(w.OnSchedule)})
				}
				return printTable(items, scheduleHeader, rows)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ref, err := a.Engine.ReferenceDate(date)
				if err != nil {
					return err
				}
				items, err := a.Engine.GetSchedule(ctx, ref, strict)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, w := range items {
					rows = append(rows, table.Row{w.Code, w.MachineName, deref(w.ActivityName), w.State, day(w.DaySchedule), deref(w.OnSchedule)})
				}
				return printTable(items, scheduleHeader, rows)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reference day YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&strict, "strict", false, "only orders planned on a day of the week")
	return cmd
}

var scheduleHeader = table.Row{"Code", "Machine", "Activity", "State", "Day", "On schedule"}

func day(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func indicatorsCmd() *cobra.Command {
	var date string
	var strict bool
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "Hours per machine over the month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ref, err := a.Engine.ReferenceDate(date)
				if err != nil {
					return err
				}
				items, err := a.Engine.GetIndicators(ctx, ref, strict)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, ind := range items {
					rows = append(rows, table.Row{ind.MachineCode, ind.MachineName, ind.Hours, len(ind.WorkOrders)})
				}
				return printTable(items, table.Row{"Machine", "Name", "Hours", "Work orders"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reference day YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&strict, "strict", false, "only orders planned on a day of the month")
	return cmd
}

func draftCmd() *cobra.Command {
	d := &cobra.Command{Use: "draft", Short: "Review planned follow-ups of preventive work"}
	d.AddCommand(draftListCmd())
	d.AddCommand(draftPromoteCmd())
	d.AddCommand(draftDeleteCmd())
	return d
}

func draftListCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Drafts planned in the week of --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ref, err := a.Engine.ReferenceDate(date)
				if err != nil {
					return err
				}
				items, err := a.Engine.ListDrafts(ctx, ref)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, d := range items {
					rows = append(rows, table.Row{d.Code, d.PlannedDay.Format("2006-01-02"), d.WorkOrderCode, d.MachineName, d.ActivityName, d.Priority})
				}
				return printTable(items, table.Row{"Code", "Planned", "From", "Machine", "Activity", "Priority"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reference day YYYY-MM-DD (default today)")
	return cmd
}

func draftPromoteCmd() *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "promote <code>",
		Short: "Turn a draft into a PLANNED work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := engine.ParseCode(args[0])
			if err != nil {
				return err
			}
			if c, ok := remoteClient(); ok {
				w, err := c.PromoteDraft(cmd.Context(), code, strings.ToUpper(priority))
				if err != nil {
					return err
				}
				return printJSON(w)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.PromoteDraft(ctx, code, domain.Priority(strings.ToUpper(priority)), actor())
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "override the priority of the originating order")
	return cmd
}

func draftDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>",
		Short: "Discard a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := engine.ParseCode(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteDraft(ctx, code, actor())
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every mutation appends an event: creations, transitions, schedule changes, drafts and stock movements.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var filter repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, n, filter)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(events))
				for _, evt := range events {
					rows = append(rows, table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID})
				}
				return printTable(events, table.Row{"ID", "TS", "Type", "Kind", "Entity", "Actor"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&filter.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&filter.EntityKind, "entity-kind", "", "work_order, draft or store")
	cmd.Flags().StringVar(&filter.EntityID, "entity-id", "", "entity id")
	return cmd
}
