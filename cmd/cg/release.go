package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caregate/internal/domain"
	"caregate/internal/engine"
	"caregate/internal/notify"
)

func lockdownCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "lockdown",
		Short: "Evaluate the release gate",
		Long:  "The lockdown runs ten ordered rules over a case: open Critical/High flags, unresolved SDOH vigilance, overdue tasks and Red vitality block release; Amber vitality, open tasks and missing attestations warn.",
	}
	l.AddCommand(lockdownEvalCmd())
	l.AddCommand(lockdownRunsCmd())
	l.AddCommand(lockdownRecentCmd())
	return l
}

func lockdownEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <case-id>",
		Short: "Evaluate and store a lockdown run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				run, err := e.EvaluateLockdown(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(run)
				}
				printRun(run)
				return nil
			})
		},
	}
}

func lockdownRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs <case-id>",
		Short: "List stored lockdown runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				runs, err := e.ListLockdownRuns(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Run", "Evaluated", "Can release", "Risk", "Issues", "Actor"})
				for _, r := range runs {
					tw.AppendRow(table.Row{r.ID, r.EvaluatedOn, r.Result.CanRelease, r.Result.RiskLevel, len(r.Result.Issues), r.ActorID})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs")
	return cmd
}

func lockdownRecentCmd() *cobra.Command {
	var count int64
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the latest runs published to the Redis stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stream, ok := e.Notifier.(*notify.RedisStream)
				if !ok {
					return errors.New("no run stream configured (set notify.redis.addr)")
				}
				runs, err := stream.Recent(ctx, count)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Run", "Case", "Evaluated", "Can release", "Risk"})
				for _, r := range runs {
					tw.AppendRow(table.Row{r.ID, r.CaseID, r.EvaluatedOn, r.Result.CanRelease, colorRisk(r.Result.RiskLevel)})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&count, "count", 20, "max entries")
	return cmd
}

func releaseCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "release",
		Short: "Release external reports",
	}
	r.AddCommand(releaseCreateCmd())
	r.AddCommand(releaseListCmd())
	return r
}

func releaseCreateCmd() *cobra.Command {
	var opts engine.ReleaseOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Release a report if the lockdown allows it",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rel, err := e.ReleaseReport(ctx, opts)
				var blocked *engine.ReleaseBlockedError
				if errors.As(err, &blocked) && !viper.GetBool("json") {
					fmt.Fprintf(os.Stderr, "release refused (run %s):\n", blocked.RunID)
					for _, issue := range blocked.Issues {
						fmt.Fprintf(os.Stderr, "  [%s] %s\n", issue.Code, issue.Message)
					}
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(rel)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CaseID, "case", "", "case id")
	cmd.Flags().StringVar(&opts.ReportKind, "kind", "attorney_summary", "report kind")
	cmd.Flags().BoolVar(&opts.Override, "override", false, "release despite BLOCK issues (requires release.allow_override)")
	cmd.Flags().StringVar(&opts.OverrideReason, "reason", "", "override reason")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func releaseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <case-id>",
		Short: "List releases for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListReleases(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Kind", "Run", "Overridden", "Actor", "Created"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.ReportKind, r.RunID, r.Overridden, r.ActorID, r.CreatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func severityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "severity <case-id>",
		Short: "Assess case severity level (1-4)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sev, err := e.AssessSeverity(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sev)
				}
				fmt.Println(sev.Label)
				for _, r := range sev.Rationale {
					fmt.Printf("  - %s\n", r)
				}
				return nil
			})
		},
	}
}

func closureCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "closure",
		Short: "Closure recommendation and case closing",
	}
	c.AddCommand(closureRecommendCmd())
	c.AddCommand(closureCloseCmd())
	return c
}

func closureRecommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <case-id>",
		Short: "Recommend whether the case may close",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.RecommendClosure(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
}

func closureCloseCmd() *cobra.Command {
	var opts engine.CloseOptions
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CloseCase(ctx, opts)
				var blocked *engine.ClosureBlockedError
				if errors.As(err, &blocked) && !viper.GetBool("json") {
					for _, r := range blocked.Recommendation.Reasons {
						fmt.Fprintf(os.Stderr, "  - %s\n", r)
					}
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CaseID, "case", "", "case id")
	cmd.Flags().StringVar(&opts.Type, "type", "", "RN_CM_TASKS_COMPLETE_PENDING_SETTLEMENT|FINALIZED_SETTLEMENT|ADMINISTRATIVE_CLOSURE")
	cmd.Flags().StringVar(&opts.AdminReason, "admin-reason", "", "reason for an administrative closure")
	cmd.Flags().StringVar(&opts.Note, "note", "", "closure note")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "close even if the recommendation says not to")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "audit",
		Short: "Supervisor quick audit",
	}
	a.AddCommand(auditShowCmd())
	a.AddCommand(auditExportCmd())
	return a
}

func auditShowCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "show [case-id]",
		Short: "Show audit snapshots for one case or all cases",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(args) == 1 {
					snap, err := e.AuditSnapshot(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSONOrTable(snap)
				}
				snaps, err := e.AuditSnapshots(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snaps)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Case", "Client", "Status", "Risk", "Can release", "Severity", "Can close"})
				for _, s := range snaps {
					tw.AppendRow(table.Row{
						s.Case.ID,
						s.Case.ClientName,
						s.Case.Status,
						colorRisk(s.Lockdown.RiskLevel),
						s.Lockdown.CanRelease,
						s.Severity.Label,
						s.Closure.CanClose,
					})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by case status (active|closed)")
	return cmd
}

func auditExportCmd() *cobra.Command {
	var status, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit snapshots to an .xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.ExportAudit(ctx, status)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by case status (active|closed)")
	cmd.Flags().StringVarP(&out, "out", "o", "caregate-audit.xlsx", "output file")
	return cmd
}

func printRun(run domain.LockdownRun) {
	verdict := text.FgGreen.Sprint("release allowed")
	if !run.Result.CanRelease {
		verdict = text.FgRed.Sprint("release blocked")
	}
	fmt.Printf("Case %s on %s: %s (risk %s, run %s)\n", run.CaseID, run.EvaluatedOn, verdict, colorRisk(run.Result.RiskLevel), run.ID)
	if len(run.Result.Issues) == 0 {
		return
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Severity", "Code", "Message"})
	for _, issue := range run.Result.Issues {
		tw.AppendRow(table.Row{issue.Severity, issue.Code, issue.Message})
	}
	fmt.Println(tw.Render())
}

func colorRisk(level domain.RiskLevel) string {
	switch level {
	case domain.RiskHigh:
		return text.FgRed.Sprint(level)
	case domain.RiskModerate:
		return text.FgYellow.Sprint(level)
	default:
		return text.FgGreen.Sprint(level)
	}
}
