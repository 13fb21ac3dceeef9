package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caregate/internal/domain"
	"caregate/internal/engine"
	"caregate/internal/repo"
)

func caseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "case",
		Short: "Manage cases",
		Long:  "A case is one client's care record. Cases stay active until closed through 'cg closure close'; 'cg case reopen' brings a closed case back.",
	}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseUpdateCmd())
	c.AddCommand(caseReopenCmd())
	c.AddCommand(caseDeleteCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var opts engine.CaseCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCase(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "case id (optional, generated if omitted)")
	cmd.Flags().StringVar(&opts.ClientName, "client", "", "client name")
	cmd.Flags().StringVar(&opts.AttorneyName, "attorney", "", "attorney name")
	cmd.Flags().StringVar(&opts.CaseType, "type", "", "case type")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func caseListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListCases(ctx, repo.CaseFilters{Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Client", "Attorney", "Type", "Status", "Updated"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.ClientName, c.AttorneyName, c.CaseType, c.Status, c.UpdatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|closed)")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func caseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show a case with its flags, tasks, risk and assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				state, err := e.LoadState(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(state)
			})
		},
	}
}

func caseUpdateCmd() *cobra.Command {
	var client, attorney, caseType string
	cmd := &cobra.Command{
		Use:   "update <case-id>",
		Short: "Update case details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.CaseUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("client") {
				opts.ClientName = &client
			}
			if cmd.Flags().Changed("attorney") {
				opts.AttorneyName = &attorney
			}
			if cmd.Flags().Changed("type") {
				opts.CaseType = &caseType
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateCase(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "client name")
	cmd.Flags().StringVar(&attorney, "attorney", "", "attorney name")
	cmd.Flags().StringVar(&caseType, "type", "", "case type")
	return cmd
}

func caseReopenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <case-id>",
		Short: "Reopen a closed case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateCaseStatus(ctx, args[0], domain.CaseActive, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func caseDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <case-id>",
		Short: "Delete a case and everything recorded for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteCase(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func flagCmd() *cobra.Command {
	f := &cobra.Command{
		Use:   "flag",
		Short: "Manage clinical and SDOH flags",
		Long:  "Flags record concerns on a case. Open High or Critical flags block report release; SDOH flags also feed vigilance scoring.",
	}
	f.AddCommand(flagAddCmd())
	f.AddCommand(flagListCmd())
	f.AddCommand(flagResolveCmd())
	return f
}

func flagAddCmd() *cobra.Command {
	var opts engine.FlagCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a flag to a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.AddFlag(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "flag id (optional)")
	cmd.Flags().StringVar(&opts.CaseID, "case", "", "case id")
	cmd.Flags().StringVar(&opts.Type, "type", "Clinical", "flag type (Clinical, SDOH, ...)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "short label")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "Low|Moderate|High|Critical")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("severity")
	return cmd
}

func flagListCmd() *cobra.Command {
	var caseID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List flags on a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListFlags(ctx, caseID, domain.FlagStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Type", "Label", "Severity", "Status"})
				for _, f := range items {
					tw.AppendRow(table.Row{f.ID, f.Type, f.Label, f.Severity, f.Status})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (Open|Closed)")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func flagResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <flag-id>",
		Short: "Resolve an open flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.ResolveFlag(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "task",
		Short: "Manage RN CM tasks",
		Long:  "Tasks move Open -> Completed or Cancelled and may be reopened. An open task past its due date blocks report release.",
	}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskStatusCmd("done", "Complete a task", domain.TaskCompleted))
	t.AddCommand(taskStatusCmd("cancel", "Cancel a task", domain.TaskCancelled))
	t.AddCommand(taskStatusCmd("reopen", "Reopen a task", domain.TaskOpen))
	return t
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&opts.CaseID, "case", "", "case id")
	cmd.Flags().StringVar(&opts.Type, "type", "general", "task type")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.AssignedTo, "assignee", "", "assignee")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var caseID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks on a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTasks(ctx, caseID, domain.TaskStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Due", "Assignee"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Type, t.Status, deref(t.DueDate), deref(t.AssignedTo)})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (Open|Completed|Cancelled)")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func taskStatusCmd(use, short string, status domain.TaskStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetTaskStatus(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func riskCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "risk",
		Short: "Record or show the case risk summary",
	}
	r.AddCommand(riskSetCmd())
	r.AddCommand(riskShowCmd())
	return r
}

func riskSetCmd() *cobra.Command {
	var caseID, rag, vigilance, source string
	var vitality float64
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Record a risk summary (vitality, RAG status, vigilance category)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rs := domain.RiskSummary{Source: source}
			if cmd.Flags().Changed("vitality") {
				rs.VitalityScore = &vitality
			}
			if rag != "" {
				v, err := domain.ParseRAGStatus(rag)
				if err != nil {
					return err
				}
				rs.RAGStatus = v
			}
			if vigilance != "" {
				v, err := domain.ParseVigilanceCategory(vigilance)
				if err != nil {
					return err
				}
				rs.VigilanceRiskCategory = v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				saved, err := e.RecordRisk(ctx, caseID, rs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	cmd.Flags().Float64Var(&vitality, "vitality", 0, "vitality score 0-10")
	cmd.Flags().StringVar(&rag, "rag", "", "Red|Amber|Green")
	cmd.Flags().StringVar(&vigilance, "vigilance", "", "Low|Moderate|High")
	cmd.Flags().StringVar(&source, "source", "manual", "where the summary came from")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func riskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show the recorded risk summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rs, err := e.GetRisk(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rs)
			})
		},
	}
}

func assessCmd() *cobra.Command {
	var caseID, filePath string
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Record a 4Ps and vitality assessment from a JSON file",
		Long:  "Reads an assessment document ({\"four_ps\":{...},\"vitality\":{...},\"client_voice\":\"...\",\"goals\":[...]}) and stores it as the latest assessment for the case. Use '-' to read stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if filePath == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(filePath)
			}
			if err != nil {
				return err
			}
			var a domain.Assessment
			if err := json.Unmarshal(data, &a); err != nil {
				return fmt.Errorf("parse assessment: %w", err)
			}
			a.CaseID = caseID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				saved, err := e.RecordAssessment(ctx, a, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	cmd.Flags().StringVar(&filePath, "file", "", "assessment JSON file")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
