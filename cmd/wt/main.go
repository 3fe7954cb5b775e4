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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"worktally/internal/config"
	"worktally/internal/domain"
	"worktally/internal/engine"
	"worktally/internal/events"
	"worktally/internal/migrate"
	"worktally/internal/server"
	"worktally/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "wt",
	Short: "Worktally CLI",
	Long: `Worktally tracks collaborative projects, their tasks, and the cost of the
work. Members carry individual hourly rates; completing a task records who
did the work and at what rate, and when the last task lands the project
completes with its final hours and cost in the same write.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := store.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WORKTALLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "local-user", "actor identity (member email)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func withEngine(ctx context.Context, fn func(ctx context.Context, e engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := store.OpenDB(store.DBConfig{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

// parseMember parses "email=rate" (e.g. alice@x.io=25.50).
func parseMember(spec string) (domain.Member, error) {
	email, rate, ok := strings.Cut(spec, "=")
	if !ok || email == "" {
		return domain.Member{}, fmt.Errorf("member %q: expected email=hourly-rate", spec)
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return domain.Member{}, fmt.Errorf("member %q: invalid rate: %w", spec, err)
	}
	return domain.Member{Email: email, HourlyRate: d}, nil
}

func projectCreateCmd() *cobra.Command {
	var name string
	var memberSpecs []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			members := make([]domain.Member, 0, len(memberSpecs))
			for _, spec := range memberSpecs {
				m, err := parseMember(spec)
				if err != nil {
					return err
				}
				members = append(members, m)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					Name:    name,
					Members: members,
					ActorID: viper.GetString("actor"),
				})
				if err != nil {
					return err
				}
				return printJSON(snap)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringArrayVar(&memberSpecs, "member", []string{}, "member as email=hourly-rate (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snaps, err := e.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snaps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Tasks", "Completed", "Hours", "Cost"})
				for _, snap := range snaps {
					p := snap.Project
					tw.AppendRow(table.Row{p.ID, p.Name, len(p.Tasks), p.Completed,
						p.TotalHoursWorked.String(), p.TotalCost.StringFixed(2)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its tasks and derived totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				p := snap.Project
				fmt.Printf("Project: %s (%s) v%d\n", p.Name, p.ID, snap.Version)
				fmt.Printf("Completed: %v  Hours: %s  Cost: %s\n",
					p.Completed, p.TotalHoursWorked.String(), p.TotalCost.StringFixed(2))
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Completed", "Hours", "Attributed To"})
				for _, t := range p.Tasks {
					attributed := ""
					if t.Attribution != nil {
						attributed = fmt.Sprintf("%s @ %s/h", t.Attribution.MemberEmail, t.Attribution.HourlyRate.String())
					}
					tw.AppendRow(table.Row{t.ID, t.Name, t.Completed, t.HoursWorked.String(), attributed})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project (administrative)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProject(ctx, args[0], viper.GetString("actor"))
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskCompleteCmd())
	task.AddCommand(taskListCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var projectID string
	var draft engine.TaskDraft
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, projectID, draft, viper.GetString("actor"))
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&draft.ID, "id", "", "task id (generated if omitted)")
	cmd.Flags().StringVar(&draft.Name, "name", "", "task name")
	cmd.Flags().StringVar(&draft.Description, "description", "", "description")
	cmd.Flags().StringVar(&draft.StartDate, "start", "", "start date")
	cmd.Flags().StringVar(&draft.EndDate, "end", "", "end date")
	cmd.Flags().StringArrayVar(&draft.AssignedMembers, "assign", []string{}, "assigned member email (repeatable)")
	cmd.Flags().StringArrayVar(&draft.PrerequisiteTasks, "prereq", []string{}, "prerequisite task id (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var projectID, taskID, hoursStr string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete a task, recording hours and attribution",
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := decimal.NewFromString(hoursStr)
			if err != nil {
				return domain.ErrInvalidHours
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, applied, err := e.CompleteTask(ctx, projectID, taskID, hours, viper.GetString("actor"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task": applied, "project": snap})
				}
				fmt.Printf("Completed %s (%s hours)\n", applied.ID, applied.HoursWorked.String())
				if snap.Project.Completed {
					fmt.Printf("Project complete: %s hours, cost %s\n",
						snap.Project.TotalHoursWorked.String(), snap.Project.TotalCost.StringFixed(2))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().StringVar(&hoursStr, "hours", "", "hours worked")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("hours")
	return cmd
}

func taskListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap.Project.Tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Completed", "Hours", "Prereqs"})
				for _, t := range snap.Project.Tasks {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Completed, t.HoursWorked.String(),
						strings.Join(t.PrerequisiteTasks, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <project-id>",
		Short: "Stream reconciled project updates until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
				watch, err := e.SubscribeToProject(ctx, args[0], func(u engine.ProjectUpdate) {
					p := u.Snapshot.Project
					fmt.Printf("v%d  completed=%v  hours=%s  cost=%s\n",
						u.Snapshot.Version, p.Completed,
						u.Totals.HoursWorked.String(), u.Totals.Cost.StringFixed(2))
				})
				if err != nil {
					return err
				}
				defer watch.Cancel()
				<-ctx.Done()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	var projectID, evtType string
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent engine events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records, err := events.Latest(ctx, e.DB, limit, projectID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor"})
				for _, r := range records {
					tw.AppendRow(table.Row{r.TS, r.Type, r.EntityID, r.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "filter by project id")
	cmd.Flags().StringVar(&evtType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&limit, "limit", 50, "max events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
				handler, err := server.New(server.Config{
					Engine: e,
					Auth: server.AuthConfig{
						JWTSecret:              e.Config.Server.JWTSecret,
						AllowLegacyActorHeader: e.Config.Server.AllowLegacyActorHeader,
					},
				})
				if err != nil {
					return err
				}
				hooks := server.StartSnapshotWebhooks(e, e.Config.Webhooks)
				defer hooks.Cancel()
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					srv.Shutdown(context.Background())
				}()
				fmt.Printf("listening on %s\n", addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
