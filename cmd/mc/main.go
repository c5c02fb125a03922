package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missionctl/internal/app"
	"missionctl/internal/db"
	"missionctl/internal/domain"
	"missionctl/internal/engine"
	"missionctl/internal/migrate"
	"missionctl/internal/repo"
	"missionctl/internal/server"
	"missionctl/internal/stats"
)

var rootCmd = &cobra.Command{
	Use:   "mc",
	Short: "Missionctl CLI",
	Long: `Missionctl tracks automation missions through a strict lifecycle with an
append-only activity ledger.
- Workspace: the .missionctl directory holding the database and missionctl.yml.
- Mission: one tracked job with status pending -> initializing -> running <-> paused
  and terminal states completed, failed, cancelled.
- Plan steps: a hierarchical breakdown of the mission; deleting a step removes
  its whole subtree.
- Activities: the ledger of everything that happened; entries are never edited
  or removed, view with 'mc activity list'.
- Documents: metadata for files a mission produced or consumed; verification is
  recorded in the ledger every time it happens.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
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
	viper.SetEnvPrefix("MISSIONCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(stepCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(docCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{Use: "mission", Short: "Manage missions"}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionUpdateCmd())
	m.AddCommand(missionDeleteCmd())
	m.AddCommand(missionTransitionCmd("start", "Start a mission", func(ctx context.Context, e engine.Engine, id string) (domain.Mission, error) {
		return e.StartMission(ctx, id, userID())
	}))
	m.AddCommand(missionTransitionCmd("pause", "Pause a running mission", func(ctx context.Context, e engine.Engine, id string) (domain.Mission, error) {
		return e.PauseMission(ctx, id, userID())
	}))
	m.AddCommand(missionTransitionCmd("resume", "Resume a paused mission", func(ctx context.Context, e engine.Engine, id string) (domain.Mission, error) {
		return e.ResumeMission(ctx, id, userID())
	}))
	m.AddCommand(missionTransitionCmd("complete", "Complete a running mission", func(ctx context.Context, e engine.Engine, id string) (domain.Mission, error) {
		return e.CompleteMission(ctx, id, userID())
	}))
	m.AddCommand(missionTransitionCmd("cancel", "Cancel a mission", func(ctx context.Context, e engine.Engine, id string) (domain.Mission, error) {
		return e.CancelMission(ctx, id, userID())
	}))
	m.AddCommand(missionFailCmd())
	return m
}

func missionCreateCmd() *cobra.Command {
	var title, description, missionType, priority string
	var estimated int64
	var configJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.MissionCreateOptions{
					UserID:      userID(),
					Title:       title,
					Description: description,
					Type:        missionType,
					Priority:    priority,
				}
				if cmd.Flags().Changed("estimated-seconds") {
					opts.EstimatedSeconds = &estimated
				}
				if configJSON != "" {
					var cfg map[string]any
					if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
						return fmt.Errorf("invalid --config: %w", err)
					}
					opts.Config = cfg
				}
				m, err := e.CreateMission(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&missionType, "type", "", "mission type (document_retrieval, form_filling, data_extraction, verification, custom)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high, urgent)")
	cmd.Flags().Int64Var(&estimated, "estimated-seconds", 0, "estimated duration in seconds")
	cmd.Flags().StringVar(&configJSON, "config", "", "mission config as JSON object")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func missionListCmd() *cobra.Command {
	var status, missionType string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				missions, err := e.Repo.ListMissions(ctx, repo.MissionFilters{
					UserID: userID(),
					Status: status,
					Type:   missionType,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Progress", "Priority", "Created"})
				for _, m := range missions {
					tw.AppendRow(table.Row{m.ID, m.Title, m.Type, m.Status, fmt.Sprintf("%d%%", m.Progress), m.Priority, m.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&missionType, "type", "", "type filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show mission detail with plan, recent activity and documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				detail, err := e.MissionDetail(ctx, args[0], userID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(detail)
				}
				fmt.Printf("%s  [%s/%s]  %d%%  priority=%s\n", detail.Title, detail.Type, detail.Status, detail.Progress, detail.Priority)
				if detail.Description != "" {
					fmt.Println(detail.Description)
				}
				if len(detail.PlanSteps) > 0 {
					fmt.Println("\nPlan:")
					for i, node := range detail.PlanSteps {
						printStepTree(node, "", i == len(detail.PlanSteps)-1)
					}
				}
				if len(detail.RecentActivities) > 0 {
					fmt.Println("\nRecent activity:")
					for _, a := range detail.RecentActivities {
						fmt.Printf("  %s  [%s]  %s\n", a.Timestamp, a.Type, a.Message)
					}
				}
				if len(detail.Documents) > 0 {
					fmt.Println("\nDocuments:")
					for _, d := range detail.Documents {
						fmt.Printf("  %s  %s  (%s, %d bytes, verified=%t)\n", d.ID, d.Name, d.FileType, d.FileSize, d.IsVerified)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func missionUpdateCmd() *cobra.Command {
	var title, description, priority string
	var estimated int64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update mission attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.MissionUpdateOptions{ID: args[0], UserID: userID()}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				if cmd.Flags().Changed("estimated-seconds") {
					opts.EstimatedSeconds = &estimated
				}
				m, err := e.UpdateMission(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().Int64Var(&estimated, "estimated-seconds", 0, "estimated duration in seconds")
	return cmd
}

func missionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a mission and everything attached to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteMission(ctx, args[0], userID())
			})
		},
	}
	return cmd
}

func missionTransitionCmd(use, short string, apply func(context.Context, engine.Engine, string) (domain.Mission, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := apply(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func missionFailCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Mark a mission as failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.FailMission(ctx, args[0], userID(), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason recorded in the ledger")
	return cmd
}

func stepCmd() *cobra.Command {
	s := &cobra.Command{Use: "step", Short: "Manage plan steps"}
	s.AddCommand(stepAddCmd())
	s.AddCommand(stepTreeCmd())
	s.AddCommand(stepStatusCmd())
	s.AddCommand(stepUpdateCmd())
	s.AddCommand(stepDeleteCmd())
	return s
}

func stepAddCmd() *cobra.Command {
	var missionID, parentID, title, description string
	var order int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a plan step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AddStep(ctx, engine.StepCreateOptions{
					MissionID:   missionID,
					UserID:      userID(),
					ParentID:    parentID,
					Title:       title,
					Description: description,
					Order:       order,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent step id")
	cmd.Flags().StringVar(&title, "title", "", "step title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&order, "order", 0, "ordering among siblings")
	_ = cmd.MarkFlagRequired("mission")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func stepTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <mission-id>",
		Short: "Show the plan step tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tree, err := e.ListTree(ctx, args[0], userID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tree)
				}
				for i, node := range tree {
					printStepTree(node, "", i == len(tree)-1)
				}
				return nil
			})
		},
	}
	return cmd
}

func stepStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set plan step status (pending, in_progress, completed, failed, skipped)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetStepStatus(ctx, args[0], userID(), args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func stepUpdateCmd() *cobra.Command {
	var title, description, parent string
	var order int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a plan step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.StepUpdateOptions{ID: args[0], UserID: userID()}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("order") {
					opts.Order = &order
				}
				if cmd.Flags().Changed("parent") {
					opts.SetParent = &parent
				}
				s, err := e.UpdateStep(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "step title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&order, "order", 0, "ordering among siblings")
	cmd.Flags().StringVar(&parent, "parent", "", "new parent step id, empty string detaches to root")
	return cmd
}

func stepDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a plan step and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteStep(ctx, args[0], userID())
			})
		},
	}
	return cmd
}

func activityCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "activity",
		Short: "Activity ledger",
		Long:  "The append-only record of everything a mission went through. Entries are never edited or removed.",
	}
	a.AddCommand(activityListCmd())
	return a
}

func activityListCmd() *cobra.Command {
	var actType string
	var limit int
	cmd := &cobra.Command{
		Use:   "list <mission-id>",
		Short: "List mission activities, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetMission(ctx, args[0], userID()); err != nil {
					return err
				}
				acts, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
					MissionID: args[0],
					Type:      actType,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(acts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "Type", "Message", "Details"})
				for _, act := range acts {
					tw.AppendRow(table.Row{act.Timestamp, act.Type, act.Message, act.Details})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actType, "type", "", "activity type filter (info, success, warning, error, milestone, action)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}

func docCmd() *cobra.Command {
	d := &cobra.Command{Use: "doc", Short: "Manage mission documents"}
	d.AddCommand(docAddCmd())
	d.AddCommand(docListCmd())
	d.AddCommand(docVerifyCmd())
	d.AddCommand(docDownloadCmd())
	return d
}

func docAddCmd() *cobra.Command {
	var missionID, name, fileType string
	var fileSize int64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a document on a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AddDocument(ctx, engine.DocumentCreateOptions{
					MissionID: missionID,
					UserID:    userID(),
					Name:      name,
					FileType:  fileType,
					FileSize:  fileSize,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&name, "name", "", "document name")
	cmd.Flags().StringVar(&fileType, "file-type", "", "file type (pdf, docx, xlsx, csv, txt, image, other)")
	cmd.Flags().Int64Var(&fileSize, "file-size", 0, "file size in bytes")
	_ = cmd.MarkFlagRequired("mission")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func docListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <mission-id>",
		Short: "List mission documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetMission(ctx, args[0], userID()); err != nil {
					return err
				}
				docs, err := e.Repo.ListDocuments(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Size", "Status", "Verified"})
				for _, d := range docs {
					tw.AppendRow(table.Row{d.ID, d.Name, d.FileType, d.FileSize, d.Status, d.IsVerified})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func docVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Mark a document as verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.VerifyDocument(ctx, args[0], userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func docDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Record a document download in the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.RecordDownload(ctx, args[0], userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	var recompute bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate mission counters for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec := stats.Recomputer{Repo: e.Repo, Now: e.Now}
				if recompute {
					profile, err := rec.Recompute(ctx, userID())
					if err != nil {
						return err
					}
					return printJSONOrTable(profile)
				}
				profile, err := e.Repo.GetUser(ctx, userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(profile)
			})
		},
	}
	cmd.Flags().BoolVar(&recompute, "recompute", false, "rebuild counters from the mission set before printing")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret := uuid.New().String()
				key := domain.APIKey{
					ID:        uuid.New().String(),
					UserID:    userID(),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("API key created (store it now, it is not recoverable):\n%s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(cmd.Context(), userID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveUser(cmd.Context(), workspace, viper.GetString("user-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			e.Stats = stats.Recomputer{Repo: e.Repo}
			authCfg := server.AuthConfig{
				JWTSecret:             os.Getenv("MISSIONCTL_JWT_SECRET"),
				AllowLegacyUserHeader: allowLegacyHeader,
			}
			if authCfg.JWTSecret == "" && !allowLegacyHeader {
				return fmt.Errorf("MISSIONCTL_JWT_SECRET is required for bearer auth (or pass --allow-user-header for local use)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Context: cmd.Context()})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Missionctl API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacyHeader, "allow-user-header", false, "trust the X-User-Id header instead of credentials (local only)")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveUser(ctx, workspace, userID(), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.Stats = stats.Recomputer{Repo: e.Repo}
	return fn(ctx, e)
}

func userID() string {
	id := viper.GetString("user-id")
	if id == "" {
		return "local-user"
	}
	return id
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStepTree(node domain.PlanStepNode, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s%s [%s]\n", prefix, connector, node.Title, node.Status)
	for i, c := range node.Substeps {
		printStepTree(c, newPrefix, i == len(node.Substeps)-1)
	}
}
