package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"humantask/internal/app"
	"humantask/internal/config"
	"humantask/internal/db"
	"humantask/internal/domain"
	"humantask/internal/engine/lifecycle"
	"humantask/internal/protocol"
	"humantask/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ht",
	Short: "Human task service CLI",
	Long: `ht runs and drives a human task service.
Tasks are work items for people: they are created with potential owners and
administrators, claimed or delegated, started, completed or failed, and their
terminal transitions are reported back to the calling process.

Commands run against the local workspace database unless --server points at a
running 'ht serve' protocol listener.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("server") != "" {
			return nil
		}
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HUMANTASK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.StringP("user", "u", "", "acting user id")
	flags.StringSliceP("group", "g", nil, "groups of the acting user (repeatable)")
	flags.String("server", "", "protocol address of a running server; empty uses the local workspace")
	flags.Duration("timeout", 0, "how long to wait for a response (default from config)")
	for _, name := range []string{"workspace", "json", "user", "group", "server", "timeout"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(contentCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(authCmd())
}

func actor() (domain.Actor, error) {
	user := strings.TrimSpace(viper.GetString("user"))
	if user == "" {
		return domain.Actor{}, fmt.Errorf("--user required")
	}
	return domain.Actor{UserID: user, GroupIDs: viper.GetStringSlice("group")}, nil
}

// withService runs fn against the remote server when --server is set,
// otherwise against an engine opened on the workspace.
func withService(ctx context.Context, fn func(context.Context, protocol.Service) error) error {
	if addr := viper.GetString("server"); addr != "" {
		timeout := viper.GetDuration("timeout")
		if timeout <= 0 {
			timeout = config.Default().ClientTimeout()
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		client, err := protocol.Dial(ctx, addr)
		if err != nil {
			return err
		}
		defer client.Close()
		return fn(ctx, client)
	}
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func serveCmd() *cobra.Command {
	var httpAddr, protocolAddr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the protocol listener and webhook delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if httpAddr == "" {
					httpAddr = cfg.Server.HTTPAddr
				}
				if protocolAddr == "" {
					protocolAddr = cfg.Server.ProtocolAddr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				secret := cfg.Auth.JWTSecret
				if env := viper.GetString("jwt-secret"); env != "" {
					secret = env
				}
				if secret == "" && !cfg.Auth.AllowHeaderActor {
					return fmt.Errorf("auth.jwt_secret (or HUMANTASK_JWT_SECRET) is required unless auth.allow_header_actor is set")
				}
				handler, err := server.New(server.Config{
					Engine:      rt.Engine,
					BasePath:    basePath,
					Auth:        server.AuthConfig{JWTSecret: secret, AllowHeaderActor: cfg.Auth.AllowHeaderActor, Logger: rt.Logger},
					Gatherer:    rt.Registry,
					DevTokenTTL: devTokenTTL(cfg, secret),
					Logger:      rt.Logger,
				})
				if err != nil {
					return err
				}

				ln, err := net.Listen("tcp", protocolAddr)
				if err != nil {
					return err
				}
				psrv := &protocol.Server{Service: rt.Engine, Logger: rt.Logger, Metrics: rt.Engine.Metrics}
				go func() {
					if err := psrv.Serve(ctx, ln); err != nil {
						rt.Logger.Error("protocol listener stopped", "error", err)
					}
				}()
				go server.NewWebhookDispatcher(rt.Engine, rt.Logger).Run(ctx)

				srv := &http.Server{Addr: httpAddr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info("serving", "http", "http://"+httpAddr+basePath, "protocol", protocolAddr, "docs", "/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&httpAddr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&protocolAddr, "protocol-addr", "", "protocol listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func devTokenTTL(cfg *config.Config, secret string) time.Duration {
	if secret == "" || cfg.Auth.DevTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(cfg.Auth.DevTokenTTLMinutes) * time.Minute
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "task",
		Short: "Add, inspect and operate on tasks",
		Long: `Lifecycle: Created -> Ready -> Reserved -> InProgress -> Completed/Failed.
Suspend and resume park a task; skip obsoletes it; exit (admins only) ends it.
A task with exactly one user as potential owner starts Reserved for that user.`,
	}
	t.AddCommand(taskAddCmd())
	t.AddCommand(taskGetCmd())
	t.AddCommand(taskListCmd())
	for _, op := range domain.Operations {
		t.AddCommand(taskOperationCmd(op))
	}
	return t
}

func taskAddCmd() *cobra.Command {
	var name, subject, description, locale, input, inputType string
	var priority int
	var notSkipable bool
	var owners, admins, recipients, excluded, stakeholders []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		Example: `  ht task add --name "Approve order" --owner user:bobba --owner group:crusaders --admin user:admin
  ht task add --name "Review" --owner user:darth --input "order #42"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := domain.Task{Priority: priority}
			task.Skipable = !notSkipable
			if name != "" {
				task.Names = []domain.I18NText{{Language: locale, Text: name}}
			}
			if subject != "" {
				task.Subjects = []domain.I18NText{{Language: locale, Text: subject}}
			}
			if description != "" {
				task.Descriptions = []domain.I18NText{{Language: locale, Text: description}}
			}
			if user := viper.GetString("user"); user != "" {
				by := domain.User(user)
				task.CreatedBy = &by
			}
			lists := []struct {
				in  []string
				out *domain.EntityList
			}{
				{owners, &task.PotentialOwners},
				{admins, &task.BusinessAdministrators},
				{recipients, &task.Recipients},
				{excluded, &task.ExcludedOwners},
				{stakeholders, &task.TaskStakeholders},
			}
			for _, l := range lists {
				parsed, err := parseEntities(l.in)
				if err != nil {
					return err
				}
				*l.out = parsed
			}
			var data *domain.ContentData
			if cmd.Flags().Changed("input") {
				data = &domain.ContentData{Type: inputType, AccessType: domain.AccessInline, Content: []byte(input)}
			}
			return withService(cmd.Context(), func(ctx context.Context, svc protocol.Service) error {
				id, err := svc.AddTask(ctx, task, data)
				if err != nil {
					return err
				}
				stored, err := svc.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printTask(stored)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&subject, "subject", "", "task subject")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&locale, "locale", "en-UK", "language of name, subject and description")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority")
	cmd.Flags().BoolVar(&notSkipable, "not-skipable", false, "forbid skip")
	cmd.Flags().StringArrayVar(&owners, "owner", nil, "potential owner (user:id or group:id)")
	cmd.Flags().StringArrayVar(&admins, "admin", nil, "business administrator")
	cmd.Flags().StringArrayVar(&recipients, "recipient", nil, "notification recipient")
	cmd.Flags().StringArrayVar(&excluded, "excluded", nil, "excluded owner")
	cmd.Flags().StringArrayVar(&stakeholders, "stakeholder", nil, "task stakeholder")
	cmd.Flags().StringVar(&input, "input", "", "input document content")
	cmd.Flags().StringVar(&inputType, "input-type", "text/plain", "input document type")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, svc protocol.Service) error {
				t, err := svc.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskListCmd() *cobra.Command {
	var role, locale string
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks assigned to --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := actor()
			if err != nil {
				return err
			}
			var filter []domain.Status
			for _, s := range statuses {
				filter = append(filter, domain.Status(s))
			}
			return withService(cmd.Context(), func(ctx context.Context, svc protocol.Service) error {
				var items []domain.TaskSummary
				switch role {
				case "potential-owner":
					items, err = svc.TasksAssignedAsPotentialOwner(ctx, a, locale, filter)
				case "recipient":
					items, err = svc.TasksAssignedAsRecipient(ctx, a, locale, filter)
				default:
					return fmt.Errorf("--role must be potential-owner or recipient")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Priority", "Owner", "Created"})
				for _, s := range items {
					owner := ""
					if s.ActualOwner != nil {
						owner = *s.ActualOwner
					}
					tw.AppendRow(table.Row{s.ID, s.Name, s.Status, s.Priority, owner, s.CreatedOn})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "potential-owner", "potential-owner or recipient")
	cmd.Flags().StringVar(&locale, "locale", "en-UK", "locale for names")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter (default: all non-terminal)")
	return cmd
}

var operationHelp = map[domain.Operation]string{
	domain.OpClaim:    "Claim a Ready task",
	domain.OpStart:    "Start working on a task",
	domain.OpStop:     "Stop working, back to Reserved",
	domain.OpRelease:  "Give a task back to its potential owners",
	domain.OpSuspend:  "Suspend a task",
	domain.OpResume:   "Resume a suspended task",
	domain.OpSkip:     "Skip a skipable task",
	domain.OpDelegate: "Delegate to --target, who becomes the owner",
	domain.OpForward:  "Forward to --target, who becomes a potential owner",
	domain.OpComplete: "Complete with optional --output",
	domain.OpFail:     "Fail with optional --fault and --fault-name",
	domain.OpExit:     "Exit a task (administrators)",
	domain.OpNominate: "Nominate --entity owners for a Created task (administrators)",
	domain.OpActivate: "Activate a Created task (administrators)",
	domain.OpRegister: "Register --user as a recipient",
	domain.OpRemove:   "Remove --user from the recipients",
}

func taskOperationCmd(op domain.Operation) *cobra.Command {
	var target, output, outputType, fault, faultType, faultName string
	var entities []string
	cmd := &cobra.Command{
		Use:   string(op) + " <id>",
		Short: operationHelp[op],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := actor()
			if err != nil {
				return err
			}
			c := lifecycle.Command{Op: op, Actor: a, OutputContentID: domain.NoContent, FaultContentID: domain.NoContent}
			if target != "" {
				ent, err := domain.ParseEntity(target)
				if err != nil {
					return err
				}
				c.Target = &ent
			}
			if c.Entities, err = parseEntities(entities); err != nil {
				return err
			}
			if cmd.Flags().Changed("output") {
				c.Output = &domain.ContentData{Type: outputType, AccessType: domain.AccessInline, Content: []byte(output)}
			}
			if cmd.Flags().Changed("fault") || faultName != "" {
				c.Fault = &domain.FaultData{
					ContentData: domain.ContentData{Type: faultType, AccessType: domain.AccessInline, Content: []byte(fault)},
					FaultName:   faultName,
				}
			}
			return withService(cmd.Context(), func(ctx context.Context, svc protocol.Service) error {
				t, err := svc.Operate(ctx, id, c)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	switch op {
	case domain.OpDelegate, domain.OpForward:
		cmd.Flags().StringVar(&target, "target", "", "user:id or group:id")
		_ = cmd.MarkFlagRequired("target")
	case domain.OpNominate:
		cmd.Flags().StringArrayVar(&entities, "entity", nil, "user:id or group:id (repeatable)")
	case domain.OpComplete:
		cmd.Flags().StringVar(&output, "output", "", "output document content")
		cmd.Flags().StringVar(&outputType, "output-type", "text/plain", "output document type")
	case domain.OpFail:
		cmd.Flags().StringVar(&fault, "fault", "", "fault document content")
		cmd.Flags().StringVar(&faultType, "fault-type", "text/plain", "fault document type")
		cmd.Flags().StringVar(&faultName, "fault-name", "", "fault name")
	}
	return cmd
}

func contentCmd() *cobra.Command {
	c := &cobra.Command{Use: "content", Short: "Read stored documents"}
	c.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, svc protocol.Service) error {
				content, err := svc.GetContent(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(content)
				}
				os.Stdout.Write(content.Data)
				fmt.Println()
				return nil
			})
		},
	})
	return c
}

func eventsCmd() *cobra.Command {
	ev := &cobra.Command{Use: "events", Short: "Inspect the event log"}
	var cursor int64
	var limit, last int
	var terminal bool
	var evtType, taskID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "List events after --cursor, or the newest --last events",
		Example: `  ht events tail --terminal --cursor 120
  ht events tail --last 10 --task 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if last > 0 {
				if viper.GetString("server") != "" {
					return fmt.Errorf("--last reads the local workspace; drop --server")
				}
				return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
					items, err := rt.Engine.Repo.LatestEvents(ctx, last, evtType, taskID)
					if err != nil {
						return err
					}
					return printEvents(items)
				})
			}
			return withService(cmd.Context(), func(ctx context.Context, svc protocol.Service) error {
				items, err := svc.Events(ctx, cursor, limit, terminal)
				if err != nil {
					return err
				}
				return printEvents(items)
			})
		},
	}
	tail.Flags().Int64Var(&cursor, "cursor", 0, "only events with a greater id")
	tail.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	tail.Flags().BoolVar(&terminal, "terminal", false, "only completed, failed, exited and obsoleted tasks")
	tail.Flags().IntVar(&last, "last", 0, "show the newest N events, newest first")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter for --last")
	tail.Flags().StringVar(&taskID, "task", "", "task id filter for --last")
	ev.AddCommand(tail)
	return ev
}

func printEvents(items []domain.Event) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
	for _, e := range items {
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
	}
	tw.Render()
	return nil
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage humantask.yml",
		Long:  "The workspace config sets listen addresses, lifecycle options, auth, logging and webhooks. Without a file the defaults apply.",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default humantask.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initCmd)
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate humantask.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage HTTP API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a key for --user and its --group memberships",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := actor()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				plain, key, err := rt.Engine.CreateAPIKey(ctx, a.UserID, a.GroupIDs, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": plain, "api_key": key})
				}
				fmt.Printf("%s\n(id %s; shown once)\n", plain, key.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	keys.AddCommand(create)
	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List keys of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := actor()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.ListAPIKeys(ctx, a.UserID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "User", "Groups", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.ActorID, strings.Join(k.GroupIDs, ","), k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	keys.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return keys
}

func authCmd() *cobra.Command {
	a := &cobra.Command{Use: "auth", Short: "Authentication helpers"}
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --user and --group with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := actor()
			if err != nil {
				return err
			}
			cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			secret := cfg.Auth.JWTSecret
			if env := viper.GetString("jwt-secret"); env != "" {
				secret = env
			}
			tok, err := server.SignToken(secret, who.UserID, who.GroupIDs, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	token.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime; 0 never expires")
	a.AddCommand(token)
	return a
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func parseEntities(in []string) (domain.EntityList, error) {
	var out domain.EntityList
	for _, s := range in {
		e, err := domain.ParseEntity(s)
		if err != nil {
			return nil, err
		}
		out = out.Add(e)
	}
	return out, nil
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	owner := ""
	if t.ActualOwner != nil {
		owner = t.ActualOwner.ID
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"ID", t.ID},
		{"Name", t.Name("")},
		{"Status", t.Status},
		{"Owner", owner},
		{"Priority", t.Priority},
		{"Potential owners", joinEntities(t.PotentialOwners)},
		{"Administrators", joinEntities(t.BusinessAdministrators)},
		{"Recipients", joinEntities(t.Recipients)},
	})
	if t.Document.Set() {
		tw.AppendRow(table.Row{"Document", t.Document.ContentID})
	}
	if t.Output.Set() {
		tw.AppendRow(table.Row{"Output", t.Output.ContentID})
	}
	if t.Fault.Set() {
		tw.AppendRow(table.Row{"Fault", fmt.Sprintf("%d (%s)", t.Fault.ContentID, t.FaultName)})
	}
	tw.Render()
	return nil
}

func joinEntities(l domain.EntityList) string {
	parts := make([]string, len(l))
	for i, e := range l {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
