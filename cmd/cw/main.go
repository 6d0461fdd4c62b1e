package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"consentwallet/internal/app"
	"consentwallet/internal/config"
	"consentwallet/internal/db"
	"consentwallet/internal/domain"
	"consentwallet/internal/engine"
	"consentwallet/internal/form"
	"consentwallet/internal/i18n"
	"consentwallet/internal/repo"
	"consentwallet/internal/server"
	"consentwallet/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "cw",
	Short: "Consent wallet CLI",
	Long: `cw lets a signed-in person review and answer the consent requests
that services send through MyDataShare.
- Consents: permission requests and consents addressed to you; accept, decline or edit the data you gave.
- Terms of service: wallet terms that have to be accepted before the wallet can be used.
- Workspace: consentwallet.yml plus a .consentwallet directory holding the session database.
- Event log: local journal of what happened, view with 'cw log tail'.`,
	SilenceUsage: true,
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("lang", "fi", "language of texts (fi, en, sv)")
	rootCmd.PersistentFlags().String("api", "", "MyDataShare API base URL (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("lang", rootCmd.PersistentFlags().Lookup("lang"))
	_ = viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(consentsCmd())
	rootCmd.AddCommand(tosCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(enrollCmd())
	rootCmd.AddCommand(orphansCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- config ---

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default consentwallet.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiURL := viper.GetString("api.base_url")
			if apiURL == "" {
				return fmt.Errorf("--api is required")
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			content := config.GenerateDefault(apiURL)
			if _, err := config.FromYAML([]byte(content)); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetViper())
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate consentwallet.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
}

// --- consents ---

func consentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "consents", Aliases: []string{"c"}, Short: "Review and answer consents"}
	cmd.AddCommand(consentsListCmd())
	cmd.AddCommand(consentsShowCmd())
	cmd.AddCommand(consentsEventsCmd())
	cmd.AddCommand(consentsAccessCmd())
	cmd.AddCommand(consentsAcceptCmd())
	cmd.AddCommand(consentsDeclineCmd())
	cmd.AddCommand(consentsEditCmd())
	return cmd
}

func consentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List permission requests and consents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.ListRecords(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(data)
				}
				renderer(e).RecordsTable(data)
				return nil
			})
		},
	}
}

func consentsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <uuid>",
		Short: "Show one consent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				det, err := e.GetRecord(ctx, args[0])
				if err != nil {
					return err
				}
				return printDetail(e, det, nil)
			})
		},
	}
}

// logPaging holds the --cursor and --pages flags of the log commands.
type logPaging struct {
	cursor string
	pages  int
}

func (p *logPaging) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.cursor, "cursor", "", "continue from the next cursor of an earlier page")
	cmd.Flags().IntVar(&p.pages, "pages", 0, "read this many pages instead of the whole log")
}

func (p *logPaging) paged() bool { return p.cursor != "" || p.pages > 0 }

func printLog(e engine.Engine, heading string, view engine.LogView) error {
	if viper.GetBool("json") {
		return printJSON(view)
	}
	renderer(e).LogList(heading, view.Items, view.Notice)
	if !view.NextCursor.IsZero() {
		fmt.Printf("\nmore: --cursor %s\n", view.NextCursor)
	}
	return nil
}

func consentsEventsCmd() *cobra.Command {
	var paging logPaging
	cmd := &cobra.Command{
		Use:   "events <uuid>",
		Short: "Show the status history of a consent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var view engine.LogView
				var err error
				if paging.paged() {
					view, err = e.EventLogPage(ctx, args[0], domain.Offset(paging.cursor), paging.pages)
				} else {
					view, err = e.EventLog(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printLog(e, e.Tr.T("Event log modal heading", nil), view)
			})
		},
	}
	paging.register(cmd)
	return cmd
}

func consentsAccessCmd() *cobra.Command {
	var paging logPaging
	cmd := &cobra.Command{
		Use:   "access <uuid>",
		Short: "Show who accessed data under a consent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var view engine.LogView
				var err error
				if paging.paged() {
					view, err = e.AccessLogPage(ctx, args[0], domain.Offset(paging.cursor), paging.pages)
				} else {
					view, err = e.AccessLog(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printLog(e, e.Tr.T("Access log modal heading", nil), view)
			})
		},
	}
	paging.register(cmd)
	return cmd
}

func consentsAcceptCmd() *cobra.Command {
	var values map[string]string
	cmd := &cobra.Command{
		Use:   "accept <uuid>",
		Short: "Accept a permission request",
		Long:  "Accept a permission request. Requests that ask for data need every required field given with --set name=value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r := renderer(e)
				var (
					det engine.Detail
					err error
				)
				if len(values) > 0 {
					det, err = e.AcceptWithData(ctx, args[0], values, notifier(r))
				} else {
					det, err = e.Accept(ctx, args[0])
				}
				var verrs form.ValidationErrors
				if errors.As(err, &verrs) && !viper.GetBool("json") {
					if cur, gerr := e.GetRecord(ctx, args[0]); gerr == nil {
						r.Fields(e.UserDataFields(cur, false), values, verrs)
					}
				}
				if err != nil {
					return err
				}
				return printDetail(e, det, nil)
			})
		},
	}
	cmd.Flags().StringToStringVar(&values, "set", nil, "user provided data field (name=value), repeatable")
	return cmd
}

func consentsDeclineCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "decline <uuid>",
		Short: "Decline a request or withdraw a consent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cur, err := e.GetRecord(ctx, args[0])
				if err != nil {
					return err
				}
				if cur.Actions.ConfirmCancel && !yes {
					return fmt.Errorf("withdrawing %s also deletes the data you gave; rerun with --yes", args[0])
				}
				det, err := e.Decline(ctx, args[0])
				if err != nil {
					return err
				}
				return printDetail(e, det, nil)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting user provided data")
	return cmd
}

func consentsEditCmd() *cobra.Command {
	var values map[string]string
	cmd := &cobra.Command{
		Use:   "edit <uuid>",
		Short: "Edit the data given under a consent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(values) == 0 {
				return fmt.Errorf("nothing to change; pass --set name=value")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r := renderer(e)
				det, err := e.UpdateUserData(ctx, args[0], values, notifier(r))
				var verrs form.ValidationErrors
				if errors.As(err, &verrs) && !viper.GetBool("json") {
					if cur, gerr := e.GetRecord(ctx, args[0]); gerr == nil {
						r.Fields(e.UserDataFields(cur, true), values, verrs)
					}
				}
				if err != nil {
					return err
				}
				return printDetail(e, det, nil)
			})
		},
	}
	cmd.Flags().StringToStringVar(&values, "set", nil, "field to change (name=value), repeatable")
	return cmd
}

// --- terms of service ---

func tosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tos",
		Short: "Show pending wallet terms of service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pending, err := e.PendingTos(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(pending)
				}
				if len(pending) == 0 {
					fmt.Println("No terms waiting for acceptance.")
					return nil
				}
				renderer(e).RecordsTable(pending)
				return nil
			})
		},
	}
	cmd.AddCommand(tosAcceptCmd())
	cmd.AddCommand(tosDeclineCmd())
	return cmd
}

func tosAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept",
		Short: "Accept every pending terms of service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.AcceptTos(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"accepted": n})
				}
				fmt.Printf("Accepted %d terms of service.\n", n)
				return nil
			})
		},
	}
}

func tosDeclineCmd() *cobra.Command {
	var returnURL string
	cmd := &cobra.Command{
		Use:   "decline",
		Short: "Decline the terms and leave the wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target, err := e.DeclineTos(ctx, returnURL)
				if err != nil {
					return err
				}
				return printRedirect(target)
			})
		},
	}
	cmd.Flags().StringVar(&returnURL, "return-url", "", "external URL to return to")
	return cmd
}

// --- session ---

func loginCmd() *cobra.Command {
	var item, redirect string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start signing in with an identity provider",
		Long:  "Prints the sign-in URL. Open it in a browser, then pass the URL you were redirected to to 'cw login callback'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if item == "" {
					items, err := e.AuthItems(ctx)
					if err != nil {
						return err
					}
					if len(items) == 0 {
						return fmt.Errorf("no identity providers configured")
					}
					if len(items) > 1 && !viper.GetBool("json") {
						tw := table.NewWriter()
						tw.SetOutputMirror(os.Stdout)
						tw.AppendHeader(table.Row{"Name", "UUID"})
						for _, it := range items {
							tw.AppendRow(table.Row{it.Name, it.UUID})
						}
						tw.Render()
						return fmt.Errorf("several identity providers; choose one with --item")
					}
					item = items[0].UUID
				}
				target, err := e.Login(ctx, item, redirect)
				if err != nil {
					return err
				}
				return printRedirect(target)
			})
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "auth item name or uuid")
	cmd.Flags().StringVar(&redirect, "redirect", "", "wallet path to open after sign-in")
	cmd.AddCommand(loginCallbackCmd())
	return cmd
}

func loginCallbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callback <redirected-url>",
		Short: "Finish signing in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return err
			}
			q := u.Query()
			if msg := q.Get("error"); msg != "" {
				return fmt.Errorf("sign-in failed: %s", msg)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, target, err := e.Callback(ctx, q.Get("code"), q.Get("state"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"user": user, "redirect": target})
				}
				fmt.Printf("Signed in as %s\n", user.Username)
				return nil
			})
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target, err := e.Logout(ctx)
				if err != nil {
					return err
				}
				return printRedirect(target)
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, err := e.Init(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(user)
				}
				fmt.Println(user.Username)
				for _, id := range user.Identifiers {
					fmt.Printf("  %s\n", id.ID)
				}
				return nil
			})
		},
	}
}

func enrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <name>",
		Short: "Ask an enroll endpoint to create records for you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Enroll(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Enrolled with %s\n", args[0])
				return nil
			})
		},
	}
}

// --- orphans ---

func orphansCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "orphans", Short: "Inspect user data left behind by failed accepts"}
	cmd.AddCommand(orphansListCmd())
	cmd.AddCommand(orphansDiscardCmd())
	return cmd
}

func orphansListCmd() *cobra.Command {
	var recordUUID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unresolved orphaned metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Orphans(ctx, recordUUID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metadata", "Record", "Created", "Reason"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.MetadataUUID, o.RecordUUID, o.CreatedAt, o.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&recordUUID, "record", "", "only orphans of this record")
	return cmd
}

func orphansDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <metadata-uuid>",
		Short: "Mark an orphan as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DiscardOrphan(ctx, args[0])
			})
		},
	}
}

// --- log ---

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Journal(ctx, n, repo.EventFilter{Type: evtType, EntityKind: entityKind, EntityID: entityID})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the wallet HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := app.ResolveConfig(workspace, viper.GetViper())
			if err != nil {
				return err
			}
			log := app.NewLogger(cfg, os.Stderr)
			conn, e, err := app.Open(cmd.Context(), workspace, cfg, log)
			if err != nil {
				return err
			}
			defer conn.Close()
			if addr == "" {
				addr = cfg.Server.Addr
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Log: log})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e, log)
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			log.WithField("addr", addr).Infof("serving wallet API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := app.ResolveConfig(workspace, viper.GetViper())
	if err != nil {
		return err
	}
	log := app.NewLogger(cfg, os.Stderr)
	conn, e, err := app.Open(ctx, workspace, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e.WithLanguage(viper.GetString("lang")))
}

func renderer(e engine.Engine) *ui.Renderer {
	color := !viper.GetBool("json") && isatty.IsTerminal(os.Stdout.Fd())
	return &ui.Renderer{Out: os.Stdout, Color: color, Tr: e.Tr, Lang: i18n.Alpha3(e.Lang)}
}

func notifier(r *ui.Renderer) form.Notifier {
	if viper.GetBool("json") {
		return nil
	}
	return r
}

func printDetail(e engine.Engine, det engine.Detail, errs form.ValidationErrors) error {
	if viper.GetBool("json") {
		return printJSON(det)
	}
	r := renderer(e)
	r.RecordDetail(det.Data, det.Actions, det.InfoText)
	if det.UserData != nil {
		values := make(map[string]string, len(det.UserData.JSONData))
		for k, v := range det.UserData.JSONData {
			values[k] = fmt.Sprint(v)
		}
		fmt.Println()
		r.Fields(e.UserDataFields(det, false), values, errs)
	}
	return nil
}

func printRedirect(target string) error {
	if viper.GetBool("json") {
		return printJSON(map[string]string{"redirect": target})
	}
	fmt.Println(target)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
