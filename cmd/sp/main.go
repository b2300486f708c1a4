package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"safeplate/internal/app"
	"safeplate/internal/config"
	"safeplate/internal/db"
	"safeplate/internal/engine"
	"safeplate/internal/migrate"
	"safeplate/internal/server"
	"safeplate/internal/session"
)

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "sp",
	Short: "SafePlate CLI",
	Long: `SafePlate records food-safety controls for a kitchen.
Core concepts:
- Workspace: the .safeplate directory holding the local database, the device key and saved drafts.
- Session: sign in once with 'sp login'; the token is kept in sealed storage and restored on every run.
- Flows: reception, tracking, cleaning, tcp-cooling, tcp-reheating, oil and temperature. Each flow is a
  series of step screens whose answers are merged and sent as one multipart submission.
- Drafts: a submission that fails is kept locally; 'sp draft retry' sends it again.
- History: 'sp history <kind>' lists past records grouped by month, newest first.
- Event log: diary of local activity, view with 'sp log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		l, err := buildLogger(viper.GetBool("debug"))
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SAFEPLATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides safeplate.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(namedCmd("product", "Manage products", engine.KindProducts))
	rootCmd.AddCommand(namedCmd("supplier", "Manage suppliers", engine.KindSuppliers))
	rootCmd.AddCommand(namedCmd("zone", "Manage cleaning zones", engine.KindZones))
	for _, c := range recordCmds() {
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(wizardCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(devserverCmd())
}

func buildLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Session.Login(ctx, email, password); err != nil {
					return err
				}
				return printUser(a.Session)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func registerCmd() *cobra.Command {
	var opts session.RegisterOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.PasswordConfirmation == "" {
				opts.PasswordConfirmation = opts.Password
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Session.Register(ctx, opts); err != nil {
					return err
				}
				return printUser(a.Session)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")
	cmd.Flags().StringVar(&opts.PasswordConfirmation, "password-confirmation", "", "password again (defaults to --password)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the token and forget the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Session.User() == nil {
					fmt.Println("not signed in")
					return nil
				}
				err := a.Session.Logout(ctx)
				fmt.Println("signed out")
				if err != nil {
					fmt.Fprintln(os.Stderr, "warning: remote logout failed:", err)
				}
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printUser(a.Session)
			})
		},
	}
}

func printUser(s *session.Manager) error {
	u, err := s.RequireUser()
	if err != nil {
		return err
	}
	out := map[string]any{"id": u.ID, "email": u.Email, "name": u.Name}
	if viper.GetBool("json") {
		return printJSON(out)
	}
	fmt.Printf("Signed in as %s <%s> (user %d)\n", u.Name, u.Email, u.ID)
	return nil
}

func listCmd() *cobra.Command {
	kinds := []string{engine.KindProducts, engine.KindSuppliers, engine.KindZones}
	return &cobra.Command{
		Use:       "list <" + strings.Join(kinds, "|") + ">",
		Short:     "List reference data",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Session.RequireUser()
				if err != nil {
					return err
				}
				type row struct {
					ID   int64  `json:"id"`
					Name string `json:"name"`
				}
				var rows []row
				switch args[0] {
				case engine.KindProducts:
					items, err := a.Client.Products(ctx, u.ID)
					if err != nil {
						return err
					}
					for _, it := range items {
						rows = append(rows, row{it.ID, it.Name})
					}
				case engine.KindSuppliers:
					items, err := a.Client.Suppliers(ctx, u.ID)
					if err != nil {
						return err
					}
					for _, it := range items {
						rows = append(rows, row{it.ID, it.Name})
					}
				case engine.KindZones:
					items, err := a.Client.CleaningZones(ctx, u.ID)
					if err != nil {
						return err
					}
					for _, it := range items {
						rows = append(rows, row{it.ID, it.Name})
					}
				default:
					return fmt.Errorf("unknown list %q (expected one of %s)", args[0], strings.Join(kinds, ", "))
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.ID, r.Name})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func historyCmd() *cobra.Command {
	kinds := engine.HistoryKinds()
	return &cobra.Command{
		Use:       "history <" + strings.Join(kinds, "|") + ">",
		Short:     "Show past records grouped by month",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				groups, err := a.Engine.History(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					type group struct {
						Month   string          `json:"month"`
						Label   string          `json:"label"`
						Records []engine.Record `json:"records"`
					}
					out := make([]group, 0, len(groups))
					for _, g := range groups {
						out = append(out, group{Month: g.Key, Label: g.Label(), Records: g.Items})
					}
					return printJSON(out)
				}
				if len(groups) == 0 {
					fmt.Println("no records")
					return nil
				}
				for _, g := range groups {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.SetTitle(fmt.Sprintf("%s (%d)", g.Label(), len(g.Items)))
					tw.AppendHeader(table.Row{"ID", "Date", "Record", "Detail", ""})
					for _, r := range g.Items {
						flag := ""
						if r.Flagged {
							flag = "!"
						}
						tw.AppendRow(table.Row{r.ID, r.Date, r.Title, r.Detail, flag})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
}

// namedCmd manages one of the lists entries can be added to by name.
func namedCmd(use, short, kind string) *cobra.Command {
	parent := &cobra.Command{Use: use, Short: short}
	var name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a " + use,
		RunE: func(cmd *cobra.Command, args []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Session.RequireUser(); err != nil {
					return err
				}
				var id int64
				switch kind {
				case engine.KindProducts:
					p, err := a.Client.CreateProduct(ctx, name)
					if err != nil {
						return err
					}
					id = p.ID
				case engine.KindSuppliers:
					s, err := a.Client.CreateSupplier(ctx, name)
					if err != nil {
						return err
					}
					id = s.ID
				case engine.KindZones:
					z, err := a.Client.CreateCleaningZone(ctx, name)
					if err != nil {
						return err
					}
					id = z.ID
				}
				return printJSONOrTable(map[string]any{"id": id, "name": name})
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "name")
	_ = add.MarkFlagRequired("name")
	parent.AddCommand(add)
	return parent
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Inspect the local event log",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{ago(e.TS), e.Type, strings.TrimSuffix(e.EntityKind+"/"+e.EntityID, "/"), e.ActorID, e.Payload})
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

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect client config",
		Long:  "Config lives in safeplate.yml in the workspace: API address, services, alert thresholds and image settings. SAFEPLATE_API_URL in the environment or the workspace .env overrides the API address.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configUseAPICmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := app.ResolveConfig(workspace, viper.GetString("api-url"))
			if err != nil {
				return err
			}
			store, err := localStore(workspace)
			if err != nil {
				logger.Debug("local store unavailable", zap.Error(err))
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"config": cfg, "store": store})
			}
			if err := printJSONOrTable(cfg); err != nil {
				return err
			}
			if store == nil {
				fmt.Println("Local store: not created yet")
				return nil
			}
			fmt.Println(store)
			return nil
		},
	}
}

// storeInfo describes the workspace database for config show.
type storeInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	migrate.Status
}

func (s *storeInfo) String() string {
	line := fmt.Sprintf("Local store: %s (%s), schema %d of %d", s.Path, humanize.Bytes(uint64(s.Size)), s.Current, s.Latest)
	if !s.UpToDate() {
		line += fmt.Sprintf(", %d migration(s) pending", len(s.Pending))
	}
	return line
}

// localStore inspects the workspace database without creating or migrating it.
func localStore(workspace string) (*storeInfo, error) {
	path := db.Path(workspace)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	st, err := migrate.Check(conn)
	if err != nil {
		return nil, err
	}
	return &storeInfo{Path: path, Size: fi.Size(), Status: st}, nil
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default safeplate.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			baseURL := viper.GetString("api-url")
			if baseURL == "" {
				baseURL = config.DefaultBaseURL
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(baseURL)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configUseAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-api <url>",
		Short: "Point this workspace at an API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			if url == "" {
				return fmt.Errorf("api url is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "SAFEPLATE_API_URL", url); err != nil {
				return err
			}
			fmt.Printf("Set SAFEPLATE_API_URL=%s in %s/.env\n", url, workspace)
			return nil
		},
	}
}

func devserverCmd() *cobra.Command {
	var addr, basePath string
	var seedName, seedEmail, seedPassword string
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Start an in-memory API for local use and demos",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := server.NewStore()
			if seedEmail != "" {
				if _, err := store.AddUser(seedName, seedEmail, seedPassword); err != nil {
					return fmt.Errorf("seed user: %w", err)
				}
			}
			secret := os.Getenv("SAFEPLATE_JWT_SECRET")
			if secret == "" {
				secret = uuid.NewString()
				logger.Warn("SAFEPLATE_JWT_SECRET not set; tokens will not survive a restart")
			}
			handler, err := server.New(server.Config{
				Store:    store,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret},
				Logger:   logger.Named("devserver"),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			go func() {
				<-ctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(sctx)
			}()
			fmt.Printf("Serving SafePlate API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	cmd.Flags().StringVar(&seedName, "seed-name", "Demo", "name of the seeded user")
	cmd.Flags().StringVar(&seedEmail, "seed-email", "", "seed a user with this email")
	cmd.Flags().StringVar(&seedPassword, "seed-password", "password", "password of the seeded user")
	return cmd
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		APIURL:    viper.GetString("api-url"),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
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

// ago renders an RFC 3339 timestamp relative to now.
func ago(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
