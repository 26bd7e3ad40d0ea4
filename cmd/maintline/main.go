package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"maintline/internal/app"
	"maintline/internal/config"
	maintlinesdk "maintline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "maintline",
	Short: "Maintenance work order service",
	Long: `maintline tracks maintenance work orders through PLANNED -> VALIDATED -> DOING -> DONE.
- Machines own engines, activities and store lines (spare parts).
- Completing a preventive order plans a draft for the next occurrence.
- Completing an order consumes the stores it used; stock never goes negative.
- The schedule and indicators views read weekly and monthly windows.
- Every change lands in the event log ('maintline log tail').`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
	viper.SetEnvPrefix("MAINTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory holding maintline.yml")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor recorded in the event log")
	flags.String("db", "", "database path (overrides config)")
	flags.String("log-level", "", "log level (overrides config)")
	flags.String("server", "", "talk to a running API at this URL instead of the local database")
	flags.String("token", "", "bearer token for --server")
	for _, name := range []string{"workspace", "json", "actor-id", "db", "log-level", "server", "token"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(machineCmd())
	rootCmd.AddCommand(storeCmd())
	rootCmd.AddCommand(workOrderCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(indicatorsCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(logCmd())
}

// resolveConfig loads maintline.yml from the workspace, falling back to the
// defaults, then applies flag and MAINTLINE_* overrides.
func resolveConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("db"); v != "" {
		cfg.Database.Path = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetString("base-path"); v != "" {
		cfg.Server.BasePath = v
	}
	return cfg, cfg.Validate()
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, app.Options{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

// remoteClient returns the API client when --server is set.
func remoteClient() (*maintlinesdk.Client, bool) {
	addr := viper.GetString("server")
	if addr == "" {
		return nil, false
	}
	c := maintlinesdk.New(addr)
	c.BearerToken = viper.GetString("token")
	c.ActorID = viper.GetString("actor-id")
	return c, true
}

func actor() string { return viper.GetString("actor-id") }

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable renders rows unless --json is set, in which case v is printed.
func printTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func deref[T any](p *T) any {
	if p == nil {
		return ""
	}
	return *p
}
