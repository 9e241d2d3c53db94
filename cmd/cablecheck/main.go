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
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"cablecheck/internal/app"
	"cablecheck/internal/config"
	"cablecheck/internal/db"
	"cablecheck/internal/server"
	cablechecksdk "cablecheck/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "cablecheck",
	Short: "Cable design validation",
	Long: `cablecheck validates low-voltage cable designs against IEC 60502-1 and IEC 60228.
Core concepts:
- Design: a stored reference record (DESIGN-<digits>) with seven attributes; unknown values stay empty.
- Validation: each attribute gets PASS, WARN or FAIL plus a reasoning and a confidence score.
- Oracle: the language model that routes requests, extracts attributes and judges them; without one the built-in rules answer.
- HITL: when attributes are missing the run reports them; answer with 'cablecheck resume' or run 'validate --interactive'.
- History: every run is recorded; browse with 'cablecheck history list'.
- Event log: design and validation changes, view with 'cablecheck events tail'.`,
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CABLECHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.StringP("config", "c", "", "config file (default <workspace>/cablecheck.yml)")
	pf.Bool("json", false, "output JSON")
	pf.String("actor-id", "local-user", "actor identifier recorded on events")
	pf.String("log-level", "", "override config log level")
	pf.String("server", "", "talk to a running API at this base URL instead of the local database")
	pf.String("token", "", "bearer token for --server")
	pf.String("api-key", "", "API key for --server")
	pf.String("oracle-provider", "", "override oracle provider (gemini, openai, azure, offline)")
	pf.String("oracle-model", "", "override oracle model")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "log-level", "server", "token", "api-key", "oracle-provider", "oracle-model"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(designCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr string
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, seed)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			authCfg := server.AuthConfig{JWTSecret: a.Config.Auth.JWTSecret(), Logger: a.Log}
			if authCfg.JWTSecret == "" {
				a.Log.Warn("auth disabled", zap.String("env", a.Config.Auth.JWTSecretEnv))
			}
			handler, err := server.New(server.Config{
				Engine:      a.Engine,
				BasePath:    a.Config.Server.BasePath,
				Auth:        authCfg,
				CORSOrigins: a.Config.Server.CORSOrigins,
				Logger:      a.Log,
			})
			if err != nil {
				return err
			}
			server.StartWebhooks(ctx, a.Engine, a.Log)
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			a.Log.Info("serving cablecheck API",
				zap.String("addr", addr),
				zap.String("base_path", a.Config.Server.BasePath),
				zap.String("oracle", a.Config.Oracle.Provider))
			fmt.Printf("Serving cablecheck API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, a.Config.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&seed, "seed", false, "load sample designs into an empty database")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "Config lives in cablecheck.yml in the workspace. Secrets are never stored there: the file names the environment variables that hold them.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default cablecheck.yml",
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
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- helpers ---

func openApp(ctx context.Context, seed bool) (*app.App, error) {
	return app.Open(ctx, app.Options{
		Workspace:      viper.GetString("workspace"),
		ConfigPath:     viper.GetString("config"),
		LogLevel:       viper.GetString("log-level"),
		OracleProvider: viper.GetString("oracle-provider"),
		OracleModel:    viper.GetString("oracle-model"),
		Seed:           seed,
		ActorID:        viper.GetString("actor-id"),
	})
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// remoteClient returns an API client when --server is set.
func remoteClient() *cablechecksdk.Client {
	base := viper.GetString("server")
	if base == "" {
		return nil
	}
	c := cablechecksdk.New(base)
	c.BearerToken = viper.GetString("token")
	c.APIKey = viper.GetString("api-key")
	return c
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// convert re-decodes v into out through its JSON form.
func convert(v, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
