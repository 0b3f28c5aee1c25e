package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/mnehpets/sheetrpc"
	"github.com/mnehpets/sheetrpc/internal/svcfields"
	"github.com/mnehpets/sheetrpc/jsonrpc"
	"github.com/mnehpets/sheetrpc/resolve"
)

// serveFlags are bound into viper under their flag names.
var serveFlags = []string{
	"listen", "rpc-path", "health-path", "methods-path",
	"call-timeout", "max-body", "max-cells", "batch-concurrency", "book-policy", "workbook-dir",
	"metrics-listen", "cors-origins", "rate-limit", "rate-burst", "hsts-max-age",
	"shutdown-timeout", "log-level",
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	return newRootCommandWith(viper.New(), baseLogger)
}

// newRootCommandWith binds every flag into v.
func newRootCommandWith(v *viper.Viper, baseLogger pslog.Logger) *cobra.Command {
	v.SetEnvPrefix("SHEETRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "sheetrpc",
		Short:         "sheetrpc serves spreadsheet automation over JSON-RPC 2.0",
		SilenceErrors: true,
		Example: `
  # Serve on the default address with an in-memory automation backend
  sheetrpc

  # Strict workbook resolution, 5s call deadline, Prometheus metrics on :9464
  sheetrpc --book-policy strict --call-timeout 5s --metrics-listen :9464

  # Same, configured through the environment
  SHEETRPC_BOOK_POLICY=strict SHEETRPC_CALL_TIMEOUT=5s sheetrpc
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runServe(cmd.Context(), v, baseLogger)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringP("config", "c", "", "path to a YAML, TOML or JSON config file")
	persistent.String("url", "http://"+sheetrpc.DefaultListen+sheetrpc.DefaultRPCPath, "JSON-RPC endpoint used by client commands")

	flags := cmd.Flags()
	flags.String("listen", sheetrpc.DefaultListen, "HTTP listen address")
	flags.String("rpc-path", sheetrpc.DefaultRPCPath, "path serving JSON-RPC")
	flags.String("health-path", sheetrpc.DefaultHealthPath, "path serving the health check")
	flags.String("methods-path", sheetrpc.DefaultMethodsPath, "path serving the method catalogue")
	flags.Duration("call-timeout", sheetrpc.DefaultCallTimeout, "deadline for each automation call (negative disables)")
	flags.String("max-body", humanizeBytes(sheetrpc.DefaultMaxBodyBytes), "maximum request body size (e.g. 512KB, 4MiB)")
	flags.Int("max-cells", sheetrpc.DefaultMaxCells, "maximum cells one range request may cover")
	flags.Int("batch-concurrency", jsonrpc.DefaultBatchConcurrency, "batch items dispatched at once")
	flags.String("book-policy", string(sheetrpc.DefaultBookPolicy), "workbook name tie-break: prefer-active, first or strict")
	flags.String("workbook-dir", "", "directory for workbooks saved without a path (default: working directory)")
	flags.String("metrics-listen", "", "Prometheus metrics listen address (empty disables)")
	flags.StringSlice("cors-origins", []string{"*"}, "origins allowed to call the RPC endpoint (empty disables CORS)")
	flags.Float64("rate-limit", 0, "requests per second allowed per client (0 disables)")
	flags.Int("rate-burst", 0, "rate limit burst (default: the rate, rounded up)")
	flags.Int("hsts-max-age", 0, "Strict-Transport-Security max-age in seconds (0 disables)")
	flags.Duration("shutdown-timeout", sheetrpc.DefaultShutdownTimeout, "graceful shutdown deadline")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	lookup := func(name string) *pflag.Flag {
		if flag := flags.Lookup(name); flag != nil {
			return flag
		}
		return persistent.Lookup(name)
	}
	for _, name := range append([]string{"config", "url"}, serveFlags...) {
		flag := lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := v.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(newCallCommand(v))
	cmd.AddCommand(newMethodsCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper, baseLogger pslog.Logger) error {
	configFile, err := loadConfigFile(v)
	if err != nil {
		return err
	}
	cfg, err := bindConfig(v)
	if err != nil {
		return err
	}
	level, ok := pslog.ParseLevel(strings.TrimSpace(v.GetString("log-level")))
	if !ok {
		return fmt.Errorf("invalid --log-level %q", v.GetString("log-level"))
	}
	logger := baseLogger.LogLevel(level)
	cliLogger := svcfields.WithSubsystem(logger, "cli.serve")
	if configFile != "" {
		cliLogger.Info("config.loaded", "path", configFile)
	}

	server, err := sheetrpc.NewServer(cfg, sheetrpc.WithLogger(logger))
	if err != nil {
		return err
	}
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			cliLogger.Error("server.shutdown.failure", "error", err)
		}
	}
	defer shutdown()
	go func() {
		<-ctx.Done()
		shutdown()
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// bindConfig reads the serve settings from v. Precedence is flag, then
// environment, then config file, then flag default.
func bindConfig(v *viper.Viper) (sheetrpc.Config, error) {
	cfg := sheetrpc.Config{
		Listen:           v.GetString("listen"),
		RPCPath:          v.GetString("rpc-path"),
		HealthPath:       v.GetString("health-path"),
		MethodsPath:      v.GetString("methods-path"),
		CallTimeout:      v.GetDuration("call-timeout"),
		MaxCells:         v.GetInt("max-cells"),
		BatchConcurrency: v.GetInt("batch-concurrency"),
		WorkbookDir:      v.GetString("workbook-dir"),
		MetricsListen:    v.GetString("metrics-listen"),
		RateLimit:        v.GetFloat64("rate-limit"),
		RateBurst:        v.GetInt("rate-burst"),
		HSTSMaxAge:       v.GetInt("hsts-max-age"),
		ShutdownTimeout:  v.GetDuration("shutdown-timeout"),
	}
	if policy := strings.TrimSpace(v.GetString("book-policy")); policy != "" {
		cfg.BookPolicy = resolve.Policy(policy)
	}
	if raw := strings.TrimSpace(v.GetString("max-body")); raw != "" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid --max-body %q: %w", raw, err)
		}
		cfg.MaxBodyBytes = int64(size)
	}
	origins := []string{}
	for _, o := range v.GetStringSlice("cors-origins") {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	cfg.CORSOrigins = origins
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}
