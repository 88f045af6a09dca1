package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vk/taskgrid/internal/app"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/hcl"
)

// EnvPrefix prefixes the environment variable of every flag, e.g.
// TASKGRID_LOG_LEVEL for --log-level.
const EnvPrefix = "TASKGRID"

// options layers flags, environment and defaults through viper.
type options struct {
	v    *viper.Viper
	outW io.Writer
	errW io.Writer
}

func newOptions(outW, errW io.Writer) *options {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// CI is the conventional switch of headless environments.
	_ = v.BindEnv("ci", "CI")
	return &options{v: v, outW: outW, errW: errW}
}

// bindFlags declares the persistent flags on root and binds them to viper.
func (o *options) bindFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringSliceP("file", "f", []string{"Buildfile.hcl"}, "Buildfile or directory of *.hcl files (repeatable)")
	flags.String("log-level", "info", "Logging level: debug, info, warn or error")
	flags.String("log-format", "text", "Log output format: text or json")
	flags.Int("workers", 0, "Maximum number of tasks running actions at once (0 = number of CPUs)")
	flags.String("mode", string(config.ModeFailFast), "Failure mode: fail-fast or fail-soft")
	flags.String("profile", "", "Build profile exposed as run.profile (default \"dev\")")
	flags.StringArray("var", nil, "Override a Buildfile variable, as name=value (repeatable)")
	flags.String("env-file", ".env", "File of KEY=VALUE lines loaded into the environment")
	flags.Int("healthcheck-port", 0, "Port for the /health and /metrics server (0 = disabled)")
	flags.String("otlp-endpoint", "", "OTLP/HTTP endpoint receiving traces")
	_ = o.v.BindPFlags(flags)
}

// loadEnvFile loads the .env file. A missing default file is ignored; a
// missing file named explicitly is an error.
func (o *options) loadEnvFile(cmd *cobra.Command) error {
	path := o.v.GetString("env-file")
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// parseVars turns name=value pairs into a map.
func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: want name=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}

// appConfig builds the validated app configuration. Invalid values are
// usage errors.
func (o *options) appConfig(cmd *cobra.Command) (*app.Config, error) {
	// Read the flag directly so values may contain commas.
	pairs := o.v.GetStringSlice("var")
	if f := cmd.Flags().Lookup("var"); f != nil && f.Changed {
		pairs, _ = cmd.Flags().GetStringArray("var")
	}
	vars, err := parseVars(pairs)
	if err != nil {
		return nil, usageError(err)
	}
	cfg, err := app.NewConfig(app.Config{
		BuildfilePaths:  o.v.GetStringSlice("file"),
		Vars:            vars,
		Mode:            config.Mode(strings.ToLower(o.v.GetString("mode"))),
		Profile:         o.v.GetString("profile"),
		CI:              o.v.GetBool("ci"),
		LogFormat:       strings.ToLower(o.v.GetString("log-format")),
		LogLevel:        strings.ToLower(o.v.GetString("log-level")),
		HealthcheckPort: o.v.GetInt("healthcheck-port"),
		Workers:         o.v.GetInt("workers"),
		OTLPEndpoint:    o.v.GetString("otlp-endpoint"),
		Version:         Version,
	})
	if err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

// newApp loads the Buildfiles and returns the wired application. The
// caller closes it.
func (o *options) newApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.appConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.NewApp(cmd.Context(), o.outW, o.errW, cfg, hcl.NewLoader())
}
