// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

const envPrefix = "FORMPILOT"

// app carries the state shared by one root command and its subcommands.
type app struct {
	cfgFile  string
	logLevel string
	v        *viper.Viper
	cfg      *config.Config
}

// NewRootCommand builds a fresh command tree. Every call returns an
// independent tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "formpilot",
		Short:         "formpilot fills and submits web job application forms.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			observability.Initialize(a.cfg.Logger(), zapcore.Lock(os.Stderr))
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("database_driver", a.cfg.Database().Driver))
			return nil
		},
	}
	root.SetVersionTemplate("formpilot version {{.Version}}\n")
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logger.level (debug, info, warn, error)")

	root.AddCommand(
		newApplyCmd(a),
		newProfileCmd(a),
		newHistoryCmd(a),
		newMatchCmd(a),
		newVersionCmd(),
	)
	return root, a
}

// load resolves the configuration from defaults, the config file, the
// environment and flags, in increasing order of precedence.
func (a *app) load() error {
	v := a.v
	config.SetDefaults(v)

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := config.BindLegacyEnv(v); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	if a.logLevel != "" {
		v.Set("logger.level", a.logLevel)
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = &cfg
	return nil
}

// Execute runs the command tree under ctx and logs the terminal error.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	logger := observability.GetLogger()
	if errors.Is(err, context.Canceled) {
		logger.Warn("Command aborted.")
	} else {
		logger.Error("Command execution failed.", zap.Error(err))
	}
	observability.Sync()
	return err
}
