package main

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evercrisp-ai/Ben-OS-sub001/client"
)

const (
	envPrefix = "BOARDCTL"

	cfgKeyServer  = "server"
	cfgKeyToken   = "token"
	cfgKeyTimeout = "timeout"
	cfgKeyDebug   = "debug"

	defaultServer  = "http://localhost:8080"
	defaultTimeout = 30 * time.Second
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg        *viper.Viper
	configFile string
	logger     *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: viper.New(), logger: log.New()}

	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "boardctl drives a task board over the board API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml)")
	flags.String(cfgKeyServer, defaultServer, "board API base URL")
	flags.String(cfgKeyToken, "", "bearer token")
	flags.Duration(cfgKeyTimeout, defaultTimeout, "request timeout")
	flags.Bool(cfgKeyDebug, false, "debug logging")

	root.AddCommand(newBoardCmd(a))
	root.AddCommand(newTasksCmd(a))
	root.AddCommand(newTokenCmd(a))
	return root
}

// loadConfig resolves settings with precedence flag > env > config file > default.
func (a *app) loadConfig(cmd *cobra.Command) error {
	v := a.cfg
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	a.logger.SetOutput(cmd.ErrOrStderr())
	if v.GetBool(cfgKeyDebug) {
		a.logger.SetLevel(log.DebugLevel)
	} else {
		a.logger.SetLevel(log.WarnLevel)
	}
	return nil
}

func (a *app) client() (*client.Client, error) {
	return client.New(client.Config{
		BaseURL: a.cfg.GetString(cfgKeyServer),
		Token:   a.cfg.GetString(cfgKeyToken),
		Logger:  a.logger,
	})
}

func (a *app) timeout() time.Duration {
	if d := a.cfg.GetDuration(cfgKeyTimeout); d > 0 {
		return d
	}
	return defaultTimeout
}
