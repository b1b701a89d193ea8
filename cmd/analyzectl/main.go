package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/persona-backend/internal/client/recovery"
	"github.com/yungbote/persona-backend/internal/platform/logger"
	"github.com/yungbote/persona-backend/internal/platform/shutdown"
)

var rootCmd = &cobra.Command{
	Use:           "analyzectl",
	Short:         "Submit assessments to the persona backend and recover their analyses",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default ./analyzectl.yaml or $HOME/analyzectl.yaml)")
	pf.String("base-url", "http://localhost:8080", "persona backend base URL")
	pf.String("token", "", "bearer token; the backend takes the user id from it")
	pf.String("user-id", "", "user id used for the latest-analysis fallback")
	pf.Duration("timeout", 15*time.Second, "timeout for fetch requests")
	pf.Duration("submit-timeout", 160*time.Second, "timeout for a submission")
	pf.Int("max-retries", recovery.DefaultMaxRetries, "refresh attempts before giving up")
	pf.Bool("verbose", false, "log state transitions")
	_ = viper.BindPFlags(pf)

	rootCmd.AddCommand(submitCmd, fetchCmd, recoverCmd)
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("analyzectl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
	}
	viper.SetEnvPrefix("persona")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && viper.GetString("config") != "" {
			fmt.Fprintf(os.Stderr, "warning: could not read config: %v\n", err)
		}
	}
}

func newClient() (*recovery.Client, error) {
	return recovery.New(recovery.Options{
		BaseURL:       viper.GetString("base-url"),
		Token:         viper.GetString("token"),
		Timeout:       viper.GetDuration("timeout"),
		SubmitTimeout: viper.GetDuration("submit-timeout"),
	})
}

func newLogger() (*logger.Logger, error) {
	if viper.GetBool("verbose") {
		return logger.New("development")
	}
	return logger.New("test")
}

func newSession(variant string) (*recovery.Session, *logger.Logger, error) {
	c, err := newClient()
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	s := recovery.NewSession(c, recovery.Config{
		Variant:    variant,
		UserID:     viper.GetString("user-id"),
		MaxRetries: viper.GetInt("max-retries"),
	}, log)
	return s, log, nil
}
