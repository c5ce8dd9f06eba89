package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apiclient "github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/api/client"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/logger"
)

const defaultAPIBaseURL = "http://localhost:4000"

// cli carries the state shared by every subcommand.
type cli struct {
	v       *viper.Viper
	out     io.Writer
	cfgFile string
}

func newRootCmd(out io.Writer, buildVersion string) *cobra.Command {
	c := &cli{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "deploydash",
		Short: "Record and inspect releases of apps to their environments",
		Long: `deploydash talks to the deployment dashboard API.

It registers apps and their components, manages the environments of a
project and records which versions were released where.`,
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.cfgFile, "config", "c", "",
		"config file (default: ~/.config/deploydash/config.yaml)")
	flags.String("api", "", "API base URL (default "+defaultAPIBaseURL+")")
	flags.Int("retries", 3, "retries for transient API failures")
	flags.Duration("timeout", 30*time.Second, "timeout of a single command")
	flags.BoolP("verbose", "v", false, "log HTTP retries to stderr")

	_ = c.v.BindPFlag("api_base_url", flags.Lookup("api"))
	_ = c.v.BindPFlag("retries", flags.Lookup("retries"))
	_ = c.v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = c.v.BindPFlag("verbose", flags.Lookup("verbose"))

	root.AddCommand(
		c.appsCmd(),
		c.envsCmd(),
		c.releaseCmd(),
		c.deploymentsCmd(),
		c.versionsCmd(),
	)
	return root
}

func (c *cli) initConfig() error {
	c.v.SetDefault("api_base_url", defaultAPIBaseURL)
	c.v.SetEnvPrefix("DEPLOYDASH")
	c.v.AutomaticEnv()

	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
		return c.v.ReadInConfig()
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	c.v.AddConfigPath(filepath.Join(home, ".config", "deploydash"))
	c.v.SetConfigName("config")
	c.v.SetConfigType("yaml")
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

func (c *cli) client() (*apiclient.Client, error) {
	var log *slog.Logger
	if c.v.GetBool("verbose") {
		log = logger.NewWithWriter(os.Stderr, "deploydash", slog.LevelDebug)
	}
	httpClient := apiclient.NewRetryingHTTPClient(c.v.GetInt("retries"), log)
	return apiclient.New(c.v.GetString("api_base_url"), apiclient.WithHTTPClient(httpClient))
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := c.v.GetDuration("timeout")
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// run resolves a client and a bounded context before calling fn.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, api *apiclient.Client) error) error {
	api, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := c.context(cmd)
	defer cancel()
	return fn(ctx, api)
}
