package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultServer = "http://127.0.0.1:8000"

type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Control a running ledger-installer relay",
		Long: `ledgerctl talks to the ledger-installer relay over HTTP. It shows what
the relay knows about the connected device, streams device events and
asks the relay to install or update the Bitcoin apps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.ledgerctl.yaml)")
	flags.String("server", defaultServer, "relay base URL")
	flags.String("token", "", "relay bearer token")
	flags.StringP("output", "o", "table", "output format: table, json or yaml")

	c.v.BindPFlag("server", flags.Lookup("server"))
	c.v.BindPFlag("token", flags.Lookup("token"))
	c.v.BindPFlag("output", flags.Lookup("output"))

	root.AddCommand(
		c.statusCmd(),
		c.watchCmd(),
		c.connectCmd(),
		c.installCmd("install"),
		c.installCmd("update"),
		c.resetAlarmCmd(),
		versionCmd(),
	)
	return root
}

// initConfig reads .ledgerctl.yaml from the home or current directory and
// LEDGERCTL_* environment variables. A missing default config file is fine.
func (c *cli) initConfig() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home)
		}
		c.v.AddConfigPath(".")
		c.v.SetConfigType("yaml")
		c.v.SetConfigName(".ledgerctl")
	}

	c.v.SetEnvPrefix("LEDGERCTL")
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && c.cfgFile == "" {
			return nil
		}
		return err
	}
	return nil
}

func (c *cli) client() *relayClient {
	return newRelayClient(c.v.GetString("server"), c.v.GetString("token"))
}

func (c *cli) formatter() formatter {
	return newFormatter(c.v.GetString("output"))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ledgerctl version",
		Run: func(cmd *cobra.Command, args []string) {
			commit := Commit
			if commit == "" {
				commit = "dev"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledgerctl %s (built %s)\n", commit, BuildTime)
		},
	}
}
