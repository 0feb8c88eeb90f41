package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beeper/ledger-installer/internal/api"
	"github.com/beeper/ledger-installer/internal/ledger"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connected device and app versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := c.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			return c.formatter().Format(cmd.OutOrStdout(), newStatusView(status))
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream device events as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := c.client().Events(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			for seen := 0; count == 0 || seen < count; {
				var env api.Envelope[json.RawMessage]
				if err := conn.ReadJSON(&env); err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return fmt.Errorf("event stream closed: %w", err)
				}

				if env.Type == "status" {
					var status api.Status
					if err := json.Unmarshal(env.Data, &status); err != nil {
						return err
					}
					fmt.Fprintln(out, dimStyle.Render(status.Summary()))
					continue
				}

				ev, ok, err := api.DecodeEvent(env.Type, env.Data)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				fmt.Fprintln(out, eventLine(ev))
				seen++
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (0 streams forever)")
	return cmd
}

func (c *cli) connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Ask the relay to poll the device now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.sendCommand(cmd, ledger.CommandTryConnect)
		},
	}
}

// installCmd builds "install" and "update". Both take main or test.
func (c *cli) installCmd(verb string) *cobra.Command {
	commands := map[string]map[string]ledger.Command{
		"install": {"main": ledger.CommandInstallMain, "test": ledger.CommandInstallTest},
		"update":  {"main": ledger.CommandUpdateMain, "test": ledger.CommandUpdateTest},
	}[verb]

	return &cobra.Command{
		Use:       verb + " main|test",
		Short:     fmt.Sprintf("Ask the relay to %s the Bitcoin or Bitcoin Test app", verb),
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"main", "test"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command, ok := commands[args[0]]
			if !ok {
				return fmt.Errorf("unknown app %q, expected main or test", args[0])
			}
			return c.sendCommand(cmd, command)
		},
	}
}

func (c *cli) sendCommand(cmd *cobra.Command, command ledger.Command) error {
	if err := c.client().Command(cmd.Context(), command.String()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", command)
	return nil
}

func (c *cli) resetAlarmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-alarm",
		Short: "Acknowledge the current alarm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := c.client().ResetAlarm(cmd.Context())
			if err != nil {
				return err
			}
			return c.formatter().Format(cmd.OutOrStdout(), newStatusView(status))
		},
	}
}
