package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// sendCmd dispatches one device command.
var sendCmd = &cobra.Command{
	Use:       "send <start|stop>",
	Short:     "Send a command to the counting device",
	ValidArgs: []string{"start", "stop"},
	Args:      cobra.ExactArgs(1),
	Long: `Send "start" or "stop" to the counting device and print the outcome.

The command is sent as GET {api_url}/jetson/command?action=<action>.

Exit codes:
  0 - The service acknowledged the command
  1 - The action is unknown, or the command was rejected or not delivered

Example:
  flockwatch send -c config.yaml start`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = sendCmd.MarkFlagRequired("config")
}

func runSend(cmd *cobra.Command, args []string) error {
	session, err := loadSession(cmd, slog.LevelWarn)
	if err != nil {
		return err
	}

	res, err := session.Send(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if !res.Accepted {
		fmt.Printf("Command '%s' failed: %s\n", res.Action, res.Message)
		return fmt.Errorf("command %q not acknowledged: %s", res.Action, res.Message)
	}

	fmt.Printf("Command '%s' acknowledged: %s\n", res.Action, res.Message)
	return nil
}
