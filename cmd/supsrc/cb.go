package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AutumnsGrove/supsrc/internal/ctlsock"
)

var cbCmd = &cobra.Command{
	Use:   "cb",
	Short: "Inspect and acknowledge circuit breakers",
}

var cbAckCmd = &cobra.Command{
	Use:   "ack <repo_id>",
	Short: "Acknowledge a repository's circuit breaker, returning it to IDLE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig()
		if err != nil {
			return fmt.Errorf("cb ack: %w", err)
		}

		conn, err := ctlsock.Dial(ctlsock.DefaultSocketPath(path), 3*time.Second)
		if err != nil {
			exitCode = 1
			return err
		}
		defer conn.Close()

		resp, err := ctlsock.Call(conn, ctlsock.Request{Action: ctlsock.ActionAck, RepoID: args[0]})
		if err != nil {
			exitCode = 1
			return err
		}
		if !resp.OK {
			exitCode = 1
			return errors.New(resp.Error)
		}

		fmt.Printf("acknowledged %s\n", args[0])
		return nil
	},
}

var cbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List every watched repository and any triggered circuit breaker",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig()
		if err != nil {
			// config show already reports load errors; `cb status`
			// always exits 0 per §6, so just report an empty daemon.
			fmt.Println("no repositories (config error: " + err.Error() + ")")
			return nil
		}

		conn, err := ctlsock.Dial(ctlsock.DefaultSocketPath(path), 3*time.Second)
		if err != nil {
			fmt.Println("daemon not running: " + err.Error())
			return nil
		}
		defer conn.Close()

		resp, err := ctlsock.Call(conn, ctlsock.Request{Action: ctlsock.ActionStatus})
		if err != nil {
			fmt.Println("error: " + err.Error())
			return nil
		}

		if len(resp.Repos) == 0 {
			fmt.Println("no repositories watched")
			return nil
		}
		for _, r := range resp.Repos {
			line := fmt.Sprintf("%-20s %-26s branch=%s", r.ID, r.Status, r.Branch)
			if r.BreakerTriggered {
				line += fmt.Sprintf("  BREAKER: %s", r.BreakerReason)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	cbCmd.AddCommand(cbAckCmd)
	cbCmd.AddCommand(cbStatusCmd)
}
