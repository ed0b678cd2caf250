package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakenotify/fakenotifyd/internal/client"
)

type cmdStatus struct {
	global *cmdGlobal
}

func (c *cmdStatus) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "status"
	cmd.Short = "Show daemon counters"
	cmd.RunE = c.Run
	return cmd
}

func (c *cmdStatus) Run(cmd *cobra.Command, args []string) error {
	conn, err := client.Dial(resolveSocketPath(c.global))
	if err != nil {
		return err
	}
	defer conn.Close()

	st, err := conn.Status()
	if err != nil {
		return err
	}
	fmt.Printf("uptime=%ds clients=%d watches=%d\n", st.UptimeSeconds, st.TotalClients, st.TotalWatches)
	return nil
}
