package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakenotify/fakenotifyd/internal/client"
	"github.com/fakenotify/fakenotifyd/internal/proto"
	"github.com/fakenotify/fakenotifyd/internal/wire"
)

type cmdAdd struct {
	global *cmdGlobal

	flagPollInterval string
	flagRecursive    bool
}

func (c *cmdAdd) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "add PATH"
	cmd.Short = "Register a watch with a running daemon"
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = c.Run
	cmd.Flags().StringVar(&c.flagPollInterval, "poll-interval", "", "polling interval (e.g. 5s); defaults to the daemon's configured default")
	cmd.Flags().BoolVar(&c.flagRecursive, "recursive", true, "watch subdirectories recursively")
	return cmd
}

func (c *cmdAdd) Run(cmd *cobra.Command, args []string) error {
	socketPath := resolveSocketPath(c.global)
	conn, err := client.Dial(socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	var interval time.Duration
	if c.flagPollInterval != "" {
		interval, err = time.ParseDuration(c.flagPollInterval)
		if err != nil {
			return fmt.Errorf("invalid --poll-interval: %w", err)
		}
	}

	wd, err := conn.Add(args[0], uint32(wire.AllEvents), c.flagRecursive, interval)
	if err != nil {
		return err
	}
	fmt.Printf("watch added: wd=%d path=%s\n", wd, args[0])
	return nil
}

func resolveSocketPath(g *cmdGlobal) string {
	if g.flagSocket != "" {
		return g.flagSocket
	}
	return proto.ResolveSocketPath()
}
