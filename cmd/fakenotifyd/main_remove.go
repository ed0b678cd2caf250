package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakenotify/fakenotifyd/internal/client"
)

type cmdRemove struct {
	global *cmdGlobal
}

func (c *cmdRemove) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "remove PATH"
	cmd.Short = "Remove a watch by path"
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = c.Run
	return cmd
}

// Run resolves PATH to a watch descriptor via LIST, since the wire
// protocol's REMOVE message only carries a wd. The original daemon's own
// CLI never finished this lookup (see main.rs's cmd_remove); doing it
// here on the client side needs no wire change.
func (c *cmdRemove) Run(cmd *cobra.Command, args []string) error {
	conn, err := client.Dial(resolveSocketPath(c.global))
	if err != nil {
		return err
	}
	defer conn.Close()

	canonical, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	canonical, err = filepath.EvalSymlinks(canonical)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}

	entries, err := conn.List()
	if err != nil {
		return err
	}
	var wd int32
	found := false
	for _, e := range entries {
		if e.Path == canonical {
			wd = e.Wd
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no watch registered for %s", args[0])
	}

	if err := conn.Remove(wd); err != nil {
		return err
	}
	fmt.Printf("watch removed: wd=%d path=%s\n", wd, args[0])
	return nil
}
