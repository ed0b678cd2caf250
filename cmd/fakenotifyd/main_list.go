package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakenotify/fakenotifyd/internal/client"
)

type cmdList struct {
	global *cmdGlobal
}

func (c *cmdList) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "list"
	cmd.Short = "List active watches"
	cmd.RunE = c.Run
	return cmd
}

func (c *cmdList) Run(cmd *cobra.Command, args []string) error {
	conn, err := client.Dial(resolveSocketPath(c.global))
	if err != nil {
		return err
	}
	defer conn.Close()

	entries, err := conn.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no active watches")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("wd=%-4d recursive=%-5v path=%s\n", e.Wd, e.Recursive, e.Path)
	}
	return nil
}
