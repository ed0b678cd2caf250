package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes per the administrative CLI surface: 0 success, 1 runtime
// error, 2 usage error, 3 daemon unreachable. Only an error wrapping
// pflag.ErrHelp maps to 2; the usage errors cobra reports (wrong argument
// count, unknown flag or command) are plain errors and exit with 1.
const (
	exitOK            = 0
	exitRuntimeError  = 1
	exitUsageError    = 2
	exitUnreachable   = 3
)

type cmdGlobal struct {
	flagSocket string
}

func main() {
	global := &cmdGlobal{}
	root := &cobra.Command{
		Use:          "fakenotifyd",
		Short:        "Userspace inotify emulation daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&global.flagSocket, "socket", "", "control socket path (overrides config and FAKENOTIFY_SOCKET)")

	root.AddCommand((&cmdStart{global: global}).Command())
	root.AddCommand((&cmdAdd{global: global}).Command())
	root.AddCommand((&cmdRemove{global: global}).Command())
	root.AddCommand((&cmdList{global: global}).Command())
	root.AddCommand((&cmdStatus{global: global}).Command())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
	os.Exit(exitOK)
}

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case isUsageError(err):
		return exitUsageError
	case isUnreachableError(err):
		return exitUnreachable
	default:
		return exitRuntimeError
	}
}
