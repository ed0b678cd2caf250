package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakenotify/fakenotifyd/internal/config"
	"github.com/fakenotify/fakenotifyd/internal/daemon"
	"github.com/fakenotify/fakenotifyd/internal/logging"
	"github.com/fakenotify/fakenotifyd/internal/proto"
)

type cmdStart struct {
	global *cmdGlobal

	flagConfig string
	flagDebug  bool
}

func (c *cmdStart) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "start"
	cmd.Short = "Run the daemon in the foreground"
	cmd.RunE = c.Run
	cmd.Flags().StringVar(&c.flagConfig, "config", "", "path to a TOML configuration file")
	cmd.Flags().BoolVar(&c.flagDebug, "debug", false, "enable verbose console logging")
	return cmd
}

func (c *cmdStart) Run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.flagConfig)
	if err != nil {
		return err
	}

	logging.Init(c.flagDebug)
	defer logging.Log.Sync()

	socketPath := cfg.Daemon.Socket
	if c.global.flagSocket != "" {
		socketPath = c.global.flagSocket
	} else if env := os.Getenv(proto.SocketEnvVar); env != "" {
		socketPath = env
	}

	srv := daemon.New(socketPath, 5*time.Second, cfg.DebounceWindow())

	for _, w := range cfg.Watch {
		interval := w.PollInterval.AsDuration()
		if interval <= 0 {
			interval = 5 * time.Second
		}
		wd, err := srv.Reg.Add(0, w.Path, uint32(0xffffffff), w.Recursive, interval)
		if err != nil {
			logging.LogSugar.Errorw("failed to add configured watch", "path", w.Path, "error", err)
			continue
		}
		logging.LogSugar.Infow("configured watch active", "path", w.Path, "wd", wd, "poll_interval", interval)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	logging.LogSugar.Infow("daemon started", "socket", socketPath)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		srv.Shutdown(5 * time.Second)
		return nil
	}
}
