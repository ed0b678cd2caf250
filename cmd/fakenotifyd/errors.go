package main

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/fakenotify/fakenotifyd/internal/client"
)

func isUsageError(err error) bool {
	return errors.Is(err, pflag.ErrHelp)
}

func isUnreachableError(err error) bool {
	var unreachable *client.ErrUnreachable
	return errors.As(err, &unreachable)
}
