package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jxwalker/docfetch/internal/apiclient"
	friendlyerrors "github.com/jxwalker/docfetch/internal/errors"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	apiclient.Version = version
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

// describe prefers the friendly form of errors that carry one.
func describe(err error) string {
	var ce *apiclient.ConnectivityError
	if errors.As(err, &ce) {
		return ce.Friendly().Error()
	}
	var fe *friendlyerrors.UserFriendlyError
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return err.Error()
}
