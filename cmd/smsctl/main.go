// Command smsctl is a command-line client for the smscrm API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

type contextKey int

const contextKeyClient contextKey = iota

func getClient(ctx *cli.Context) *Client {
	return ctx.Context.Value(contextKeyClient).(*Client)
}

func prepareApp(ctx *cli.Context) error {
	client := NewClient(ctx.String("server"), ctx.Duration("timeout"))
	ctx.Context = context.WithValue(ctx.Context, contextKeyClient, client)
	return nil
}

func main() {
	app := &cli.App{
		Name:    "smsctl",
		Usage:   "Resolve, inspect and send SMS conversations",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Base URL of the smscrm server",
				Value:   "http://localhost:8080",
				EnvVars: []string{"SMSCRM_URL"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: defaultTimeout,
			},
		},
		Before: prepareApp,
		Commands: []*cli.Command{
			resolveCommand,
			conversationsCommand,
			messagesCommand,
			deleteCommand,
			sendCommand,
			watchCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
