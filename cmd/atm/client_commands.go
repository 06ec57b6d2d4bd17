package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	atmclient "atm_bridge/internal/client"
	"atm_bridge/internal/domain/entity"
	"atm_bridge/internal/pkg/logger"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// Actions wait for the transaction to be mined, so the default is generous.
const defaultRequestTimeout = 3 * time.Minute

type clientCall func(ctx context.Context, cl atmclient.ATMClient) (*entity.ATMResponse, error)

func clientCommands() []*cli.Command {
	return []*cli.Command{
		simpleClientCommand("status", "Show the ATM view", func(ctx context.Context, cl atmclient.ATMClient) (*entity.ATMResponse, error) {
			return cl.Status(ctx)
		}),
		simpleClientCommand("connect", "Request account authorization", func(ctx context.Context, cl atmclient.ATMClient) (*entity.ATMResponse, error) {
			return cl.Connect(ctx)
		}),
		simpleClientCommand("refresh", "Re-read contract and wallet balances", func(ctx context.Context, cl atmclient.ATMClient) (*entity.ATMResponse, error) {
			return cl.Refresh(ctx)
		}),
		simpleClientCommand("deposit", "Deposit 1 into the ATM", func(ctx context.Context, cl atmclient.ATMClient) (*entity.ATMResponse, error) {
			return cl.Deposit(ctx)
		}),
		simpleClientCommand("withdraw", "Withdraw 1 from the ATM", func(ctx context.Context, cl atmclient.ATMClient) (*entity.ATMResponse, error) {
			return cl.Withdraw(ctx)
		}),
		simpleClientCommand("multiply", "Multiply the ATM balance by 2", func(ctx context.Context, cl atmclient.ATMClient) (*entity.ATMResponse, error) {
			return cl.Multiply(ctx)
		}),
		transferOwnershipCommand(),
	}
}

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:    "timeout",
		Aliases: []string{"t"},
		Value:   defaultRequestTimeout,
		Usage:   "How long to wait for the server",
	}
}

func simpleClientCommand(name, usage string, call clientCall) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			return runClient(c, call)
		},
	}
}

func transferOwnershipCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer-ownership",
		Usage:     "Transfer contract ownership to another address",
		ArgsUsage: "[NEW_OWNER]",
		Flags: []cli.Flag{
			timeoutFlag(),
			&cli.StringFlag{
				Name:  "to",
				Usage: "New owner address",
			},
		},
		Action: func(c *cli.Context) error {
			newOwner := c.String("to")
			if newOwner == "" {
				newOwner = c.Args().First()
			}
			return runClient(c, func(ctx context.Context, cl atmclient.ATMClient) (*entity.ATMResponse, error) {
				return cl.TransferOwnership(ctx, newOwner)
			})
		},
	}
}

func runClient(c *cli.Context, call clientCall) error {
	zapLogger := zap.NewNop()
	if c.Bool("debug") {
		var err error
		zapLogger, err = logger.InitZap("debug", true)
		if err != nil {
			return err
		}
		defer func() { _ = zapLogger.Sync() }()
	}

	timeout := c.Duration("timeout")
	ctx, cancel := context.WithTimeout(c.Context, timeout)
	defer cancel()

	cl := atmclient.NewATMClient(c.String("server"), timeout, zapLogger)
	resp, err := call(ctx, cl)

	var apiErr *atmclient.APIError
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		if printErr := printResponse(c.App.Writer, apiErr.Response, c.Bool("json")); printErr != nil {
			return printErr
		}
		return err
	}
	if err != nil {
		return err
	}
	return printResponse(c.App.Writer, resp, c.Bool("json"))
}

func printResponse(w io.Writer, resp *entity.ATMResponse, asJSON bool) error {
	if asJSON {
		data, err := jsoniter.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := io.WriteString(w, renderView(resp.Data))
	return err
}

// renderView prints the same information the ATM page shows.
func renderView(v entity.View) string {
	var b strings.Builder
	if v.Branch != entity.BranchAccount {
		b.WriteString(v.Message)
		if v.Connecting {
			b.WriteString(" (waiting for authorization)")
		}
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Your Account: %s\n", v.Account)
	switch {
	case v.BalanceString == "":
		b.WriteString("Your Balance: loading\n")
	case v.BalanceExact:
		fmt.Fprintf(&b, "Your Balance: %s\n", v.BalanceString)
	default:
		fmt.Fprintf(&b, "Your Balance: %s (exceeds int64)\n", v.BalanceString)
	}
	if v.WalletBalance != "" {
		fmt.Fprintf(&b, "Wallet Balance: %s ETH\n", v.WalletBalance)
	}
	for _, action := range v.Pending {
		fmt.Fprintf(&b, "Pending: %s\n", action)
	}

	actions := make([]string, 0, len(v.Errors))
	for action := range v.Errors {
		actions = append(actions, string(action))
	}
	sort.Strings(actions)
	for _, action := range actions {
		fmt.Fprintf(&b, "%s\n", v.Errors[entity.Action(action)])
	}
	for _, notice := range v.Notices {
		fmt.Fprintf(&b, "%s\n", notice)
	}
	return b.String()
}
