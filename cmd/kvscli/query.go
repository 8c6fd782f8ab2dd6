package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"kvstore.contract/kvs/internal/abci"
	"kvstore.contract/kvs/internal/contract"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "read committed contract state",
		Subcommands: []*cli.Command{
			{
				Name:      "value",
				Usage:     "show the value stored under a key",
				ArgsUsage: "KEY",
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						return cli.Exit("usage: kvscli query value KEY", 2)
					}
					return queryContract(c, contract.Value{Key: c.Args().First()})
				},
			},
			{
				Name:   "config",
				Usage:  "show the owner and minimum storage fee",
				Action: func(c *cli.Context) error { return queryContract(c, contract.Config{}) },
			},
			{
				Name:      "balances",
				Usage:     "show the holdings of an address (the signer when omitted)",
				ArgsUsage: "[ADDRESS]",
				Action:    queryBalances,
			},
		},
	}
}

func queryContract(c *cli.Context, msg contract.QueryMsg) error {
	data, err := contract.EncodeQueryMsg(msg)
	if err != nil {
		return err
	}
	return abciQuery(c, abci.QueryPathContract, data)
}

func queryBalances(c *cli.Context) error {
	address := c.Args().First()
	if address == "" {
		id, err := loadIdentity(c)
		if err != nil {
			return err
		}
		address = id.Address()
	}
	return abciQuery(c, abci.QueryPathBalances, []byte(address))
}

func abciQuery(c *cli.Context, path string, data []byte) error {
	ctx, cancel := rpcContext(c)
	defer cancel()

	res, err := rpcClient(c).ABCIQuery(ctx, path, data)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, res.Value, "", "  "); err != nil {
		return fmt.Errorf("unexpected query response: %w", err)
	}
	fmt.Fprintln(c.App.Writer, out.String())
	return nil
}
