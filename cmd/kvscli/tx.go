package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"kvstore.contract/kvs/internal/contract"
	"kvstore.contract/kvs/internal/types"
)

func txFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "funds", Usage: "coins attached to the call, e.g. 2sei"},
		&cli.BoolFlag{Name: "async", Usage: "return after CheckTx instead of waiting for the block"},
	}
}

func txCommand() *cli.Command {
	return &cli.Command{
		Name:  "tx",
		Usage: "sign and broadcast a contract transaction",
		Subcommands: []*cli.Command{
			{
				Name:  "instantiate",
				Usage: "instantiate the contract with the signer as owner",
				Flags: append(txFlags(),
					&cli.StringFlag{Name: "base-fee", Usage: "minimum storage fee, e.g. 2sei (required)"},
				),
				Action: txInstantiate,
			},
			{
				Name:      "set",
				Usage:     "store a value under a key",
				ArgsUsage: "KEY VALUE",
				Flags:     txFlags(),
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 2 {
						return cli.Exit("usage: kvscli tx set KEY VALUE --funds COINS", 2)
					}
					return executeTx(c, contract.SetValue{Key: c.Args().Get(0), Value: c.Args().Get(1)})
				},
			},
			{
				Name:      "update",
				Usage:     "replace the value under a key",
				ArgsUsage: "KEY VALUE",
				Flags:     txFlags(),
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 2 {
						return cli.Exit("usage: kvscli tx update KEY VALUE", 2)
					}
					return executeTx(c, contract.UpdateValue{Key: c.Args().Get(0), Value: c.Args().Get(1)})
				},
			},
			{
				Name:      "delete",
				Usage:     "remove a key",
				ArgsUsage: "KEY",
				Flags:     txFlags(),
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						return cli.Exit("usage: kvscli tx delete KEY", 2)
					}
					return executeTx(c, contract.DeleteValue{Key: c.Args().Get(0)})
				},
			},
			{
				Name:   "withdraw",
				Usage:  "send the contract balance to the owner",
				Flags:  txFlags(),
				Action: func(c *cli.Context) error { return executeTx(c, contract.Withdraw{}) },
			},
		},
	}
}

func txInstantiate(c *cli.Context) error {
	var msg contract.InstantiateMsg
	if s := c.String("base-fee"); s != "" {
		fee, err := types.ParseCoin(s)
		if err != nil {
			return err
		}
		msg.BaseFee = &fee
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return broadcast(c, types.TxInstantiate, body)
}

func executeTx(c *cli.Context, msg contract.ExecuteMsg) error {
	body, err := contract.EncodeExecuteMsg(msg)
	if err != nil {
		return err
	}
	return broadcast(c, types.TxExecute, body)
}

func broadcast(c *cli.Context, txType types.TransactionType, body []byte) error {
	id, err := loadIdentity(c)
	if err != nil {
		return err
	}
	funds, err := types.ParseCoins(c.String("funds"))
	if err != nil {
		return fmt.Errorf("--funds: %w", err)
	}

	stx, err := types.NewTransaction(txType, body, funds).Sign(id)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}

	ctx, cancel := rpcContext(c)
	defer cancel()
	res, err := rpcClient(c).BroadcastSignedTransaction(ctx, stx, !c.Bool("async"))
	if printErr := printJSON(c, res); printErr != nil {
		return printErr
	}
	return err
}
