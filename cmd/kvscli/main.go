// Command kvscli manages keys, submits signed contract transactions and
// queries the key-value contract through a Tendermint RPC endpoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"kvstore.contract/kvs/internal/tendermint"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	home, _ := os.UserHomeDir()
	return &cli.App{
		Name:  "kvscli",
		Usage: "client for the kvs key-value contract",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "home",
				Value:   filepath.Join(home, ".kvscli"),
				Usage:   "directory holding the key file",
				EnvVars: []string{"KVSCLI_HOME"},
			},
			&cli.StringFlag{
				Name:  "key",
				Value: "key.pem",
				Usage: "key file name, relative to --home",
			},
			&cli.StringFlag{
				Name:    "rpc",
				Value:   "http://127.0.0.1:26657",
				Usage:   "Tendermint RPC address",
				EnvVars: []string{"KVS_RPC_ADDRESS"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "deadline for each RPC call",
			},
		},
		Commands: []*cli.Command{
			keysCommand(),
			txCommand(),
			queryCommand(),
		},
	}
}

func keyPath(c *cli.Context) string {
	p := c.String("key")
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.String("home"), p)
}

func rpcClient(c *cli.Context) *tendermint.BroadcastClient {
	return tendermint.NewBroadcastClient(c.String("rpc"))
}

func rpcContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, c.Duration("timeout"))
}

func printJSON(c *cli.Context, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
