package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"kvstore.contract/kvs/internal/identity"
)

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "manage the signing key",
		Subcommands: []*cli.Command{
			{
				Name:  "new",
				Usage: "generate a key from a fresh mnemonic",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing key file"},
				},
				Action: keysNew,
			},
			{
				Name:      "recover",
				Usage:     "restore a key from its mnemonic (read from stdin when omitted)",
				ArgsUsage: "[words...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing key file"},
				},
				Action: keysRecover,
			},
			{
				Name:   "show",
				Usage:  "print the address and public key",
				Action: keysShow,
			},
		},
	}
}

func keysNew(c *cli.Context) error {
	mnemonic, err := identity.NewMnemonic()
	if err != nil {
		return err
	}
	id, err := saveFromMnemonic(c, mnemonic)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "address: %s\n", id.Address())
	fmt.Fprintf(c.App.Writer, "mnemonic: %s\n", mnemonic)
	fmt.Fprintln(c.App.Writer, "Write the mnemonic down; it is the only way to recover this key.")
	return nil
}

func keysRecover(c *cli.Context) error {
	mnemonic := strings.Join(c.Args().Slice(), " ")
	if mnemonic == "" {
		fmt.Fprint(c.App.ErrWriter, "Enter mnemonic: ")
		line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read mnemonic: %w", err)
		}
		mnemonic = line
	}
	id, err := saveFromMnemonic(c, mnemonic)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "address: %s\n", id.Address())
	return nil
}

func keysShow(c *cli.Context) error {
	id, err := loadIdentity(c)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]string{
		"address":    id.Address(),
		"public_key": id.PublicKeyHex(),
	})
}

func saveFromMnemonic(c *cli.Context, mnemonic string) (*identity.Identity, error) {
	path := keyPath(c)
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return nil, fmt.Errorf("key file %s already exists (use --force to replace it)", path)
	}
	id, err := identity.FromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := identity.SaveKey(path, id.PrivateKey()); err != nil {
		return nil, fmt.Errorf("save key: %w", err)
	}
	return id, nil
}

// loadIdentity reads the key file and never creates one.
func loadIdentity(c *cli.Context) (*identity.Identity, error) {
	path := keyPath(c)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no key at %s: run `kvscli keys new` first", path)
	}
	return identity.LoadOrCreateIdentity(path)
}
