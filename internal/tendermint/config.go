package tendermint

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// InitTendermint initializes a Tendermint home directory with config and
// genesis files by running `tendermint init --home <tmHome>`. An already
// initialized home is left alone.
func InitTendermint(tmHome string) error {
	if tmHome == "" {
		tmHome = TendermintHome()
	}

	configFile := filepath.Join(tmHome, "config", "config.toml")
	if _, err := os.Stat(configFile); err == nil {
		return nil
	}

	cmd := exec.Command("tendermint", "init", "--home", tmHome)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to initialize Tendermint: %w", err)
	}
	return nil
}

// GetTendermintCommand returns the command that starts a Tendermint node
// connected to the ABCI socket at socketAddr.
//
// Example:
//
//	cmd := tendermint.GetTendermintCommand("/path/to/.tendermint", "unix://kvs.sock")
//	cmd.Start()
func GetTendermintCommand(tmHome, socketAddr string) *exec.Cmd {
	if tmHome == "" {
		tmHome = TendermintHome()
	}
	if socketAddr == "" {
		socketAddr = "unix://kvs.sock"
	}

	cmd := exec.Command("tendermint", "node",
		"--home", tmHome,
		"--proxy_app", socketAddr,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// TendermintHome returns the default Tendermint home directory.
func TendermintHome() string {
	if home := os.Getenv("TMHOME"); home != "" {
		return home
	}
	return filepath.Join(os.Getenv("HOME"), ".tendermint")
}

// SetAppState writes appState into the app_state field of the genesis file
// under tmHome, keeping every other field as is.
func SetAppState(tmHome string, appState any) error {
	path := filepath.Join(tmHome, "config", "genesis.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read genesis: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse genesis: %w", err)
	}
	state, err := json.Marshal(appState)
	if err != nil {
		return fmt.Errorf("encode app state: %w", err)
	}
	doc["app_state"] = state

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode genesis: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}
