// Package tendermint runs the socket ABCI server that a separate Tendermint
// process connects to, and provides helpers for driving that process and its
// JSON-RPC endpoint.
//
// kvsd listens on a socket (unix:// or tcp://). Tendermint is started with
// --proxy_app pointing at it and talks to the application over ABCI.
package tendermint

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/log"
	abciserver "github.com/tendermint/tendermint/abci/server"
	abci "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/libs/service"
)

// Config holds configuration for the ABCI server and Tendermint connection.
type Config struct {
	// TendermintHome is the directory for Tendermint data and config
	TendermintHome string

	// SocketAddress is the listen address, e.g. "unix://kvs.sock" or
	// "tcp://127.0.0.1:26658"
	SocketAddress string

	// Logger receives the socket server's logs. Nil discards them.
	Logger log.Logger
}

// ABCIServer wraps an ABCI socket server.
type ABCIServer struct {
	server service.Service
	socket string
}

// NewABCIServer creates a socket server for app. Call Start to listen.
func NewABCIServer(app abci.Application, config *Config) (*ABCIServer, error) {
	if app == nil {
		return nil, fmt.Errorf("ABCI application cannot be nil")
	}
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.SocketAddress == "" {
		return nil, fmt.Errorf("socket address cannot be empty")
	}

	server := abciserver.NewSocketServer(config.SocketAddress, app)
	if config.Logger != nil {
		server.SetLogger(NewLogger(log.With(config.Logger, "module", "abci-server")))
	}

	return &ABCIServer{
		server: server,
		socket: config.SocketAddress,
	}, nil
}

// Start begins listening for Tendermint connections.
func (s *ABCIServer) Start() error {
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("failed to start ABCI server: %w", err)
	}
	return nil
}

// Stop shuts down the server and removes a unix socket file.
func (s *ABCIServer) Stop() error {
	if s.server.IsRunning() {
		if err := s.server.Stop(); err != nil {
			return fmt.Errorf("failed to stop ABCI server: %w", err)
		}
	}

	if path, ok := strings.CutPrefix(s.socket, "unix://"); ok {
		if _, err := os.Stat(path); err == nil {
			os.Remove(path)
		}
	}
	return nil
}

// IsRunning returns true if the ABCI server is currently running.
func (s *ABCIServer) IsRunning() bool {
	return s.server.IsRunning()
}

// SocketPath returns the socket address the server is listening on.
func (s *ABCIServer) SocketPath() string {
	return s.socket
}
