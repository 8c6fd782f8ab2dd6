package tendermint

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	tmlog "github.com/tendermint/tendermint/libs/log"
)

// tmLogger adapts a go-kit logger to Tendermint's logger interface.
type tmLogger struct {
	logger log.Logger
}

var _ tmlog.Logger = tmLogger{}

// NewLogger wraps logger for Tendermint services.
func NewLogger(logger log.Logger) tmlog.Logger {
	return tmLogger{logger: logger}
}

func (l tmLogger) Debug(msg string, keyvals ...interface{}) {
	level.Debug(l.logger).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

func (l tmLogger) Info(msg string, keyvals ...interface{}) {
	level.Info(l.logger).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

func (l tmLogger) Error(msg string, keyvals ...interface{}) {
	level.Error(l.logger).Log(append([]interface{}{"msg", msg}, keyvals...)...)
}

func (l tmLogger) With(keyvals ...interface{}) tmlog.Logger {
	return tmLogger{logger: log.With(l.logger, keyvals...)}
}
