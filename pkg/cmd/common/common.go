package common

import (
	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/maxgio92/xexport/pkg/cmd/options"
)

const LogLevelInfo = "info"

// ApplyLogLevel sets the level of the shared logger from the log-level
// flag value.
func ApplyLogLevel(o *options.CommonOptions) error {
	level, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	o.Logger = o.Logger.Level(level)

	return nil
}
