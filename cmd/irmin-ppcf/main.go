// Command irmin-ppcf pretty-prints a pack store's control file as JSON.
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/irmin-go/pack/control"
)

const (
	success = 0
	failure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		flagRoot  string
		flagLevel string
	)

	pflag.StringVarP(&flagRoot, "root", "r", "./pack", "pack store root directory")
	pflag.StringVarP(&flagLevel, "level", "l", "info", "log output level")
	pflag.Parse()

	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	level, err := zerolog.ParseLevel(flagLevel)
	if err != nil {
		log.Error().Str("level", flagLevel).Err(err).Msg("could not parse log level")
		return failure
	}
	log = log.Level(level)

	path := filepath.Join(flagRoot, control.Name)
	file, err := control.OpenRo(log, path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("could not open control file")
		return failure
	}
	defer file.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file.Payload()); err != nil {
		log.Error().Err(err).Msg("could not encode control file payload")
		return failure
	}

	return success
}
