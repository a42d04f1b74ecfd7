// Command irmin-ppidx dumps every entry known to a pack store's index, one
// per line.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/store"
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

	s, err := store.Open(log, store.WithRootDir(flagRoot))
	if err != nil {
		log.Error().Err(err).Str("root", flagRoot).Msg("could not open pack store")
		return failure
	}
	defer s.Close()

	err = s.Each(func(h hash.Hash, key hash.Key) error {
		kind, _, err := s.Find(key)
		if err != nil {
			fmt.Printf("%s offset=? length=? kind=? (could not read entry: %v)\n", h, err)
			return nil
		}
		offset, _ := key.Offset()
		length, _ := key.Length()
		fmt.Printf("%s offset=%d length=%d kind=%s\n", h, offset, length, kind)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("could not walk index")
		return failure
	}

	return success
}
