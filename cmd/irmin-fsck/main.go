// Command irmin-fsck validates a pack store's contents against the
// structural invariants of the inode format, and reports basic per-kind
// statistics.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/irmin-go/pack/compress"
	"github.com/irmin-go/pack/hash"
	"github.com/irmin-go/pack/inode"
	"github.com/irmin-go/pack/integrity"
	"github.com/irmin-go/pack/packv"
	"github.com/irmin-go/pack/step"
	"github.com/irmin-go/pack/store"
)

const (
	exitOK        = 0
	exitCorrupted = 1
	exitUsage     = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: irmin-fsck <integrity-check|integrity-check-inodes|stat> [flags]")
		return exitUsage
	}
	command, rest := args[0], args[1:]

	flags := pflag.NewFlagSet(command, pflag.ContinueOnError)
	flagRoot := flags.StringP("root", "r", "./pack", "pack store root directory")
	flagLevel := flags.StringP("level", "l", "info", "log output level")
	flagEntries := flags.IntP("entries", "e", 32, "inode branching factor (must match the store's)")
	flagStableHash := flags.IntP("stable-hash", "s", 256, "inode stability threshold (must match the store's)")
	if err := flags.Parse(rest); err != nil {
		return exitUsage
	}

	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	level, err := zerolog.ParseLevel(*flagLevel)
	if err != nil {
		log.Error().Str("level", *flagLevel).Err(err).Msg("could not parse log level")
		return exitUsage
	}
	log = log.Level(level)

	s, err := store.Open(log, store.WithRootDir(*flagRoot))
	if err != nil {
		log.Error().Err(err).Str("root", *flagRoot).Msg("could not open pack store")
		return exitUsage
	}
	defer s.Close()

	switch command {
	case "stat":
		return runStat(log, s)
	case "integrity-check", "integrity-check-inodes":
		cfg := &inode.Config{Entries: *flagEntries, StableHash: *flagStableHash, Ordering: step.SeededHash()}
		if err := cfg.Validate(); err != nil {
			log.Error().Err(err).Msg("invalid inode configuration")
			return exitUsage
		}
		return runIntegrityCheck(log, s, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		return exitUsage
	}
}

func runStat(log zerolog.Logger, s *store.Store) int {
	counts := map[packv.Kind]int{}
	err := s.Each(func(h hash.Hash, key hash.Key) error {
		kind, _, err := s.Find(key)
		if err != nil {
			return err
		}
		counts[kind]++
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("could not walk index")
		return exitUsage
	}

	for kind, count := range counts {
		fmt.Printf("%-20s %d\n", kind, count)
	}
	return exitOK
}

func runIntegrityCheck(log zerolog.Logger, s *store.Store, cfg *inode.Config) int {
	codec, err := compress.NewCodec()
	if err != nil {
		log.Error().Err(err).Msg("could not build codec")
		return exitUsage
	}

	loader := &inode.Loader{Codec: codec, Get: s, Config: cfg}
	checker := &integrity.Checker{Loader: loader}

	var allErrs []error
	err = s.Each(func(h hash.Hash, key hash.Key) error {
		kind, _, err := s.Find(key)
		if err != nil {
			return err
		}
		if !kind.IsInode() {
			return nil
		}
		errs, err := checker.CheckKey(key, kind == packv.KindInodeV2Root)
		if err != nil {
			allErrs = append(allErrs, fmt.Errorf("%s: %w", key, err))
			return nil
		}
		allErrs = append(allErrs, errs...)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("could not walk index")
		return exitUsage
	}

	if len(allErrs) == 0 {
		log.Info().Msg("no corruption detected")
		return exitOK
	}

	for _, e := range allErrs {
		fmt.Println(e)
	}
	log.Error().Int("count", len(allErrs)).Msg("corruption detected")
	return exitCorrupted
}
