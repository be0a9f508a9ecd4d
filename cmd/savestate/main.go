// Command savestate is an interactive shell over a single savestate
// file, wiring together file-based configuration, structured logging,
// and the pkg/savestate store.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/go-savestate/savestate/internal/cli"
	"github.com/go-savestate/savestate/internal/config"
	"github.com/go-savestate/savestate/pkg/logger"
	"github.com/go-savestate/savestate/pkg/savestate"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "savestate.yml", "path to a YAML config file")
		modeFlag   = pflag.StringP("mode", "m", "c", "open mode: r, w, c, or n")
		verify     = pflag.Bool("verify-checksum", false, "verify record checksums on every read")
	)
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: savestate [flags] <path>")
		pflag.PrintDefaults()
		os.Exit(2)
	}
	path := pflag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("savestate")
	defer log.Sync()

	mode, err := savestate.ParseMode(*modeFlag)
	if err != nil {
		log.Fatalw("invalid open mode", "mode", *modeFlag, "error", err)
	}

	fullPath := filepath.Join(cfg.DataDir, path)
	store, err := savestate.Open(fullPath, mode,
		savestate.WithVerifyChecksum(*verify || cfg.VerifyChecksum),
		savestate.WithBatchSize(int(cfg.BatchSize)),
		savestate.WithSyncInterval(cfg.SyncInterval()),
		savestate.WithLogger(log),
	)
	if err != nil {
		log.Fatalw("failed to open store", "path", fullPath, "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorw("error closing store", "error", err)
		}
	}()

	log.Infow("savestate opened", "path", savestate.Path(fullPath))

	handler := cli.NewHandler(store, log)
	if err := handler.Run(); err != nil {
		log.Fatalw("cli exited with error", "error", err)
	}
}
