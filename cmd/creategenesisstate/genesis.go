package main

import (
	"flag"
	"fmt"
	stdlog "log"
	"path/filepath"

	"github.com/nocturnelabs/nocturne/chainspecs"
	"github.com/nocturnelabs/nocturne/ledger"
	"github.com/nocturnelabs/nocturne/log"
	"github.com/nocturnelabs/nocturne/storage"
)

// Seeds a genesis ledger store for one or more networks so a node can start
// from a committed block-zero root instead of re-deriving it.
func main() {
	var (
		network  = flag.String("network", "", "network id or chainspec path (default: all embedded networks)")
		outDir   = flag.String("out", "/tmp/nocturne-genesis", "directory to write per-network ledger stores under")
		logLevel = flag.String("loglevel", "info", "log verbosity")
	)
	flag.Parse()
	log.InitLogger(*logLevel)

	networks := chainspecs.Networks()
	if *network != "" {
		networks = []string{*network}
	}

	for _, id := range networks {
		spec, err := chainspecs.ReadSpec(id)
		if err != nil {
			stdlog.Fatalf("Error reading chainspec %s: %v", id, err)
		}

		path := filepath.Join(*outDir, filepath.Base(id))
		ps, err := storage.NewPersistenceStore(path)
		if err != nil {
			stdlog.Fatalf("Error opening store %s: %v", path, err)
		}
		store := storage.NewLedgerStore(ps)

		state, err := ledger.NewGenesisLedgerState(spec, store, nil)
		if err != nil {
			stdlog.Fatalf("Error seeding genesis for %s: %v", id, err)
		}
		fmt.Printf("%s: genesis state at %s root=%s supply=%s\n",
			id, path, state.Notes.Root().Hex(), state.TotalSupply().Dec())

		if err := store.Close(); err != nil {
			stdlog.Fatalf("Error closing store %s: %v", path, err)
		}
	}
}
