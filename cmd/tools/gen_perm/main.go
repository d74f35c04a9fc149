// gen_perm generates interleaver permutation tables and writes them in
// the format the chain loader reads back: JSON when the path ends in
// .json, little-endian int32 otherwise.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/polarsim/wavekit/chain"
)

func main() {
	var (
		n    = flag.Int("n", 64, "permutation size")
		kind = flag.String("kind", "random", "table kind: random or block")
		cols = flag.Int("cols", 8, "columns of the block interleaver")
		seed = flag.Int64("seed", 1, "seed of the random interleaver")
		out  = flag.String("out", "perm.bin", "output path, .json selects the JSON format")
	)
	flag.Parse()

	var (
		il  *chain.Interleaver
		err error
	)
	switch *kind {
	case "random":
		il, err = chain.NewInterleaverRandom(*n, 1, *seed)
	case "block":
		il, err = chain.NewInterleaverBlock(*n, *cols, 1)
	default:
		fmt.Fprintf(os.Stderr, "unknown kind %q; use random or block\n", *kind)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "build table: %v\n", err)
		os.Exit(1)
	}

	if err := il.SaveTable(*out); err != nil {
		fmt.Fprintf(os.Stderr, "save %s: %v\n", *out, err)
		os.Exit(1)
	}

	// Round-trip through the loader to prove the file is readable.
	if _, err := chain.NewInterleaverFromFile(*n, 1, *out); err != nil {
		fmt.Fprintf(os.Stderr, "verify %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s table of size %d to %s\n", *kind, *n, *out)
}
