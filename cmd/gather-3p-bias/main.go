// gather-3p-bias smooths salmon's observed 3' positional bias for every
// sample directory matching a glob, and writes one curve per sample.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/carbocation/pfx"
	"github.com/carbocation/readquant"
	"github.com/carbocation/readquant/aggregate"
	_ "github.com/carbocation/readquant/compileinfoprint"
	"go.uber.org/zap"
)

func main() {
	var pattern, output, policy, delim string

	flag.StringVar(&pattern, "pattern", "salmon/*_salmon_out/", "Glob matching one directory per sample, ending in a slash. "+aggregate.ThreePrimeBiasFile+" is appended to it.")
	flag.StringVar(&output, "output", "sample_3p_bias.csv", "Output file. If empty, writes to stdout.")
	flag.StringVar(&policy, "policy", "default", "What a malformed sample does: default (skip), skip, or abort.")
	flag.StringVar(&delim, "delim", ",", "Output delimiter. Use 'tab' for tabs.")
	flag.Parse()

	if pattern == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	comma, err := readquant.ParseDelimiter(delim)
	if err != nil {
		log.Fatalln(pfx.Err(err))
	}

	onError, err := aggregate.ParsePolicy(policy)
	if err != nil {
		log.Fatalln(pfx.Err(err))
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalln(pfx.Err(err))
	}
	defer logger.Sync()

	fsys, err := readquant.NewFileSystem(context.Background(), pattern)
	if err != nil {
		log.Fatalln(pfx.Err(err))
	}
	defer fsys.Close()

	m, err := aggregate.Read3PBias(pattern, aggregate.Options{
		Logger:  logger,
		OnError: onError,
		FS:      fsys,
	})
	if err != nil {
		log.Fatalln(pfx.Err(err))
	}

	logger.Info("smoothed 3' bias", zap.Int("samples", len(m.Cols)))

	if err := m.WriteFile(output, comma); err != nil {
		log.Fatalln(pfx.Err(err))
	}
}
