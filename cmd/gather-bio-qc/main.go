// gather-bio-qc computes spike-in recovery and library composition metrics for
// every sample directory matching a glob.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/carbocation/pfx"
	"github.com/carbocation/readquant"
	"github.com/carbocation/readquant/aggregate"
	"github.com/carbocation/readquant/bioqc"
	_ "github.com/carbocation/readquant/compileinfoprint"
	"github.com/carbocation/readquant/quantparser"
	"go.uber.org/zap"
)

func main() {
	var (
		pattern  string
		output   string
		tool     string
		version  string
		erccFile string
		mtFile   string
		rrnaFile string
		policy   string
		delim    string
	)

	flag.StringVar(&pattern, "pattern", "salmon/*_salmon_out", "Glob matching one directory per sample. May be a gs:// path.")
	flag.StringVar(&output, "output", "sample_bio_qc.csv", "Output file. If empty, writes to stdout.")
	flag.StringVar(&tool, "tool", "salmon", "Quantification tool.")
	flag.StringVar(&version, "version", "0.7.2", "Version of the tool's output format.")
	flag.StringVar(&erccFile, "ercc", "", "ERCC reference table with 'ERCC ID' and 'concentration in Mix 1 (attomoles/ul)' columns.")
	flag.StringVar(&mtFile, "mt", "", "File listing mitochondrial gene ids, one per line.")
	flag.StringVar(&rrnaFile, "rrna", "", "File listing rRNA gene ids, one per line.")
	flag.StringVar(&policy, "policy", "default", "What a malformed sample does: default (abort), skip, or abort.")
	flag.StringVar(&delim, "delim", ",", "Output delimiter. Use 'tab' for tabs.")
	flag.Parse()

	if pattern == "" || erccFile == "" {
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

	fsys, err := readquant.NewFileSystem(context.Background(), pattern, erccFile, mtFile, rrnaFile)
	if err != nil {
		log.Fatalln(pfx.Err(err))
	}
	defer fsys.Close()

	ref, err := bioqc.LoadReference(fsys, erccFile, mtFile, rrnaFile)
	if err != nil {
		log.Fatalln(pfx.Err(err))
	}
	logger.Info("collected QC references", zap.Int("spikes", len(ref.Spikes)), zap.Int("mt_genes", len(ref.MT)), zap.Int("rrna_genes", len(ref.RRNA)))

	sel := quantparser.Selector{Tool: tool, Version: version}
	m, err := aggregate.ReadBioQCs(pattern, sel, ref, aggregate.Options{
		Logger:  logger,
		OnError: onError,
		FS:      fsys,
	})
	if err != nil {
		log.Fatalln(pfx.Err(err))
	}

	if err := m.WriteFile(output, comma); err != nil {
		log.Fatalln(pfx.Err(err))
	}
}
