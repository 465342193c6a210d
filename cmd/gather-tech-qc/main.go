// gather-tech-qc collects the technical QC of every sample directory matching
// a glob into one samples × metrics table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/carbocation/readquant"
	"github.com/carbocation/readquant/aggregate"
	_ "github.com/carbocation/readquant/compileinfoprint"
	"github.com/carbocation/readquant/quantparser"
	"go.uber.org/zap"
)

func main() {
	var (
		pattern string
		output  string
		tool    string
		version string
		flenLo  int
		flenHi  int
		policy  string
		delim   string
	)

	defaults := quantparser.DefaultOptions()

	flag.StringVar(&pattern, "pattern", "salmon/*_salmon_out", "Glob matching one directory per sample. May be a gs:// path.")
	flag.StringVar(&output, "output", "sample_qc.csv", "Output file. If empty, writes to stdout.")
	flag.StringVar(&tool, "tool", "salmon", fmt.Sprint("Tool that produced the samples. Options: ", strings.Join(quantparser.Tools(quantparser.QC), ", ")))
	flag.StringVar(&version, "version", "0.7.2", "Version of the tool's output format.")
	flag.IntVar(&flenLo, "flen_lo", defaults.FragmentLengthTrim[0], "Bins dropped from the start of the fragment-length distribution before finding the robust mode.")
	flag.IntVar(&flenHi, "flen_hi", defaults.FragmentLengthTrim[1], "Bins dropped from the end of the fragment-length distribution before finding the robust mode.")
	flag.StringVar(&policy, "policy", "default", "What a malformed sample does: default (abort), skip, or abort.")
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

	sel := quantparser.Selector{
		Tool:    tool,
		Version: version,
		Options: quantparser.Options{
			FragmentLengthTrim: [2]int{flenLo, flenHi},
		},
	}

	m, err := aggregate.ReadQCs(pattern, sel, aggregate.Options{
		Logger:  logger,
		OnError: onError,
		FS:      fsys,
	})
	if err != nil {
		log.Fatalln(pfx.Err(err))
	}

	logger.Info("collected technical QC", zap.Int("samples", len(m.Rows)), zap.Strings("metrics", m.Cols))

	if err := m.WriteFile(output, comma); err != nil {
		log.Fatalln(pfx.Err(err))
	}
}
