// gather-expression collects the expression values of every sample directory
// matching a glob into one features × samples table.
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
	"github.com/carbocation/readquant/compileinfo"
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
		unit     string
		isoforms bool
		policy   string
		delim    string
	)

	flag.StringVar(&pattern, "pattern", "salmon/*_salmon_out", "Glob matching one directory per sample. May be a gs:// path.")
	flag.StringVar(&output, "output", "expression.csv", "Output file. If empty, writes to stdout.")
	flag.StringVar(&tool, "tool", "salmon", fmt.Sprint("Quantification tool. Options: ", strings.Join(quantparser.Tools(quantparser.Quant), ", ")))
	flag.StringVar(&version, "version", "0.7.2", "Version of the tool's output format.")
	flag.StringVar(&unit, "unit", string(quantparser.NumReads), "Value to collect: TPM or NumReads.")
	flag.BoolVar(&isoforms, "isoforms", false, "Collect transcript-level rather than gene-level values.")
	flag.StringVar(&policy, "policy", "default", "What a malformed sample does: default (skip), skip, or abort.")
	flag.StringVar(&delim, "delim", ",", "Output delimiter. Use 'tab' for tabs.")
	flag.Parse()

	if pattern == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(pattern, output, tool, version, quantparser.Unit(unit), isoforms, policy, delim); err != nil {
		log.Fatalln(pfx.Err(err))
	}
}

func run(pattern, output, tool, version string, unit quantparser.Unit, isoforms bool, policy, delim string) error {
	comma, err := readquant.ParseDelimiter(delim)
	if err != nil {
		return err
	}

	onError, err := aggregate.ParsePolicy(policy)
	if err != nil {
		return err
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Debug("build", compileinfo.Get().Fields()...)

	fsys, err := readquant.NewFileSystem(context.Background(), pattern)
	if err != nil {
		return err
	}
	defer fsys.Close()

	sel := quantparser.Selector{
		Tool:    tool,
		Version: version,
		Options: quantparser.Options{
			Isoforms: isoforms,
			Unit:     unit,
		},
	}

	m, err := aggregate.ReadQuants(pattern, sel, aggregate.Options{
		Logger:  logger,
		OnError: onError,
		FS:      fsys,
		Progress: func(i int, path string) {
			logger.Debug("reading sample", zap.Int("i", i), zap.String("path", path))
		},
	})
	if err != nil {
		return err
	}

	logger.Info("collected expression", zap.Int("samples", len(m.Cols)), zap.Int("features", len(m.Rows)))

	return m.WriteFile(output, comma)
}
