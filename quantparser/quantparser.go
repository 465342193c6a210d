// Package quantparser reads one sample directory written by an RNA-seq
// quantification tool and returns either its expression values or its
// technical QC metrics. What to read, and where, is looked up from the layout
// tables in layout.go by tool and format version.
package quantparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/readquant"
	"gonum.org/v1/gonum/floats"
)

// tpmScale is the per-million constant used to turn FPKM into TPM.
const tpmScale = 1e6

type Kind int

const (
	Quant Kind = iota + 1
	QC
)

func (k Kind) String() string {
	switch k {
	case Quant:
		return "quant"
	case QC:
		return "qc"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Options struct {
	// Isoforms selects transcript-level rather than gene-level files.
	Isoforms bool

	// Unit is the value column to return. Empty means TPM.
	Unit Unit

	// FragmentLengthTrim is how many bins to drop from the start and the end
	// of the fragment-length distribution before finding the robust mode.
	FragmentLengthTrim [2]int

	// Opener reads files. Nil means the local disk.
	Opener readquant.Opener
}

// DefaultOptions returns gene-level TPM with a (100, 100) fragment-length
// trim.
func DefaultOptions() Options {
	return Options{
		Unit:               TPM,
		FragmentLengthTrim: [2]int{100, 100},
	}
}

// Selector names what to parse.
type Selector struct {
	Kind    Kind
	Tool    string
	Version string
	Options Options
}

type Parser struct {
	Tool    string
	Version string
	Options Options

	quant *QuantLayout
	qc    *QCLayout
}

// New resolves the layout for sel once, so that an unsupported tool, version
// or unit is reported before any sample is read.
func New(sel Selector) (*Parser, error) {
	p := &Parser{
		Tool:    sel.Tool,
		Version: sel.Version,
		Options: sel.Options,
	}
	if p.Options.Unit == "" {
		p.Options.Unit = TPM
	}
	if p.Options.Opener == nil {
		p.Options.Opener = readquant.FileSystem{}
	}

	switch sel.Kind {
	case Quant:
		l, err := LookupQuant(sel.Tool, sel.Version)
		if err != nil {
			return nil, err
		}
		if _, exists := l.Units[p.Options.Unit]; !exists {
			return nil, &ConfigError{
				Tool:    sel.Tool,
				Version: sel.Version,
				Unit:    p.Options.Unit,
				Reason:  "available units: " + unitNames(l.Units),
			}
		}
		p.quant = &l
	case QC:
		l, err := LookupQC(sel.Tool, sel.Version)
		if err != nil {
			return nil, err
		}
		if trim := p.Options.FragmentLengthTrim; trim[0] < 0 || trim[1] < 0 {
			return nil, &ConfigError{
				Tool:    sel.Tool,
				Version: sel.Version,
				Reason:  fmt.Sprintf("fragment-length trim %v must not be negative", trim),
			}
		}
		p.qc = &l
	default:
		return nil, fmt.Errorf("unknown record kind %v", sel.Kind)
	}

	return p, nil
}

// QuantFile is the path of the quantification table inside dir.
func (p *Parser) QuantFile(dir string) string {
	if p.quant == nil {
		return ""
	}
	if p.Options.Isoforms {
		return readquant.Join(dir, p.quant.IsoformFile)
	}
	return readquant.Join(dir, p.quant.GeneFile)
}

// ReadQuant parses the quantification table in dir into a series named dir.
func (p *Parser) ReadQuant(dir string) (*Series, error) {
	if p.quant == nil {
		return nil, &ConfigError{Tool: p.Tool, Version: p.Version, Reason: "parser was not built for quantification"}
	}

	path := p.QuantFile(dir)
	rc, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	s, err := readTable(rc, path, *p.quant, p.Options.Unit)
	if err != nil {
		return nil, err
	}
	s.Name = dir

	return s, nil
}

func (p *Parser) open(path string) (io.ReadCloser, error) {
	f, err := p.Options.Opener.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &MissingFileError{Path: path, Err: err}
	} else if err != nil {
		return nil, err
	}

	return readquant.MaybeDecompressReadCloser(f)
}

func readTable(r io.Reader, path string, l QuantLayout, unit Unit) (*Series, error) {
	cr := csv.NewReader(r)
	cr.Comma = l.Delimiter
	cr.Comment = l.Comment
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header := l.Columns
	if header == nil {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil, &MalformedRecordError{Path: path, Err: errors.New("file is empty, expected a header")}
		} else if err != nil {
			return nil, csvMalformed(path, err)
		}
		header = append([]string(nil), rec...)
	} else {
		cr.FieldsPerRecord = len(header)
	}

	idCol, valueCol, err := resolveColumns(header, l.IDColumn, l.Units[unit])
	if err != nil {
		return nil, &MalformedRecordError{Path: path, Err: err}
	}

	out := NewSeries("", l.OutputUnit(unit))

	// FPKM sums per id, for TransformFPKMToTPM
	var sums map[string]float64
	if l.Transform == TransformFPKMToTPM {
		sums = make(map[string]float64)
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, csvMalformed(path, err)
		}

		id := rec[idCol]
		v, err := parseValue(rec[valueCol])
		if err != nil {
			line, _ := cr.FieldPos(valueCol)
			return nil, &MalformedRecordError{Path: path, Line: line, Err: fmt.Errorf("%s is not numeric: %q", header[valueCol], rec[valueCol])}
		}

		if sums == nil {
			if err := out.Add(id, v); err != nil {
				line, _ := cr.FieldPos(idCol)
				return nil, &MalformedRecordError{Path: path, Line: line, Err: err}
			}
			continue
		}

		if v < 0 {
			line, _ := cr.FieldPos(valueCol)
			return nil, &MalformedRecordError{Path: path, Line: line, Err: fmt.Errorf("negative value %v for %s", v, id)}
		}
		if isMissing(v) {
			// Counts toward nothing, but the id still exists.
			out.Dropped++
			v = 0
		}
		sums[id] += v
	}

	if sums != nil {
		if err := fpkmToTPM(out, sums); err != nil {
			return nil, &MalformedRecordError{Path: path, Err: err}
		}
	}

	return out, nil
}

// fpkmToTPM fills s, in id order, with FPKM / sum(FPKM) * 1e6.
func fpkmToTPM(s *Series, sums map[string]float64) error {
	ids := make([]string, 0, len(sums))
	fpkm := make([]float64, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fpkm = append(fpkm, sums[id])
	}

	total := floats.Sum(fpkm)
	if total <= 0 {
		return fmt.Errorf("total FPKM is %v, cannot rescale to TPM", total)
	}

	for i, id := range ids {
		if err := s.Add(id, fpkm[i]/total*tpmScale); err != nil {
			return err
		}
	}

	return nil
}

// parseValue reads one numeric cell. Signed NaN spellings such as the -nan
// kallisto writes for zero-length targets read as NaN.
func parseValue(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	unsigned := strings.TrimPrefix(strings.TrimPrefix(cell, "-"), "+")
	if strings.EqualFold(unsigned, "nan") {
		return math.NaN(), nil
	}

	return strconv.ParseFloat(cell, 64)
}

// resolveColumns finds the positions of the id and value columns in header.
func resolveColumns(header []string, idName, valueName string) (idCol, valueCol int, err error) {
	idCol, valueCol = -1, -1
	for col, v := range header {
		switch strings.TrimSpace(v) {
		case idName:
			idCol = col
		case valueName:
			valueCol = col
		}
	}

	if idCol < 0 || valueCol < 0 {
		return idCol, valueCol, fmt.Errorf("Expected to find header columns %q and %q, but found %q", idName, valueName, header)
	}

	return idCol, valueCol, nil
}

func csvMalformed(path string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &MalformedRecordError{Path: path, Line: pe.Line, Err: pe.Err}
	}
	return &MalformedRecordError{Path: path, Err: err}
}

func unitNames(units map[Unit]string) string {
	names := make([]string, 0, len(units))
	for u := range units {
		names = append(names, string(u))
	}
	sort.Strings(names)

	return strings.Join(names, ", ")
}
