package bioqc

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/carbocation/readquant"
	"github.com/gocarina/gocsv"
)

// Spike is one row of the ERCC spike-in reference table. Other columns of
// the table are ignored.
type Spike struct {
	ID            string  `csv:"ERCC ID"`
	Concentration float64 `csv:"concentration in Mix 1 (attomoles/ul)"`
}

// Reference holds what biological QC needs beyond the sample itself.
type Reference struct {
	Spikes []Spike

	// MT and RRNA are gene ids on the mitochondrial chromosome and of
	// ribosomal RNA biotype.
	MT   []string
	RRNA []string
}

// LoadReference reads the ERCC table and the two gene lists. Empty list
// paths yield empty lists.
func LoadReference(opener readquant.Opener, erccPath, mtPath, rrnaPath string) (Reference, error) {
	var ref Reference
	var err error

	if ref.Spikes, err = ReadERCC(opener, erccPath); err != nil {
		return ref, err
	}
	if mtPath != "" {
		if ref.MT, err = ReadGeneList(opener, mtPath); err != nil {
			return ref, err
		}
	}
	if rrnaPath != "" {
		if ref.RRNA, err = ReadGeneList(opener, rrnaPath); err != nil {
			return ref, err
		}
	}

	return ref, nil
}

func readAll(opener readquant.Opener, path string) ([]byte, error) {
	f, err := opener.Open(path)
	if err != nil {
		return nil, err
	}

	// Closing rc closes f.
	rc, err := readquant.MaybeDecompressReadCloser(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// sniffDelimiter takes a tab or a comma from the first line. Failing that, it
// asks the delimiter detector if detect is set, and otherwise assumes tab.
func sniffDelimiter(b []byte, detect bool) rune {
	first := b
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		first = b[:i]
	}

	switch {
	case bytes.IndexByte(first, '\t') >= 0:
		return '\t'
	case bytes.IndexByte(first, ',') >= 0:
		return ','
	case detect:
		return readquant.DetermineDelimiter(b, '\t')
	}

	return '\t'
}

// ReadERCC reads the ERCC reference table. The delimiter is detected from
// the file, defaulting to tab.
func ReadERCC(opener readquant.Opener, path string) ([]Spike, error) {
	fileBytes, err := readAll(opener, path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(fileBytes))
	r.Comma = sniffDelimiter(fileBytes, true)
	r.LazyQuotes = true

	spikes := []Spike{}
	if err := gocsv.UnmarshalCSV(r, &spikes); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(spikes) == 0 {
		return nil, fmt.Errorf("%s: no ERCC spike-ins found", path)
	}

	for _, s := range spikes {
		if s.ID == "" || s.Concentration <= 0 {
			return nil, fmt.Errorf("%s: spike-in %q has concentration %v", path, s.ID, s.Concentration)
		}
	}

	return spikes, nil
}

// geneListHeader is the column name BioMart gives a gene id export.
const geneListHeader = "ensembl_gene_id"

// ReadGeneList reads one gene id per line from the first column of path.
// Lines starting with # are comments, and a leading ensembl_gene_id header
// is skipped.
func ReadGeneList(opener readquant.Opener, path string) ([]string, error) {
	fileBytes, err := readAll(opener, path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(fileBytes))
	r.Comma = sniffDelimiter(fileBytes, false)
	r.Comment = '#'
	r.FieldsPerRecord = -1

	out := make([]string, 0)
	for i := 0; ; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		if i == 0 && rec[0] == geneListHeader {
			continue
		}
		if rec[0] == "" {
			continue
		}
		out = append(out, rec[0])
	}

	return out, nil
}
