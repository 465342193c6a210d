package quantparser

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type quantExpectation struct {
	Tool     string
	Version  string
	Isoforms bool
	Unit     Unit
	Files    map[string]string

	IDs    []string
	Values []float64
	Tagged Unit
}

func TestReadQuantLayouts(t *testing.T) {
	salmonDir := map[string]string{
		"quant.genes.sf": salmonGenes,
		"quant.sf":       salmonIsoforms,
	}

	cases := []quantExpectation{
		{"cufflinks", "2.2.1", false, TPM, map[string]string{"genes.fpkm_tracking": cufflinksGenes},
			[]string{"G1", "G2"}, []float64{375000, 625000}, FPKMTPM},
		{"kallisto", "0.43.0", true, TPM, map[string]string{"abundance.tsv": kallistoAbundance},
			[]string{"ENST01", "ENST02"}, []float64{2.5, 0.25}, TPM},
		{"kallisto", "0.43.0", true, NumReads, map[string]string{"abundance.tsv": kallistoAbundance},
			[]string{"ENST01", "ENST02"}, []float64{42, 7}, NumReads},
		{"salmon", "0.4.0", true, TPM, map[string]string{"quant.sf": salmonLegacy},
			[]string{"ENST01", "ENST02"}, []float64{12.5, 7.5}, TPM},
		{"sailfish", "0.4.0", false, TPM, map[string]string{"quant.genes.sf": salmonLegacy},
			[]string{"ENST01", "ENST02"}, []float64{12.5, 7.5}, TPM},
	}
	for _, version := range []string{"0.6.0", "0.7.2", "0.8.0"} {
		for _, tool := range []string{"salmon", "sailfish"} {
			cases = append(cases,
				quantExpectation{tool, version, false, TPM, salmonDir,
					[]string{"ENSG01", "ENSG02", "ENSG03"}, []float64{10.5, 0, 89.5}, TPM},
				quantExpectation{tool, version, false, NumReads, salmonDir,
					[]string{"ENSG01", "ENSG02", "ENSG03"}, []float64{100, 0, 1234.5}, NumReads},
				quantExpectation{tool, version, true, TPM, salmonDir,
					[]string{"ENST01", "ENST02"}, []float64{60, 40}, TPM},
			)
		}
	}

	for _, v := range cases {
		p, err := New(Selector{Kind: Quant, Tool: v.Tool, Version: v.Version, Options: Options{Isoforms: v.Isoforms, Unit: v.Unit}})
		if err != nil {
			t.Fatalf("%+v: %v", v, err)
		}

		dir := writeSample(t, v.Files)
		s, err := p.ReadQuant(dir)
		if err != nil {
			t.Fatalf("%s %s (isoforms=%v, %s): %v", v.Tool, v.Version, v.Isoforms, v.Unit, err)
		}

		if !reflect.DeepEqual(s.IDs, v.IDs) || !reflect.DeepEqual(s.Values, v.Values) || s.Unit != v.Tagged || s.Name != dir {
			t.Errorf("\n%s %s (isoforms=%v, %s)\nGot: %v %v %s\nExpected: %v %v %s", v.Tool, v.Version, v.Isoforms, v.Unit, s.IDs, s.Values, s.Unit, v.IDs, v.Values, v.Tagged)
		}
	}
}

func TestCufflinksGrouping(t *testing.T) {
	a, b, c := 1.25, 2.5, 6.25
	table := cufflinksHeader +
		"G1\t-\t-\tG1\tA\t-\tchr1:1-2\t-\t-\t1.25\t0\t0\tOK\n" +
		"G2\t-\t-\tG2\tB\t-\tchr1:1-2\t-\t-\t6.25\t0\t0\tOK\n" +
		"G1\t-\t-\tG1\tA\t-\tchr1:3-4\t-\t-\t2.5\t0\t0\tOK\n"

	p, err := New(Selector{Kind: Quant, Tool: "cufflinks", Version: "2.2.1", Options: Options{Isoforms: true}})
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.ReadQuant(writeSample(t, map[string]string{"isoforms.fpkm_tracking": table}))
	if err != nil {
		t.Fatal(err)
	}

	total := (a + b) + c
	if got, _ := s.Get("G1"); got != (a+b)/total*1e6 {
		t.Errorf("G1: got %v, expected %v", got, (a+b)/total*1e6)
	}
	if got, _ := s.Get("G2"); got != c/total*1e6 {
		t.Errorf("G2: got %v, expected %v", got, c/total*1e6)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 features, got %d", s.Len())
	}
}

func TestReadQuantIsIdempotent(t *testing.T) {
	p, err := New(Selector{Kind: Quant, Tool: "salmon", Version: "0.7.2", Options: DefaultOptions()})
	if err != nil {
		t.Fatal(err)
	}
	dir := writeSample(t, map[string]string{"quant.genes.sf": salmonGenes})

	first, err := p.ReadQuant(dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.ReadQuant(dir)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("two reads differ:\n%+v\n%+v", first, second)
	}
}

func TestReadQuantMissingFile(t *testing.T) {
	p, err := New(Selector{Kind: Quant, Tool: "salmon", Version: "0.7.2"})
	if err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{
		writeSample(t, map[string]string{"quant.sf": salmonIsoforms}),
		filepath.Join(t.TempDir(), "does-not-exist"),
	} {
		_, err = p.ReadQuant(dir)

		var missing *MissingFileError
		if !errors.As(err, &missing) || !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("expected a MissingFileError, got %v", err)
		}
		if missing.Path != filepath.Join(dir, "quant.genes.sf") {
			t.Errorf("error names %s", missing.Path)
		}
	}
}

func TestReadQuantMalformed(t *testing.T) {
	for name, v := range map[string]struct {
		table string
		line  int
	}{
		"non-numeric": {"Name\tLength\tEffectiveLength\tTPM\tNumReads\nA\t1\t1\t1\t1\nB\t1\t1\tabc\t1\n", 3},
		"field count": {"Name\tLength\tEffectiveLength\tTPM\tNumReads\nA\t1\t1\t1\t1\nB\t1\t1\n", 3},
		"duplicate":   {"Name\tLength\tEffectiveLength\tTPM\tNumReads\nA\t1\t1\t1\t1\nA\t1\t1\t2\t1\n", 3},
		"negative":    {"Name\tLength\tEffectiveLength\tTPM\tNumReads\nA\t1\t1\t-1\t1\n", 2},
		"no column":   {"Name\tLength\tEffectiveLength\tNumReads\nA\t1\t1\t1\n", 0},
		"empty":       {"", 0},
	} {
		p, err := New(Selector{Kind: Quant, Tool: "salmon", Version: "0.7.2"})
		if err != nil {
			t.Fatal(err)
		}

		_, err = p.ReadQuant(writeSample(t, map[string]string{"quant.genes.sf": v.table}))

		var malformed *MalformedRecordError
		if !errors.As(err, &malformed) {
			t.Fatalf("%s: expected a MalformedRecordError, got %v", name, err)
		}
		if malformed.Line != v.line {
			t.Errorf("%s: expected line %d, got %d (%v)", name, v.line, malformed.Line, err)
		}
	}
}

func TestLegacyFieldCount(t *testing.T) {
	p, err := New(Selector{Kind: Quant, Tool: "salmon", Version: "0.4.0", Options: Options{Isoforms: true}})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.ReadQuant(writeSample(t, map[string]string{"quant.sf": "# header\nENST01\t1000\t12.5\n"}))

	var malformed *MalformedRecordError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected a MalformedRecordError, got %v", err)
	}
}

func TestCufflinksZeroTotal(t *testing.T) {
	p, err := New(Selector{Kind: Quant, Tool: "cufflinks", Version: "2.2.1"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.ReadQuant(writeSample(t, map[string]string{"genes.fpkm_tracking": cufflinksHeader}))

	var malformed *MalformedRecordError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected a MalformedRecordError, got %v", err)
	}
}

func TestNaNIsDropped(t *testing.T) {
	p, err := New(Selector{Kind: Quant, Tool: "kallisto", Version: "0.43.0"})
	if err != nil {
		t.Fatal(err)
	}

	table := "target_id\tlength\teff_length\test_counts\ttpm\nA\t1\t1\t1\tnan\nB\t1\t1\t1\t3\nC\t0\t0\t0\t-nan\nD\t0\t0\t0\t-NaN\n"
	s, err := p.ReadQuant(writeSample(t, map[string]string{"abundance.tsv": table}))
	if err != nil {
		t.Fatal(err)
	}

	if s.Len() != 1 || s.Dropped != 3 {
		t.Errorf("expected 1 kept and 3 dropped, got %d and %d", s.Len(), s.Dropped)
	}
	for _, id := range []string{"A", "C", "D"} {
		if _, found := s.Get(id); found {
			t.Errorf("NaN value for %s was kept", id)
		}
	}
}

func TestParseValue(t *testing.T) {
	for _, cell := range []string{"nan", "-nan", "NaN", "-NaN", " +nan "} {
		v, err := parseValue(cell)
		if err != nil || !math.IsNaN(v) {
			t.Errorf("%q: expected NaN, got %v %v", cell, v, err)
		}
	}

	if v, err := parseValue(" 2.5 "); err != nil || v != 2.5 {
		t.Errorf("expected 2.5, got %v %v", v, err)
	}
	for _, cell := range []string{"", "-", "nan1", "ten"} {
		if _, err := parseValue(cell); err == nil {
			t.Errorf("%q: expected an error", cell)
		}
	}
}

func TestReadQuantGzipped(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(kallistoAbundance)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "abundance.tsv"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := New(Selector{Kind: Quant, Tool: "kallisto", Version: "0.43.0"})
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.ReadQuant(dir)
	if err != nil {
		t.Fatal(err)
	}

	if v, _ := s.Get("ENST01"); v != 2.5 {
		t.Errorf("expected 2.5, got %v", v)
	}
}

func TestWrongKind(t *testing.T) {
	p, err := New(Selector{Kind: QC, Tool: "salmon", Version: "0.7.2"})
	if err != nil {
		t.Fatal(err)
	}

	var cfg *ConfigError
	if _, err := p.ReadQuant(t.TempDir()); !errors.As(err, &cfg) {
		t.Errorf("expected a ConfigError, got %v", err)
	}
}
