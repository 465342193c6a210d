package aggregate

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carbocation/readquant/bioqc"
	"github.com/carbocation/readquant/posmodel"
	"github.com/carbocation/readquant/quantparser"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const quantHeader = "Name\tLength\tEffectiveLength\tTPM\tNumReads\n"

const metaInfo = `{"num_processed": 1000, "num_mapped": 900, "percent_mapped": 90.0}`

var salmon072 = quantparser.Selector{Tool: "salmon", Version: "0.7.2", Options: quantparser.Options{FragmentLengthTrim: [2]int{1, 1}}}

// writeSamples creates root/<sample>/<file> for each entry and returns root.
func writeSamples(t *testing.T, samples map[string]map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for sample, files := range samples {
		for rel, contents := range files {
			path := filepath.Join(root, sample, rel)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
		}
	}

	return root
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return zap.New(core), logs
}

func loggedPaths(logs *observer.ObservedLogs, message string) []string {
	out := make([]string, 0)
	for _, entry := range logs.FilterMessage(message).All() {
		out = append(out, entry.ContextMap()["path"].(string))
	}
	return out
}

func TestReadQuantsSkipsMissingSample(t *testing.T) {
	root := writeSamples(t, map[string]map[string]string{
		"a_salmon_out": {"quant.genes.sf": quantHeader + "G1\t1\t1\t10\t1\nG2\t1\t1\t20\t2\n"},
		"b_salmon_out": {"quant.sf": quantHeader + "T1\t1\t1\t10\t1\n"},
		"c_salmon_out": {"quant.genes.sf": quantHeader + "G2\t1\t1\t30\t3\nG3\t1\t1\t40\t4\n"},
	})
	a, b, c := filepath.Join(root, "a_salmon_out"), filepath.Join(root, "b_salmon_out"), filepath.Join(root, "c_salmon_out")

	logger, logs := observedLogger()
	visited := make([]string, 0)
	m, err := ReadQuants(filepath.Join(root, "*_salmon_out"), salmon072, Options{
		Logger:   logger,
		Progress: func(i int, path string) { visited = append(visited, path) },
	})
	require.NoError(t, err)

	require.Equal(t, []string{a, b, c}, visited)
	require.Equal(t, []string{a, c}, m.Cols)
	require.Equal(t, []string{"G1", "G2", "G3"}, m.Rows)
	require.Equal(t, []string{b}, loggedPaths(logs, "skipping sample with a missing file"))

	v, found := m.Get("G2", c)
	require.True(t, found)
	require.Equal(t, 30.0, v)

	// Absent features are missing, not zero.
	_, found = m.Get("G3", a)
	require.False(t, found)
}

func TestReadQuantsPolicy(t *testing.T) {
	root := writeSamples(t, map[string]map[string]string{
		"a": {"quant.genes.sf": quantHeader + "G1\t1\t1\tten\t1\n"},
		"b": {"quant.genes.sf": quantHeader + "G1\t1\t1\t10\t1\n"},
	})
	pattern := filepath.Join(root, "*")

	logger, logs := observedLogger()
	m, err := ReadQuants(pattern, salmon072, Options{Logger: logger})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "b")}, m.Cols)
	require.Equal(t, []string{filepath.Join(root, "a")}, loggedPaths(logs, "skipping malformed sample"))

	m, err = ReadQuants(pattern, salmon072, Options{OnError: PolicyAbort})
	require.Nil(t, m)
	var malformed *quantparser.MalformedRecordError
	require.True(t, errors.As(err, &malformed), "%v", err)
	require.Contains(t, err.Error(), filepath.Join(root, "a"))
}

func TestConfigErrorBeforeEnumeration(t *testing.T) {
	visited := 0
	opts := Options{Progress: func(int, string) { visited++ }}

	// The pattern is malformed too, but the tool is reported first.
	var cfg *quantparser.ConfigError
	_, err := ReadQuants("[", quantparser.Selector{Tool: "rsem", Version: "1.3.0"}, opts)
	require.True(t, errors.As(err, &cfg), "%v", err)

	_, err = ReadQCs("[", quantparser.Selector{Tool: "salmon", Version: "0.5.0"}, opts)
	require.True(t, errors.As(err, &cfg), "%v", err)

	require.Zero(t, visited)
}

func TestReadQCsAbortsOnMalformedSample(t *testing.T) {
	root := writeSamples(t, map[string]map[string]string{
		"a": {"aux_info/meta_info.json": metaInfo},
		"b": {"aux_info/meta_info.json": `{"num_processed": 10`},
		"c": {"aux_info/meta_info.json": metaInfo},
	})

	core, logs := observer.New(zapcore.ErrorLevel)
	m, err := ReadQCs(filepath.Join(root, "*"), salmon072, Options{Logger: zap.New(core)})
	require.Nil(t, m)
	require.Error(t, err)

	var malformed *quantparser.MalformedRecordError
	require.True(t, errors.As(err, &malformed), "%v", err)
	require.Equal(t, []string{filepath.Join(root, "b")}, loggedPaths(logs, "aborting on sample"))
}

func TestReadQCsWithSkipPolicy(t *testing.T) {
	root := writeSamples(t, map[string]map[string]string{
		"a": {"aux_info/meta_info.json": metaInfo, "libParams/flenDist.txt": "1 5 2 9 1\n"},
		"b": {"aux_info/meta_info.json": `{"num_processed": 10`},
		"c": {"libParams/flenDist.txt": "1 5 2 9 1\n"},
	})
	a, c := filepath.Join(root, "a"), filepath.Join(root, "c")

	logger, logs := observedLogger()
	m, err := ReadQCs(filepath.Join(root, "*"), salmon072, Options{Logger: logger, OnError: PolicySkip})
	require.NoError(t, err)

	require.Equal(t, QCIndex, m.IndexName)
	require.Equal(t, []string{a, c}, m.Rows)
	require.Equal(t, []string{"num_processed", "num_mapped", "percent_mapped", "global_fl_mode", "robust_fl_mode"}, m.Cols)
	require.Equal(t, []string{c}, loggedPaths(logs, "QC file not found, its metrics are omitted"))

	v, _ := m.Get(a, "global_fl_mode")
	require.Equal(t, 3.0, v)

	// A sample without its sidecar gets no mapping metrics at all.
	_, found := m.Get(c, "percent_mapped")
	require.False(t, found)
	v, _ = m.Get(c, "robust_fl_mode")
	require.Equal(t, 3.0, v)
}

func gzipModel(t *testing.T, m *posmodel.Model) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(posmodel.Encode(m))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	return buf.String()
}

func TestRead3PBias(t *testing.T) {
	flat := make([]float64, posmodel.ThreePrimeBins)
	for i := range flat {
		flat[i] = 2
	}
	good := gzipModel(t, &posmodel.Model{
		Bins:    []uint32{100, 500, 1000},
		Vectors: map[uint32][]float64{100: {1}, 500: {1}, 1000: flat},
	})
	short := gzipModel(t, &posmodel.Model{
		Bins:    []uint32{100},
		Vectors: map[uint32][]float64{100: {1}},
	})

	root := writeSamples(t, map[string]map[string]string{
		"a_salmon_out": {ThreePrimeBiasFile: good},
		"b_salmon_out": {"quant.sf": quantHeader},
		"c_salmon_out": {ThreePrimeBiasFile: short},
	})

	logger, logs := observedLogger()
	m, err := Read3PBias(filepath.Join(root, "*_salmon_out")+"/", Options{Logger: logger})
	require.NoError(t, err)

	a := filepath.Join(root, "a_salmon_out") + "/"
	require.Equal(t, PositionIndex, m.IndexName)
	require.Equal(t, []string{a}, m.Cols)
	require.Len(t, m.Rows, posmodel.CurvePoints)
	require.Equal(t, "0", m.Rows[0])
	require.Equal(t, "99", m.Rows[99])

	for _, row := range m.Rows {
		v, found := m.Get(row, a)
		require.True(t, found)
		require.InDelta(t, 2.0, v, 1e-4)
	}

	skipped := loggedPaths(logs, "skipping malformed sample")
	require.Len(t, skipped, 1)
	require.True(t, strings.HasSuffix(skipped[0], filepath.Join("c_salmon_out", ThreePrimeBiasFile)))
}

func TestReadBioQCs(t *testing.T) {
	var table strings.Builder
	table.WriteString(quantHeader)
	ref := bioqc.Reference{MT: []string{"MT1"}}
	for i, id := range []string{"E1", "E2", "E3", "E4", "E5", "E6", "E7", "E8", "E9", "E10"} {
		ref.Spikes = append(ref.Spikes, bioqc.Spike{ID: id, Concentration: float64(i + 1)})
		table.WriteString(id + "\t1\t1\t1\t1\n")
	}
	table.WriteString("G1\t1\t1\t10\t1\nMT1\t1\t1\t10\t1\n")

	root := writeSamples(t, map[string]map[string]string{
		"a": {"quant.genes.sf": table.String()},
	})

	m, err := ReadBioQCs(filepath.Join(root, "*"), salmon072, ref, Options{})
	require.NoError(t, err)

	a := filepath.Join(root, "a")
	require.Equal(t, []string{a}, m.Rows)
	require.Equal(t, []string{bioqc.DetectionLimit, bioqc.Accuracy, bioqc.ERCCContent, bioqc.NumGenes, bioqc.MTContent, bioqc.RRNAContent}, m.Cols)

	v, _ := m.Get(a, bioqc.ERCCContent)
	require.Equal(t, 10.0, v)
	v, _ = m.Get(a, bioqc.MTContent)
	require.Equal(t, 500000.0, v)
}

func TestParsePolicy(t *testing.T) {
	for name, want := range map[string]Policy{"default": PolicyDefault, "skip": PolicySkip, "Abort": PolicyAbort} {
		got, err := ParsePolicy(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParsePolicy("retry")
	require.Error(t, err)
	require.Equal(t, "skip", PolicySkip.String())
}
