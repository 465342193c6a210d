package quantparser

import (
	"fmt"
	"sort"
	"strings"
)

// AnyVersion marks a layout that applies to every version of a tool. An entry
// for an exact version always wins over it.
const AnyVersion = "*"

type Key struct {
	Tool    string
	Version string
}

func (k Key) String() string {
	return fmt.Sprintf("(%s, %s)", k.Tool, k.Version)
}

type Transform int

const (
	TransformNone Transform = iota

	// TransformFPKMToTPM sums FPKM over rows sharing an id, then rescales
	// to FPKM / sum(FPKM) * 1e6.
	TransformFPKMToTPM
)

// QuantLayout describes one on-disk quantification table.
type QuantLayout struct {
	IsoformFile string
	GeneFile    string
	Delimiter   rune
	Comment     rune

	// Columns stands in for the header of headerless files. Nil means the
	// first record is the header.
	Columns []string

	IDColumn string

	// Units maps each available unit to the column that holds it.
	Units map[Unit]string

	Transform Transform
}

// OutputUnit is the unit a series parsed with this layout is tagged with.
func (l QuantLayout) OutputUnit(requested Unit) Unit {
	if l.Transform == TransformFPKMToTPM {
		return FPKMTPM
	}
	return requested
}

type SidecarFormat int

const (
	SidecarJSON SidecarFormat = iota + 1
	SidecarLog
)

// Marker pulls one metric out of free-text log output. The first line that
// contains Contains is used; its text after the last occurrence of After (if
// set, or the first occurrence with FirstAfter) is cut at the first
// occurrence of Before (if set), and if LastField is set only the final
// whitespace-separated token is kept.
type Marker struct {
	Metric     string
	Contains   string
	After      string
	FirstAfter bool
	Before     string
	LastField  bool

	// Follows names the metric of a marker that must have matched on an
	// earlier line before this one is looked for.
	Follows string
}

// QCLayout describes where a tool keeps its technical QC.
type QCLayout struct {
	Sidecar string
	Format  SidecarFormat

	// Fields are read, in order, from a JSON sidecar.
	Fields []string

	// Markers are matched, in order, against a log sidecar.
	Markers []Marker

	// SidecarRequired makes a missing sidecar a missing-file error rather
	// than a record without sidecar metrics.
	SidecarRequired bool

	// FragmentLengths is the fragment-length distribution file, or "" if
	// the tool has none.
	FragmentLengths string
}

var salmonTable = QuantLayout{
	IsoformFile: "quant.sf",
	GeneFile:    "quant.genes.sf",
	Delimiter:   '\t',
	IDColumn:    "Name",
	Units: map[Unit]string{
		TPM:      "TPM",
		NumReads: "NumReads",
	},
}

var salmonLegacyTable = QuantLayout{
	IsoformFile: "quant.sf",
	GeneFile:    "quant.genes.sf",
	Delimiter:   '\t',
	Comment:     '#',
	Columns:     []string{"Name", "length", "TPM", "NumReads"},
	IDColumn:    "Name",
	Units: map[Unit]string{
		TPM: "TPM",
	},
}

var kallistoTable = QuantLayout{
	IsoformFile: "abundance.tsv",
	GeneFile:    "abundance.tsv",
	Delimiter:   '\t',
	IDColumn:    "target_id",
	Units: map[Unit]string{
		TPM:      "tpm",
		NumReads: "est_counts",
	},
}

var cufflinksTable = QuantLayout{
	IsoformFile: "isoforms.fpkm_tracking",
	GeneFile:    "genes.fpkm_tracking",
	Delimiter:   '\t',
	IDColumn:    "tracking_id",
	Units: map[Unit]string{
		TPM: "FPKM",
	},
	Transform: TransformFPKMToTPM,
}

var salmonMetaFields = []string{"num_processed", "num_mapped", "percent_mapped"}

const salmonFragmentLengths = "libParams/flenDist.txt"

var salmonQC = QCLayout{
	Sidecar:         "aux_info/meta_info.json",
	Format:          SidecarJSON,
	Fields:          salmonMetaFields,
	FragmentLengths: salmonFragmentLengths,
}

var salmonAuxQC = QCLayout{
	Sidecar:         "aux/meta_info.json",
	Format:          SidecarJSON,
	Fields:          salmonMetaFields,
	FragmentLengths: salmonFragmentLengths,
}

var salmonLogQC = QCLayout{
	Sidecar: "logs/salmon_quant.log",
	Format:  SidecarLog,
	Markers: []Marker{
		{Metric: "num_processed", Contains: "Observed ", After: "Observed ", Before: " total"},
		{Metric: "percent_mapped", Contains: "mapping rate", After: " = ", FirstAfter: true, Before: "%"},
	},
	FragmentLengths: salmonFragmentLengths,
}

var tophatQC = QCLayout{
	Sidecar: "align_summary.txt",
	Format:  SidecarLog,
	Markers: []Marker{
		{Metric: "input_reads", Contains: "Input", LastField: true},
		{Metric: "pct_mapped", Contains: "overall", Before: "%", Follows: "input_reads"},
	},
	SidecarRequired: true,
}

// QuantLayouts is keyed by tool and format version. Supporting a new version
// is a new entry here.
var QuantLayouts = map[Key]QuantLayout{
	{"salmon", "0.8.0"}:       salmonTable,
	{"salmon", "0.7.2"}:       salmonTable,
	{"salmon", "0.6.0"}:       salmonTable,
	{"salmon", "0.4.0"}:       salmonLegacyTable,
	{"sailfish", "0.8.0"}:     salmonTable,
	{"sailfish", "0.7.2"}:     salmonTable,
	{"sailfish", "0.6.0"}:     salmonTable,
	{"sailfish", "0.4.0"}:     salmonLegacyTable,
	{"kallisto", AnyVersion}:  kallistoTable,
	{"cufflinks", AnyVersion}: cufflinksTable,
}

// QCLayouts is keyed by tool and format version.
var QCLayouts = map[Key]QCLayout{
	{"salmon", "0.8.0"}:    salmonQC,
	{"salmon", "0.7.2"}:    salmonQC,
	{"salmon", "0.6.0"}:    salmonAuxQC,
	{"salmon", "0.4.0"}:    salmonLogQC,
	{"sailfish", "0.8.0"}:  salmonQC,
	{"sailfish", "0.7.2"}:  salmonQC,
	{"sailfish", "0.6.0"}:  salmonAuxQC,
	{"sailfish", "0.4.0"}:  salmonLogQC,
	{"tophat", AnyVersion}: tophatQC,
}

// LookupQuant resolves the quantification layout for tool and version.
func LookupQuant(tool, version string) (QuantLayout, error) {
	if l, exists := QuantLayouts[Key{tool, version}]; exists {
		return l, nil
	}
	if l, exists := QuantLayouts[Key{tool, AnyVersion}]; exists {
		return l, nil
	}

	return QuantLayout{}, &ConfigError{
		Tool:    tool,
		Version: version,
		Reason:  "no quantification layout. Valid layouts include: " + quantLayoutNames(),
	}
}

// LookupQC resolves the QC layout for tool and version.
func LookupQC(tool, version string) (QCLayout, error) {
	if l, exists := QCLayouts[Key{tool, version}]; exists {
		return l, nil
	}
	if l, exists := QCLayouts[Key{tool, AnyVersion}]; exists {
		return l, nil
	}

	return QCLayout{}, &ConfigError{
		Tool:    tool,
		Version: version,
		Reason:  "no QC layout. Valid layouts include: " + qcLayoutNames(),
	}
}

func quantLayoutNames() string {
	return layoutNames(layoutKeys(Quant))
}

func qcLayoutNames() string {
	return layoutNames(layoutKeys(QC))
}

func layoutNames(keys []Key) string {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Tool != keys[j].Tool {
			return keys[i].Tool < keys[j].Tool
		}
		return keys[i].Version < keys[j].Version
	})

	b := strings.Builder{}
	for i, k := range keys {
		if i != 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.String())
	}

	return b.String()
}

func layoutKeys(kind Kind) []Key {
	keys := make([]Key, 0)
	switch kind {
	case Quant:
		for k := range QuantLayouts {
			keys = append(keys, k)
		}
	case QC:
		for k := range QCLayouts {
			keys = append(keys, k)
		}
	}
	return keys
}

// Tools lists, sorted, every tool with a layout of the given kind.
func Tools(kind Kind) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, k := range layoutKeys(kind) {
		if _, exists := seen[k.Tool]; exists {
			continue
		}
		seen[k.Tool] = struct{}{}
		out = append(out, k.Tool)
	}
	sort.Strings(out)

	return out
}

// Versions lists, sorted, the versions of tool with a layout of the given
// kind. AnyVersion is included for tool-wide entries.
func Versions(kind Kind, tool string) []string {
	out := make([]string, 0)
	for _, k := range layoutKeys(kind) {
		if k.Tool == tool {
			out = append(out, k.Version)
		}
	}
	sort.Strings(out)

	return out
}
