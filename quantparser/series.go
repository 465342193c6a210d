package quantparser

import (
	"fmt"
	"math"
)

type Unit string

const (
	TPM      Unit = "TPM"
	FPKMTPM  Unit = "FPKM_TPM" // TPM-equivalent derived from FPKM
	NumReads Unit = "NumReads"
)

// Series holds one sample's expression values, keyed by feature id, in the
// order the features were read. Every value is finite and non-negative.
type Series struct {
	Name   string
	Unit   Unit
	IDs    []string
	Values []float64

	// Dropped counts NaN or infinite values that were left out.
	Dropped int

	index map[string]int
}

func NewSeries(name string, unit Unit) *Series {
	return &Series{
		Name:   name,
		Unit:   unit,
		IDs:    make([]string, 0),
		Values: make([]float64, 0),
		index:  make(map[string]int),
	}
}

func (s *Series) Len() int {
	return len(s.IDs)
}

// Get returns the value for id, if present.
func (s *Series) Get(id string) (float64, bool) {
	i, exists := s.index[id]
	if !exists {
		return 0, false
	}
	return s.Values[i], true
}

// Add appends a value. NaN and infinities are counted and skipped, while
// negative values and repeated ids are errors.
func (s *Series) Add(id string, v float64) error {
	if isMissing(v) {
		s.Dropped++
		return nil
	}
	if v < 0 {
		return fmt.Errorf("negative value %v for %s", v, id)
	}
	if _, exists := s.index[id]; exists {
		return fmt.Errorf("duplicate feature id %s", id)
	}

	s.index[id] = len(s.IDs)
	s.IDs = append(s.IDs, id)
	s.Values = append(s.Values, v)

	return nil
}

// QCRecord holds one sample's QC metrics, in a stable order.
type QCRecord struct {
	Name    string
	Metrics []string

	// Missing lists optional files that were absent, so the metrics they
	// would have supplied were left out.
	Missing []string

	values map[string]float64
}

func NewQCRecord(name string) *QCRecord {
	return &QCRecord{
		Name:    name,
		Metrics: make([]string, 0),
		values:  make(map[string]float64),
	}
}

// Set stores a metric. A metric keeps the position of its first Set.
func (r *QCRecord) Set(metric string, v float64) {
	if _, exists := r.values[metric]; !exists {
		r.Metrics = append(r.Metrics, metric)
	}
	r.values[metric] = v
}

func (r *QCRecord) Get(metric string) (float64, bool) {
	v, exists := r.values[metric]
	return v, exists
}

func (r *QCRecord) Len() int {
	return len(r.Metrics)
}

func isMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
