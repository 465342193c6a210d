package quantparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/carbocation/readquant"
	json "github.com/goccy/go-json"
)

const (
	GlobalFragmentLengthMode = "global_fl_mode"
	RobustFragmentLengthMode = "robust_fl_mode"
)

// ReadQC parses the technical QC of the sample in dir into a record named
// dir. Sidecar metrics come first, in layout order, followed by the
// fragment-length modes for tools that record a distribution.
//
// A missing fragment-length file yields modes of 0. A missing sidecar is an
// error only when the layout requires it; otherwise its path is noted in
// Missing and its metrics are left out.
func (p *Parser) ReadQC(dir string) (*QCRecord, error) {
	if p.qc == nil {
		return nil, &ConfigError{Tool: p.Tool, Version: p.Version, Reason: "parser was not built for QC"}
	}
	l := p.qc

	rec := NewQCRecord(dir)

	var globalMode, robustMode int
	if l.FragmentLengths != "" {
		var err error
		globalMode, robustMode, err = p.fragmentLengthModes(readquant.Join(dir, l.FragmentLengths))
		if err != nil {
			return nil, err
		}
	}

	sidecar := readquant.Join(dir, l.Sidecar)
	err := p.readSidecar(sidecar, l, rec)
	var missing *MissingFileError
	if errors.As(err, &missing) && !l.SidecarRequired {
		rec.Missing = append(rec.Missing, sidecar)
	} else if err != nil {
		return nil, err
	}

	if l.FragmentLengths != "" {
		rec.Set(GlobalFragmentLengthMode, float64(globalMode))
		rec.Set(RobustFragmentLengthMode, float64(robustMode))
	}

	return rec, nil
}

func (p *Parser) fragmentLengthModes(path string) (global, robust int, err error) {
	rc, err := p.open(path)
	var missing *MissingFileError
	if errors.As(err, &missing) {
		return 0, 0, nil
	} else if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	dist, err := readFragmentLengths(rc)
	if err != nil {
		return 0, 0, &MalformedRecordError{Path: path, Err: err}
	}

	global, robust, err = FragmentLengthModes(dist, p.Options.FragmentLengthTrim)
	if err != nil {
		return 0, 0, &MalformedRecordError{Path: path, Err: err}
	}

	return global, robust, nil
}

func (p *Parser) readSidecar(path string, l *QCLayout, rec *QCRecord) error {
	rc, err := p.open(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	switch l.Format {
	case SidecarJSON:
		return readJSONSidecar(rc, path, l.Fields, rec)
	case SidecarLog:
		return readLogSidecar(rc, path, l.Markers, rec)
	}

	return fmt.Errorf("%s: unknown sidecar format %d", path, l.Format)
}

func readJSONSidecar(r io.Reader, path string, fields []string, rec *QCRecord) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return &MalformedRecordError{Path: path, Err: err}
	}

	for _, field := range fields {
		raw, exists := doc[field]
		if !exists {
			return &MalformedRecordError{Path: path, Err: fmt.Errorf("field %s is missing", field)}
		}

		num, ok := raw.(json.Number)
		if !ok {
			return &MalformedRecordError{Path: path, Err: fmt.Errorf("field %s is not numeric: %v", field, raw)}
		}

		v, err := num.Float64()
		if err != nil {
			return &MalformedRecordError{Path: path, Err: fmt.Errorf("field %s: %w", field, err)}
		}

		rec.Set(field, v)
	}

	return nil
}

// readLogSidecar makes a single pass over the log. Each marker takes the
// first line that contains it, after the line its Follows marker matched on;
// markers that never match are left out.
func readLogSidecar(r io.Reader, path string, markers []Marker, rec *QCRecord) error {
	values := make(map[int]float64, len(markers))
	matchedOn := make(map[string]int, len(markers))

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; len(values) < len(markers) && scanner.Scan(); line++ {
		text := scanner.Text()
		for i, m := range markers {
			if _, done := values[i]; done || !strings.Contains(text, m.Contains) {
				continue
			}
			if m.Follows != "" {
				if prev, found := matchedOn[m.Follows]; !found || prev >= line {
					continue
				}
			}

			v, err := m.extract(text)
			if err != nil {
				return &MalformedRecordError{Path: path, Line: line, Err: err}
			}
			values[i] = v
			matchedOn[m.Metric] = line
		}
	}
	if err := scanner.Err(); err != nil {
		return &MalformedRecordError{Path: path, Err: err}
	}

	for i, m := range markers {
		if v, found := values[i]; found {
			rec.Set(m.Metric, v)
		}
	}

	return nil
}

func (m Marker) extract(line string) (float64, error) {
	s := line
	if m.After != "" {
		i := strings.LastIndex(s, m.After)
		if m.FirstAfter {
			i = strings.Index(s, m.After)
		}
		if i >= 0 {
			s = s[i+len(m.After):]
		}
	}
	if m.Before != "" {
		if i := strings.Index(s, m.Before); i >= 0 {
			s = s[:i]
		}
	}
	if m.LastField {
		fields := strings.Fields(s)
		if len(fields) == 0 {
			return 0, fmt.Errorf("%s: no value on line %q", m.Metric, line)
		}
		s = fields[len(fields)-1]
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not numeric", m.Metric, strings.TrimSpace(s))
	}

	return v, nil
}
