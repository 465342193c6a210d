package readquant

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/csimplestring/go-csv/detector"
)

// DetermineDelimiter returns the single most likely rune that would delimit the
// values in b, assuming a CSV-like table. If nothing stands out, fallback is
// returned.
func DetermineDelimiter(b []byte, fallback rune) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(bytes.NewReader(b), '"')

	if len(delimiters) > 0 && len(delimiters[0]) > 0 {
		return rune(delimiters[0][0])
	}

	return fallback
}

// ParseDelimiter turns a delimiter flag value into a rune. "tab" and the
// two-character escape \t both mean a tab.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "tab", `\t`:
		return '\t', nil
	}

	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) || r == '\n' || r == '\r' || r == '"' {
		return 0, fmt.Errorf("%q is not a usable single-character delimiter", s)
	}

	return r, nil
}
