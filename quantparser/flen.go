package quantparser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// FragmentLengthModes returns the index of the largest value in dist, and the
// index of the largest value once trim[0] bins are dropped from the start and
// trim[1] from the end. The robust mode is reported as an index into dist.
// Ties go to the lowest index.
func FragmentLengthModes(dist []float64, trim [2]int) (global, robust int, err error) {
	if len(dist) == 0 {
		return 0, 0, fmt.Errorf("fragment-length distribution is empty")
	}

	lo, hi := trim[0], len(dist)-trim[1]
	if lo < 0 || trim[1] < 0 || lo >= hi {
		return 0, 0, fmt.Errorf("trimming %v leaves nothing of a %d-bin fragment-length distribution", trim, len(dist))
	}

	global = floats.MaxIdx(dist)
	robust = floats.MaxIdx(dist[lo:hi]) + lo

	return global, robust, nil
}

// readFragmentLengths reads a flat, whitespace-delimited vector of counts.
func readFragmentLengths(r io.Reader) ([]float64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	out := make([]float64, 0)
	for scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %q is not numeric", len(out), scanner.Text())
		}
		out = append(out, v)
	}

	return out, scanner.Err()
}
