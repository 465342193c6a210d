// Package posmodel decodes the positional bias models that salmon writes to
// aux_info/obs3_pos.gz (and friends), and smooths them into bias curves.
//
// The wire layout is fixed by the producing tool and is always little-endian:
//
//	uint32 N                      number of models
//	uint32 x N                    length-bin key of each model
//	N times: uint32 M, float64 x M
package posmodel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/carbocation/readquant"
)

const (
	uint32Size  = 4
	float64Size = 8
)

// ErrMalformedBinaryModel is wrapped by every decode failure.
var ErrMalformedBinaryModel = errors.New("malformed binary model")

// Model maps a fragment-length bin to its vector of bias weights. Bins holds
// the keys in the order they were encountered.
type Model struct {
	Bins    []uint32
	Vectors map[uint32][]float64
}

// Vector returns the i'th model in encounter order.
func (m *Model) Vector(i int) ([]float64, bool) {
	if i < 0 || i >= len(m.Bins) {
		return nil, false
	}
	return m.Vectors[m.Bins[i]], true
}

type cursor struct {
	b   []byte
	off int
}

func (c *cursor) need(n uint64, what string) error {
	if remaining := uint64(len(c.b) - c.off); n > remaining {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d, but only %d remain", ErrMalformedBinaryModel, what, n, c.off, remaining)
	}
	return nil
}

func (c *cursor) uint32(what string) (uint32, error) {
	if err := c.need(uint32Size, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.b[c.off:])
	c.off += uint32Size
	return v, nil
}

// Decode parses a decompressed model buffer. Every length field is checked
// against the remaining buffer before anything is read or allocated. Bytes
// after the last model are ignored.
func Decode(b []byte) (*Model, error) {
	c := &cursor{b: b}

	n, err := c.uint32("model count")
	if err != nil {
		return nil, err
	}
	if err := c.need(uint64(n)*uint32Size, fmt.Sprintf("%d length bins", n)); err != nil {
		return nil, err
	}

	keys := make([]uint32, n)
	for i := range keys {
		keys[i], _ = c.uint32("length bin")
	}

	out := &Model{
		Bins:    make([]uint32, 0, n),
		Vectors: make(map[uint32][]float64, n),
	}

	for i, key := range keys {
		m, err := c.uint32(fmt.Sprintf("element count of model %d", i))
		if err != nil {
			return nil, err
		}
		if err := c.need(uint64(m)*float64Size, fmt.Sprintf("%d values of model %d", m, i)); err != nil {
			return nil, err
		}

		vec := make([]float64, m)
		for j := range vec {
			vec[j] = math.Float64frombits(binary.LittleEndian.Uint64(c.b[c.off:]))
			c.off += float64Size
		}

		// A repeated key keeps its first position and takes the later vector.
		if _, exists := out.Vectors[key]; !exists {
			out.Bins = append(out.Bins, key)
		}
		out.Vectors[key] = vec
	}

	return out, nil
}

// Encode is the inverse of Decode.
func Encode(m *Model) []byte {
	size := uint32Size + len(m.Bins)*uint32Size
	for _, key := range m.Bins {
		size += uint32Size + len(m.Vectors[key])*float64Size
	}

	b := make([]byte, 0, size)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(m.Bins)))
	for _, key := range m.Bins {
		b = binary.LittleEndian.AppendUint32(b, key)
	}
	for _, key := range m.Bins {
		vec := m.Vectors[key]
		b = binary.LittleEndian.AppendUint32(b, uint32(len(vec)))
		for _, v := range vec {
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
		}
	}

	return b
}

// Read decodes a model from r, decompressing it first if it is compressed.
func Read(r io.ReadCloser) (*Model, error) {
	rc, err := readquant.MaybeDecompressReadCloser(r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: truncated stream: %v", ErrMalformedBinaryModel, err)
	} else if err != nil {
		return nil, err
	}

	return Decode(b)
}

// ReadFile opens path with opener and decodes the model it holds.
func ReadFile(opener readquant.Opener, path string) (*Model, error) {
	f, err := opener.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return m, nil
}
