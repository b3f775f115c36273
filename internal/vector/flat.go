package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	// maxFlatVectors bounds the header count before the size check runs.
	maxFlatVectors = 1 << 26
	flatHeaderSize = 8
)

// FlatIndex is a brute-force squared-L2 index held in memory.
// It is immutable after construction and safe for concurrent searches.
type FlatIndex struct {
	dimensions int
	data       []float32 // n*dimensions, row-major
}

// NewFlatIndex builds an index from vectors; vector i occupies slot i.
func NewFlatIndex(dimensions int, vectors [][]float32) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	data := make([]float32, 0, len(vectors)*dimensions)
	for i, vec := range vectors {
		if len(vec) != dimensions {
			return nil, fmt.Errorf("vector %d: dimension mismatch: got %d, expected %d", i, len(vec), dimensions)
		}
		data = append(data, vec...)
	}
	return &FlatIndex{dimensions: dimensions, data: data}, nil
}

// LoadFlatIndex reads an index written by WriteFlatFile. Format: dimension (4), n (4),
// then n*dimension float32 values, all little-endian.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	if dim == 0 {
		return nil, fmt.Errorf("index file has zero dimensions")
	}
	if n > maxFlatVectors {
		return nil, fmt.Errorf("index file claims %d vectors", n)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index file: %w", err)
	}
	want := flatHeaderSize + uint64(dim)*uint64(n)*4
	if uint64(info.Size()) != want {
		return nil, fmt.Errorf("index file is %d bytes, header (dim=%d, n=%d) implies %d", info.Size(), dim, n, want)
	}

	buf := make([]byte, int(dim)*int(n)*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}
	data := make([]float32, int(dim)*int(n))
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return &FlatIndex{dimensions: int(dim), data: data}, nil
}

// WriteFlatFile writes vectors in the format read by LoadFlatIndex, creating the directory if needed.
func WriteFlatFile(path string, dimensions int, vectors [][]float32) error {
	if _, err := NewFlatIndex(dimensions, vectors); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	header := []uint32{uint32(dimensions), uint32(len(vectors))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, vec := range vectors {
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			f.Close()
			return fmt.Errorf("write vector: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	return f.Close()
}

// Search returns the k nearest slots by squared L2 distance. Ties keep slot order.
func (x *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), x.dimensions)
	}
	n := x.Size()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	all := make([]Neighbor, n)
	for i := 0; i < n; i++ {
		row := x.data[i*x.dimensions : (i+1)*x.dimensions]
		all[i] = Neighbor{Slot: int64(i), Distance: utils.SquaredL2(query, row)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Distance < all[j].Distance })
	if k > n {
		k = n
	}
	return all[:k:k], nil
}

// Dimensions returns the vector dimension.
func (x *FlatIndex) Dimensions() int {
	return x.dimensions
}

// Size returns the number of vectors.
func (x *FlatIndex) Size() int {
	return len(x.data) / x.dimensions
}

// Close is a no-op for FlatIndex.
func (x *FlatIndex) Close() error {
	return nil
}
