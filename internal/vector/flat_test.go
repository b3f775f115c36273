package vector

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestFlatIndex_Search(t *testing.T) {
	idx, err := NewFlatIndex(3, [][]float32{
		{0, 1, 0},
		{1, 0, 0},
		{0.9, 0.1, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	got, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(got))
	}
	if got[0].Slot != 1 || got[0].Distance != 0 {
		t.Errorf("nearest should be slot 1 at distance 0, got %+v", got[0])
	}
	if got[1].Slot != 2 {
		t.Errorf("second should be slot 2, got %+v", got[1])
	}
}

func TestFlatIndex_SearchClampsK(t *testing.T) {
	idx, _ := NewFlatIndex(2, [][]float32{{1, 0}, {0, 1}})
	got, err := idx.Search(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 neighbors, got %d", len(got))
	}
}

func TestFlatIndex_SearchEmpty(t *testing.T) {
	idx, _ := NewFlatIndex(2, nil)
	got, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no neighbors, got %d", len(got))
	}
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewFlatIndex(3, [][]float32{{1, 0, 0}})
	if _, err := idx.Search(context.Background(), []float32{1, 0}, 1); err == nil {
		t.Error("expected error for short query")
	}
	if _, err := NewFlatIndex(3, [][]float32{{1, 0}}); err == nil {
		t.Error("expected error for short vector")
	}
	if _, err := NewFlatIndex(0, nil); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestFlatIndex_CanceledContext(t *testing.T) {
	idx, _ := NewFlatIndex(2, [][]float32{{1, 0}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Search(ctx, []float32{1, 0}, 1); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestWriteFlatFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "passages.index")
	vectors := [][]float32{{0.5, -0.25}, {1, 0}, {0, 1}}
	if err := WriteFlatFile(path, 2, vectors); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(8 + 3*2*4); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}

	idx, err := LoadFlatIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Dimensions() != 2 || idx.Size() != 3 {
		t.Fatalf("loaded dim=%d size=%d", idx.Dimensions(), idx.Size())
	}
	got, err := idx.Search(context.Background(), []float32{0.5, -0.25}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Slot != 0 || got[0].Distance != 0 {
		t.Errorf("expected exact match at slot 0, got %+v", got[0])
	}
}

func TestLoadFlatIndex_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFlatIndex(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}

	truncated := filepath.Join(dir, "truncated")
	if err := WriteFlatFile(truncated, 4, [][]float32{{1, 2, 3, 4}}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(truncated)
	if err := os.WriteFile(truncated, data[:len(data)-3], 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFlatIndex(truncated); err == nil {
		t.Error("expected error for truncated file")
	}

	zeroDim := filepath.Join(dir, "zero")
	if err := os.WriteFile(zeroDim, make([]byte, 8), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFlatIndex(zeroDim); err == nil {
		t.Error("expected error for zero dimensions")
	}

	oversized := filepath.Join(dir, "oversized")
	if err := os.WriteFile(oversized, corruptFlatHeader(0xFFFFFFFF, 1<<26), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFlatIndex(oversized); err == nil {
		t.Error("expected error when the header disagrees with the file size")
	}

	trailing := filepath.Join(dir, "trailing")
	if err := WriteFlatFile(trailing, 2, [][]float32{{1, 2}}); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(trailing)
	if err := os.WriteFile(trailing, append(data, 0, 0, 0, 0), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFlatIndex(trailing); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

// corruptFlatHeader returns a bare 8-byte header with no vector data.
func corruptFlatHeader(dim, n uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], dim)
	binary.LittleEndian.PutUint32(buf[4:], n)
	return buf
}
