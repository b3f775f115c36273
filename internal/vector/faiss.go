//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unsafe"
)

const faissCompiled = true

// FAISSIndex is a prebuilt FAISS index loaded read-only from disk.
// Searches share a read lock so Close cannot free the index underneath them.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	ntotal     int
	mu         sync.RWMutex
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// OpenFAISSIndex reads a serialized FAISS index (any index type FAISS can deserialize).
func OpenFAISSIndex(path string) (*FAISSIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat faiss index: %w", err)
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var index *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &index); ret != 0 {
		return nil, fmt.Errorf("read faiss index: %s", faissLastError())
	}
	return &FAISSIndex{
		index:      index,
		dimensions: int(C.faiss_Index_d(index)),
		ntotal:     int(C.faiss_Index_ntotal(index)),
	}, nil
}

// Search runs a single-query search. Slots FAISS reports as -1 (not enough results) are dropped.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return nil, fmt.Errorf("faiss index is closed")
	}
	if k <= 0 || f.ntotal == 0 {
		return nil, nil
	}
	if k > f.ntotal {
		k = f.ntotal
	}

	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("faiss search: %s", faissLastError())
	}

	out := make([]Neighbor, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		out = append(out, Neighbor{Slot: labels[i], Distance: distances[i]})
	}
	return out, nil
}

// Dimensions returns the index dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Size returns the number of vectors in the index.
func (f *FAISSIndex) Size() int {
	return f.ntotal
}

// Close frees the FAISS index.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
