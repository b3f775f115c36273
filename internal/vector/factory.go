package vector

import "fmt"

// IndexType represents the on-disk format of the prebuilt index.
type IndexType string

const (
	// IndexTypeFlat is the pure-Go brute-force format written by WriteFlatFile.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeFAISS is a serialized FAISS index. Requires the FAISS library and -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// Open loads the index at path. Supported types: "flat" (default), "faiss".
func Open(indexType, path string) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		idx, err := LoadFlatIndex(path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexTypeFAISS:
		idx, err := OpenFAISSIndex(path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// IsFAISSAvailable reports whether FAISS support is compiled in (build tag -tags=faiss).
func IsFAISSAvailable() bool {
	return faissCompiled
}
