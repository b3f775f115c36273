package vector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// LoadIDMap reads a JSON object mapping index slots to passage ids, e.g. {"0": "chunk-17"}.
// Keys that are not integers and values that are not strings or numbers are skipped with a warning.
func LoadIDMap(path string, logger *zap.Logger) (map[int64]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read id map: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse id map: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("parse id map: trailing data after object")
	}

	out := make(map[int64]string, len(raw))
	for key, value := range raw {
		slot, err := strconv.ParseInt(key, 10, 64)
		if err != nil || slot < 0 {
			logger.Warn("skipping id map entry with invalid slot", zap.String("slot", key))
			continue
		}
		switch v := value.(type) {
		case string:
			out[slot] = v
		case json.Number:
			out[slot] = v.String()
		default:
			logger.Warn("skipping id map entry with invalid passage id", zap.String("slot", key))
		}
	}
	return out, nil
}
