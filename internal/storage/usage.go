package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// PathUsage is the on-disk size of one data path.
type PathUsage struct {
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	Exists bool   `json:"exists"`
}

// DiskUsage returns the size of each non-empty path and their total.
// A path may be a file or a directory (summed recursively). Missing paths are reported
// with Exists=false; other stat or walk errors are returned.
func DiskUsage(paths ...string) ([]PathUsage, int64, error) {
	var (
		out   []PathUsage
		total int64
	)
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				out = append(out, PathUsage{Path: p})
				continue
			}
			return nil, 0, err
		}
		size := info.Size()
		if info.IsDir() {
			if size, err = dirSize(p); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, PathUsage{Path: p, Bytes: size, Exists: true})
		total += size
	}
	return out, total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
