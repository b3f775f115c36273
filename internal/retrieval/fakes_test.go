package retrieval

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// fakeEmbedder returns the same unit vector for every text.
type fakeEmbedder struct {
	calls atomic.Int64
	err   error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Close() error    { return nil }

// fakeIndex returns canned neighbors and records the k it was asked for.
type fakeIndex struct {
	calls     atomic.Int64
	lastK     atomic.Int64
	neighbors []vector.Neighbor
	err       error
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, k int) ([]vector.Neighbor, error) {
	f.calls.Add(1)
	f.lastK.Store(int64(k))
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.neighbors) {
		return f.neighbors[:k], nil
	}
	return f.neighbors, nil
}

func (f *fakeIndex) Dimensions() int { return 3 }
func (f *fakeIndex) Size() int       { return len(f.neighbors) }
func (f *fakeIndex) Close() error    { return nil }

// fakeStore is an in-memory passage table with call counters and failure switches.
type fakeStore struct {
	mu       sync.Mutex
	passages map[string]*models.Passage
	failIDs  map[string]bool
	scanErr  error
	jitter   bool
	gets     atomic.Int64
	scans    atomic.Int64
	closed   atomic.Int64
}

func newFakeStore(passages ...*models.Passage) *fakeStore {
	s := &fakeStore{passages: map[string]*models.Passage{}, failIDs: map[string]bool{}}
	for _, p := range passages {
		s.passages[p.ID] = p
	}
	return s
}

func (s *fakeStore) GetPassage(_ context.Context, id string) (*models.Passage, error) {
	s.gets.Add(1)
	if s.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return nil, errStoreDown
	}
	p, ok := s.passages[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) SearchText(_ context.Context, pattern string, limit int) ([]*models.Passage, error) {
	s.scans.Add(1)
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	needle := strings.ToLower(strings.Trim(pattern, "%"))
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Passage
	for _, p := range s.passages {
		if strings.Contains(strings.ToLower(p.ChunkText), needle) {
			cp := *p
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CountPassages(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.passages)), nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { s.closed.Add(1); return nil }

func (s *fakeStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.passages, id)
}

type storeErr string

func (e storeErr) Error() string { return string(e) }

const errStoreDown = storeErr("store down")

// distanceFor returns the squared L2 distance whose similarity is s.
func distanceFor(s float64) float32 {
	return float32(1/s - 1)
}
