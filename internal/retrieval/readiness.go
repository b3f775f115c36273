package retrieval

import "context"

// Readiness reports what the engine loaded and which dependencies are reachable.
type Readiness struct {
	IndexLoaded         bool   `json:"index_loaded"`
	IndexEntries        int    `json:"index_entries"`
	IDMapSize           int    `json:"id_map_size"`
	VectorSearchEnabled bool   `json:"vector_search_enabled"`
	Reason              string `json:"reason,omitempty"`
	StoreConnected      bool   `json:"store_connected"`
	EmbedderReady       bool   `json:"embedder_ready"`
}

// Readiness pings the store and snapshots the index status.
func (e *Engine) Readiness(ctx context.Context) Readiness {
	st := e.index.Status()
	return Readiness{
		IndexLoaded:         st.Loaded,
		IndexEntries:        st.Entries,
		IDMapSize:           st.IDMapSize,
		VectorSearchEnabled: st.Enabled,
		Reason:              st.Reason,
		StoreConnected:      e.store.Ping(ctx) == nil,
		EmbedderReady:       e.embeddings.Embedder() != nil,
	}
}

// PassageCount returns the number of passages in the store.
func (e *Engine) PassageCount(ctx context.Context) (int64, error) {
	return e.store.Count(ctx)
}

// Ready reports whether vector search can serve queries. Store reachability does not
// affect it; see Readiness for that.
func (e *Engine) Ready() bool {
	st := e.index.Status()
	return st.Loaded && st.Enabled
}
