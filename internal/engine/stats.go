package engine

import (
	"memvault/internal/cache"
	"memvault/internal/storage"
)

// EngineStats aggregates cache, storage, partition, and document-table
// statistics.
type EngineStats struct {
	Documents  int           `json:"documents"`
	Chunks     int           `json:"chunks"`
	Cache      cache.Stats   `json:"cache"`
	Storage    storage.Stats `json:"storage"`
	Partitions map[int]int   `json:"partitions"`
}

// Health reports the subsystem's operational status. Degraded means it
// still serves requests with reduced capability.
type Health struct {
	Status string   `json:"status"` // healthy or degraded
	Issues []string `json:"issues,omitempty"`
}

// Stats returns a snapshot of component statistics.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	docs := len(e.documents)
	chunks := 0
	for _, d := range e.documents {
		chunks += d.ChunkCount
	}
	e.mu.RUnlock()

	s := EngineStats{
		Documents:  docs,
		Chunks:     chunks,
		Storage:    e.storage.Stats(),
		Partitions: e.partitions.Stats(),
	}
	if e.cache != nil {
		s.Cache = e.cache.Stats()
	}
	return s
}

// IndexHealth reports whether the subsystem is fully functional. The
// vector index being absent is degraded mode with the issue enumerated,
// never a fatal condition.
func (e *Engine) IndexHealth() Health {
	var issues []string

	if e.vector == nil {
		issues = append(issues, "vector index not configured: free-text queries return degraded responses")
	}
	if e.cache == nil {
		issues = append(issues, "caching disabled: every read goes to storage")
	}

	if len(issues) > 0 {
		return Health{Status: "degraded", Issues: issues}
	}
	return Health{Status: "healthy"}
}
