// Package engine is the orchestrating facade of the context-memory
// subsystem. It wires the security manager, chunker, cache, tiered storage,
// and partition bookkeeping behind the public operations, and optionally
// forwards free-text queries to an external vector index.
//
// Every public operation performs an access check before proceeding, writes
// an audit record on completion or failure, and returns a safe default
// instead of an error: the subsystem is safe to call from best-effort
// orchestration code without per-call error handling.
package engine

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"memvault/internal/cache"
	"memvault/internal/chunker"
	"memvault/internal/config"
	"memvault/internal/partition"
	"memvault/internal/security"
	"memvault/internal/storage"
)

// Document is one tracked external text source. The table of tracked
// documents feeds ScanForPII and stats only; storage remains the source of
// truth for chunk content.
type Document struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Owner       string    `json:"owner"`
	ContentType string    `json:"content_type"`
	ChunkCount  int       `json:"chunk_count"`
	AddedAt     time.Time `json:"added_at"`
}

// Engine orchestrates the subsystem components. Construct with New, start
// background work with Init, and release resources with Shutdown. One
// Engine instance owns its data directories exclusively.
type Engine struct {
	cfg        *config.Config
	logger     *zap.SugaredLogger
	security   *security.Manager
	chunker    *chunker.AdaptiveChunker
	cache      *cache.Manager // nil when caching is disabled
	storage    *storage.Manager
	partitions *partition.Manager
	vector     VectorIndex // nil means degraded mode

	mu        sync.RWMutex
	documents map[string]*Document

	initOnce     sync.Once
	shutdownOnce sync.Once
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithVectorIndex attaches the external vector index. Without it the engine
// runs in degraded mode: free-text queries fall back to a no-context
// response.
func WithVectorIndex(vi VectorIndex) Option {
	return func(e *Engine) {
		e.vector = vi
	}
}

// New constructs the engine and its components. The only fatal condition is
// failure to load or generate the encryption key.
func New(cfg *config.Config, logger *zap.SugaredLogger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sec, err := security.NewManager(cfg.Security, cfg.KeyFilePath(), cfg.AuditFilePath(), logger)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.Storage, cfg.StorageDir(), logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		security:   sec,
		chunker:    chunker.NewAdaptive(cfg.Chunker, logger),
		storage:    store,
		partitions: partition.NewManager(),
		documents:  make(map[string]*Document),
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache, cfg.CacheDir(), logger)
		if err != nil {
			return nil, err
		}
		e.cache = c
	}

	for _, opt := range opts {
		opt(e)
	}

	// Rebuild the partition table and document index from storage so a
	// restarted process sees what the previous one persisted.
	e.recoverFromStorage()

	return e, nil
}

// Init starts the background loops: the disk-cache TTL sweep and the
// storage-tier migration schedule. Idempotent.
func (e *Engine) Init() error {
	e.initOnce.Do(func() {
		if e.cache != nil {
			e.cache.Start()
		}
		if e.cfg.Storage.Enabled {
			e.storage.Start()
		}
		e.logger.Infow("Engine initialized",
			"encryption", e.security.EncryptionEnabled(),
			"caching", e.cache != nil,
			"vector_index", e.vector != nil)
	})
	return nil
}

// Shutdown stops background work and releases file handles. Idempotent.
func (e *Engine) Shutdown() error {
	var err error
	e.shutdownOnce.Do(func() {
		if e.cache != nil {
			e.cache.Stop()
		}
		err = e.storage.Close()
		if cerr := e.security.Close(); err == nil {
			err = cerr
		}
		e.logger.Infow("Engine shut down")
	})
	return err
}

// Security exposes the security manager for callers needing direct grants
// or audit reads.
func (e *Engine) Security() *security.Manager {
	return e.security
}

// recoverFromStorage repopulates the in-memory document table and partition
// assignments from persisted chunk keys.
func (e *Engine) recoverFromStorage() {
	for _, key := range e.storage.Keys() {
		e.partitions.Assign(key)

		docID, ok := docIDFromChunkKey(key)
		if !ok {
			continue
		}
		rec, ok := e.storage.GetRecord(key)
		if !ok {
			continue
		}
		doc := e.documents[docID]
		if doc == nil {
			doc = &Document{
				ID:          docID,
				Path:        rec.Metadata["path"],
				Owner:       rec.Metadata["owner"],
				ContentType: rec.Metadata["content_type"],
				AddedAt:     rec.CreatedAt,
			}
			e.documents[docID] = doc
		}
		doc.ChunkCount++
		if rec.CreatedAt.Before(doc.AddedAt) {
			doc.AddedAt = rec.CreatedAt
		}
	}
	if len(e.documents) > 0 {
		e.logger.Infow("Recovered document table from storage", "documents", len(e.documents))
	}
}

const chunkKeyInfix = "_chunk_"

// chunkKey derives the storage key for one chunk of a document.
func chunkKey(docID string, index int) string {
	return docID + chunkKeyInfix + strconv.Itoa(index)
}

// docIDFromChunkKey inverts chunkKey.
func docIDFromChunkKey(key string) (string, bool) {
	i := strings.LastIndex(key, chunkKeyInfix)
	if i <= 0 {
		return "", false
	}
	return key[:i], true
}

// chunkKeysOf returns every stored chunk key belonging to a document.
// Storage, not the tracked chunk count, is authoritative: chunks left over
// from a previous, longer version of the document are included.
func (e *Engine) chunkKeysOf(docID string) []string {
	var keys []string
	for _, k := range e.storage.Keys() {
		if id, ok := docIDFromChunkKey(k); ok && id == docID {
			keys = append(keys, k)
		}
	}
	return keys
}

// sanitizeDocID turns a document path into a storage-safe identifier.
func sanitizeDocID(path string) string {
	id := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, path)
	return strings.Trim(id, "_.")
}
