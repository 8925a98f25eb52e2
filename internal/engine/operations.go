package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// noContextResponse is the degraded answer when no vector index is attached
// or no match clears the similarity threshold.
const noContextResponse = "No relevant context available."

// AddDocument reads, sanitizes, chunks, encrypts, and persists a document.
// Returns false rather than an error on any I/O or access failure so batch
// ingestion can continue past individual failures.
func (e *Engine) AddDocument(path, user string, contentType ...string) bool {
	if !e.security.CheckAccess(user, path, "write") {
		e.security.Audit(user, "add_document", path, false, map[string]interface{}{"reason": "access denied"})
		return false
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		e.logger.Warnw("Document unreadable", "path", path, "error", err)
		e.security.Audit(user, "add_document", path, false, map[string]interface{}{"error": err.Error()})
		return false
	}

	text := e.security.Sanitize(string(raw), true)

	ct := ""
	if len(contentType) > 0 {
		ct = contentType[0]
	}

	docID := sanitizeDocID(path)
	chunks, err := e.chunker.Chunk(text, docID, ct)
	if err != nil {
		e.logger.Warnw("Chunking failed", "path", path, "error", err)
		e.security.Audit(user, "add_document", path, false, map[string]interface{}{"error": err.Error()})
		return false
	}
	if len(chunks) == 0 {
		e.logger.Warnw("Document produced no chunks", "path", path)
		e.security.Audit(user, "add_document", path, false, map[string]interface{}{"reason": "no chunks"})
		return false
	}

	texts := make([]string, 0, len(chunks))
	metas := make([]map[string]string, 0, len(chunks))
	ids := make([]string, 0, len(chunks))

	for _, c := range chunks {
		encrypted, err := e.security.Encrypt(c.Text)
		if err != nil {
			e.logger.Errorw("Chunk encryption failed", "source", docID, "index", c.Index, "error", err)
			e.security.Audit(user, "add_document", path, false, map[string]interface{}{"error": err.Error()})
			return false
		}

		key := chunkKey(docID, c.Index)
		meta := map[string]string{
			"path":         path,
			"owner":        user,
			"index":        fmt.Sprintf("%d", c.Index),
			"total":        fmt.Sprintf("%d", c.Total),
			"method":       c.Method,
			"content_type": c.ContentType,
		}
		if _, err := e.storage.Store(key, encrypted, meta); err != nil {
			e.logger.Errorw("Chunk store failed", "key", key, "error", err)
			e.security.Audit(user, "add_document", path, false, map[string]interface{}{"error": err.Error()})
			return false
		}
		e.partitions.Assign(key)

		texts = append(texts, c.Text)
		metas = append(metas, meta)
		ids = append(ids, key)
	}

	// Re-chunking supersedes the previous version entirely: chunks beyond
	// the new count would otherwise survive in storage, the partition
	// table, and the vector index, and still decrypt by key.
	current := make(map[string]bool, len(ids))
	for _, id := range ids {
		current[id] = true
	}
	var stale []string
	for _, k := range e.chunkKeysOf(docID) {
		if !current[k] {
			stale = append(stale, k)
		}
	}
	for _, k := range stale {
		if _, err := e.storage.Delete(k); err != nil {
			e.logger.Warnw("Superseded chunk delete failed", "key", k, "error", err)
		}
		if e.cache != nil {
			e.cache.Remove(k)
		}
		e.partitions.Remove(k)
	}
	if len(stale) > 0 {
		e.logger.Infow("Superseded previous document version", "source", docID, "stale_chunks", len(stale))
	}

	if e.vector != nil {
		if len(stale) > 0 {
			if err := e.vector.Delete(context.Background(), stale); err != nil {
				e.logger.Warnw("Vector index delete failed", "source", docID, "error", err)
			}
		}
		if err := e.vector.AddTexts(context.Background(), texts, metas, ids); err != nil {
			// Storage already holds the chunks; index lag is a
			// degraded-mode condition, not a failure.
			e.logger.Warnw("Vector index add failed", "source", docID, "error", err)
		}
	}

	detectedType := chunks[0].ContentType
	e.mu.Lock()
	e.documents[docID] = &Document{
		ID:          docID,
		Path:        path,
		Owner:       user,
		ContentType: detectedType,
		ChunkCount:  len(chunks),
		AddedAt:     time.Now().UTC(),
	}
	e.mu.Unlock()

	e.security.Audit(user, "add_document", path, true, map[string]interface{}{
		"chunks":       len(chunks),
		"content_type": detectedType,
	})
	e.logger.Infow("Document added", "path", path, "chunks", len(chunks), "content_type", detectedType)
	return true
}

// GetContext serves up to k relevant fragments for a free-text query. The
// assembled result is cached keyed by a hash of the query parameters; with
// no vector index attached a degraded no-context response is returned.
func (e *Engine) GetContext(query string, k int, user string, similarityThreshold ...float64) string {
	if !e.security.CheckAccess(user, query, "read") {
		e.security.Audit(user, "get_context", query, false, map[string]interface{}{"reason": "access denied"})
		return ""
	}

	threshold := e.cfg.Engine.SimilarityThreshold
	if len(similarityThreshold) > 0 {
		threshold = similarityThreshold[0]
	}

	cacheKey := queryCacheKey(query, k, threshold)
	if e.cache != nil {
		if cached, ok := e.cache.Get(cacheKey); ok {
			e.security.Audit(user, "get_context", query, true, map[string]interface{}{"cached": true})
			return cached
		}
	}

	if e.vector == nil {
		e.security.Audit(user, "get_context", query, true, map[string]interface{}{"degraded": true})
		return noContextResponse
	}

	matches, err := e.vector.SimilaritySearch(context.Background(), query, k)
	if err != nil {
		e.logger.Warnw("Similarity search failed", "query", query, "error", err)
		e.security.Audit(user, "get_context", query, false, map[string]interface{}{"error": err.Error()})
		return noContextResponse
	}

	var parts []string
	for _, m := range matches {
		if m.Score >= threshold {
			parts = append(parts, m.Text)
		}
	}
	if len(parts) == 0 {
		e.security.Audit(user, "get_context", query, true, map[string]interface{}{"matches": 0})
		return noContextResponse
	}

	result := strings.Join(parts, "\n\n---\n\n")
	if e.cache != nil {
		e.cache.Put(cacheKey, result)
	}
	e.security.Audit(user, "get_context", query, true, map[string]interface{}{"matches": len(parts)})
	return result
}

// GetContextByKeys looks chunks up by exact storage key, decrypting each. A
// missing or undecryptable key yields a placeholder string rather than
// aborting the whole batch.
func (e *Engine) GetContextByKeys(keys []string, user string) []string {
	if !e.security.CheckAccess(user, strings.Join(keys, ","), "read") {
		e.security.Audit(user, "get_context_by_keys", "", false, map[string]interface{}{"reason": "access denied"})
		return nil
	}

	results := make([]string, len(keys))
	for i, key := range keys {
		text, err := e.retrieveChunk(key)
		if err != nil {
			e.logger.Debugw("Key lookup failed", "key", key, "error", err)
			results[i] = fmt.Sprintf("[context unavailable: %s]", key)
			continue
		}
		results[i] = text
	}

	e.security.Audit(user, "get_context_by_keys", "", true, map[string]interface{}{"keys": len(keys)})
	return results
}

// retrieveChunk fetches and decrypts one stored chunk.
func (e *Engine) retrieveChunk(key string) (string, error) {
	data, err := e.storage.Retrieve(key)
	if err != nil {
		return "", err
	}
	text, err := e.security.Decrypt(data)
	if err != nil {
		// Undecryptable ciphertext is data loss for this key.
		e.logger.Warnw("Chunk undecryptable", "key", key, "error", err)
		return "", err
	}
	return text, nil
}

// BuildFocusedContext assembles context for topics in caller-supplied order
// under a token budget (estimated at len/4). Whole topics are appended while
// the budget holds; the first topic that would overflow is truncated to the
// remaining space only when that space clears the minimum usefulness
// threshold, and processing stops there. Later topics are dropped entirely.
// The ordering and truncation rule is deterministic.
func (e *Engine) BuildFocusedContext(topics []string, maxTokens, maxPerTopic int, user string) string {
	if !e.security.CheckAccess(user, strings.Join(topics, ","), "read") {
		e.security.Audit(user, "build_focused_context", "", false, map[string]interface{}{"reason": "access denied"})
		return ""
	}
	if maxTokens <= 0 || maxPerTopic <= 0 {
		return ""
	}

	var sb strings.Builder
	usedTokens := 0
	included := 0

	for _, topic := range topics {
		section := e.topicSection(topic, maxPerTopic)
		if section == "" {
			continue
		}

		cost := estimateTokens(section)
		if usedTokens+cost <= maxTokens {
			sb.WriteString(section)
			usedTokens += cost
			included++
			continue
		}

		remaining := maxTokens - usedTokens
		if remaining >= e.cfg.Engine.MinTruncateTokens {
			sb.WriteString(truncateToTokens(section, remaining))
			usedTokens = maxTokens
			included++
		}
		break
	}

	e.security.Audit(user, "build_focused_context", "", true, map[string]interface{}{
		"topics":   len(topics),
		"included": included,
		"tokens":   usedTokens,
	})
	return sb.String()
}

// topicSection fetches up to maxPerTopic items for a topic and renders them
// under a header. With a vector index the items are similarity matches;
// otherwise stored chunks whose keys derive from the topic are read in
// ordinal order.
func (e *Engine) topicSection(topic string, maxPerTopic int) string {
	var items []string

	if e.vector != nil {
		matches, err := e.vector.SimilaritySearch(context.Background(), topic, maxPerTopic)
		if err != nil {
			e.logger.Debugw("Topic search failed", "topic", topic, "error", err)
		}
		for _, m := range matches {
			items = append(items, m.Text)
		}
	} else {
		docID := sanitizeDocID(topic)
		for i := 0; i < maxPerTopic; i++ {
			text, err := e.retrieveChunk(chunkKey(docID, i))
			if err != nil {
				break
			}
			items = append(items, text)
		}
	}

	if len(items) == 0 {
		return ""
	}
	return fmt.Sprintf("## %s\n\n%s\n\n", topic, strings.Join(items, "\n\n"))
}

// ScanFinding reports PII kinds found in one tracked document. Only the
// document identifier and per-kind counts are returned, never raw values,
// so the scan's own output cannot re-leak PII.
type ScanFinding struct {
	DocumentID string         `json:"document_id"`
	Kinds      map[string]int `json:"kinds"`
	Total      int            `json:"total"`
}

// ScanForPII re-scans the stored chunks of every tracked document in
// parallel. Results are sorted by document ID for determinism.
func (e *Engine) ScanForPII(user string) []ScanFinding {
	if !e.security.CheckAccess(user, "all_documents", "read") {
		e.security.Audit(user, "scan_pii", "", false, map[string]interface{}{"reason": "access denied"})
		return nil
	}

	docs := e.ListDocuments(user)

	var mu sync.Mutex
	var findings []ScanFinding

	var g errgroup.Group
	g.SetLimit(e.cfg.Engine.ScanWorkers)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			kinds := make(map[string]int)
			total := 0
			for _, k := range e.chunkKeysOf(doc.ID) {
				text, err := e.retrieveChunk(k)
				if err != nil {
					continue
				}
				for _, f := range e.security.DetectPII(text) {
					kinds[f.Kind]++
					total++
				}
			}
			if total > 0 {
				mu.Lock()
				findings = append(findings, ScanFinding{DocumentID: doc.ID, Kinds: kinds, Total: total})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(findings, func(i, j int) bool {
		return findings[i].DocumentID < findings[j].DocumentID
	})

	e.security.Audit(user, "scan_pii", "", true, map[string]interface{}{
		"documents": len(docs),
		"affected":  len(findings),
	})
	return findings
}

// SecureDelete removes an item from storage, cache, and the vector index.
// A key that is a tracked document ID removes every chunk of that document.
// Deleting an absent key is success, not failure: the operation is
// idempotent.
func (e *Engine) SecureDelete(key, user string) bool {
	if !e.security.CheckAccess(user, key, "delete") {
		e.security.Audit(user, "secure_delete", key, false, map[string]interface{}{"reason": "access denied"})
		return false
	}

	// A key naming a document expands to every chunk key storage holds for
	// it. The tracked chunk count is not consulted: chunks left behind by
	// an older, longer version of the document must go too.
	keys := append([]string{key}, e.chunkKeysOf(key)...)

	e.mu.Lock()
	delete(e.documents, key)
	e.mu.Unlock()

	removed := 0
	for _, k := range keys {
		existed, err := e.storage.Delete(k)
		if err != nil {
			e.logger.Warnw("Storage delete failed", "key", k, "error", err)
		} else if existed {
			removed++
		}
		if e.cache != nil {
			e.cache.Remove(k)
		}
		e.partitions.Remove(k)
	}

	// Deleting one chunk of a tracked document shrinks its chunk count so
	// stats stay honest.
	if docID, ok := docIDFromChunkKey(key); ok && removed > 0 {
		e.mu.Lock()
		if doc, ok := e.documents[docID]; ok && doc.ChunkCount > 0 {
			doc.ChunkCount--
		}
		e.mu.Unlock()
	}

	if e.vector != nil {
		if err := e.vector.Delete(context.Background(), keys); err != nil {
			e.logger.Warnw("Vector index delete failed", "key", key, "error", err)
		}
	}

	e.security.Audit(user, "secure_delete", key, true, map[string]interface{}{"removed": removed})
	return true
}

// ListDocuments returns a snapshot of the tracked-document table, sorted by
// document ID.
func (e *Engine) ListDocuments(user string) []Document {
	if !e.security.CheckAccess(user, "all_documents", "read") {
		return nil
	}

	e.mu.RLock()
	docs := make([]Document, 0, len(e.documents))
	for _, d := range e.documents {
		docs = append(docs, *d)
	}
	e.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// queryCacheKey hashes the query parameters into a stable cache key.
func queryCacheKey(query string, k int, threshold float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%.4f", query, k, threshold)))
	return "query_" + hex.EncodeToString(sum[:])
}

// estimateTokens approximates token cost as len/4.
func estimateTokens(text string) int {
	return len(text) / 4
}

// truncateToTokens cuts text to a token budget, backing up to a whitespace
// boundary when one is near.
func truncateToTokens(text string, tokens int) string {
	limit := tokens * 4
	if limit >= len(text) {
		return text
	}
	cut := text[:limit]
	if i := strings.LastIndexAny(cut, " \t\n"); i > limit/2 {
		cut = cut[:i]
	}
	return cut
}

