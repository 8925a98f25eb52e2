// Package partition deterministically buckets keys into a fixed number of
// partitions for lookup locality and future horizontal scaling. Purely
// advisory: it never gates or alters storage placement.
package partition

import (
	"hash/fnv"
	"sort"
	"sync"
)

// NumPartitions is the fixed partition count. Changing it changes every
// key's assignment, so treat it as part of the on-disk contract.
const NumPartitions = 16

// PartitionKey maps a data key to its partition. Pure function: the same
// key always maps to the same partition across calls and process restarts.
func PartitionKey(dataKey string) int {
	h := fnv.New32a()
	h.Write([]byte(dataKey))
	return int(h.Sum32() % NumPartitions)
}

// Manager tracks which keys live in which partition.
type Manager struct {
	mu         sync.RWMutex
	partitions [NumPartitions]map[string]bool
}

// NewManager creates an empty partition manager.
func NewManager() *Manager {
	m := &Manager{}
	for i := range m.partitions {
		m.partitions[i] = make(map[string]bool)
	}
	return m
}

// Assign records key under its computed partition and returns the partition
// id.
func (m *Manager) Assign(dataKey string) int {
	id := PartitionKey(dataKey)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions[id][dataKey] = true
	return id
}

// Remove drops key from its partition.
func (m *Manager) Remove(dataKey string) {
	id := PartitionKey(dataKey)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions[id], dataKey)
}

// List returns the sorted keys in a partition. Out-of-range ids yield nil.
func (m *Manager) List(partition int) []string {
	if partition < 0 || partition >= NumPartitions {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.partitions[partition]))
	for k := range m.partitions[partition] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns the key count per partition.
func (m *Manager) Stats() map[int]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[int]int, NumPartitions)
	for i, p := range m.partitions {
		stats[i] = len(p)
	}
	return stats
}
