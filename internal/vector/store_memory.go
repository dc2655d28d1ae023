package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryStore 进程内向量存储，开发与测试环境的默认后端
type memoryStore struct {
	mu         sync.RWMutex
	namespaces map[uint]map[uint64]Entry
}

// NewMemoryStore 创建内存向量存储
func NewMemoryStore() Store {
	return &memoryStore{
		namespaces: make(map[uint]map[uint64]Entry),
	}
}

func (s *memoryStore) Upsert(ctx context.Context, projectID uint, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[projectID]
	if !ok {
		ns = make(map[uint64]Entry)
		s.namespaces[projectID] = ns
	}
	for _, entry := range entries {
		ns[entry.Key] = entry
	}
	return nil
}

func (s *memoryStore) Query(ctx context.Context, projectID uint, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[projectID]
	matches := make([]Match, 0, len(ns))
	for _, entry := range ns {
		matches = append(matches, Match{
			Key:      entry.Key,
			Text:     entry.Text,
			Distance: cosineDistance(vector, entry.Vector),
			Metadata: entry.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Key < matches[j].Key
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *memoryStore) DeleteDocument(ctx context.Context, projectID, documentID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[projectID]
	for key, entry := range ns {
		if docID, ok := entry.Metadata["document_id"]; ok && toUint(docID) == documentID {
			delete(ns, key)
		}
	}
	return nil
}

func (s *memoryStore) DeleteProject(ctx context.Context, projectID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces, projectID)
	return nil
}

func (s *memoryStore) Stats(ctx context.Context, projectID uint) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{EntryCount: int64(len(s.namespaces[projectID]))}, nil
}

func (s *memoryStore) Ready() bool {
	return true
}

// cosineDistance 余弦距离，零向量视为完全不相似
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

func toUint(value interface{}) uint {
	switch v := value.(type) {
	case uint:
		return v
	case int:
		return uint(v)
	case int64:
		return uint(v)
	case uint64:
		return uint(v)
	case float64:
		return uint(v)
	default:
		return 0
	}
}
