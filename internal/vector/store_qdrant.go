package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// QdrantOptions Qdrant客户端配置
type QdrantOptions struct {
	BaseURL        string
	APIKey         string
	CollectionName string
	VectorSize     int
	Distance       string
	Timeout        time.Duration
}

type qdrantStore struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	collectionName string
	vectorSize     int
	distance       string

	mu      sync.Mutex
	ensured map[uint]bool
}

// NewQdrantStore 创建Qdrant向量存储，每个项目一个collection
func NewQdrantStore(opts QdrantOptions) (Store, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:6333"
	}
	if opts.CollectionName == "" {
		opts.CollectionName = "project_chunks"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Distance == "" {
		opts.Distance = "Cosine"
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &qdrantStore{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		apiKey:         opts.APIKey,
		collectionName: opts.CollectionName,
		vectorSize:     opts.VectorSize,
		distance:       formatQdrantDistance(opts.Distance),
		ensured:        make(map[uint]bool),
	}, nil
}

func formatQdrantDistance(value string) string {
	switch strings.ToLower(value) {
	case "dot", "ip", "inner_product":
		return "Dot"
	case "l2", "euclid", "euclidean":
		return "Euclid"
	default:
		return "Cosine"
	}
}

func (s *qdrantStore) collection(projectID uint) string {
	return fmt.Sprintf("%s_%d", s.collectionName, projectID)
}

func (s *qdrantStore) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal qdrant request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read qdrant response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// ensureCollection 确认项目collection存在，不存在则创建
func (s *qdrantStore) ensureCollection(ctx context.Context, projectID uint) error {
	s.mu.Lock()
	if s.ensured[projectID] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	name := s.collection(projectID)
	_, status, err := s.doRequest(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		s.markEnsured(projectID)
		return nil
	}

	payload := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.vectorSize,
			"distance": s.distance,
		},
	}
	data, status, err := s.doRequest(ctx, http.MethodPut, "/collections/"+name, payload)
	if err != nil {
		return err
	}
	// 409说明并发写入方已抢先建好collection
	if status != http.StatusOK && status != http.StatusConflict {
		return fmt.Errorf("failed to create qdrant collection %s: status=%d body=%s", name, status, string(data))
	}
	s.markEnsured(projectID)
	return nil
}

func (s *qdrantStore) markEnsured(projectID uint) {
	s.mu.Lock()
	s.ensured[projectID] = true
	s.mu.Unlock()
}

func (s *qdrantStore) Upsert(ctx context.Context, projectID uint, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, projectID); err != nil {
		return err
	}

	points := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		payload := make(map[string]interface{}, len(entry.Metadata)+2)
		for k, v := range entry.Metadata {
			payload[k] = v
		}
		payload["chunk_id"] = entry.StringID
		payload["content"] = entry.Text

		points = append(points, map[string]interface{}{
			"id":      entry.Key,
			"vector":  entry.Vector,
			"payload": payload,
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection(projectID))
	data, status, err := s.doRequest(ctx, http.MethodPut, path, map[string]interface{}{"points": points})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant upsert failed: status=%d body=%s", status, string(data))
	}
	return nil
}

func (s *qdrantStore) Query(ctx context.Context, projectID uint, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx, projectID); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/collections/%s/points/search", s.collection(projectID))
	payload := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	data, status, err := s.doRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant search failed: status=%d body=%s", status, string(data))
	}

	var parsed struct {
		Result []struct {
			ID      uint64                 `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode qdrant search response: %w", err)
	}

	matches := make([]Match, 0, len(parsed.Result))
	for _, hit := range parsed.Result {
		text, _ := hit.Payload["content"].(string)
		matches = append(matches, Match{
			Key:      hit.ID,
			Text:     text,
			Distance: scoreToDistance(hit.Score),
			Metadata: hit.Payload,
		})
	}
	return matches, nil
}

func (s *qdrantStore) DeleteDocument(ctx context.Context, projectID, documentID uint) error {
	if err := s.ensureCollection(ctx, projectID); err != nil {
		return err
	}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection(projectID))
	payload := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{
					"key":   "document_id",
					"match": map[string]interface{}{"value": documentID},
				},
			},
		},
	}
	data, status, err := s.doRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant delete failed: status=%d body=%s", status, string(data))
	}
	return nil
}

func (s *qdrantStore) DeleteProject(ctx context.Context, projectID uint) error {
	name := s.collection(projectID)
	data, status, err := s.doRequest(ctx, http.MethodDelete, "/collections/"+name, nil)
	if err != nil {
		return err
	}
	// 不存在的collection按已删除处理
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("qdrant collection delete failed: status=%d body=%s", status, string(data))
	}

	s.mu.Lock()
	delete(s.ensured, projectID)
	s.mu.Unlock()
	return nil
}

func (s *qdrantStore) Stats(ctx context.Context, projectID uint) (Stats, error) {
	name := s.collection(projectID)
	data, status, err := s.doRequest(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return Stats{}, err
	}
	if status == http.StatusNotFound {
		return Stats{}, nil
	}
	if status != http.StatusOK {
		return Stats{}, fmt.Errorf("qdrant collection info failed: status=%d body=%s", status, string(data))
	}

	var parsed struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Stats{}, fmt.Errorf("failed to decode qdrant collection info: %w", err)
	}
	return Stats{EntryCount: parsed.Result.PointsCount}, nil
}

func (s *qdrantStore) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, status, err := s.doRequest(ctx, http.MethodGet, "/collections", nil)
	return err == nil && status == http.StatusOK
}

// scoreToDistance Qdrant返回相似度分数（越大越近），换算为距离
func scoreToDistance(score float64) float64 {
	return 1 - score
}
