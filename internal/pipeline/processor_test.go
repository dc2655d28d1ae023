package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/studymate/backend-go/internal/errors"
	"github.com/studymate/backend-go/internal/extract"
	"github.com/studymate/backend-go/internal/models"
	"github.com/studymate/backend-go/internal/segmenter"
)

// fakeRepo 内存文档仓库
type fakeRepo struct {
	mu   sync.Mutex
	docs map[uint]*models.Document
}

func newFakeRepo(docs ...*models.Document) *fakeRepo {
	r := &fakeRepo{docs: make(map[uint]*models.Document)}
	for _, doc := range docs {
		copied := *doc
		r.docs[doc.DocumentID] = &copied
	}
	return r
}

func (r *fakeRepo) GetDB() *gorm.DB { return nil }

func (r *fakeRepo) Create(ctx context.Context, doc *models.Document) error {
	return r.Save(ctx, doc)
}

func (r *fakeRepo) GetByID(ctx context.Context, docID uint) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return nil, apperrors.NewNotFoundError("document")
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeRepo) GetByProjectID(ctx context.Context, projectID uint) ([]models.Document, error) {
	return r.GetByProjectIDAndStatuses(ctx, projectID, nil)
}

func (r *fakeRepo) GetByProjectIDAndStatuses(ctx context.Context, projectID uint, statuses []string) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.Document
	for _, doc := range r.docs {
		if doc.ProjectID != projectID {
			continue
		}
		if len(statuses) > 0 {
			matched := false
			for _, status := range statuses {
				if doc.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		result = append(result, *doc)
	}
	return result, nil
}

func (r *fakeRepo) Save(ctx context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *doc
	r.docs[doc.DocumentID] = &copied
	return nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, docID uint, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[docID]; ok {
		doc.Status = status
	}
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, docID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, docID)
	return nil
}

func (r *fakeRepo) get(docID uint) *models.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[docID]
}

// fakeFiles 返回固定内容的文件存储
type fakeFiles struct {
	content string
	readErr error
}

func (f *fakeFiles) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func (f *fakeFiles) Write(ctx context.Context, path string, reader io.Reader, size int64) error {
	return nil
}

func (f *fakeFiles) Delete(ctx context.Context, path string) error { return nil }

// fakeExtractor 返回固定文本
type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(reader io.Reader, filename string) (*extract.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extract.Result{Text: f.text, PageCount: 2}, nil
}

// fakeIndex 记录索引调用
type fakeIndex struct {
	mu          sync.Mutex
	indexed     int
	deleted     []uint
	indexErr    error
	deleteCalls int
}

func (f *fakeIndex) IndexChunks(ctx context.Context, projectID, documentID uint, chunks []segmenter.Chunk) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	f.indexed += len(chunks)
	return len(chunks), nil
}

func (f *fakeIndex) DeleteDocument(ctx context.Context, projectID, documentID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.deleted = append(f.deleted, documentID)
	return nil
}

// fakeAnalyzer 返回固定分析结果或错误
type fakeAnalyzer struct {
	result *models.AnalysisResult
	err    error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text, filename string) (*models.AnalysisResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAnalyzer) Ready() bool { return true }

func uploadedDoc(docID, projectID uint) *models.Document {
	return &models.Document{
		DocumentID:       docID,
		ProjectID:        projectID,
		Filename:         "tesi.txt",
		OriginalFilename: "tesi.txt",
		FilePath:         "projects/1/tesi.txt",
		FileType:         "txt",
		Status:           models.DocStatusUploaded,
	}
}

// 足够长的学术文本，切分后至少产生一个块
var longText = strings.Repeat("Il patrimonio culturale rappresenta una risorsa fondamentale per lo sviluppo economico del territorio. ", 10)

func newTestProcessor(repo *fakeRepo, files *fakeFiles, ext *fakeExtractor, index *fakeIndex, analyzer *fakeAnalyzer) *Processor {
	opts := Options{
		Repo:        repo,
		Files:       files,
		Extractor:   ext,
		Segmenter:   segmenter.NewSegmenter(1000, 200, 100, 2000),
		Index:       index,
		QueueSize:   8,
		PollTimeout: 50 * time.Millisecond,
	}
	if analyzer != nil {
		opts.Analyzer = analyzer
	}
	return NewProcessor(opts)
}

func TestProcess_FullPipelineReachesAnalyzed(t *testing.T) {
	repo := newFakeRepo(uploadedDoc(1, 1))
	index := &fakeIndex{}
	analyzer := &fakeAnalyzer{result: &models.AnalysisResult{CentralThesis: "tesi centrale"}}
	p := newTestProcessor(repo, &fakeFiles{content: longText}, &fakeExtractor{text: longText}, index, analyzer)

	p.process(context.Background(), 1)

	doc := repo.get(1)
	require.NotNil(t, doc)
	assert.Equal(t, models.DocStatusAnalyzed, doc.Status)
	assert.True(t, doc.IsAnalyzed)
	require.NotNil(t, doc.Analysis)
	assert.Equal(t, "tesi centrale", doc.Analysis.CentralThesis)
	assert.NotNil(t, doc.AnalyzedAt)
	assert.Equal(t, longText, doc.ExtractedText)
	assert.Equal(t, 2, doc.PageCount)
	assert.Greater(t, index.indexed, 0)
}

func TestProcess_AnalysisFailureStillAnalyzed(t *testing.T) {
	repo := newFakeRepo(uploadedDoc(1, 1))
	analyzer := &fakeAnalyzer{err: apperrors.NewAnalysisError("provider unavailable", nil)}
	p := newTestProcessor(repo, &fakeFiles{content: longText}, &fakeExtractor{text: longText}, &fakeIndex{}, analyzer)

	p.process(context.Background(), 1)

	doc := repo.get(1)
	assert.Equal(t, models.DocStatusAnalyzed, doc.Status)
	assert.False(t, doc.IsAnalyzed)
	assert.Nil(t, doc.Analysis)
	assert.NotNil(t, doc.AnalyzedAt)
}

func TestProcess_NilAnalyzerSkipsAnalysis(t *testing.T) {
	repo := newFakeRepo(uploadedDoc(1, 1))
	p := newTestProcessor(repo, &fakeFiles{content: longText}, &fakeExtractor{text: longText}, &fakeIndex{}, nil)

	p.process(context.Background(), 1)

	doc := repo.get(1)
	assert.Equal(t, models.DocStatusAnalyzed, doc.Status)
	assert.Nil(t, doc.Analysis)
}

func TestProcess_NoIndexableContent(t *testing.T) {
	repo := newFakeRepo(uploadedDoc(1, 1))
	p := newTestProcessor(repo, &fakeFiles{content: "breve"}, &fakeExtractor{text: "troppo breve"}, &fakeIndex{}, nil)

	p.process(context.Background(), 1)

	doc := repo.get(1)
	assert.Equal(t, models.DocStatusError, doc.Status)
	assert.Equal(t, "no indexable content", doc.ErrorMessage)
}

func TestProcess_ExtractionFailure(t *testing.T) {
	repo := newFakeRepo(uploadedDoc(1, 1))
	ext := &fakeExtractor{err: apperrors.NewExtractionError("corrupt pdf", nil)}
	p := newTestProcessor(repo, &fakeFiles{content: "x"}, ext, &fakeIndex{}, nil)

	p.process(context.Background(), 1)

	doc := repo.get(1)
	assert.Equal(t, models.DocStatusError, doc.Status)
	assert.Equal(t, "corrupt pdf", doc.ErrorMessage)
}

func TestProcess_IndexWriteFailure(t *testing.T) {
	repo := newFakeRepo(uploadedDoc(1, 1))
	index := &fakeIndex{indexErr: apperrors.NewIndexWriteError("vector store unavailable", nil)}
	p := newTestProcessor(repo, &fakeFiles{content: longText}, &fakeExtractor{text: longText}, index, nil)

	p.process(context.Background(), 1)

	doc := repo.get(1)
	assert.Equal(t, models.DocStatusError, doc.Status)
	assert.Equal(t, "vector store unavailable", doc.ErrorMessage)
}

func TestProcess_IndexFailureKeepsAnalysis(t *testing.T) {
	repo := newFakeRepo(uploadedDoc(1, 1))
	index := &fakeIndex{indexErr: apperrors.NewIndexWriteError("vector store unavailable", nil)}
	analyzer := &fakeAnalyzer{result: &models.AnalysisResult{CentralThesis: "tesi centrale"}}
	p := newTestProcessor(repo, &fakeFiles{content: longText}, &fakeExtractor{text: longText}, index, analyzer)

	p.process(context.Background(), 1)

	// 分析成功后先落库，索引失败不丢分析结果
	doc := repo.get(1)
	assert.Equal(t, models.DocStatusError, doc.Status)
	assert.True(t, doc.IsAnalyzed)
	require.NotNil(t, doc.Analysis)
	assert.Equal(t, "tesi centrale", doc.Analysis.CentralThesis)
}

func TestProcess_SkipsDocumentNotInTriggerState(t *testing.T) {
	doc := uploadedDoc(1, 1)
	doc.Status = models.DocStatusAnalyzed
	repo := newFakeRepo(doc)
	index := &fakeIndex{}
	p := newTestProcessor(repo, &fakeFiles{content: longText}, &fakeExtractor{text: longText}, index, nil)

	p.process(context.Background(), 1)

	assert.Equal(t, models.DocStatusAnalyzed, repo.get(1).Status)
	assert.Zero(t, index.indexed)
}

func TestProcess_ErrorDocumentCanBeRetriggered(t *testing.T) {
	doc := uploadedDoc(1, 1)
	doc.Status = models.DocStatusError
	doc.ErrorMessage = "previous failure"
	repo := newFakeRepo(doc)
	p := newTestProcessor(repo, &fakeFiles{content: longText}, &fakeExtractor{text: longText}, &fakeIndex{}, nil)

	p.process(context.Background(), 1)

	got := repo.get(1)
	assert.Equal(t, models.DocStatusAnalyzed, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestEnqueue_DeduplicatesInflightDocument(t *testing.T) {
	p := newTestProcessor(newFakeRepo(), &fakeFiles{}, &fakeExtractor{}, &fakeIndex{}, nil)
	p.running = true

	require.NoError(t, p.Enqueue(1, PriorityNormal))
	require.NoError(t, p.Enqueue(1, PriorityHigh))

	assert.Equal(t, 1, len(p.queue))
	p.running = false
}

func TestEnqueue_QueueFull(t *testing.T) {
	p := NewProcessor(Options{
		Repo: newFakeRepo(), Files: &fakeFiles{}, Extractor: &fakeExtractor{},
		Segmenter: segmenter.NewSegmenter(0, 0, 0, 0),
		Index:     &fakeIndex{}, QueueSize: 1,
	})
	p.running = true

	require.NoError(t, p.Enqueue(1, PriorityNormal))
	err := p.Enqueue(2, PriorityNormal)
	require.Error(t, err)

	// 入队失败的文档不能滞留在在途集合里
	p.mu.Lock()
	_, stuck := p.inflight[2]
	p.mu.Unlock()
	assert.False(t, stuck)
	p.running = false
}

func TestEnqueue_RequiresRunningProcessor(t *testing.T) {
	p := newTestProcessor(newFakeRepo(), &fakeFiles{}, &fakeExtractor{}, &fakeIndex{}, nil)

	err := p.Enqueue(1, PriorityNormal)
	assert.Error(t, err)
}

func TestReprocess_DeletesVectorsAndResets(t *testing.T) {
	doc := uploadedDoc(1, 1)
	doc.Status = models.DocStatusAnalyzed
	doc.ExtractedText = longText
	doc.IsAnalyzed = true
	doc.Analysis = &models.AnalysisResult{CentralThesis: "vecchia tesi"}
	repo := newFakeRepo(doc)
	index := &fakeIndex{}
	p := newTestProcessor(repo, &fakeFiles{content: longText}, &fakeExtractor{text: longText}, index, nil)
	p.running = true
	defer func() { p.running = false }()

	require.NoError(t, p.Reprocess(context.Background(), 1))

	assert.Equal(t, []uint{1}, index.deleted)
	got := repo.get(1)
	assert.Equal(t, models.DocStatusUploaded, got.Status)
	assert.Empty(t, got.ExtractedText)
	assert.False(t, got.IsAnalyzed)
	assert.Nil(t, got.Analysis)
	assert.Equal(t, 1, len(p.queue))
}

func TestProcessProjectDocuments_EnqueuesPendingOnly(t *testing.T) {
	docA := uploadedDoc(1, 1)
	docB := uploadedDoc(2, 1)
	docB.Status = models.DocStatusError
	docC := uploadedDoc(3, 1)
	docC.Status = models.DocStatusAnalyzed
	docOther := uploadedDoc(4, 2)
	repo := newFakeRepo(docA, docB, docC, docOther)
	p := newTestProcessor(repo, &fakeFiles{}, &fakeExtractor{}, &fakeIndex{}, nil)
	p.running = true
	defer func() { p.running = false }()

	count, err := p.ProcessProjectDocuments(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, len(p.queue))
}

func TestStartStop_JoinsInflightJobs(t *testing.T) {
	repo := newFakeRepo(uploadedDoc(1, 1))
	p := newTestProcessor(repo, &fakeFiles{content: longText}, &fakeExtractor{text: longText}, &fakeIndex{}, nil)

	p.Start()
	require.NoError(t, p.Enqueue(1, PriorityNormal))

	// 等调度循环领取任务
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if repo.get(1).Status == models.DocStatusAnalyzed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	p.Stop()

	assert.Equal(t, models.DocStatusAnalyzed, repo.get(1).Status)

	// 停止后在途集合必须为空
	p.mu.Lock()
	assert.Empty(t, p.inflight)
	p.mu.Unlock()

	status := p.Status()
	assert.Equal(t, false, status["is_running"])
	assert.Equal(t, int64(1), status["total_processed"])
}

func TestStatus_Snapshot(t *testing.T) {
	p := newTestProcessor(newFakeRepo(), &fakeFiles{}, &fakeExtractor{}, &fakeIndex{}, nil)

	status := p.Status()
	assert.Equal(t, false, status["is_running"])
	assert.Equal(t, 0, status["queue_size"])
	assert.Empty(t, status["current_tasks"])
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.DocStatusUploaded, models.DocStatusProcessing, true},
		{models.DocStatusProcessing, models.DocStatusProcessed, true},
		{models.DocStatusProcessing, models.DocStatusError, true},
		{models.DocStatusProcessed, models.DocStatusAnalyzed, true},
		{models.DocStatusProcessed, models.DocStatusError, true},
		{models.DocStatusError, models.DocStatusProcessing, true},
		{models.DocStatusAnalyzed, models.DocStatusUploaded, true},
		{models.DocStatusUploaded, models.DocStatusAnalyzed, false},
		{models.DocStatusAnalyzed, models.DocStatusProcessing, false},
		{models.DocStatusError, models.DocStatusAnalyzed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to),
			fmt.Sprintf("%s -> %s", tc.from, tc.to))
	}
}

func TestCanTrigger(t *testing.T) {
	assert.True(t, CanTrigger(models.DocStatusUploaded))
	assert.True(t, CanTrigger(models.DocStatusError))
	assert.False(t, CanTrigger(models.DocStatusProcessing))
	assert.False(t, CanTrigger(models.DocStatusProcessed))
	assert.False(t, CanTrigger(models.DocStatusAnalyzed))
}
