package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/studymate/backend-go/internal/ai"
	apperrors "github.com/studymate/backend-go/internal/errors"
	"github.com/studymate/backend-go/internal/events"
	"github.com/studymate/backend-go/internal/extract"
	"github.com/studymate/backend-go/internal/logger"
	"github.com/studymate/backend-go/internal/models"
	"github.com/studymate/backend-go/internal/repository"
	"github.com/studymate/backend-go/internal/segmenter"
	"github.com/studymate/backend-go/internal/storage"
)

// 任务优先级。当前实现只记录优先级，队列仍按FIFO出队
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

const defaultPollTimeout = 5 * time.Second

// Extractor 文本提取接口
type Extractor interface {
	Extract(reader io.Reader, filename string) (*extract.Result, error)
}

// Indexer 向量索引写入接口
type Indexer interface {
	IndexChunks(ctx context.Context, projectID, documentID uint, chunks []segmenter.Chunk) (int, error)
	DeleteDocument(ctx context.Context, projectID, documentID uint) error
}

type job struct {
	documentID uint
	priority   string
	enqueuedAt time.Time
}

// Options 处理器依赖与配置
type Options struct {
	Repo        repository.DocumentRepository
	Files       storage.FileStore
	Extractor   Extractor
	Segmenter   *segmenter.Segmenter
	Index       Indexer
	Analyzer    ai.Analyzer
	Events      *events.Producer
	Metrics     *Metrics
	QueueSize   int
	MaxParallel int
	PollTimeout time.Duration
}

// Processor 文档处理流水线：提取、分析、切分、索引
// 每个文档同一时刻最多一个处理任务在途
type Processor struct {
	repo      repository.DocumentRepository
	files     storage.FileStore
	extractor Extractor
	segmenter *segmenter.Segmenter
	index     Indexer
	analyzer  ai.Analyzer
	events    *events.Producer
	metrics   *Metrics

	queue       chan job
	pollTimeout time.Duration
	sem         chan struct{}

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	inflight map[uint]struct{}

	totalProcessed atomic.Int64
}

// NewProcessor 创建文档处理器
func NewProcessor(opts Options) *Processor {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	var sem chan struct{}
	if opts.MaxParallel > 0 {
		sem = make(chan struct{}, opts.MaxParallel)
	}

	return &Processor{
		repo:        opts.Repo,
		files:       opts.Files,
		extractor:   opts.Extractor,
		segmenter:   opts.Segmenter,
		index:       opts.Index,
		analyzer:    opts.Analyzer,
		events:      opts.Events,
		metrics:     opts.Metrics,
		queue:       make(chan job, queueSize),
		pollTimeout: pollTimeout,
		sem:         sem,
		inflight:    make(map[uint]struct{}),
	}
}

// Start 启动调度循环
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})

	p.wg.Add(1)
	go p.dispatchLoop(p.stopCh)
	logger.Info("document processor started",
		zap.Int("queue_capacity", cap(p.queue)),
		zap.Int("max_parallel", cap(p.sem)))
}

// Stop 停止调度并等待在途任务结束
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logger.Info("document processor stopped")
}

// Enqueue 提交文档处理任务。队列满时立即报错而不是阻塞调用方
// 同一文档已在队列或处理中时直接返回，保证单文档至多一个在途任务
func (p *Processor) Enqueue(documentID uint, priority string) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("document processor is not running")
	}
	if _, exists := p.inflight[documentID]; exists {
		p.mu.Unlock()
		logger.Debug("document already queued or processing", zap.Uint("document_id", documentID))
		return nil
	}
	p.inflight[documentID] = struct{}{}
	p.mu.Unlock()

	if priority == "" {
		priority = PriorityNormal
	}

	select {
	case p.queue <- job{documentID: documentID, priority: priority, enqueuedAt: time.Now()}:
		p.metrics.setQueueDepth(len(p.queue))
		logger.Info("document enqueued for processing",
			zap.Uint("document_id", documentID),
			zap.String("priority", priority))
		return nil
	default:
		p.removeInflight(documentID)
		return apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "processing queue is full")
	}
}

// Reprocess 重新处理：先清掉旧向量，再把文档重置回UPLOADED重新入队
func (p *Processor) Reprocess(ctx context.Context, documentID uint) error {
	doc, err := p.repo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	if err := p.index.DeleteDocument(ctx, doc.ProjectID, doc.DocumentID); err != nil {
		return err
	}

	doc.ResetForReprocess()
	if err := p.repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to reset document: %w", err)
	}

	p.events.PublishReprocess(doc.ProjectID, doc.DocumentID)
	return p.Enqueue(doc.DocumentID, PriorityNormal)
}

// ProcessProjectDocuments 批量入队项目内所有待处理文档（UPLOADED和ERROR）
func (p *Processor) ProcessProjectDocuments(ctx context.Context, projectID uint) (int, error) {
	docs, err := p.repo.GetByProjectIDAndStatuses(ctx, projectID,
		[]string{models.DocStatusUploaded, models.DocStatusError})
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, doc := range docs {
		if err := p.Enqueue(doc.DocumentID, PriorityNormal); err != nil {
			return enqueued, err
		}
		enqueued++
	}

	logger.Info("project documents enqueued",
		zap.Uint("project_id", projectID),
		zap.Int("count", enqueued))
	return enqueued, nil
}

// Status 处理器快照，任何字段读取都不阻塞
func (p *Processor) Status() map[string]interface{} {
	p.mu.Lock()
	running := p.running
	tasks := make([]uint, 0, len(p.inflight))
	for id := range p.inflight {
		tasks = append(tasks, id)
	}
	p.mu.Unlock()

	return map[string]interface{}{
		"is_running":      running,
		"queue_size":      len(p.queue),
		"current_tasks":   tasks,
		"total_processed": p.totalProcessed.Load(),
	}
}

// dispatchLoop 调度循环。带超时轮询，stop信号在一个轮询周期内总能被观察到
func (p *Processor) dispatchLoop(stopCh chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case j := <-p.queue:
			p.metrics.setQueueDepth(len(p.queue))
			p.wg.Add(1)
			go p.runJob(j)
		case <-time.After(p.pollTimeout):
			// 空转一轮，回头检查stop信号
		}
	}
}

func (p *Processor) removeInflight(documentID uint) {
	p.mu.Lock()
	delete(p.inflight, documentID)
	count := len(p.inflight)
	p.mu.Unlock()
	p.metrics.setInflight(count)
}

// runJob 执行单个文档的处理任务
// 无论正常结束、失败还是panic，都必须把文档移出在途集合
func (p *Processor) runJob(j job) {
	defer p.wg.Done()
	defer p.removeInflight(j.documentID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("document processing panicked",
				zap.Uint("document_id", j.documentID),
				zap.Any("panic", r))
			p.metrics.jobDone("failure")
		}
	}()

	if p.sem != nil {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
	}

	p.mu.Lock()
	p.metrics.setInflight(len(p.inflight))
	p.mu.Unlock()

	ctx := context.Background()
	p.process(ctx, j.documentID)
}

// process 按提取、分析、切分、索引的顺序推进文档状态
func (p *Processor) process(ctx context.Context, documentID uint) {
	doc, err := p.repo.GetByID(ctx, documentID)
	if err != nil {
		logger.Error("failed to load document", zap.Uint("document_id", documentID), zap.Error(err))
		p.metrics.jobDone("failure")
		return
	}

	if !CanTrigger(doc.Status) {
		logger.Warn("document not in a processable state",
			zap.Uint("document_id", documentID),
			zap.String("status", doc.Status))
		p.metrics.jobDone("skipped")
		return
	}

	log := logger.With(
		zap.Uint("document_id", doc.DocumentID),
		zap.Uint("project_id", doc.ProjectID),
		zap.String("filename", doc.Filename))
	log.Info("document processing started")

	if err := transition(doc, models.DocStatusProcessing); err != nil {
		log.Warn("refusing to process document", zap.Error(err))
		p.metrics.jobDone("skipped")
		return
	}
	doc.ErrorMessage = ""
	if err := p.repo.Save(ctx, doc); err != nil {
		log.Error("failed to persist PROCESSING status", zap.Error(err))
		p.metrics.jobDone("failure")
		return
	}
	p.events.PublishStatusChange(doc.ProjectID, doc.DocumentID, doc.Status, "")

	// 提取阶段：失败为致命错误
	extractStart := time.Now()
	result, err := p.extractText(ctx, doc)
	p.metrics.observeStage("extraction", extractStart)
	if err != nil {
		p.fail(ctx, doc, err, log)
		return
	}

	doc.ExtractedText = result.Text
	doc.PageCount = result.PageCount
	if err := transition(doc, models.DocStatusProcessed); err != nil {
		log.Error("unexpected state after extraction", zap.Error(err))
		p.metrics.jobDone("failure")
		return
	}
	if err := p.repo.Save(ctx, doc); err != nil {
		log.Error("failed to persist extracted text", zap.Error(err))
		p.metrics.jobDone("failure")
		return
	}
	p.events.PublishStatusChange(doc.ProjectID, doc.DocumentID, doc.Status, "")
	log.Info("text extracted",
		zap.Int("text_length", len(result.Text)),
		zap.Int("page_count", result.PageCount))

	// 分析阶段：失败不中断流水线，文档照常进入ANALYZED
	var analysis *models.AnalysisResult
	if p.analyzer != nil {
		analysisStart := time.Now()
		analysis, err = p.analyzer.Analyze(ctx, doc.ExtractedText, doc.OriginalFilename)
		p.metrics.observeStage("analysis", analysisStart)
		if err != nil {
			log.Warn("semantic analysis failed, continuing without analysis", zap.Error(err))
			analysis = nil
		}
	}

	// 分析结果先落库，后续索引失败也不丢
	if analysis != nil {
		doc.Analysis = analysis
		doc.IsAnalyzed = true
		if err := p.repo.Save(ctx, doc); err != nil {
			log.Error("failed to persist analysis result", zap.Error(err))
			p.metrics.jobDone("failure")
			return
		}
	}

	// 切分阶段：没有可索引内容为致命错误
	segmentStart := time.Now()
	chunks := p.segmenter.Segment(doc.ExtractedText, doc.DocumentID, doc.Filename)
	p.metrics.observeStage("segmentation", segmentStart)
	if len(chunks) == 0 {
		p.fail(ctx, doc, apperrors.NewSegmentationEmptyError(), log)
		return
	}

	// 索引阶段：失败为致命错误
	indexStart := time.Now()
	indexed, err := p.index.IndexChunks(ctx, doc.ProjectID, doc.DocumentID, chunks)
	p.metrics.observeStage("indexing", indexStart)
	if err != nil {
		p.fail(ctx, doc, err, log)
		return
	}

	doc.MarkAnalyzed(analysis)
	if err := p.repo.Save(ctx, doc); err != nil {
		log.Error("failed to persist ANALYZED status", zap.Error(err))
		p.metrics.jobDone("failure")
		return
	}
	p.events.PublishStatusChange(doc.ProjectID, doc.DocumentID, doc.Status, "")

	p.totalProcessed.Add(1)
	p.metrics.jobDone("success")
	log.Info("document processing completed",
		zap.Int("chunks_indexed", indexed),
		zap.Bool("analyzed", analysis != nil))
}

func (p *Processor) extractText(ctx context.Context, doc *models.Document) (*extract.Result, error) {
	reader, err := p.files.Read(ctx, doc.FilePath)
	if err != nil {
		return nil, apperrors.NewExtractionError("failed to read document file", err)
	}
	defer reader.Close()

	return p.extractor.Extract(reader, doc.Filename)
}

// fail 把文档置为ERROR并记录错误信息
func (p *Processor) fail(ctx context.Context, doc *models.Document, cause error, log *zap.Logger) {
	message := cause.Error()
	if apperrors.IsAppError(cause) {
		message = apperrors.GetAppError(cause).Message
	}

	log.Error("document processing failed", zap.Error(cause))
	doc.SetError(message)
	if err := p.repo.Save(ctx, doc); err != nil {
		log.Error("failed to persist ERROR status", zap.Error(err))
	}
	p.events.PublishStatusChange(doc.ProjectID, doc.DocumentID, doc.Status, message)
	p.metrics.jobDone("failure")
}
