package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/studymate/backend-go/internal/config"
	"github.com/studymate/backend-go/internal/logger"
)

// 文档生命周期事件类型
const (
	EventStatusChanged = "document.status_changed"
	EventReprocess     = "document.reprocess"
	EventDeleted       = "document.deleted"
)

// DocumentEvent 文档生命周期事件，发往Kafka供下游订阅
type DocumentEvent struct {
	Type         string    `json:"type"`
	ProjectID    uint      `json:"project_id"`
	DocumentID   uint      `json:"document_id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Producer 文档事件生产者。未配置Kafka时为nil，所有发布静默跳过
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer 创建事件生产者，Kafka未启用时返回(nil, nil)
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if !cfg.Enabled {
		logger.Info("kafka disabled, document events will not be published")
		return nil, nil
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return &Producer{producer: producer, topic: cfg.Topic}, nil
}

// PublishStatusChange 发布状态变更事件。发布失败只记日志，不影响处理主流程
func (p *Producer) PublishStatusChange(projectID, documentID uint, status, errorMessage string) {
	p.publish(DocumentEvent{
		Type:         EventStatusChanged,
		ProjectID:    projectID,
		DocumentID:   documentID,
		Status:       status,
		ErrorMessage: errorMessage,
		Timestamp:    time.Now(),
	})
}

// PublishReprocess 发布重新处理事件
func (p *Producer) PublishReprocess(projectID, documentID uint) {
	p.publish(DocumentEvent{
		Type:       EventReprocess,
		ProjectID:  projectID,
		DocumentID: documentID,
		Timestamp:  time.Now(),
	})
}

func (p *Producer) publish(event DocumentEvent) {
	if p == nil || p.producer == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to marshal document event", zap.Error(err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d-%d", event.ProjectID, event.DocumentID)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to publish document event",
			zap.String("type", event.Type),
			zap.Uint("document_id", event.DocumentID),
			zap.Error(err))
		return
	}

	logger.Debug("document event published",
		zap.String("type", event.Type),
		zap.Uint("document_id", event.DocumentID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
