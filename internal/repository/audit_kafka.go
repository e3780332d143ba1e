package repository

import (
	"context"

	"SigTrack/internal/domain/models"
	domrepo "SigTrack/internal/domain/repository"
	pkgkafka "SigTrack/pkg/kafka"
)

// KafkaAuditSink mirrors audit records to <prefix>.all and <prefix>.failures,
// keyed by symbol so one signal's records stay ordered.
type KafkaAuditSink struct {
	producer      *pkgkafka.Producer
	allTopic      string
	failuresTopic string
}

var _ domrepo.AuditSink = (*KafkaAuditSink)(nil)

func NewKafkaAuditSink(producer *pkgkafka.Producer, prefix string) *KafkaAuditSink {
	return &KafkaAuditSink{
		producer:      producer,
		allTopic:      prefix + ".all",
		failuresTopic: prefix + ".failures",
	}
}

func (s *KafkaAuditSink) Write(ctx context.Context, rec models.AuditRecord, failure bool) error {
	key := []byte(rec.Signal.Symbol)
	if err := s.producer.Publish(ctx, s.allTopic, key, rec); err != nil {
		return err
	}
	if failure {
		return s.producer.Publish(ctx, s.failuresTopic, key, rec)
	}
	return nil
}

func (s *KafkaAuditSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
