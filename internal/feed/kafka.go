package feed

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/tushaar82/VELOX-N8N-sub000/pkg/config"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/logger"
)

// KafkaSource consumes tick events from a Kafka topic and pushes them into
// the sink. Malformed events are logged and skipped; the consumer never stops
// over a bad payload.
type KafkaSource struct {
	kafkaReader *kafka.Reader
	logger      logger.Interface
	sink        Sink
}

// NewKafkaSource creates a consumer bound to the configured topic. Offsets
// are committed through the consumer group as messages are read.
func NewKafkaSource(cfg config.KafkaConfig, log logger.Interface, sink Sink) *KafkaSource {
	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return &KafkaSource{
		kafkaReader: kafkaReader,
		logger:      log,
		sink:        sink,
	}
}

// Start consumes until the context is cancelled.
func (s *KafkaSource) Start(ctx context.Context) error {
	s.logger.Info("starting kafka tick source", logger.Field{
		Key:   "action",
		Value: "kafka_source_start",
	})

	for {
		msg, err := s.kafkaReader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("context done", logger.Field{
					Key:   "action",
					Value: "kafka_source_stop",
				})
				return nil
			}
			s.logger.Error(err, logger.Field{
				Key:   "action",
				Value: "read_message",
			})
			continue
		}

		s.handleMessage(msg)
	}
}

func (s *KafkaSource) handleMessage(msg kafka.Message) {
	event, err := parseTickEvent(msg.Value)
	if err != nil {
		s.logger.Warn("skipping tick event",
			logger.Field{Key: "action", Value: "parse_tick_event"},
			logger.Field{Key: "reason", Value: err.Error()},
		)
		return
	}

	s.sink.ProcessTick(event.Symbol, event.Price, event.Volume, event.Time())
}

// Stop closes the underlying reader.
func (s *KafkaSource) Stop() error {
	s.logger.Info("stopping kafka tick source", logger.Field{
		Key:   "action",
		Value: "kafka_source_stop",
	})
	return s.kafkaReader.Close()
}
