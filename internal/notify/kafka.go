package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes each event to the topic <prefix><event name>.
type KafkaSink struct {
	writer *kafka.Writer
	prefix string
}

// NewKafkaSink returns a sink writing to brokers, or nil when no brokers are configured.
// Call Close when shutting down.
func NewKafkaSink(brokers []string, topicPrefix string) *KafkaSink {
	if len(brokers) == 0 {
		return nil
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		prefix: topicPrefix,
	}
}

// Topic returns the topic ev is published to.
func (s *KafkaSink) Topic(name string) string { return s.prefix + name }

// Send serializes the payload as JSON and writes it to the event's topic.
func (s *KafkaSink) Send(ctx context.Context, ev Event) error {
	if s == nil || s.writer == nil {
		return nil
	}
	msg, err := s.message(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return s.writer.WriteMessages(writeCtx, msg)
}

func (s *KafkaSink) message(ev Event) (kafka.Message, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{Topic: s.Topic(ev.Name), Value: payload}
	if ev.Key != "" {
		msg.Key = []byte(ev.Key)
	}
	return msg, nil
}

// Close flushes and closes the writer. Safe on a nil sink.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
