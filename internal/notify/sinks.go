package notify

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// LogSink writes notices to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notify").Logger()}
}

// Notify implements Notifier.
func (s *LogSink) Notify(_ context.Context, n Notice) {
	ev := s.logger.Info()
	if n.Level == LevelError || n.Level == LevelWarning {
		ev = s.logger.Warn()
	}
	ev.Str("session", n.SessionID).
		Str("notice", n.Level.String()).
		Str("topic", n.Topic).
		Str("ref", n.Ref).
		Msg(n.Message)
}

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes notices as JSON events keyed by session id.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
	logger  zerolog.Logger
}

// NewKafkaWriter builds an async writer for the notice topic.
func NewKafkaWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
}

// NewKafkaSink creates a kafka sink.
func NewKafkaSink(writer MessageWriter, logger zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer:  writer,
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "notify.kafka").Logger(),
	}
}

// Notify implements Notifier.
func (s *KafkaSink) Notify(ctx context.Context, n Notice) {
	data, err := json.Marshal(n)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode notice")
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	msg := kafka.Message{Key: []byte(n.SessionID), Value: data, Time: n.At}
	if err := s.writer.WriteMessages(writeCtx, msg); err != nil {
		s.logger.Warn().Err(err).Str("topic", n.Topic).Msg("publish notice failed")
	}
}

// DefaultRecorderCapacity bounds notices kept per session.
const DefaultRecorderCapacity = 50

// Recorder keeps the most recent notices per session in memory.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	notices  map[string][]Notice
}

// NewRecorder creates a recorder. capacity <= 0 uses DefaultRecorderCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecorderCapacity
	}
	return &Recorder{
		capacity: capacity,
		notices:  make(map[string][]Notice),
	}
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := append(r.notices[n.SessionID], n)
	if len(list) > r.capacity {
		list = list[len(list)-r.capacity:]
	}
	r.notices[n.SessionID] = list
}

// Notices returns a copy of the session's notices, oldest first.
func (r *Recorder) Notices(sessionID string) []Notice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.notices[sessionID]
	out := make([]Notice, len(list))
	copy(out, list)
	return out
}

// Forget drops a session's notices.
func (r *Recorder) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.notices, sessionID)
	r.mu.Unlock()
}
