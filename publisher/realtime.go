package publisher

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/diffdrive/logging"
	"go.viam.com/diffdrive/utils"
)

// A Publisher accepts messages from the control goroutine. Publish must not block; it reports
// whether the message was accepted.
type Publisher interface {
	Publish(msg Message) bool
}

// A Sink is where a Realtime publisher delivers messages. Writes happen off the control goroutine
// and may block.
type Sink interface {
	Write(ctx context.Context, msg Message) error
}

// Realtime hands messages to background workers, one per topic, through a single pending slot.
// A message published while its topic's slot is still full is dropped.
type Realtime struct {
	logger logging.Logger
	sink   Sink

	// fixed at construction
	slots map[string]chan Message

	workers   utils.StoppableWorkers
	closeOnce sync.Once

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewRealtime starts a publisher delivering the given topics to sink. With no topics it carries
// odometry, transforms and limited twists.
func NewRealtime(logger logging.Logger, sink Sink, topics ...string) *Realtime {
	if len(topics) == 0 {
		topics = []string{TopicOdometry, TopicTransform, TopicLimitedTwist}
	}
	r := &Realtime{
		logger: logger,
		sink:   sink,
		slots:  make(map[string]chan Message, len(topics)),
	}
	workers := make([]func(context.Context), 0, len(topics))
	for _, topic := range topics {
		if _, ok := r.slots[topic]; ok {
			continue
		}
		slot := make(chan Message, 1)
		r.slots[topic] = slot
		workers = append(workers, func(ctx context.Context) {
			r.deliver(ctx, slot)
		})
	}
	r.workers = utils.NewStoppableWorkers(workers...)
	return r
}

func (r *Realtime) deliver(ctx context.Context, slot <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-slot:
			if err := r.sink.Write(ctx, msg); err != nil && ctx.Err() == nil {
				r.logger.CWarnw(ctx, "failed to deliver message", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

// Publish implements Publisher.
func (r *Realtime) Publish(msg Message) bool {
	slot, ok := r.slots[msg.Topic()]
	if !ok {
		r.dropped.Inc()
		return false
	}
	select {
	case slot <- msg:
		r.published.Inc()
		return true
	default:
		r.dropped.Inc()
		return false
	}
}

// Published returns how many messages were accepted.
func (r *Realtime) Published() uint64 {
	return r.published.Load()
}

// Dropped returns how many messages were rejected.
func (r *Realtime) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops delivery. Messages still pending are discarded.
func (r *Realtime) Close() {
	r.closeOnce.Do(r.workers.Stop)
}

type envelope struct {
	Topic   string  `json:"topic"`
	Message Message `json:"message"`
}

// JSONLinesSink writes each message as one JSON object per line, tagged with its topic.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesSink returns a sink writing to w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

// Write implements Sink.
func (s *JSONLinesSink) Write(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(envelope{Topic: msg.Topic(), Message: msg}); err != nil {
		return errors.Wrapf(err, "failed to encode %s message", msg.Topic())
	}
	return nil
}
