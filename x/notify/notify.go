package notify

import (
	"encoding/hex"
	"sync"

	"github.com/iov-one/quorum"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendermint/tendermint/libs/log"
)

// Nop discards all events.
type Nop struct{}

var _ quorum.Notifier = Nop{}

func (Nop) Emit(quorum.Context, string, []byte, interface{}) {}

// Multi publishes every event to all wrapped notifiers, in order.
type Multi []quorum.Notifier

var _ quorum.Notifier = Multi(nil)

func (m Multi) Emit(ctx quorum.Context, topic string, key []byte, value interface{}) {
	for _, n := range m {
		n.Emit(ctx, topic, key, value)
	}
}

// Recorder keeps every emitted event in memory. It is safe for concurrent
// use.
type Recorder struct {
	mu     sync.Mutex
	events []quorum.Event
}

var _ quorum.Notifier = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(ctx quorum.Context, topic string, key []byte, value interface{}) {
	k := make([]byte, len(key))
	copy(k, key)
	r.mu.Lock()
	r.events = append(r.events, quorum.Event{Topic: topic, Key: k, Value: value})
	r.mu.Unlock()
}

// Events returns a copy of all recorded events in emission order.
func (r *Recorder) Events() []quorum.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]quorum.Event, len(r.events))
	copy(res, r.events)
	return res
}

// Topics returns the topic of every recorded event, in emission order.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]string, len(r.events))
	for i, e := range r.events {
		res[i] = e.Topic
	}
	return res
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Logger writes every event as an info line. When no logger is given, the
// one carried by the context is used.
type Logger struct {
	Logger log.Logger
}

var _ quorum.Notifier = Logger{}

func (l Logger) Emit(ctx quorum.Context, topic string, key []byte, value interface{}) {
	logger := l.Logger
	if logger == nil {
		logger = quorum.GetLogger(ctx)
	}
	logger.Info("notification", "topic", topic, "key", hex.EncodeToString(key), "value", value)
}

// Metrics counts emitted events per topic.
type Metrics struct {
	events *prometheus.CounterVec
}

var _ quorum.Notifier = (*Metrics)(nil)

// NewMetrics creates the counter and registers it with given registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "events_total",
		Help:      "Number of emitted notifications by topic.",
	}, []string{"topic"})
	if err := reg.Register(events); err != nil {
		return nil, err
	}
	return &Metrics{events: events}, nil
}

func (m *Metrics) Emit(ctx quorum.Context, topic string, key []byte, value interface{}) {
	m.events.WithLabelValues(topic).Inc()
}
