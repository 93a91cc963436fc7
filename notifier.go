package quorum

// Notifier is a side channel used to publish lifecycle notifications for
// external indexers and collaborators. Delivery is fire-and-forget: an
// implementation must not block and must not fail the caller. Notifications
// are advisory and never the system of record.
type Notifier interface {
	// Emit publishes a notification about the entity identified by key.
	// Value is a plain data structure that can be serialized to JSON.
	Emit(ctx Context, topic string, key []byte, value interface{})
}

// Event is a single notification as published through a Notifier.
type Event struct {
	Topic string      `json:"topic"`
	Key   []byte      `json:"key"`
	Value interface{} `json:"value"`
}

// NotifierFunc allows to use a function as a Notifier.
type NotifierFunc func(ctx Context, topic string, key []byte, value interface{})

// Emit calls the function.
func (fn NotifierFunc) Emit(ctx Context, topic string, key []byte, value interface{}) {
	fn(ctx, topic, key, value)
}
