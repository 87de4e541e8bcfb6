package protocol

// Sink receives pipeline events. Publish must not block the caller for long;
// implementations drop events rather than stall the pipeline.
type Sink interface {
	Publish(event any)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event any)

func (f SinkFunc) Publish(event any) { f(event) }

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(any) {}

// OrNop returns s, or a NopSink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return NopSink{}
	}
	return s
}
