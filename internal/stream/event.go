// Package stream implements the progress event protocol used by backup
// endpoints: a server-side frame writer, an incremental decoder, and an
// HTTP client that consumes either streamed frames or the buffered JSON
// fallback.
package stream

// Kind identifies the type of a progress stream event.
type Kind string

const (
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Event is a single frame in a progress stream. Kind travels in the frame
// header; the remaining fields form the JSON payload.
type Event struct {
	Kind Kind `json:"-"`

	// Code carries the failure classification for transports that map
	// outcomes to HTTP status codes. It never travels on the wire.
	Code string `json:"-"`

	Percent int    `json:"percent,omitempty"`
	Message string `json:"message,omitempty"`

	// Set on complete events.
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"`
	URL      string `json:"url,omitempty"`

	// Set on error events alongside Message.
	ErrorDetails string `json:"errorDetails,omitempty"`
}

func Progress(percent int, message string) Event {
	return Event{Kind: KindProgress, Percent: percent, Message: message}
}

func Complete(name, provider, url string) Event {
	return Event{Kind: KindComplete, Percent: 100, Name: name, Provider: provider, URL: url}
}

func Error(message, details string) Event {
	return Event{Kind: KindError, Message: message, ErrorDetails: details}
}

// Terminal reports whether no further events may follow this one.
func (e Event) Terminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}
