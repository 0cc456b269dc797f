// Package trace records timed spans of an import and exports them in the
// Chrome trace-event format (chrome://tracing, Perfetto).
package trace

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Span is one finished, timed region.
type Span struct {
	Name     string
	Category string
	Resource string
	Start    time.Time
	End      time.Time
	Err      string
	// Track groups spans that ran on the same worker.
	Track int
}

// Duration returns End - Start.
func (s Span) Duration() time.Duration { return s.End.Sub(s.Start) }

// Recorder collects spans. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	spans  []Span
	origin time.Time
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder that logs every finished span at debug
// level. A nil logger discards them.
func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{origin: time.Now(), logger: logger, now: time.Now}
}

// Active is a started span; call End exactly once.
type Active struct {
	r    *Recorder
	span Span
}

// Start begins a span. A nil recorder returns a nil span, which ignores End.
func (r *Recorder) Start(name, category, resource string, track int) *Active {
	if r == nil {
		return nil
	}
	return &Active{r: r, span: Span{Name: name, Category: category, Resource: resource, Track: track, Start: r.now()}}
}

// End finishes the span, recording err if non-nil.
func (a *Active) End(err error) {
	if a == nil {
		return
	}
	a.span.End = a.r.now()
	if err != nil {
		a.span.Err = err.Error()
	}
	a.r.add(a.span)
}

func (r *Recorder) add(s Span) {
	r.mu.Lock()
	r.spans = append(r.spans, s)
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("category", s.Category),
		zap.String("resource", s.Resource),
		zap.Duration("took", s.Duration()),
	}
	if s.Err != "" {
		fields = append(fields, zap.String("error", s.Err))
	}
	r.logger.Debug(s.Name, fields...)
}

// Spans returns a copy of the finished spans in completion order.
func (r *Recorder) Spans() []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Span(nil), r.spans...)
}

type chromeEvent struct {
	Name     string            `json:"name"`
	Category string            `json:"cat"`
	Phase    string            `json:"ph"`
	TS       int64             `json:"ts"`
	Dur      int64             `json:"dur"`
	PID      int               `json:"pid"`
	TID      int               `json:"tid"`
	Args     map[string]string `json:"args,omitempty"`
}

// WriteChrome writes the spans as a Chrome trace-event JSON object with
// complete ("X") events in microseconds.
func (r *Recorder) WriteChrome(w io.Writer) error {
	spans := r.Spans()
	events := make([]chromeEvent, 0, len(spans))
	for _, s := range spans {
		ev := chromeEvent{
			Name:     s.Name,
			Category: s.Category,
			Phase:    "X",
			TS:       s.Start.Sub(r.origin).Microseconds(),
			Dur:      s.Duration().Microseconds(),
			PID:      1,
			TID:      s.Track,
		}
		if s.Resource != "" || s.Err != "" {
			ev.Args = map[string]string{}
			if s.Resource != "" {
				ev.Args["resource"] = s.Resource
			}
			if s.Err != "" {
				ev.Args["error"] = s.Err
			}
		}
		events = append(events, ev)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	return enc.Encode(struct {
		TraceEvents     []chromeEvent `json:"traceEvents"`
		DisplayTimeUnit string        `json:"displayTimeUnit"`
	}{events, "ms"})
}
