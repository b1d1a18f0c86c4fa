package dispatch

import (
	"sync"

	"github.com/ashutoshrp06/friday/internal/types"
	"go.uber.org/zap"
)

// Sink receives display events. Implementations must not block for long:
// the dispatcher calls Send synchronously between stream fragments.
type Sink interface {
	Send(ev types.AgentEvent)
}

// SinkFunc adapts a function to Sink. A tea.Program's Send method converts
// directly: dispatch.SinkFunc(func(ev types.AgentEvent) { p.Send(ev) }).
type SinkFunc func(ev types.AgentEvent)

func (f SinkFunc) Send(ev types.AgentEvent) { f(ev) }

// MultiSink fans each event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Send(ev types.AgentEvent) {
	for _, s := range m {
		if s != nil {
			s.Send(ev)
		}
	}
}

// LogSink mirrors events to a logger at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ev types.AgentEvent) {
	fields := []zap.Field{
		zap.Stringer("state", ev.State),
		zap.Stringer("kind", ev.Kind),
	}
	if ev.Message != "" {
		fields = append(fields, zap.Int("bytes", len(ev.Message)))
	}
	if ev.ToolName != "" {
		fields = append(fields, zap.String("tool", ev.ToolName))
	}
	if ev.Execution != nil && ev.Execution.Result != nil {
		fields = append(fields,
			zap.Bool("success", ev.Execution.Result.Success),
			zap.Float64("execution_time_ms", ev.Execution.Result.ExecutionTimeMs))
	}
	if ev.Error != nil {
		fields = append(fields, zap.Error(ev.Error))
	}
	s.logger.Debug("Agent event", fields...)
}

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []types.AgentEvent
}

func (r *Recorder) Send(ev types.AgentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []types.AgentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.AgentEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded events in state.
func (r *Recorder) Filter(state types.AgentState) []types.AgentEvent {
	var out []types.AgentEvent
	for _, ev := range r.Events() {
		if ev.State == state {
			out = append(out, ev)
		}
	}
	return out
}
