package corelog

import (
	"encoding/json"
	"io"
	"sync"
)

// JSONSink writes each Line as a single JSON object per line, in the
// style of the teacher's stumpy backend (append-per-event, one flush
// per call, no batching) but via encoding/json rather than a hand
// rolled byte-buffer encoder — stumpy's buffer-append trick exists to
// avoid encoding/json's reflection cost under its own high-throughput
// benchmarks; this core's log volume (init/shutdown/io-failure lines)
// never approaches that, so the simpler encoder is the right tradeoff.
type JSONSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONSink wraps w. w need not be safe for concurrent use;
// JSONSink serializes its calls to w.Write internally.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

type jsonLine struct {
	Level string `json:"level"`
	File  string `json:"file"`
	Line  int    `json:"line"`
	Text  string `json:"text"`
	Time  string `json:"time"`
}

func (s *JSONSink) Write(l Line) {
	rec := jsonLine{
		Level: l.Level.String(),
		File:  l.File,
		Line:  l.Line,
		Text:  l.Text,
		Time:  l.Time.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	b = append(b, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(b)
}

// MemorySink collects lines in-process, for tests.
type MemorySink struct {
	mu    sync.Mutex
	Lines []Line
}

func (s *MemorySink) Write(l Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lines = append(s.Lines, l)
}

// Snapshot returns a copy of the lines recorded so far.
func (s *MemorySink) Snapshot() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Line, len(s.Lines))
	copy(out, s.Lines)
	return out
}
