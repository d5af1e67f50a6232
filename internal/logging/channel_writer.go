package logging

import (
	"bytes"
	"sync"
)

// ChannelWriter is an io.Writer that forwards each complete line to a
// buffered channel, for the dashboard log pane. Lines are dropped when the
// reader falls behind so logging never blocks.
type ChannelWriter struct {
	mu      sync.Mutex
	lines   chan string
	partial []byte
	closed  bool
	dropped int
}

func NewChannelWriter(buffer int) *ChannelWriter {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelWriter{lines: make(chan string, buffer)}
}

// Lines is closed by Close.
func (w *ChannelWriter) Lines() <-chan string {
	return w.lines
}

func (w *ChannelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := string(w.partial[:i])
		w.partial = w.partial[i+1:]
		select {
		case w.lines <- line:
		default:
			w.dropped++
		}
	}
	return len(p), nil
}

// Dropped returns how many lines were discarded because the channel was full.
func (w *ChannelWriter) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close closes the lines channel. Later writes are discarded.
func (w *ChannelWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	return nil
}
