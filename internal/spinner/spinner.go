// Package spinner draws a one-line progress animation on a terminal.
package spinner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Interval is the frame period.
const Interval = 80 * time.Millisecond

// Spinner animates a message until stopped. The message can change while it
// runs.
type Spinner struct {
	w        io.Writer
	mu       sync.Mutex
	message  string
	widest   int
	done     chan struct{}
	cleared  chan struct{}
	stopOnce sync.Once
}

// IsTerminal reports whether w is an interactive terminal. Spinners written
// anywhere else only clutter logs.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start displays an animated spinner with the given message on w.
func Start(w io.Writer, message string) *Spinner {
	s := &Spinner{w: w, message: message, done: make(chan struct{}), cleared: make(chan struct{})}
	go s.run()
	return s
}

func (s *Spinner) run() {
	i := 0
	for {
		select {
		case <-s.done:
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.widest+2)) //nolint:errcheck
			s.mu.Unlock()
			close(s.cleared)
			return
		case <-time.After(Interval):
			s.mu.Lock()
			w := runewidth.StringWidth(s.message)
			if w > s.widest {
				s.widest = w
			}
			// pad over the tail of a longer previous message
			fmt.Fprintf(s.w, "\r%s %s%s", frames[i%len(frames)], s.message, strings.Repeat(" ", s.widest-w)) //nolint:errcheck
			s.mu.Unlock()
			i++
		}
	}
}

// Update replaces the message shown from the next frame on. It is safe to
// call from several goroutines.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Progress returns a callback that shows "label done/total".
func (s *Spinner) Progress(label string) func(done, total int) {
	return func(done, total int) {
		s.Update(fmt.Sprintf("%s %d/%d", label, done, total))
	}
}

// Stop clears the line. It blocks until the animation goroutine exits and may
// be called more than once.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	<-s.cleared
}
