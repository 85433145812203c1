package terminal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// Color codes
const (
	colorReset = "\033[0m"
	colorCyan  = "\033[36m"
)

// Spinner shows progress while a request is outstanding
type Spinner struct {
	out io.Writer

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSpinner creates a spinner writing to out
func NewSpinner(out io.Writer) *Spinner {
	return &Spinner{out: out}
}

// Start displays a spinner with a message
func (s *Spinner) Start(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		s.stopLocked()
	}

	s.done = make(chan struct{})
	s.wg.Add(1)
	go func(done <-chan struct{}) {
		defer s.wg.Done()
		spinnerChars := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(spinnerChars) {
			fmt.Fprintf(s.out, "\r%s%s %s%s", colorCyan, spinnerChars[i], msg, colorReset)
			select {
			case <-done:
				// Clear the spinner line
				fmt.Fprintf(s.out, "\r%s\r", clearLine())
				return
			case <-ticker.C:
			}
		}
	}(s.done)
}

// Stop stops the spinner and clears its line
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Spinner) stopLocked() {
	if s.done == nil {
		return
	}
	close(s.done)
	s.done = nil
	s.wg.Wait()
}

// clearLine returns ANSI escape code to clear the current line
func clearLine() string {
	return "\033[2K"
}

// IsTerminal checks if stdout is a terminal
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Size returns the terminal width and height, or 80x24 when stdout is not
// a terminal.
func Size() (width, height int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80, 24
	}
	return width, height
}
