// Package notify delivers user-facing status messages for long-running
// operations. The core treats it as a side-effecting collaborator; rendering
// lives entirely here.
package notify

import (
	"fmt"
	"io"
	"sync"
)

// Notifier receives user-visible events from the download pipeline.
type Notifier interface {
	// Status reports an interim update (retry notices, purchase progress).
	Status(message string)

	// Progress reports download progress as a fraction in [0, 1].
	Progress(appName string, fraction float64)

	// Success reports the single terminal success message.
	Success(message string)

	// Failure reports the single terminal failure message.
	Failure(message string)
}

// Console writes notifications as plain lines. Progress updates rewrite the
// current line so a TTY shows a moving percentage.
type Console struct {
	mu         sync.Mutex
	w          io.Writer
	inProgress bool
}

// NewConsole creates a console notifier writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Status(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endProgressLine()
	fmt.Fprintln(c.w, message)
}

func (c *Console) Progress(appName string, fraction float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress = true
	fmt.Fprintf(c.w, "\rDownloading %s... %3.0f%%", appName, fraction*100)
}

func (c *Console) Success(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endProgressLine()
	fmt.Fprintln(c.w, message)
}

func (c *Console) Failure(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endProgressLine()
	fmt.Fprintln(c.w, "Error: "+message)
}

// endProgressLine terminates a partially written progress line. Must be
// called with c.mu held.
func (c *Console) endProgressLine() {
	if c.inProgress {
		fmt.Fprintln(c.w)
		c.inProgress = false
	}
}

// Silent drops all notifications. Useful for scripted runs and tests.
type Silent struct{}

func (Silent) Status(string)            {}
func (Silent) Progress(string, float64) {}
func (Silent) Success(string)           {}
func (Silent) Failure(string)           {}
