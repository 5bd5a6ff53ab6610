package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// Mode is the track a capture pass runs on.
type Mode int

const (
	ModeBase Mode = iota
	ModeAnnotated
)

func (m Mode) String() string {
	if m == ModeAnnotated {
		return "annotated"
	}
	return "base"
}

// SwitchPrompt is shown to the operator before the annotated pass.
const SwitchPrompt = "Switch track for annotation mode. Press Enter when complete..."

// Switcher moves the simulator between the base and annotated track. Switch
// is called before every pass; implementations skip a switch to the mode
// already active.
type Switcher interface {
	Switch(ctx context.Context, to Mode) error
}

// SwitchFunc adapts a function to Switcher. It is called on every pass.
type SwitchFunc func(ctx context.Context, to Mode) error

func (f SwitchFunc) Switch(ctx context.Context, to Mode) error {
	return f(ctx, to)
}

// TrackSwitcher remembers the active mode and calls Do only when it
// changes. The zero value starts in ModeBase.
type TrackSwitcher struct {
	Do      func(ctx context.Context, to Mode) error
	current Mode
}

func (s *TrackSwitcher) Switch(ctx context.Context, to Mode) error {
	if to == s.current {
		return nil
	}
	if s.Do != nil {
		if err := s.Do(ctx, to); err != nil {
			return fmt.Errorf("switch to %s track: %w", to, err)
		}
	}
	s.current = to
	return nil
}

// Current returns the active mode.
func (s *TrackSwitcher) Current() Mode {
	return s.current
}

// NewPromptSwitcher returns a switcher that asks the operator to change the
// track by hand and waits for a line on in.
func NewPromptSwitcher(in *LineReader, out io.Writer) *TrackSwitcher {
	return &TrackSwitcher{
		Do: func(ctx context.Context, to Mode) error {
			msg := SwitchPrompt
			if to == ModeBase {
				msg = "Switch track back to base mode. Press Enter when complete..."
			}
			return in.Wait(ctx, out, msg)
		},
	}
}

// WaitForEnter writes msg to out and blocks until a line is read from in or
// ctx is done.
func WaitForEnter(ctx context.Context, in *LineReader, out io.Writer, msg string) error {
	return in.Wait(ctx, out, msg)
}

// LineReader reads operator confirmations one line at a time. At most one
// read runs on the input: a read left behind by a cancelled wait is handed
// to the next wait, so a line typed after a cancel confirms that wait.
type LineReader struct {
	br *bufio.Reader

	mu      sync.Mutex
	pending chan error
}

func NewLineReader(in io.Reader) *LineReader {
	return &LineReader{br: bufio.NewReader(in)}
}

// Wait writes msg to out and blocks until a line is read or ctx is done.
// EOF counts as a line.
func (r *LineReader) Wait(ctx context.Context, out io.Writer, msg string) error {
	if out != nil {
		fmt.Fprintln(out, msg)
	}

	select {
	case err := <-r.read():
		r.mu.Lock()
		r.pending = nil
		r.mu.Unlock()
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *LineReader) read() chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		done := make(chan error, 1)
		go func() {
			_, err := r.br.ReadString('\n')
			if err == io.EOF {
				err = nil
			}
			done <- err
		}()
		r.pending = done
	}
	return r.pending
}
