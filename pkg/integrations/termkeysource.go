package integrations

import (
	"bufio"
	"context"
	"os"
	"time"

	"golang.org/x/term"
)

// ActivationKey is the rune that toggles recording in TerminalKeySource.
const ActivationKey = ' '

// TerminalKeySource is the one concrete KeySource halo ships: a terminal
// cannot deliver true key-down/key-up events for a held key (a tty only
// ever hands a program discrete keystrokes), so it maps "press" and
// "release" onto alternating taps of ActivationKey read from stdin in
// raw mode, the same term.MakeRaw/Restore pairing the arena tool uses
// around term.GetSize for direct terminal control. The elapsed time
// between the two taps still stands in for hold duration, so
// KeyboardMonitor's existing long/short classification threshold
// applies unchanged.
type TerminalKeySource struct {
	fd int
}

// NewTerminalKeySource builds a TerminalKeySource reading from stdin.
func NewTerminalKeySource() *TerminalKeySource {
	return &TerminalKeySource{fd: int(os.Stdin.Fd())}
}

// Events puts the terminal in raw mode and emits one RawKeyEvent per
// tap of ActivationKey, alternating Pressed true/false, until ctx is
// cancelled or stdin is closed. Any other key is ignored. The terminal
// state is restored before the channel closes.
func (s *TerminalKeySource) Events(ctx context.Context) <-chan RawKeyEvent {
	out := make(chan RawKeyEvent)

	oldState, err := term.MakeRaw(s.fd)
	if err != nil {
		close(out)
		return out
	}

	go func() {
		defer close(out)
		defer term.Restore(s.fd, oldState)

		reader := bufio.NewReader(os.Stdin)
		pressed := false

		type readResult struct {
			r   rune
			err error
		}
		runes := make(chan readResult)
		go func() {
			for {
				r, _, err := reader.ReadRune()
				runes <- readResult{r: r, err: err}
				if err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case res := <-runes:
				if res.err != nil {
					return
				}
				if res.r == 3 { // Ctrl-C
					return
				}
				if res.r != ActivationKey {
					continue
				}
				pressed = !pressed
				select {
				case out <- RawKeyEvent{Pressed: pressed, At: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
