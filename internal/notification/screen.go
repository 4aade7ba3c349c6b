package notification

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// Screen prints alerts to a writer, stdout by default.
type Screen struct {
	out io.Writer
}

func NewScreen(out io.Writer) *Screen {
	if out == nil {
		out = os.Stdout
	}
	return &Screen{out: out}
}

func (s *Screen) Name() string { return "print_on_screen" }

func (s *Screen) Send(_ context.Context, a Alert) error {
	_, err := fmt.Fprintf(s.out, "%s %s\n", a.At.Format(time.DateTime), a.Text())
	return err
}
