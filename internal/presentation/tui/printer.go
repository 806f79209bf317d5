package tui

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes query progress for a person watching a terminal.
type Printer struct {
	w       io.Writer
	profile termenv.Profile
}

// NewPrinter creates a printer for w. Colors are used only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	profile := termenv.Ascii
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		profile = termenv.ColorProfile()
	}
	return &Printer{w: w, profile: profile}
}

func (p *Printer) line(color, format string, args ...any) {
	s := p.profile.String(fmt.Sprintf(format, args...))
	if color != "" {
		s = s.Foreground(p.profile.Color(color))
	}
	fmt.Fprintln(p.w, s)
}

// Asking announces a submitted query.
func (p *Printer) Asking(description string) {
	if description == "" {
		return
	}
	p.line("#818cf8", "Robot asks: %s", description)
}

// Heard prints a recognized sentence.
func (p *Printer) Heard(sentence string) {
	p.line("#4ade80", "Robot heard '%s'", sentence)
}

// Result prints how a query resolved.
func (p *Printer) Result(ev *domain.ResultEvent) {
	switch ev.Outcome {
	case domain.OutcomeSuccess:
		if ev.Result != nil {
			p.Heard(ev.Result.Sentence)
		}
	case domain.OutcomeTimeout:
		p.line("#facc15", "Robot did not hear you (timeout)")
	case domain.OutcomeFailure:
		p.line("#f87171", "Robot did not hear you (speech failed)")
	default:
		p.line("#f87171", "Robot could not ask: %v", ev.Err)
	}
}

// Hooks exposes the printer as client lifecycle hooks.
func (p *Printer) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSubmit: func(_ context.Context, ev *domain.QueryEvent) {
			p.Asking(ev.Description)
		},
		OnExtend: func(_ context.Context, _ *domain.QueryEvent) {
			p.line("#94a3b8", "...still listening")
		},
		OnResult: func(_ context.Context, ev *domain.ResultEvent) {
			p.Result(ev)
		},
	}
}
