package events

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/rickgao/orderstats/internal/model"
)

var (
	colorText    = lipgloss.Color("#cdd6f4")
	colorSubtext = lipgloss.Color("#7f849c")
	colorGreen   = lipgloss.Color("#a6e3a1")
	colorPeach   = lipgloss.Color("#fab387")
	colorRed     = lipgloss.Color("#f38ba8")
	colorBlue    = lipgloss.Color("#89b4fa")
)

// Console prints stage transitions, group results, warnings and the final
// summary as styled lines. Record and retry events are not shown.
type Console struct {
	mu sync.Mutex
	w  io.Writer

	time    lipgloss.Style
	stage   lipgloss.Style
	group   lipgloss.Style
	warn    lipgloss.Style
	failed  lipgloss.Style
	done    lipgloss.Style
	message lipgloss.Style
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w:       w,
		time:    lipgloss.NewStyle().Foreground(colorSubtext),
		stage:   lipgloss.NewStyle().Foreground(colorBlue).Bold(true).Width(12),
		group:   lipgloss.NewStyle().Foreground(colorPeach),
		warn:    lipgloss.NewStyle().Foreground(colorPeach).Bold(true),
		failed:  lipgloss.NewStyle().Foreground(colorRed).Bold(true),
		done:    lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		message: lipgloss.NewStyle().Foreground(colorText),
	}
}

func (c *Console) Emit(e Event) {
	var line string
	ts := c.time.Render(e.Time.Format("15:04:05"))

	switch e.Kind {
	case KindStage:
		style := c.stage
		switch e.Stage {
		case model.StateDone:
			style = c.done
		case model.StateFailed:
			style = c.failed
		}
		line = fmt.Sprintf("%s %s %s", ts, style.Render(string(e.Stage)), c.message.Render(e.Message))
	case KindGroup:
		line = fmt.Sprintf("%s   %s %s", ts, c.group.Render(e.Group), c.message.Render(e.Message))
	case KindWarning:
		line = fmt.Sprintf("%s %s %s", ts, c.warn.Render("warning"), c.message.Render(e.Message))
	case KindSummary:
		line = fmt.Sprintf("%s %s %s", ts, c.done.Render("summary"), c.message.Render(e.Message))
	default:
		return
	}

	c.mu.Lock()
	fmt.Fprintln(c.w, line)
	c.mu.Unlock()
}
