package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cpage-pivotal/ipzs/internal/service"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

// Asker is the TUI-facing subset of the advisor.
type Asker interface {
	Ask(ctx context.Context, req service.Request) (*service.Response, error)
}

const (
	focusDate = iota
	focusQuestion
)

// answerMsg carries the result of an Ask call back into Update.
type answerMsg struct {
	resp *service.Response
	err  error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	advisor  Asker
	date     textinput.Model
	question textinput.Model
	focus    int
	viewport viewport.Model
	resp     *service.Response
	summary  string
	status   string
	cursor   int
	ready    bool
	waiting  bool
	session  string
	timeout  time.Duration
}

// New creates a new TUI model instance. summary is shown under the header.
func New(advisor Asker, summary string) Model {
	date := textinput.New()
	date.Prompt = "date> "
	date.Placeholder = "YYYY-MM-DD (empty: no date constraint)"
	date.CharLimit = 10

	q := textinput.New()
	q.Prompt = "ask> "
	q.Placeholder = "Type a question and press Enter"
	q.Focus()

	return Model{
		advisor:  advisor,
		date:     date,
		question: q,
		focus:    focusQuestion,
		viewport: viewport.New(0, 0),
		summary:  summary,
		status:   "Ready. Tab switches between date and question.",
		timeout:  2 * time.Minute,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + 2*(qh+1) + 1 // header+summary, status, two inputs, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = service.SafeMessage(msg.err)
			return m, nil
		}
		m.resp, m.cursor = msg.resp, 0
		m.session = msg.resp.ConversationID
		m.status = fmt.Sprintf("Answered (%s mode, %d sources). Up/Down cycles sources.", msg.resp.Mode, len(msg.resp.Sources))
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab", "shift+tab":
			m.toggleFocus()
			return m, nil
		case "enter":
			return m.ask()
		case "down":
			if m.resp != nil && len(m.resp.Sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.resp.Sources)
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		case "up":
			if m.resp != nil && len(m.resp.Sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.resp.Sources)) % len(m.resp.Sources)
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	if m.focus == focusDate {
		m.date, cmd = m.date.Update(msg)
	} else {
		m.question, cmd = m.question.Update(msg)
	}
	return m, cmd
}

func (m *Model) toggleFocus() {
	if m.focus == focusDate {
		m.focus = focusQuestion
		m.date.Blur()
		m.question.Focus()
		return
	}
	m.focus = focusDate
	m.question.Blur()
	m.date.Focus()
}

func (m Model) ask() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.question.Value())
	if q == "" || m.waiting {
		return m, nil
	}
	date := strings.TrimSpace(m.date.Value())
	m.status = "Thinking..."
	if date != "" {
		if _, err := temporal.ParseDate(date); err != nil {
			m.status = fmt.Sprintf("%q is not a date; answering without a date constraint...", date)
		}
	}
	m.waiting = true
	req := service.Request{Text: q, ContextDate: date, ConversationID: m.session}
	advisor, timeout := m.advisor, m.timeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := advisor.Ask(ctx, req)
		return answerMsg{resp: resp, err: err}
	}
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Legislative Advisor")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	answer := resultBoxStyle.Render(m.viewport.View())
	date := inputBoxStyle.Render(m.date.View())
	question := inputBoxStyle.Render(m.question.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + answer + "\n" + date + "\n" + question + "\n" + status
}

func (m Model) renderAnswer() string {
	if m.resp == nil {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(modeStyle.Render("mode: "+m.resp.Mode) + "\n\n")
	b.WriteString(m.resp.Answer)
	if len(m.resp.Sources) == 0 {
		b.WriteString("\n\n" + dimStyle.Render("No sources."))
		return b.String()
	}
	s := m.resp.Sources[m.cursor]
	b.WriteString("\n\n" + sourceStyle.Render(fmt.Sprintf("Source %d/%d  score=%.3f", m.cursor+1, len(m.resp.Sources), s.Score)))
	b.WriteString("\n" + s.Title)
	if s.DocumentNumber != "" {
		b.WriteString(" (" + s.DocumentNumber + ")")
	}
	b.WriteString("\n" + dimStyle.Render(effectiveRange(s)+"  chunk "+s.ChunkID))
	return b.String()
}

func effectiveRange(s service.Source) string {
	from := s.EffectiveDate
	if from == "" {
		from = "undated"
	}
	if s.ExpirationDate == "" {
		return "effective " + from
	}
	return "effective " + from + " to " + s.ExpirationDate
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	modeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
