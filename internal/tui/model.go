package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/TobiSchelling/NewsSense/internal/session"
)

// Session is the TUI-facing subset of session.Session.
type Session interface {
	Refresh(ctx context.Context) *session.Result
	Ask(ctx context.Context, question string) (session.ChatTurn, error)
	Clear()
	Summaries() []session.Summary
	Transcript() []session.ChatTurn
}

type answerMsg struct {
	turn session.ChatTurn
	err  error
}

type refreshMsg struct {
	result *session.Result
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	sess     Session
	input    textinput.Model
	viewport viewport.Model
	status   string
	busy     bool
	ready    bool
}

// New creates a chat model bound to sess. ctx bounds every action.
func New(ctx context.Context, sess Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about today's news and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		sess:     sess,
		input:    ti,
		viewport: vp,
		status:   "Ctrl+R refresh · Ctrl+L clear · Ctrl+C quit",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, resize and action-completion messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input line
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-fh)
		m.refreshContent()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Answer failed"
		} else {
			m.status = fmt.Sprintf("Answered with %d sources", len(msg.turn.Sources))
		}
		m.refreshContent()
		return m, nil

	case refreshMsg:
		m.busy = false
		if err := msg.result.Err(); err != nil {
			m.status = "Refresh incomplete: " + err.Error()
		} else {
			m.status = summarizeSteps(msg.result)
		}
		m.refreshContent()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyCtrlR:
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Refreshing news..."
			return m, m.refreshCmd()
		case tea.KeyCtrlL:
			if m.busy {
				return m, nil
			}
			m.sess.Clear()
			m.status = "Session cleared"
			m.refreshContent()
			return m, nil
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.status = "Thinking..."
			return m, m.askCmd(q)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("NewsSense")
	body := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) askCmd(question string) tea.Cmd {
	return func() tea.Msg {
		turn, err := m.sess.Ask(m.ctx, question)
		return answerMsg{turn: turn, err: err}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		return refreshMsg{result: m.sess.Refresh(m.ctx)}
	}
}

func (m *Model) refreshContent() {
	m.viewport.SetContent(render(m.sess.Summaries(), m.sess.Transcript(), m.viewport.Width))
	m.viewport.GotoBottom()
}

func render(summaries []session.Summary, transcript []session.ChatTurn, width int) string {
	wrap := lipgloss.NewStyle().Width(max(10, width-2))
	var sb strings.Builder

	if len(summaries) == 0 {
		sb.WriteString(dimStyle.Render("No summaries yet. Press Ctrl+R to fetch today's news."))
		sb.WriteString("\n")
	}
	for _, s := range summaries {
		sb.WriteString(categoryStyle.Render(strings.ToUpper(s.Category)))
		sb.WriteString("\n")
		sb.WriteString(wrap.Render(s.Text))
		sb.WriteString("\n\n")
	}

	for _, t := range transcript {
		if t.Role == session.RoleUser {
			sb.WriteString(userStyle.Render("You: "))
		} else {
			sb.WriteString(aiStyle.Render("AI: "))
		}
		sb.WriteString(wrap.Render(t.Message))
		sb.WriteString("\n")
		for i, src := range t.Sources {
			line := fmt.Sprintf("  [%d] %s", i+1, src.Title)
			if src.Source != "" {
				line += " (" + src.Source + ")"
			}
			sb.WriteString(dimStyle.Render(line))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func summarizeSteps(r *session.Result) string {
	parts := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		parts = append(parts, s.Summary)
	}
	return strings.Join(parts, " · ")
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	categoryStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	aiStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Run starts the full-screen chat program.
func Run(ctx context.Context, sess Session) error {
	p := tea.NewProgram(New(ctx, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
