package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/TobiSchelling/NewsSense/internal/news"
	"github.com/TobiSchelling/NewsSense/internal/session"
)

type fakeSession struct {
	summaries  []session.Summary
	transcript []session.ChatTurn
	askErr     error
	refreshes  int
	cleared    bool
}

func (f *fakeSession) Refresh(context.Context) *session.Result {
	f.refreshes++
	f.summaries = []session.Summary{{Category: "world", Text: "World summary"}}
	return &session.Result{Steps: []session.StepResult{
		{Name: "Collect", Summary: "Collected 3 articles"},
		{Name: "Index", Summary: "Indexed 3 articles"},
	}}
}

func (f *fakeSession) Ask(_ context.Context, q string) (session.ChatTurn, error) {
	f.transcript = append(f.transcript, session.ChatTurn{Role: session.RoleUser, Message: q})
	if f.askErr != nil {
		turn := session.ChatTurn{Role: session.RoleAI, Message: session.Apology}
		f.transcript = append(f.transcript, turn)
		return turn, f.askErr
	}
	turn := session.ChatTurn{Role: session.RoleAI, Message: "Rates held.", Sources: []news.Article{{Title: "Bank holds", Source: "Wire"}}}
	f.transcript = append(f.transcript, turn)
	return turn, nil
}

func (f *fakeSession) Clear() {
	f.cleared = true
	f.summaries = nil
	f.transcript = nil
}

func (f *fakeSession) Summaries() []session.Summary { return f.summaries }

func (f *fakeSession) Transcript() []session.ChatTurn { return f.transcript }

func sized(t *testing.T, sess *fakeSession) Model {
	t.Helper()
	m := New(context.Background(), sess)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(Model)
}

// step applies msg and runs the returned command once, feeding its result
// back into the model.
func step(m Model, msg tea.Msg) Model {
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	out := cmd()
	switch out.(type) {
	case answerMsg, refreshMsg:
		next, _ = m.Update(out)
		return next.(Model)
	}
	return m
}

func TestViewBeforeSize(t *testing.T) {
	m := New(context.Background(), &fakeSession{})
	if m.View() != "Loading..." {
		t.Errorf("expected loading view, got %q", m.View())
	}
}

func TestEnterAsksQuestion(t *testing.T) {
	sess := &fakeSession{}
	m := sized(t, sess)
	m.input.SetValue("what about rates?")

	m = step(m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(sess.transcript) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(sess.transcript))
	}
	if m.busy {
		t.Error("expected model to be idle after answer")
	}
	if m.input.Value() != "" {
		t.Error("expected input to be cleared")
	}
	if !strings.Contains(m.status, "1 sources") {
		t.Errorf("unexpected status %q", m.status)
	}
	view := m.View()
	if !strings.Contains(view, "Rates held.") || !strings.Contains(view, "Bank holds") {
		t.Errorf("expected answer and source in view:\n%s", view)
	}
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	sess := &fakeSession{}
	m := sized(t, sess)
	m.input.SetValue("   ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("expected no command for blank input")
	}
}

func TestAskFailureShowsApology(t *testing.T) {
	sess := &fakeSession{askErr: errors.New("openai: 401 invalid key sk-live-123")}
	m := sized(t, sess)
	m.input.SetValue("q")

	m = step(m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.status != "Answer failed" {
		t.Errorf("unexpected status %q", m.status)
	}
	if strings.Contains(m.View(), "sk-live-123") {
		t.Error("raw provider error leaked into the view")
	}
	if !strings.Contains(m.View(), "Sorry, something went wrong") {
		t.Error("expected apology in transcript")
	}
}

func TestCtrlRRefreshes(t *testing.T) {
	sess := &fakeSession{}
	m := sized(t, sess)

	m = step(m, tea.KeyMsg{Type: tea.KeyCtrlR})

	if sess.refreshes != 1 {
		t.Errorf("expected 1 refresh, got %d", sess.refreshes)
	}
	if !strings.Contains(m.status, "Indexed 3 articles") {
		t.Errorf("unexpected status %q", m.status)
	}
	if !strings.Contains(m.View(), "WORLD") {
		t.Error("expected category heading in view")
	}
}

func TestBusyIgnoresSecondAction(t *testing.T) {
	sess := &fakeSession{}
	m := sized(t, sess)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd == nil {
		t.Fatal("expected refresh command")
	}
	m = next.(Model)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd != nil {
		t.Error("expected second refresh to be ignored while busy")
	}
}

func TestCtrlLClears(t *testing.T) {
	sess := &fakeSession{summaries: []session.Summary{{Category: "world", Text: "x"}}}
	m := sized(t, sess)

	m = step(m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if !sess.cleared {
		t.Error("expected session to be cleared")
	}
	if !strings.Contains(m.View(), "No summaries yet") {
		t.Error("expected empty-state hint")
	}
}

func TestCtrlCQuits(t *testing.T) {
	m := sized(t, &fakeSession{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
