package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"buildtime-agent/src/pipeline"
)

func update(t *testing.T, m ProgressModel, msg tea.Msg) (ProgressModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(ProgressModel)
	if !ok {
		t.Fatalf("Update returned %T, want ProgressModel", next)
	}
	return pm, cmd
}

func TestProgressModel_InitialState(t *testing.T) {
	model := NewProgressModel("run-1", nil, nil)

	if model.done {
		t.Error("expected not done initially")
	}
	if model.Init() == nil {
		t.Error("expected Init to start the spinner")
	}

	view := model.View()
	if !strings.Contains(view, "run-1") {
		t.Errorf("expected view to contain run id, got: %s", view)
	}
	if !strings.Contains(view, "Streaming builds") {
		t.Errorf("expected streaming status, got: %s", view)
	}
}

func TestProgressModel_UpdateWithProgress(t *testing.T) {
	model := NewProgressModel("", nil, nil)

	model, _ = update(t, model, ProgressMsg{Discovered: 7, Pending: 2, Active: 5})
	model, _ = update(t, model, ProgressMsg{Discovered: 7, Pending: 2, Active: 4, Completed: 1, Accepted: 1, LastBuildID: "build-abc"})

	view := model.View()
	for _, want := range []string{"discovered 7", "pending 2", "active 4", "done 1", "accepted 1", "build-abc"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q, got: %s", want, view)
		}
	}
}

func TestProgressModel_StaleUpdateIgnored(t *testing.T) {
	model := NewProgressModel("", nil, nil)

	model, _ = update(t, model, ProgressMsg{Discovered: 3, Completed: 2})
	model, _ = update(t, model, ProgressMsg{Discovered: 3, Completed: 1})

	if model.progress.Completed != 2 {
		t.Errorf("completed = %d, want 2", model.progress.Completed)
	}
}

func TestProgressModel_RecentBuildsBounded(t *testing.T) {
	model := NewProgressModel("", nil, nil)
	for i := 1; i <= recentBuilds+3; i++ {
		model, _ = update(t, model, ProgressMsg{Discovered: 10, Completed: int64(i), LastBuildID: strings.Repeat("b", i)})
	}

	if len(model.recent) != recentBuilds {
		t.Fatalf("recent = %d builds, want %d", len(model.recent), recentBuilds)
	}
	if model.recent[0] != strings.Repeat("b", recentBuilds+3) {
		t.Errorf("most recent build first, got %q", model.recent[0])
	}
}

func TestProgressModel_StopThenCancel(t *testing.T) {
	stops, cancels := 0, 0
	model := NewProgressModel("", func() { stops++ }, func() { cancels++ })

	key := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}
	model, _ = update(t, model, key)
	if stops != 1 || cancels != 0 {
		t.Fatalf("after first q: stops=%d cancels=%d", stops, cancels)
	}
	if !strings.Contains(model.View(), "Draining") {
		t.Errorf("expected draining status, got: %s", model.View())
	}

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyCtrlC})
	model, _ = update(t, model, key)
	if stops != 1 || cancels != 1 {
		t.Errorf("after more keys: stops=%d cancels=%d", stops, cancels)
	}
	if !strings.Contains(model.View(), "Aborting") {
		t.Errorf("expected aborting status, got: %s", model.View())
	}
}

func TestProgressModel_Done(t *testing.T) {
	model := NewProgressModel("", nil, nil)
	result := &pipeline.Result{RunID: "run-1"}

	model, cmd := update(t, model, DoneMsg{Result: result})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !strings.Contains(model.View(), "Complete") {
		t.Errorf("expected view to contain 'Complete', got: %s", model.View())
	}
	got, err := model.Outcome()
	if got != result || err != nil {
		t.Errorf("Outcome() = %v, %v", got, err)
	}
}

func TestProgressModel_Failed(t *testing.T) {
	model := NewProgressModel("", nil, nil)

	model, _ = update(t, model, DoneMsg{Err: errors.New("feed gone")})
	if !strings.Contains(model.View(), "feed gone") {
		t.Errorf("expected error in view, got: %s", model.View())
	}
}

func TestProgressModel_NarrowWindow(t *testing.T) {
	model := NewProgressModel("a-very-long-run-identifier", nil, nil)
	model, _ = update(t, model, tea.WindowSizeMsg{Width: 20, Height: 10})
	model, _ = update(t, model, ProgressMsg{Completed: 1, LastBuildID: strings.Repeat("x", 60)})

	for _, line := range strings.Split(strings.TrimSuffix(model.View(), "\n"), "\n") {
		if w := ansi.StringWidth(line); w > 20 {
			t.Errorf("line wider than window: %d %q", w, line)
		}
	}
}

func TestMonitor_Run(t *testing.T) {
	var out bytes.Buffer
	mon := NewMonitor(&out, "run-1", nil, nil, tea.WithInput(nil), tea.WithoutRenderer())

	want := &pipeline.Result{RunID: "run-1"}
	got, err := mon.Run(func() (*pipeline.Result, error) {
		mon.Progress(pipeline.Progress{Discovered: 1})
		mon.Progress(pipeline.Progress{Discovered: 1, Completed: 1, LastBuildID: "b1"})
		return want, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != want {
		t.Errorf("Run() = %v, want %v", got, want)
	}
}

func TestMonitor_RunError(t *testing.T) {
	var out bytes.Buffer
	mon := NewMonitor(&out, "", nil, nil, tea.WithInput(nil), tea.WithoutRenderer())

	_, err := mon.Run(func() (*pipeline.Result, error) {
		return nil, errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Errorf("Run() error = %v, want boom", err)
	}
}
