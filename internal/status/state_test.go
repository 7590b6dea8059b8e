package status

import (
	"testing"

	"github.com/matheus3301/mailingest/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Pending {
		t.Errorf("initial state = %s, want PENDING", m.Current())
	}
	if m.Terminal() {
		t.Error("PENDING should not be terminal")
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		path []State
	}{
		{[]State{Ingesting, Completed}},
		{[]State{Ingesting, Failed}},
		{[]State{Failed}},
	}
	for _, tt := range tests {
		m := NewMachine(nil)
		for _, s := range tt.path {
			if err := m.Transition(s); err != nil {
				t.Fatalf("Transition(%s) error = %v", s, err)
			}
		}
		if !m.Terminal() {
			t.Errorf("state %s should be terminal", m.Current())
		}
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Completed); err == nil {
		t.Error("Transition(PENDING -> COMPLETED) should fail")
	}

	walk(t, m, Ingesting, Completed)
	if err := m.Transition(Ingesting); err == nil {
		t.Error("COMPLETED should not be left")
	}
	if m.Current() != Completed {
		t.Errorf("state = %s, want COMPLETED", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("run.", 10)
	defer unsub()

	m := NewMachine(b)
	walk(t, m, Ingesting)

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Pending || change.To != Ingesting {
		t.Errorf("change = %v -> %v, want PENDING -> INGESTING", change.From, change.To)
	}
}

func walk(t *testing.T, m *Machine, states ...State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}
}
