package secrets

import (
	"context"
	"strings"
	"sync"
	"testing"

	"sekret.org/internal/audit"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureEmitter) Notify(_ context.Context, evt audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) actions() []audit.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Action, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.Action
	}
	return out
}

func TestGenerateValueShape(t *testing.T) {
	value, err := GenerateValue()
	if err != nil {
		t.Fatalf("GenerateValue: %v", err)
	}
	if len(value) != rotationLength {
		t.Fatalf("length = %d, want %d", len(value), rotationLength)
	}
	for _, r := range value {
		if !strings.ContainsRune(rotationAlphabet, r) {
			t.Fatalf("character %q outside alphabet", r)
		}
	}
}

func TestRotationEntropy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sec, err := s.Create(ctx, dev, CreateInput{Name: "rotated", Value: "seed"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rotator := NewRotator(s, nil)
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		value, err := rotator.Rotate(ctx, dev, sec.ID)
		if err != nil {
			t.Fatalf("Rotate %d: %v", i, err)
		}
		if len(value) != rotationLength {
			t.Fatalf("rotation %d: length %d", i, len(value))
		}
		for _, r := range value {
			if !strings.ContainsRune(rotationAlphabet, r) {
				t.Fatalf("rotation %d: character %q outside alphabet", i, r)
			}
		}
		if seen[value] {
			t.Fatalf("rotation %d produced a repeated value", i)
		}
		seen[value] = true
	}

	got, _ := s.Get(ctx, dev, sec.ID, false)
	if got.Version != 1001 {
		t.Fatalf("version after 1000 rotations = %d, want 1001", got.Version)
	}
}

func TestRotateEmitsUpdateAndRotate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	emitter := &captureEmitter{}
	svc := WithAudit(s, emitter)
	rotator := NewRotator(svc, emitter)

	sec, err := svc.Create(ctx, dev, CreateInput{Name: "db-pass", Value: "p@ss1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	value, err := rotator.Rotate(ctx, dev, sec.ID)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	got, err := svc.Get(ctx, dev, sec.ID, true)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != value {
		t.Fatalf("stored value %q does not match rotation result %q", got.Value, value)
	}

	actions := emitter.actions()
	want := []audit.Action{audit.ActionCreate, audit.ActionUpdate, audit.ActionRotate, audit.ActionView}
	if len(actions) != len(want) {
		t.Fatalf("audit actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("audit actions = %v, want %v", actions, want)
		}
	}
}

func TestRotateMissingSecret(t *testing.T) {
	s := newTestStore(t)
	rotator := NewRotator(s, nil)
	if _, err := rotator.Rotate(context.Background(), dev, "no-such-id"); err == nil {
		t.Fatal("expected error rotating a missing secret")
	}
}
