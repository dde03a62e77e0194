package main

import (
	"testing"
)

func TestRegistryBindUnbind(t *testing.T) {
	r := NewSessionRegistry()
	c := &WSClient{}

	if _, ok := r.Username(c); ok {
		t.Error("Fresh connection should have no binding")
	}

	r.Bind(c, "A")
	if username, ok := r.Username(c); !ok || username != "A" {
		t.Errorf("Expected binding A, got %q (%v)", username, ok)
	}

	username, ok := r.Unbind(c)
	if !ok || username != "A" {
		t.Errorf("Unbind = %q (%v), want A", username, ok)
	}

	if _, ok := r.Unbind(c); ok {
		t.Error("Second unbind should report no binding")
	}
}

func TestRegistryRebindOverwrites(t *testing.T) {
	r := NewSessionRegistry()
	c := &WSClient{}

	r.Bind(c, "A")
	r.Bind(c, "A") // idempotent
	r.Bind(c, "B") // last-bound-wins

	if username, _ := r.Username(c); username != "B" {
		t.Errorf("Expected last binding B, got %q", username)
	}

	if username, _ := r.Unbind(c); username != "B" {
		t.Errorf("Unbind should return last binding, got %q", username)
	}
}

func TestRegistryIsolatesConnections(t *testing.T) {
	r := NewSessionRegistry()
	c1, c2 := &WSClient{}, &WSClient{}

	r.Bind(c1, "A")
	r.Bind(c2, "B")

	r.Unbind(c1)
	if username, ok := r.Username(c2); !ok || username != "B" {
		t.Errorf("Unbinding one connection disturbed another: %q (%v)", username, ok)
	}
}
