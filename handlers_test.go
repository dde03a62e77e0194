package main

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestMessagesEndpoint(t *testing.T) {
	env := newTestServer(t)

	for _, body := range []string{"one", "two"} {
		if _, err := env.db.RecordMessage("A", body, nil); err != nil {
			t.Fatalf("RecordMessage failed: %v", err)
		}
	}

	resp, err := http.Get(env.ts.URL + "/api/messages")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}

	var messages []Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("Failed to decode messages: %v", err)
	}

	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Body != "one" || messages[1].Body != "two" {
		t.Errorf("Messages not chronological: %q, %q", messages[0].Body, messages[1].Body)
	}
}

func TestUsersEndpoint(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/api/users")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		t.Fatalf("Failed to decode users: %v", err)
	}

	if len(users) != 3 {
		t.Fatalf("Expected 3 users, got %d", len(users))
	}
	for i, want := range []string{"A", "B", "C"} {
		if users[i].Username != want {
			t.Errorf("User %d = %q, want %q", i, users[i].Username, want)
		}
	}
}

func TestDownloadUnknownFile(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/uploads/voice-nope.mp3")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", resp.StatusCode)
	}
}
