package main

import (
	"sync"
)

// SessionRegistry tracks which username, if any, each live connection is
// bound to. Entirely in-memory; slots live and die with the connection.
type SessionRegistry struct {
	sessions map[*WSClient]string
	mutex    sync.RWMutex
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[*WSClient]string),
	}
}

// Bind associates a connection with a username, overwriting any prior
// binding for that connection.
func (r *SessionRegistry) Bind(client *WSClient, username string) {
	r.mutex.Lock()
	r.sessions[client] = username
	r.mutex.Unlock()
}

// Username returns the connection's current binding.
func (r *SessionRegistry) Username(client *WSClient) (string, bool) {
	r.mutex.RLock()
	username, ok := r.sessions[client]
	r.mutex.RUnlock()
	return username, ok
}

// Unbind discards the connection's slot and returns the username that
// was bound to it, so the caller can drive a presence update.
func (r *SessionRegistry) Unbind(client *WSClient) (string, bool) {
	r.mutex.Lock()
	username, ok := r.sessions[client]
	delete(r.sessions, client)
	r.mutex.Unlock()
	return username, ok
}
