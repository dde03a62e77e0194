package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/mux"
)

type Server struct {
	db        *Database
	stager    *AttachmentStager
	registry  *SessionRegistry
	wsManager *WSManager
}

func NewServer(db *Database, stager *AttachmentStager) *Server {
	registry := NewSessionRegistry()
	wsManager := NewWSManager(db, registry, stager)

	return &Server{
		db:        db,
		stager:    stager,
		registry:  registry,
		wsManager: wsManager,
	}
}

func (s *Server) RegisterRoutes() *mux.Router {
	r := mux.NewRouter()

	// Read-only snapshot endpoints
	r.HandleFunc("/api/messages", s.handleMessages).Methods("GET")
	r.HandleFunc("/api/users", s.handleUsers).Methods("GET")

	// Voice attachment upload and retrieval
	r.HandleFunc("/api/upload", s.handleUpload).Methods("POST")
	r.HandleFunc("/uploads/{filename}", s.handleDownload).Methods("GET")

	// WebSocket endpoint
	r.HandleFunc("/ws", s.handleWebSocket)

	return r
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.db.GetAllMessages()
	if err != nil {
		respondError(w, "Failed to fetch messages", http.StatusInternalServerError)
		return
	}

	respondJSON(w, messages)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.db.GetAllUsers()
	if err != nil {
		respondError(w, "Failed to fetch users", http.StatusInternalServerError)
		return
	}

	respondJSON(w, users)
}

// handleUpload accepts a single voice file under the "voice" form field.
// The MIME allow-list and size cap are enforced before the stager writes
// anything.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("voice")
	if err != nil {
		respondError(w, "Voice file required under field 'voice'", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimetype := header.Header.Get("Content-Type")

	stored, err := s.stager.Store(file, header.Size, mimetype, header.Filename)
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		respondError(w, "Unsupported audio type: "+mimetype, http.StatusUnsupportedMediaType)
		return
	case errors.Is(err, ErrPayloadTooLarge):
		respondError(w, "Voice file exceeds 10 MiB limit", http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		respondError(w, "Failed to store voice file", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"success": true,
		"file":    stored,
	})
}

// handleDownload serves a stored attachment by token. http.ServeFile
// handles byte-range requests, which audio players rely on for seeking.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["filename"]

	path, err := s.stager.Resolve(token)
	if err != nil {
		respondError(w, "Invalid file name", http.StatusBadRequest)
		return
	}

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		respondError(w, "File not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, path)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsManager.HandleConnection(w, r)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
