package main

import (
	"time"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type Message struct {
	ID           int64     `json:"id"`
	Sender       string    `json:"sender"`
	Body         string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	HasVoice     bool      `json:"has_voice"`
	VoiceFile    *string   `json:"voice_file,omitempty"`
	OriginalName *string   `json:"original_name,omitempty"`
	FileSize     *int64    `json:"file_size,omitempty"`
	Duration     *float64  `json:"duration,omitempty"`
}

type User struct {
	Username string    `json:"username"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// VoiceMeta carries the attachment fields of a voice message into the store.
type VoiceMeta struct {
	VoiceFile    string
	OriginalName string
	FileSize     int64
	Duration     float64
}

// WebSocket event types
type WSEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type InitialData struct {
	Messages []Message `json:"messages"`
	Users    []User    `json:"users"`
}

type SendMessageData struct {
	Sender string `json:"sender"`
	Body   string `json:"message"`
}

type SendVoiceMessageData struct {
	Sender       string  `json:"sender"`
	VoiceFile    string  `json:"voiceFile"`
	OriginalName string  `json:"originalName,omitempty"`
	Duration     float64 `json:"duration"`
}

// StoredFile describes an attachment accepted by the stager, echoed back
// to the uploader so the follow-up send_voice_message event can reference it.
type StoredFile struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalname"`
	MimeType     string `json:"mimetype"`
	Size         int64  `json:"size"`
	Path         string `json:"path"`
	URL          string `json:"url"`
}
