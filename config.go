package main

import (
	"os"
	"strings"
)

// Config holds server settings loaded from environment variables.
type Config struct {
	Port           string
	DBPath         string
	UploadDir      string
	SeedUsers      []string
	AllowedOrigins []string
}

// LoadConfig reads configuration from the environment, falling back to
// defaults suitable for local development.
func LoadConfig() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "chat.db"
	}

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}

	seedUsers := os.Getenv("CHAT_USERS")
	if seedUsers == "" {
		seedUsers = "User1,User2,User3"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}

	return Config{
		Port:           port,
		DBPath:         dbPath,
		UploadDir:      uploadDir,
		SeedUsers:      splitList(seedUsers),
		AllowedOrigins: splitList(allowedOrigins),
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
