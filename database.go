package main

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; funnel all access through one
	// connection so concurrent handlers serialize here, not in the hub.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Schema migrations, applied in order at startup. The version already
// applied is tracked in PRAGMA user_version; never probed per-query.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		has_voice INTEGER NOT NULL DEFAULT 0,
		voice_file TEXT,
		original_name TEXT,
		file_size INTEGER,
		duration REAL
	);

	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'offline',
		last_seen DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
	`,
}

func (d *Database) Migrate() error {
	var version int
	if err := d.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return storageErr("read schema version", err)
	}

	for i := version; i < len(migrations); i++ {
		if _, err := d.db.Exec(migrations[i]); err != nil {
			return storageErr(fmt.Sprintf("apply migration %d", i+1), err)
		}
		if _, err := d.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return storageErr("update schema version", err)
		}
	}

	return nil
}

// ResetUsers clears all user rows and reinserts the seed list with the
// given initial status. Called once at process start, before any client
// connects.
func (d *Database) ResetUsers(usernames []string, status string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return storageErr("reset users", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM users"); err != nil {
		return storageErr("reset users", err)
	}

	for _, username := range usernames {
		_, err := tx.Exec(
			"INSERT INTO users (username, status) VALUES (?, ?)",
			username, status,
		)
		if err != nil {
			return storageErr("reset users", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("reset users", err)
	}
	return nil
}

// RecordMessage persists a message and returns the full stored row,
// including the assigned id and server timestamp.
func (d *Database) RecordMessage(sender, body string, voice *VoiceMeta) (*Message, error) {
	if sender == "" {
		return nil, fmt.Errorf("sender required")
	}
	if voice != nil && voice.VoiceFile == "" {
		return nil, fmt.Errorf("voice file reference required")
	}

	var result sql.Result
	var err error
	if voice != nil {
		result, err = d.db.Exec(
			`INSERT INTO messages (sender, message, has_voice, voice_file, original_name, file_size, duration)
			 VALUES (?, ?, 1, ?, ?, ?, ?)`,
			sender, body, voice.VoiceFile, voice.OriginalName, voice.FileSize, voice.Duration,
		)
	} else {
		result, err = d.db.Exec(
			"INSERT INTO messages (sender, message) VALUES (?, ?)",
			sender, body,
		)
	}
	if err != nil {
		return nil, storageErr("insert message", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storageErr("insert message", err)
	}

	return d.GetMessageByID(id)
}

const messageColumns = "id, sender, message, timestamp, has_voice, voice_file, original_name, file_size, duration"

func scanMessage(row interface{ Scan(...interface{}) error }) (*Message, error) {
	msg := &Message{}
	var voiceFile, originalName sql.NullString
	var fileSize sql.NullInt64
	var duration sql.NullFloat64

	err := row.Scan(
		&msg.ID, &msg.Sender, &msg.Body, &msg.Timestamp,
		&msg.HasVoice, &voiceFile, &originalName, &fileSize, &duration,
	)
	if err != nil {
		return nil, err
	}

	if msg.HasVoice {
		if voiceFile.Valid {
			msg.VoiceFile = &voiceFile.String
		}
		if originalName.Valid {
			msg.OriginalName = &originalName.String
		}
		if fileSize.Valid {
			msg.FileSize = &fileSize.Int64
		}
		if duration.Valid {
			msg.Duration = &duration.Float64
		}
	}

	return msg, nil
}

func (d *Database) GetMessageByID(messageID int64) (*Message, error) {
	row := d.db.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = ?",
		messageID,
	)

	msg, err := scanMessage(row)
	if err != nil {
		return nil, storageErr("fetch message", err)
	}
	return msg, nil
}

func (d *Database) GetAllMessages() ([]Message, error) {
	rows, err := d.db.Query(
		"SELECT " + messageColumns + " FROM messages ORDER BY timestamp ASC, id ASC",
	)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	defer rows.Close()

	messages := make([]Message, 0) // Initialize as empty slice, not nil
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, storageErr("list messages", err)
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// GetRecentMessages returns the most recent limit messages in ascending
// chronological order: fetched newest-first, then reversed.
func (d *Database) GetRecentMessages(limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.Query(
		"SELECT "+messageColumns+" FROM messages ORDER BY timestamp DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, storageErr("list recent messages", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, storageErr("list recent messages", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list recent messages", err)
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (d *Database) GetAllUsers() ([]User, error) {
	rows, err := d.db.Query(
		"SELECT username, status, last_seen FROM users ORDER BY username ASC",
	)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.Username, &user.Status, &user.LastSeen); err != nil {
			return nil, storageErr("list users", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetUserStatus flips a seeded user's presence and touches last_seen.
func (d *Database) SetUserStatus(username, status string) error {
	result, err := d.db.Exec(
		"UPDATE users SET status = ?, last_seen = CURRENT_TIMESTAMP WHERE username = ?",
		status, username,
	)
	if err != nil {
		return storageErr("update user status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr("update user status", err)
	}
	if affected == 0 {
		return ErrUnknownUser
	}
	return nil
}

// ClearAllData wipes messages and users, then reseeds the user set
// offline. Maintenance operation, not part of the event flow.
func (d *Database) ClearAllData(seedUsers []string) error {
	if _, err := d.db.Exec("DELETE FROM messages"); err != nil {
		return storageErr("clear messages", err)
	}
	return d.ResetUsers(seedUsers, StatusOffline)
}

func (d *Database) Close() error {
	return d.db.Close()
}
