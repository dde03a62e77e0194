package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
)

func newTestStager(t *testing.T) *AttachmentStager {
	t.Helper()
	stager, err := NewAttachmentStager(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("Failed to create stager: %v", err)
	}
	return stager
}

func storedFileCount(t *testing.T, stager *AttachmentStager) int {
	t.Helper()
	entries, err := os.ReadDir(stager.Dir())
	if err != nil {
		t.Fatalf("Failed to read upload dir: %v", err)
	}
	return len(entries)
}

func TestStoreAndStat(t *testing.T) {
	stager := newTestStager(t)
	payload := []byte("fake audio bytes")

	stored, err := stager.Store(bytes.NewReader(payload), int64(len(payload)), "audio/mpeg", "memo.mp3")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if stored.Size != int64(len(payload)) {
		t.Errorf("Size = %d, want %d", stored.Size, len(payload))
	}
	if stored.OriginalName != "memo.mp3" {
		t.Errorf("OriginalName = %q", stored.OriginalName)
	}
	if stored.URL != "/uploads/"+stored.Filename {
		t.Errorf("URL = %q", stored.URL)
	}

	size, err := stager.Stat(stored.Filename)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if size != int64(len(payload)) {
		t.Errorf("Stat size = %d, want %d", size, len(payload))
	}

	data, err := os.ReadFile(stored.Path)
	if err != nil {
		t.Fatalf("Stored file unreadable: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("Stored bytes differ from payload")
	}
}

func TestStoreTokensUnique(t *testing.T) {
	stager := newTestStager(t)

	a, err := stager.Store(bytes.NewReader([]byte("a")), 1, "audio/ogg", "clip.ogg")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	b, err := stager.Store(bytes.NewReader([]byte("b")), 1, "audio/ogg", "clip.ogg")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if a.Filename == b.Filename {
		t.Errorf("Token collision: %q", a.Filename)
	}
}

func TestStoreRejectsUnsupportedType(t *testing.T) {
	stager := newTestStager(t)

	_, err := stager.Store(bytes.NewReader([]byte("not audio")), 9, "text/plain", "notes.txt")
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("Expected ErrUnsupportedMediaType, got %v", err)
	}
	if n := storedFileCount(t, stager); n != 0 {
		t.Errorf("Rejected upload left %d files on disk", n)
	}
}

func TestStoreRejectsOversize(t *testing.T) {
	stager := newTestStager(t)
	payload := make([]byte, 11<<20)

	_, err := stager.Store(bytes.NewReader(payload), int64(len(payload)), "audio/mpeg", "big.mp3")
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
	if n := storedFileCount(t, stager); n != 0 {
		t.Errorf("Rejected upload left %d files on disk", n)
	}

	// Undeclared size must still be caught before a file is created
	_, err = stager.Store(bytes.NewReader(payload), -1, "audio/mpeg", "big.mp3")
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge without declared size, got %v", err)
	}
	if n := storedFileCount(t, stager); n != 0 {
		t.Errorf("Rejected upload left %d files on disk", n)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	stager := newTestStager(t)

	for _, token := range []string{"", "../escape.mp3", "a/b.mp3", ".hidden"} {
		if _, err := stager.Resolve(token); err == nil {
			t.Errorf("Resolve(%q) should fail", token)
		}
	}
}

func multipartVoice(t *testing.T, filename, mimetype string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="voice"; filename="%s"`, filename))
	h.Set("Content-Type", mimetype)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("Failed to build multipart body: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("Failed to write multipart payload: %v", err)
	}
	w.Close()

	return &buf, w.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	env := newTestServer(t)
	payload := []byte("fake voice payload")

	body, contentType := multipartVoice(t, "memo.mp3", "audio/mpeg", payload)
	resp, err := http.Post(env.ts.URL+"/api/upload", contentType, body)
	if err != nil {
		t.Fatalf("Upload request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("Upload status = %d, body %s", resp.StatusCode, raw)
	}

	var result struct {
		Success bool       `json:"success"`
		File    StoredFile `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}

	if !result.Success {
		t.Error("Expected success=true")
	}
	if result.File.Size != int64(len(payload)) {
		t.Errorf("File size = %d, want %d", result.File.Size, len(payload))
	}
	if result.File.OriginalName != "memo.mp3" {
		t.Errorf("Original name = %q", result.File.OriginalName)
	}

	// Retrieval is a plain file fetch by token
	dl, err := http.Get(env.ts.URL + result.File.URL)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer dl.Body.Close()

	if dl.StatusCode != http.StatusOK {
		t.Fatalf("Download status = %d", dl.StatusCode)
	}
	got, _ := io.ReadAll(dl.Body)
	if !bytes.Equal(got, payload) {
		t.Error("Downloaded bytes differ from upload")
	}
}

func TestUploadEndpointRejectsTextFile(t *testing.T) {
	env := newTestServer(t)

	body, contentType := multipartVoice(t, "notes.txt", "text/plain", []byte("hello"))
	resp, err := http.Post(env.ts.URL+"/api/upload", contentType, body)
	if err != nil {
		t.Fatalf("Upload request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("Status = %d, want 415", resp.StatusCode)
	}
	if n := storedFileCount(t, env.stager); n != 0 {
		t.Errorf("Rejected upload left %d files on disk", n)
	}
}

func TestUploadEndpointRejectsOversize(t *testing.T) {
	env := newTestServer(t)

	body, contentType := multipartVoice(t, "big.mp3", "audio/mpeg", make([]byte, 11<<20))
	resp, err := http.Post(env.ts.URL+"/api/upload", contentType, body)
	if err != nil {
		t.Fatalf("Upload request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Status = %d, want 413", resp.StatusCode)
	}
	if n := storedFileCount(t, env.stager); n != 0 {
		t.Errorf("Rejected upload left %d files on disk", n)
	}
}

func TestUploadEndpointRequiresField(t *testing.T) {
	env := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("other", "value")
	w.Close()

	resp, err := http.Post(env.ts.URL+"/api/upload", w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("Upload request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.StatusCode)
	}
}
