package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// writeTestRecording creates a small fake audio file and returns its path.
func writeTestRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec-0001")
	if err := os.WriteFile(path, []byte("RIFF fake wav payload"), 0o644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return path
}

func TestTranscribe_Success(t *testing.T) {
	var gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("path = %q, want /inference", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotLanguage = r.FormValue("language")
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": " trains from london to brighton \n"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := c.Transcribe(context.Background(), writeTestRecording(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "trains from london to brighton" {
		t.Errorf("Text = %q, want trimmed transcript", tr.Text)
	}
	if gotLanguage != "en" {
		t.Errorf("language field = %q, want en", gotLanguage)
	}
}

func TestTranscribe_EngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cannot process audio", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Transcribe(context.Background(), writeTestRecording(t))
	if err == nil {
		t.Fatal("expected an error for an engine failure")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %T, want *transcribe.Error", err)
	}
}

func TestTranscribe_MissingRecording(t *testing.T) {
	c, _ := New("http://localhost:1")
	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "absent"))
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *transcribe.Error for a missing file", err)
	}
}

func TestTranscribe_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	if _, err := c.Transcribe(context.Background(), writeTestRecording(t)); err == nil {
		t.Fatal("expected an error for a malformed engine response")
	}
}

func TestNew_RequiresServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected an error for empty serverURL")
	}
}
