package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/domain"
)

func TestProgressReader(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 1000)
	var fractions []float64
	pr := &progressReader{
		reader:     bytes.NewReader(data),
		size:       1000,
		onProgress: func(f float64) { fractions = append(fractions, f) },
	}

	buf := make([]byte, 256)
	for {
		if _, err := pr.Read(buf); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
	}

	if len(fractions) == 0 {
		t.Fatal("no progress reported")
	}
	last := 0.0
	for i, f := range fractions {
		if f < last {
			t.Errorf("fraction %d went backwards: %v after %v", i, f, last)
		}
		if f > 1 {
			t.Errorf("fraction %d exceeds 1: %v", i, f)
		}
		last = f
	}
	if last != 1 {
		t.Errorf("final fraction = %v, want 1", last)
	}
}

func TestHTTPServiceUpload(t *testing.T) {
	content := bytes.Repeat([]byte{0xCD}, 4096)
	path := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}

	var gotGid, gotUser, gotAuth string
	var gotBytes int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotGid = r.FormValue("gid")
		gotUser = r.FormValue("userID")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotBytes, _ = io.Copy(io.Discard, f)

		json.NewEncoder(w).Encode(Result{ID: 7, URL: "https://files/7", Name: "photo.png", Size: 4096, Type: "image/png", Time: 123})
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL, "secret", zap.NewNop())

	var reported []float64
	result, err := svc.Upload(
		context.Background(),
		domain.User{ID: "alice"},
		domain.File{Name: "photo.png", Size: 4096, MIME: "image/png", Path: path},
		Meta{Gid: "alice&bob"},
		func(f float64) { reported = append(reported, f) },
	)
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if result.ID != 7 || result.URL != "https://files/7" {
		t.Errorf("result = %+v", result)
	}
	if gotGid != "alice&bob" {
		t.Errorf("gid field = %q, want %q", gotGid, "alice&bob")
	}
	if gotUser != "alice" {
		t.Errorf("userID field = %q, want %q", gotUser, "alice")
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret")
	}
	if gotBytes != 4096 {
		t.Errorf("server received %d bytes, want 4096", gotBytes)
	}
	if len(reported) == 0 {
		t.Error("no progress reported")
	} else if last := reported[len(reported)-1]; last != 1 {
		t.Errorf("final fraction = %v, want 1", last)
	}
}

func TestHTTPServiceUploadServerError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		http.Error(w, "disk full", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL, "secret", zap.NewNop())
	_, err := svc.Upload(context.Background(), domain.User{ID: "alice"},
		domain.File{Name: "a.bin", Size: 1, Path: path}, Meta{Gid: "g"}, nil)
	if err == nil {
		t.Fatal("expected error for server failure")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want the status included", err)
	}
}

func TestHTTPServiceUploadMissingFile(t *testing.T) {
	svc := NewHTTPService("http://unused", "secret", zap.NewNop())
	_, err := svc.Upload(context.Background(), domain.User{ID: "alice"},
		domain.File{Name: "gone", Path: "/nonexistent/gone"}, Meta{Gid: "g"}, nil)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
