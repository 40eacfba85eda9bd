package auth

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStaticToken(t *testing.T) {
	ctx := context.Background()

	tok, err := StaticToken("abc").Token(ctx)
	if err != nil || tok != "abc" {
		t.Errorf("Token() = %q, %v; want abc, nil", tok, err)
	}

	if _, err := StaticToken("").Token(ctx); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty token err = %v, want ErrNoToken", err)
	}
}

func TestFileToken(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "token")

	src := NewFileToken(path)
	if _, err := src.Token(ctx); err == nil {
		t.Fatal("expected error for missing file")
	}

	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	tok, err := src.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "first" {
		t.Errorf("Token() = %q, want first", tok)
	}

	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	tok, err = src.Token(ctx)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "second" {
		t.Errorf("Token() after rewrite = %q, want second", tok)
	}
}

func TestFileToken_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewFileToken(path).Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("err = %v, want ErrNoToken", err)
	}
}

func TestSetBearer(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		src  TokenSource
		want string
	}{
		{"nil source", nil, ""},
		{"anonymous", StaticToken(""), ""},
		{"token", StaticToken("xyz"), "Bearer xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if err := SetBearer(ctx, h, tt.src); err != nil {
				t.Fatalf("SetBearer failed: %v", err)
			}
			if got := h.Get("Authorization"); got != tt.want {
				t.Errorf("Authorization = %q, want %q", got, tt.want)
			}
		})
	}

	if err := SetBearer(ctx, http.Header{}, NewFileToken(filepath.Join(t.TempDir(), "missing"))); err == nil {
		t.Error("expected error for missing token file")
	}
}

func TestNewSource(t *testing.T) {
	if _, ok := NewSource("tok", "").(StaticToken); !ok {
		t.Error("NewSource without path should be StaticToken")
	}
	if _, ok := NewSource("tok", "/tmp/x").(*FileToken); !ok {
		t.Error("NewSource with path should be *FileToken")
	}
}
