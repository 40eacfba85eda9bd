// Package auth provides bearer tokens for the backend's REST API and
// WebSocket handshakes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNoToken is returned when a source has no token to offer.
var ErrNoToken = errors.New("no access token")

// TokenSource yields the current access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token. The empty string means anonymous access.
type StaticToken string

// Token returns the token, or ErrNoToken when empty.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// FileToken reads the token from a file, re-reading it whenever the
// file's modification time changes. The dashboard login flow rewrites
// the file on refresh.
type FileToken struct {
	path string

	mu      sync.Mutex
	token   string
	modTime time.Time
}

// NewFileToken creates a file-backed token source.
func NewFileToken(path string) *FileToken {
	return &FileToken{path: path}
}

// Token returns the trimmed file contents.
func (f *FileToken) Token(context.Context) (string, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return "", fmt.Errorf("stat token file: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.token != "" && info.ModTime().Equal(f.modTime) {
		return f.token, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}

	f.token = token
	f.modTime = info.ModTime()
	return token, nil
}

// NewSource picks a FileToken when path is set, otherwise a StaticToken.
func NewSource(token, path string) TokenSource {
	if path != "" {
		return NewFileToken(path)
	}
	return StaticToken(token)
}

// SetBearer adds an Authorization header when src has a token. A nil
// source or ErrNoToken leaves the header untouched.
func SetBearer(ctx context.Context, h http.Header, src TokenSource) error {
	if src == nil {
		return nil
	}
	token, err := src.Token(ctx)
	if errors.Is(err, ErrNoToken) {
		return nil
	}
	if err != nil {
		return err
	}
	h.Set("Authorization", "Bearer "+token)
	return nil
}
