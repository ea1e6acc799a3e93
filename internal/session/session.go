// Package session persists conversations, including their Tool-UI surfaces
// and receipts, as append-only JSONL transcripts.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	fileExt     = ".jsonl"
	maxLineSize = 4 * 1024 * 1024
)

// Entry types written to a transcript.
const (
	TypeMeta       = "meta"
	TypeUser       = "user"
	TypeAssistant  = "assistant"
	TypeToolCall   = "tool_call"
	TypeToolResult = "tool_result"
	TypeSurface    = "surface"
	TypeAction     = "action"
	TypeReceipt    = "receipt"
)

var (
	ErrDirRequired       = errors.New("session directory is required")
	ErrIDRequired        = errors.New("session id is required")
	ErrInvalidID         = errors.New("invalid session id")
	ErrEntryIDRequired   = errors.New("entry id is required")
	ErrEntryTypeRequired = errors.New("entry type is required")
	ErrNotFound          = errors.New("session not found")
)

// Entry is one transcript line. Payload holds a surface exactly as it was
// accepted; Data holds type-specific JSON such as a receipt or usage.
type Entry struct {
	ID         string          `json:"id"`
	ParentID   string          `json:"parent_id,omitempty"`
	Type       string          `json:"type"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	SurfaceID  string          `json:"surface_id,omitempty"`
	Action     string          `json:"action,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	TS         int64           `json:"ts"`
}

// Info describes one transcript on disk.
type Info struct {
	ID        string
	Path      string
	UpdatedAt time.Time
	SizeBytes int64
}

// Store keeps transcripts under one directory, one file per session.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		return nil, ErrDirRequired
	}
	return &Store{dir: root}, nil
}

func (s *Store) Dir() string { return s.dir }

// NewID returns a sortable session id such as 20261017-091500-1f2e3d4c.
func NewID(now time.Time) string {
	return now.UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// Append writes one entry at the end of the transcript.
func (s *Store) Append(ctx context.Context, sessionID string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}

	entry.ID = strings.TrimSpace(entry.ID)
	entry.Type = strings.TrimSpace(entry.Type)
	switch {
	case entry.ID == "":
		return ErrEntryIDRequired
	case entry.Type == "":
		return ErrEntryTypeRequired
	}
	if entry.TS <= 0 {
		entry.TS = time.Now().Unix()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal session entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session dir %s: %w", s.dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append session entry: %w", err)
	}
	return nil
}

// Load reads every entry of a transcript in write order.
func (s *Store) Load(ctx context.Context, sessionID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(sessionID))
		}
		return nil, fmt.Errorf("open session file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var entries []Entry
	for lineNum := 1; scanner.Scan(); lineNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode session line %d: %w", lineNum, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("session line longer than %d bytes: %w", maxLineSize, err)
		}
		return nil, fmt.Errorf("scan session file: %w", err)
	}
	return entries, nil
}

// List returns the stored transcripts, newest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session dir %s: %w", s.dir, err)
	}

	out := make([]Info, 0, len(items))
	for _, item := range items {
		if item.IsDir() || filepath.Ext(item.Name()) != fileExt {
			continue
		}
		fi, err := item.Info()
		if err != nil {
			return nil, fmt.Errorf("stat session file %s: %w", item.Name(), err)
		}
		out = append(out, Info{
			ID:        strings.TrimSuffix(item.Name(), fileExt),
			Path:      filepath.Join(s.dir, item.Name()),
			UpdatedAt: fi.ModTime(),
			SizeBytes: fi.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Latest is the id of the most recently written transcript.
func (s *Store) Latest(ctx context.Context) (string, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", ErrNotFound
	}
	return infos[0].ID, nil
}

func (s *Store) path(sessionID string) (string, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return "", ErrIDRequired
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}
