package receipts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DirStore keeps receipts under a local directory, addressed by file:// URIs.
type DirStore struct {
	root string
	now  func() time.Time
}

func NewDirStore(root string) (*DirStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve receipts dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create receipts dir: %w", err)
	}
	return &DirStore{root: abs, now: time.Now}, nil
}

func (s *DirStore) Put(_ context.Context, userID, mimeType string, data []byte) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(objectName(userID, mimeType, s.now())))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create receipt dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write receipt: %w", err)
	}
	return "file://" + filepath.ToSlash(p), nil
}

func (s *DirStore) Get(_ context.Context, uri string) ([]byte, error) {
	p, err := splitURI(uri, "file")
	if err != nil {
		return nil, err
	}
	p = filepath.Clean(filepath.FromSlash(p))
	if !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("receipt %s is outside %s", uri, s.root)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read receipt: %w", err)
	}
	return data, nil
}
