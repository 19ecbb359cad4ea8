// Package receipts archives uploaded receipt images so queued ingest jobs
// can fetch them later.
package receipts

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	Put(ctx context.Context, userID, mimeType string, data []byte) (uri string, err error)
	Get(ctx context.Context, uri string) ([]byte, error)
}

// objectName builds receipts/<user>/<yyyy-mm-dd>/<uuid><ext>.
func objectName(userID, mimeType string, now time.Time) string {
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return path.Join("receipts", safeSegment(userID), now.UTC().Format("2006-01-02"), uuid.NewString()+ext)
}

func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

func splitURI(uri, scheme string) (string, error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid %s URI: %s", scheme, uri)
	}
	return strings.TrimPrefix(uri, prefix), nil
}
