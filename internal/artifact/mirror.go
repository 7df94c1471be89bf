package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/alex65536/tourney/internal/util/httputil"
	"github.com/google/uuid"
)

const keyPrefix = "artifacts/"

// Mirror copies submitted artifacts into our own store, so that results stay readable after the
// chat platform expires its attachment links.
type Mirror struct {
	log   *slog.Logger
	store Store
	http  *http.Client
	o     Options
}

func NewMirror(log *slog.Logger, store Store, o Options) *Mirror {
	o = o.Clone()
	o.FillDefaults()
	return &Mirror{
		log:   log,
		store: store,
		http:  &http.Client{Timeout: o.FetchTimeout},
		o:     o,
	}
}

func NewKey(contentType string) string {
	ext := ".bin"
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "image/png":
			ext = ".png"
		case "image/jpeg":
			ext = ".jpg"
		case "image/webp":
			ext = ".webp"
		default:
			if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) != 0 {
				ext = exts[0]
			}
		}
	}
	return keyPrefix + uuid.NewString() + ext
}

// Upload stores an artifact read from r and returns its public URL.
func (m *Mirror) Upload(ctx context.Context, contentType string, r io.Reader) (string, error) {
	if m.store == nil {
		return "", fmt.Errorf("artifact storage is disabled")
	}
	data, err := io.ReadAll(io.LimitReader(r, m.o.MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	if int64(len(data)) > m.o.MaxSize {
		return "", ErrTooLarge
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key := NewKey(contentType)
	url, err := m.store.Put(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put artifact: %w", err)
	}
	m.log.Info("stored artifact", slog.String("key", key), slog.Int("size", len(data)))
	return url, nil
}

// Mirror downloads the artifact and stores a copy. Without a store, the source URL is returned
// as is.
func (m *Mirror) Mirror(ctx context.Context, srcURL string) (string, error) {
	if m.store == nil {
		return srcURL, nil
	}
	if !strings.HasPrefix(srcURL, "http://") && !strings.HasPrefix(srcURL, "https://") {
		return "", fmt.Errorf("unsupported artifact url %q", srcURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	rsp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch artifact: %w", err)
	}
	defer rsp.Body.Close()
	if err := httputil.ErrorFromResponse(rsp); err != nil {
		return "", fmt.Errorf("fetch artifact: %w", err)
	}
	return m.Upload(ctx, rsp.Header.Get("Content-Type"), rsp.Body)
}
