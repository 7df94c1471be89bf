package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var ErrTooLarge = errors.New("artifact too large")

type Store interface {
	// Put stores the object and returns its public URL.
	Put(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

type S3Options struct {
	// Endpoint overrides the S3 endpoint. For Cloudflare R2 it may be left empty if AccountID is
	// set.
	Endpoint        string `toml:"endpoint"`
	AccountID       string `toml:"account-id"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access-key-id"`
	SecretAccessKey string `toml:"secret-access-key"`
}

func (o *S3Options) FillDefaults() {
	if o.Region == "" {
		o.Region = "auto"
	}
	if o.Endpoint == "" && o.AccountID != "" {
		o.Endpoint = fmt.Sprintf("https://%v.r2.cloudflarestorage.com", o.AccountID)
	}
}

type Backend string

const (
	BackendNone  Backend = ""
	BackendLocal Backend = "local"
	BackendS3    Backend = "s3"
)

type Options struct {
	Backend       Backend       `toml:"backend"`
	Dir           string        `toml:"dir"`
	PublicBaseURL string        `toml:"public-base-url"`
	MaxSize       int64         `toml:"max-size"`
	FetchTimeout  time.Duration `toml:"fetch-timeout"`
	S3            S3Options     `toml:"s3"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	if o.MaxSize == 0 {
		o.MaxSize = 16 << 20
	}
	if o.FetchTimeout == 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.Backend == BackendLocal && o.Dir == "" {
		o.Dir = "artifacts"
	}
	o.S3.FillDefaults()
}

func NewStore(ctx context.Context, o Options) (Store, error) {
	o.FillDefaults()
	switch o.Backend {
	case BackendNone:
		return nil, nil
	case BackendLocal:
		return NewLocalStore(o.Dir, o.PublicBaseURL)
	case BackendS3:
		return NewS3Store(ctx, o.S3, o.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", o.Backend)
	}
}

func publicURL(base, key string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("no public base url")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse public base url: %w", err)
	}
	u.Path = path.Join("/", u.Path, key)
	return u.String(), nil
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	return path.Clean(key) == key && !strings.HasPrefix(key, "../") && key != ".."
}

// LocalStore keeps artifacts in a directory, to be served by the admin API.
type LocalStore struct {
	dir  string
	base string
}

func NewLocalStore(dir string, publicBaseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalStore{dir: dir, base: publicBaseURL}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("bad key %q", key)
	}
	url, err := publicURL(s.base, key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return url, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("bad key %q", key)
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}
