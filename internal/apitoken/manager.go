package apitoken

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alex65536/tourney/internal/util/timeutil"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	CacheExpiryInterval time.Duration `toml:"cache-expiry-interval"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	if o.CacheExpiryInterval == 0 {
		o.CacheExpiryInterval = 3 * time.Minute
	}
}

type cacheVal struct {
	perms    Perms
	deadline time.Time
}

// Manager issues API tokens and checks them. Checked tokens are cached for a while, so a
// revoked token from another process may work until its cache entry expires.
type Manager struct {
	o      Options
	log    *slog.Logger
	db     DB
	cache  sync.Map
	group  singleflight.Group
	ctx    context.Context
	cancel func()
	done   chan struct{}
}

func NewManager(log *slog.Logger, db DB, o Options) *Manager {
	o = o.Clone()
	o.FillDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		o:      o,
		log:    log,
		db:     db,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Manager) Close() {
	m.cancel()
	<-m.done
}

func (m *Manager) Issue(ctx context.Context, name string, perms Perms) (Token, error) {
	if name == "" {
		return Token{}, fmt.Errorf("no token name")
	}
	tok := Token{
		Name:      name,
		Perms:     perms,
		CreatedAt: timeutil.NowUTC(),
	}
	if err := tok.GenerateNew(); err != nil {
		return Token{}, err
	}
	if err := m.db.CreateToken(ctx, tok); err != nil {
		return Token{}, fmt.Errorf("save to db: %w", err)
	}
	m.log.Info("issued api token",
		slog.String("token_id", tok.ID),
		slog.String("name", name),
		slog.String("perms", perms.String()),
	)
	return tok, nil
}

func (m *Manager) List(ctx context.Context) ([]Token, error) {
	toks, err := m.db.ListTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return toks, nil
}

func (m *Manager) Revoke(ctx context.Context, tokenID string) error {
	if err := m.db.DeleteToken(ctx, tokenID); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	m.cache.Clear()
	m.log.Info("revoked api token", slog.String("token_id", tokenID))
	return nil
}

// Check returns the perms of the token with the given value.
func (m *Manager) Check(value string) (Perms, error) {
	now := time.Now()
	hash := HashValue(value)
	if v, ok := m.cache.Load(hash); ok {
		val := v.(*cacheVal)
		if now.Before(val.deadline) {
			return val.perms, nil
		}
		m.cache.CompareAndDelete(hash, v)
	}
	v, err, _ := m.group.Do(hash, func() (any, error) {
		tok, err := m.db.GetToken(m.ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		if tok.Hash != hash {
			return nil, fmt.Errorf("hash mismatch")
		}
		return tok.Perms, nil
	})
	if err != nil {
		return Perms{}, err
	}
	perms := v.(Perms)
	m.cache.Store(hash, &cacheVal{
		perms:    perms,
		deadline: time.Now().Add(m.o.CacheExpiryInterval),
	})
	return perms, nil
}

// Require checks the token and fails with ErrForbidden if it lacks the perm.
func (m *Manager) Require(value string, k PermKind) (Perms, error) {
	perms, err := m.Check(value)
	if err != nil {
		return Perms{}, err
	}
	if !perms.Get(k) {
		return Perms{}, fmt.Errorf("%w %v", ErrForbidden, k)
	}
	return perms, nil
}

func (m *Manager) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.o.CacheExpiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			m.cache.Range(func(k, v any) bool {
				if now.After(v.(*cacheVal).deadline) {
					m.cache.CompareAndDelete(k, v)
				}
				return true
			})
		}
	}
}
