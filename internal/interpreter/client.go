package interpreter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alex65536/tourney/internal/util/httputil"
	"golang.org/x/time/rate"
)

type Options struct {
	Endpoint string        `toml:"endpoint"`
	APIKey   string        `toml:"api-key"`
	Timeout  time.Duration `toml:"timeout"`
	Rate     float64       `toml:"rate"`
	Burst    int           `toml:"burst"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 90 * time.Second
	}
	if o.Rate == 0 {
		o.Rate = 1
	}
	if o.Burst == 0 {
		o.Burst = 3
	}
}

type request struct {
	ImageURL  string   `json:"image_url"`
	Usernames []string `json:"usernames"`
}

type response struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Result
}

// Client talks to the external vision service over HTTP.
type Client struct {
	o       Options
	log     *slog.Logger
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(log *slog.Logger, o Options) (*Client, error) {
	o = o.Clone()
	o.FillDefaults()
	if o.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint")
	}
	return &Client{
		o:       o,
		log:     log,
		http:    &http.Client{Timeout: o.Timeout},
		limiter: rate.NewLimiter(rate.Limit(o.Rate), o.Burst),
	}, nil
}

func (c *Client) Interpret(ctx context.Context, artifactURL string, roster []string) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("wait for rate limit: %w", err)
	}
	body, err := json.Marshal(request{ImageURL: artifactURL, Usernames: roster})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.o.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.o.APIKey)
	}

	start := time.Now()
	rsp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("do request: %w", err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode == http.StatusUnprocessableEntity {
		msg, _ := io.ReadAll(io.LimitReader(rsp.Body, 4096))
		return Result{}, fmt.Errorf("%w: %s", ErrNotResult, msg)
	}
	if err := httputil.ErrorFromResponse(rsp); err != nil {
		return Result{}, fmt.Errorf("vision service: %w", err)
	}

	var r response
	if err := json.NewDecoder(io.LimitReader(rsp.Body, 1<<20)).Decode(&r); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if r.Error {
		return Result{}, fmt.Errorf("%w: %v", ErrNotResult, r.Message)
	}
	if len(r.Team1.Players) == 0 && len(r.Team2.Players) == 0 {
		return Result{}, fmt.Errorf("%w: no players found", ErrNotResult)
	}
	c.log.Info("interpreted artifact",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("score1", r.Team1.Score.Total),
		slog.Int("score2", r.Team2.Score.Total),
	)
	return r.Result, nil
}
