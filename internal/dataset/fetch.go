package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// FetchOptions controls remote dataset downloads.
type FetchOptions struct {
	Client      *http.Client
	Timeout     time.Duration
	Retries     int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Second
	}
	return o
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// Fetch downloads url, retrying network errors and transient HTTP statuses
// with capped exponential backoff.
func Fetch(ctx context.Context, url string, opts FetchOptions, logger zerolog.Logger) ([]byte, error) {
	opts = opts.withDefaults()
	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt-1, opts.BaseBackoff, opts.MaxBackoff)
			logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("wait", wait).Str("url", url).Msg("retrying dataset download")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		data, err := fetchOnce(ctx, url, opts)
		if err == nil {
			return data, nil
		}
		lastErr = err
		var se *statusError
		if errors.As(err, &se) && !isRetryableStatus(se.code) {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("fetch dataset %s: %w", url, lastErr)
}

func fetchOnce(ctx context.Context, url string, opts FetchOptions) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// backoff doubles base per attempt up to cap.
func backoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return min(d, cap)
}

// Source says where to load a dataset from. Path wins over URL.
type Source struct {
	Path     string
	URL      string
	CacheDir string
	Fetch    FetchOptions
}

// Open loads the dataset described by src. Remote files are cached under
// CacheDir when it is set.
func Open(ctx context.Context, src Source, logger zerolog.Logger) (*Dataset, error) {
	if p := strings.TrimSpace(src.Path); p != "" {
		logger.Info().Str("path", p).Msg("loading dataset file")
		return LoadFile(p)
	}
	u := strings.TrimSpace(src.URL)
	if u == "" {
		return nil, errors.New("no dataset path or url configured")
	}
	format, err := FormatFromName(u)
	if err != nil {
		return nil, err
	}

	cachePath := ""
	if dir := strings.TrimSpace(src.CacheDir); dir != "" {
		cachePath = filepath.Join(dir, cacheName(u))
		data, err := os.ReadFile(cachePath)
		if err == nil {
			logger.Info().Str("path", cachePath).Msg("loading cached dataset")
			return Load(data, format)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read dataset cache: %w", err)
		}
	}

	logger.Info().Str("url", u).Msg("downloading dataset")
	data, err := Fetch(ctx, u, src.Fetch, logger)
	if err != nil {
		return nil, err
	}
	ds, err := Load(data, format)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := writeCache(cachePath, data); err != nil {
			logger.Warn().Err(err).Str("path", cachePath).Msg("dataset cache write failed")
		}
	}
	return ds, nil
}

// cacheName keeps the remote file name readable and makes it unique per URL.
func cacheName(u string) string {
	sum := sha256.Sum256([]byte(u))
	base := path.Base(u)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return hex.EncodeToString(sum[:6]) + "-" + base
}

func writeCache(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}
