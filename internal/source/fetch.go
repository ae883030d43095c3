package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tolatables/internal/silo"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FetchConfig: параметры HTTP-клиента источников. Нулевые значения заменяются умолчаниями.
type FetchConfig struct {
	Timeout        time.Duration // 30s
	MaxRetries     int           // повторы после первой попытки
	InitialBackoff time.Duration // 200ms, удваивается
	MaxBackoff     time.Duration // 5s
	Concurrency    int           // параллельных страниц, 4
	Transport      http.RoundTripper
}

// Auth: учётные данные источника. Token имеет приоритет над логином/паролем.
type Auth struct {
	Username string
	Password string
	Token    string
	// Scheme заголовка для Token: "Bearer" по умолчанию, "ApiKey" для CommCare.
	Scheme string
}

func (a Auth) apply(req *http.Request) {
	switch {
	case a.Token != "":
		scheme := a.Scheme
		if scheme == "" {
			scheme = "Bearer"
		}
		if scheme == "ApiKey" && a.Username != "" {
			req.Header.Set("Authorization", "ApiKey "+a.Username+":"+a.Token)
			return
		}
		req.Header.Set("Authorization", scheme+" "+a.Token)
	case a.Username != "":
		req.SetBasicAuth(a.Username, a.Password)
	}
}

// Fetcher скачивает JSON-ленты с повторами на 429/5xx.
type Fetcher struct {
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	concurrency    int
	log            *zap.Logger
}

func NewFetcher(cfg FetchConfig, log *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Fetcher{
		client:         &http.Client{Timeout: cfg.Timeout, Transport: transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		concurrency:    cfg.Concurrency,
		log:            log,
	}
}

// StatusError: окончательный неуспешный HTTP-ответ.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// get выполняет GET с повторами и возвращает тело ответа.
func (f *Fetcher) get(ctx context.Context, rawURL string, auth Auth) ([]byte, error) {
	attempts := f.maxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		auth.apply(req)

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			switch {
			case retryableStatus(resp.StatusCode):
				lastErr = &StatusError{URL: rawURL, Code: resp.StatusCode}
			case resp.StatusCode >= 300:
				return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
			case readErr != nil:
				lastErr = readErr
			default:
				return body, nil
			}
		}
		if attempt+1 >= attempts {
			break
		}
		wait := backoff(f.initialBackoff, attempt, f.maxBackoff)
		f.log.Warn("Retrying source request", zap.String("url", rawURL), zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(lastErr))
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

func backoff(initial time.Duration, attempt int, max time.Duration) time.Duration {
	d := initial << attempt
	if d > max || d <= 0 {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetchJSON скачивает один документ и извлекает из него записи.
func (f *Fetcher) FetchJSON(ctx context.Context, rawURL string, auth Auth) ([]any, error) {
	body, err := f.get(ctx, rawURL, auth)
	if err != nil {
		return nil, err
	}
	doc, err := silo.DecodeJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return ExtractRecords(doc), nil
}

// FetchPages скачивает страницы параллельно (не больше Concurrency одновременно)
// и склеивает записи в порядке urls. Первая ошибка отменяет остальные.
func (f *Fetcher) FetchPages(ctx context.Context, urls []string, auth Auth) ([]any, error) {
	pages := make([][]any, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			recs, err := f.FetchJSON(gctx, u, auth)
			if err != nil {
				return err
			}
			pages[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []any
	for _, p := range pages {
		out = append(out, p...)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// ExtractRecords: массив верхнего уровня — записи; объект — его поле
// objects/results/data, иначе сам объект как одна запись.
func ExtractRecords(doc any) []any {
	switch t := doc.(type) {
	case []any:
		return t
	case silo.Object:
		for _, k := range []string{"objects", "results", "data"} {
			if v, ok := t.Get(k); ok {
				if arr, ok := v.([]any); ok {
					return arr
				}
			}
		}
		return []any{t}
	}
	return []any{}
}

// CommCarePageURLs: адреса страниц ленты кейсов с limit/offset.
func CommCarePageURLs(base string, total, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, errors.New("page limit must be positive")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", base, err)
	}
	var out []string
	for offset := 0; offset < total; offset += limit {
		q := u.Query()
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))
		pu := *u
		pu.RawQuery = q.Encode()
		out = append(out, pu.String())
	}
	return out, nil
}

// CommCareTotal читает meta.total_count из первой страницы.
func (f *Fetcher) CommCareTotal(ctx context.Context, base string, auth Auth) (int, error) {
	u, err := url.Parse(base)
	if err != nil {
		return 0, err
	}
	q := u.Query()
	q.Set("limit", "1")
	u.RawQuery = q.Encode()
	body, err := f.get(ctx, u.String(), auth)
	if err != nil {
		return 0, err
	}
	doc, err := silo.DecodeJSON(bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	obj, ok := doc.(silo.Object)
	if !ok {
		return 0, errors.New("commcare: response is not an object")
	}
	meta, _ := obj.Get("meta")
	mo, ok := meta.(silo.Object)
	if !ok {
		return 0, errors.New("commcare: response has no meta")
	}
	tc, _ := mo.Get("total_count")
	n, ok := silo.ValueOf(tc).AsInt()
	if !ok {
		return 0, errors.New("commcare: meta.total_count is not an integer")
	}
	return int(n), nil
}
