package source

import (
	"bytes"
	"context"
	"fmt"

	"tolatables/internal/reference"

	"go.uber.org/zap"
)

const defaultPageSize = 100

func authFor(s reference.Source) Auth {
	a := Auth{Username: s.Username, Password: s.Password, Token: s.Token}
	if s.Kind == reference.KindCommCare {
		a.Scheme = "ApiKey"
	}
	return a
}

// Records скачивает сырые записи описанного источника.
func (f *Fetcher) Records(ctx context.Context, s reference.Source) ([]any, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("source %s has no url", s.Name)
	}
	auth := authFor(s)
	switch s.Kind {
	case reference.KindJSON:
		return f.FetchJSON(ctx, s.URL, auth)
	case reference.KindCSV:
		body, err := f.get(ctx, s.URL, auth)
		if err != nil {
			return nil, err
		}
		return ReadCSV(bytes.NewReader(body))
	case reference.KindCommCare:
		size := s.PageSize
		if size <= 0 {
			size = defaultPageSize
		}
		total, err := f.CommCareTotal(ctx, s.URL, auth)
		if err != nil {
			return nil, err
		}
		urls, err := CommCarePageURLs(s.URL, total, size)
		if err != nil {
			return nil, err
		}
		f.log.Info("Fetching CommCare cases", zap.String("source", s.Name), zap.Int("total", total), zap.Int("pages", len(urls)))
		recs, err := f.FetchPages(ctx, urls, auth)
		if err != nil {
			return nil, err
		}
		return FlattenCommCare(recs), nil
	}
	return nil, fmt.Errorf("source kind %q is not supported for pulling", s.Kind)
}
