package api

import (
	"net/http"
	"sync"

	"tolatables/internal/reference"
	"tolatables/internal/silo"
	"tolatables/internal/source"

	"go.uber.org/zap"
)

// Options: зависимости HTTP-слоя. Blob и Metrics необязательны.
type Options struct {
	Engine     *silo.Engine
	Fetcher    *source.Fetcher
	Sources    map[string]reference.Source
	Blob       BlobStore
	Metrics    http.Handler
	Log        *zap.Logger
	Owner      string // владелец по умолчанию для новых таблиц
	TablesDir  string
	SourcesDir string
}

type Server struct {
	eng     *silo.Engine
	fetch   *source.Fetcher
	blob    BlobStore
	metrics http.Handler
	log     *zap.Logger

	owner      string
	tablesDir  string
	sourcesDir string

	mu      sync.RWMutex
	sources map[string]reference.Source // ID -> источник
}

func NewServer(o Options) *Server {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	fetch := o.Fetcher
	if fetch == nil {
		fetch = source.NewFetcher(source.FetchConfig{}, log)
	}
	sources := o.Sources
	if sources == nil {
		sources = map[string]reference.Source{}
	}
	owner := o.Owner
	if owner == "" {
		owner = "system"
	}
	return &Server{
		eng:        o.Engine,
		fetch:      fetch,
		blob:       o.Blob,
		metrics:    o.Metrics,
		log:        log,
		owner:      owner,
		tablesDir:  o.TablesDir,
		sourcesDir: o.SourcesDir,
		sources:    sources,
	}
}

// source ищет источник по ID или по имени (без учёта регистра).
func (s *Server) source(ref string) (reference.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if src, ok := s.sources[ref]; ok {
		return src, true
	}
	for _, src := range s.sources {
		if equalFoldTrim(src.Name, ref) {
			return src, true
		}
	}
	return reference.Source{}, false
}

func (s *Server) sourceList() []reference.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reference.Sorted(s.sources)
}
