package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	repo "github.com/yungbote/persona-backend/internal/data/repos/analysis"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

// Backend is the uncached persistence adapter.
type Backend interface {
	Save(ctx context.Context, in repo.SaveInput) (string, error)
	FetchByID(ctx context.Context, id string) (*repo.Record, error)
	FetchByAssessmentID(ctx context.Context, assessmentID string) (*repo.Record, error)
	FetchLatestForUser(ctx context.Context, userID string) (*repo.Record, error)
}

// LookupObserver is told about every cache lookup. *observability.Metrics
// satisfies it.
type LookupObserver interface {
	ObserveCacheLookup(hit bool)
}

// Store is a read-through cache in front of Backend for the polling paths.
// Lookups by id and by assessment id are cached; latest-for-user always reads
// the backend, since any save can change it. Save invalidates both keys of the
// assessment once the backend call returns, and a load that raced a save is
// never cached.
type Store struct {
	backend  Backend
	lru      *expirable.LRU[string, *repo.Record]
	observer LookupObserver
	log      *logger.Logger

	mu  sync.Mutex
	gen uint64
}

func NewStore(backend Backend, size int, ttl time.Duration, observer LookupObserver, baseLog *logger.Logger) *Store {
	if size <= 0 {
		size = 512
	}
	return &Store{
		backend:  backend,
		lru:      expirable.NewLRU[string, *repo.Record](size, nil, ttl),
		observer: observer,
		log:      baseLog.With("service", "AnalysisCache"),
	}
}

func idKey(id string) string { return "id:" + id }
func assessmentKey(assessmentID string) string { return "assessment:" + assessmentID }

func (s *Store) Save(ctx context.Context, in repo.SaveInput) (string, error) {
	id, err := s.backend.Save(ctx, in)
	s.mu.Lock()
	s.gen++
	s.lru.Remove(assessmentKey(in.AssessmentID))
	if id != "" {
		s.lru.Remove(idKey(id))
	}
	s.mu.Unlock()
	return id, err
}

func (s *Store) FetchByID(ctx context.Context, id string) (*repo.Record, error) {
	return s.readThrough(idKey(id), func() (*repo.Record, error) {
		return s.backend.FetchByID(ctx, id)
	})
}

func (s *Store) FetchByAssessmentID(ctx context.Context, assessmentID string) (*repo.Record, error) {
	return s.readThrough(assessmentKey(assessmentID), func() (*repo.Record, error) {
		return s.backend.FetchByAssessmentID(ctx, assessmentID)
	})
}

func (s *Store) FetchLatestForUser(ctx context.Context, userID string) (*repo.Record, error) {
	gen := s.generation()
	rec, err := s.backend.FetchLatestForUser(ctx, userID)
	if err == nil {
		s.put(gen, rec)
	}
	return rec, err
}

func (s *Store) readThrough(key string, load func() (*repo.Record, error)) (*repo.Record, error) {
	if rec, ok := s.lru.Get(key); ok {
		s.observe(true)
		return rec, nil
	}
	s.observe(false)
	gen := s.generation()
	rec, err := load()
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.log.Warn("analysis fetch failed", "key", key, "error", err)
		}
		return nil, err
	}
	s.put(gen, rec)
	return rec, nil
}

func (s *Store) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// put caches rec unless a save finished after the load began.
func (s *Store) put(gen uint64, rec *repo.Record) {
	if rec == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.lru.Add(idKey(rec.ID), rec)
	s.lru.Add(assessmentKey(rec.AssessmentID), rec)
}

func (s *Store) observe(hit bool) {
	if s.observer != nil {
		s.observer.ObserveCacheLookup(hit)
	}
}

func (s *Store) Len() int { return s.lru.Len() }
