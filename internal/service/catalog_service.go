package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/cache"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/validator"
	"golang.org/x/sync/singleflight"
)

// ErrUpstreamUnavailable is returned when nothing is cached and the fetch failed.
var ErrUpstreamUnavailable = errors.New("exam data unavailable")

// Fetcher reads exam data from the scoring service.
type Fetcher interface {
	FetchCatalog(ctx context.Context, studentID int) ([]model.ExamSummary, error)
	FetchQuestionSet(ctx context.Context, examCode, mockTestCode string) (*model.QuestionSet, error)
}

// Source tells where a view's data came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// View wraps served data with its freshness.
type View[T any] struct {
	Data   T      `json:"data"`
	Stale  bool   `json:"stale"`
	Source Source `json:"source"`
}

// CatalogOptions configures fetch behaviour.
type CatalogOptions struct {
	CatalogRetries int
	RetryDelay     time.Duration
}

// CatalogService serves the exam catalog and question sets from cache,
// refreshing stale entries in the background.
type CatalogService struct {
	fetcher  Fetcher
	catalogs *cache.TimedCache[[]model.ExamSummary]
	sets     *cache.TimedCache[model.QuestionSet]
	opts     CatalogOptions
	log      zerolog.Logger

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewCatalogService creates a CatalogService. Background refreshes run until Close.
func NewCatalogService(
	fetcher Fetcher,
	catalogs *cache.TimedCache[[]model.ExamSummary],
	sets *cache.TimedCache[model.QuestionSet],
	opts CatalogOptions,
	log zerolog.Logger,
) *CatalogService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CatalogService{
		fetcher:  fetcher,
		catalogs: catalogs,
		sets:     sets,
		opts:     opts,
		log:      log.With().Str("component", "catalog_service").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close cancels pending background refreshes and waits for them.
func (s *CatalogService) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// Catalog returns the exams offered to a student.
func (s *CatalogService) Catalog(ctx context.Context, studentID int) (*View[[]model.ExamSummary], error) {
	key := config.CacheKey.StudentCatalogKey(studentID)
	return serve(ctx, s, s.catalogs, key, func(ctx context.Context) ([]model.ExamSummary, error) {
		return s.fetchCatalog(ctx, studentID)
	})
}

// ForgetCatalog drops the student's cached catalog so the next read fetches
// fresh eligibility.
func (s *CatalogService) ForgetCatalog(ctx context.Context, studentID int) error {
	return s.catalogs.Invalidate(ctx, config.CacheKey.StudentCatalogKey(studentID))
}

// QuestionSet returns the normalized, validated paper of an exam's mock form.
func (s *CatalogService) QuestionSet(ctx context.Context, examCode, mockTestCode string) (*View[model.QuestionSet], error) {
	key := config.CacheKey.QuestionSetKey(examCode, mockTestCode)
	return serve(ctx, s, s.sets, key, func(ctx context.Context) (model.QuestionSet, error) {
		return s.fetchQuestionSet(ctx, examCode, mockTestCode)
	})
}

// serve implements fresh → cached, stale → cached plus one background
// refresh, empty → synchronous fetch.
func serve[T any](ctx context.Context, s *CatalogService, c *cache.TimedCache[T], key string, fetch func(context.Context) (T, error)) (*View[T], error) {
	hit, err := c.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, fetching")
	}

	if hit != nil {
		if hit.IsStale {
			refresh(s, c, key, fetch)
		}
		return &View[T]{Data: hit.Value, Stale: hit.IsStale, Source: SourceCache}, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Joined callers share this fetch; it is bounded by the client timeout.
		fctx := context.WithoutCancel(ctx)
		data, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(fctx, key, data); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return &View[T]{Data: v.(T), Source: SourceNetwork}, nil
}

// refresh starts one background fetch per key. A refresh cancelled by Close
// never writes the cache.
func refresh[T any](s *CatalogService, c *cache.TimedCache[T], key string, fetch func(context.Context) (T, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _, _ = s.group.Do("refresh:"+key, func() (any, error) {
			data, err := fetch(s.ctx)
			if err != nil {
				if s.ctx.Err() == nil {
					s.log.Warn().Err(err).Str("key", key).Msg("Background refresh failed, keeping stale entry")
				}
				return nil, err
			}
			if s.ctx.Err() != nil {
				return nil, s.ctx.Err()
			}
			if err := c.Put(s.ctx, key, data); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
			}
			s.log.Debug().Str("key", key).Msg("Cache refreshed")
			return nil, nil
		})
	}()
}

func (s *CatalogService) fetchCatalog(ctx context.Context, studentID int) ([]model.ExamSummary, error) {
	attempts := max(s.opts.CatalogRetries, 0) + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		exams, err := s.fetcher.FetchCatalog(ctx, studentID)
		if err == nil {
			if exams == nil {
				exams = []model.ExamSummary{}
			}
			return exams, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		s.log.Warn().
			Err(err).
			Int("student_id", studentID).
			Int("attempt", attempt).
			Msg("Catalog fetch failed, retrying")

		select {
		case <-time.After(s.opts.RetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("fetch catalog: %w", lastErr)
}

func (s *CatalogService) fetchQuestionSet(ctx context.Context, examCode, mockTestCode string) (model.QuestionSet, error) {
	set, err := s.fetcher.FetchQuestionSet(ctx, examCode, mockTestCode)
	if err != nil {
		return model.QuestionSet{}, fmt.Errorf("fetch question set: %w", err)
	}
	if set == nil {
		set = &model.QuestionSet{}
	}
	set.Questions = model.NormalizeQuestions(set.Questions, mockTestCode)
	if err := validator.QuestionSet(set); err != nil {
		return model.QuestionSet{}, err
	}
	return *set, nil
}
