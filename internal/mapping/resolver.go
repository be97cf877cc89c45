package mapping

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/metrics"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
	"golang.org/x/sync/singleflight"
)

// DefaultConcurrency is the number of batch workers used when the caller does not choose.
const DefaultConcurrency = 10

// ProgressFunc receives the number of completed ids and the batch size after every completion.
type ProgressFunc func(completed, total int)

// Resolver memoizes [Source] lookups. It is safe for concurrent use.
type Resolver struct {
	source      Source
	cache       Cache
	group       singleflight.Group
	mu          sync.Mutex
	flights     map[string]*flight
	logger      *log.Logger
	concurrency int
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithCache replaces the default unbounded memory cache.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithLogger sets the logger used for failed lookups.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithConcurrency sets the default worker count for [Resolver.ResolveBatch].
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewResolver creates a [Resolver] over source.
func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:      source,
		cache:       NewMemoryCache(),
		logger:      log.Default(),
		concurrency: DefaultConcurrency,
		flights:     map[string]*flight{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache exposes the resolver's cache.
func (r *Resolver) Cache() Cache { return r.cache }

// ResolveOne returns the mapping for trackID on service, or nil when the store does not know it.
//
// Both outcomes are cached. A failed lookup is not cached and is returned as [shared.MappingUnavailableError].
//
// Concurrent calls for the same key share one [Source] lookup. A caller whose ctx ends gets ctx.Err()
// at once; the shared lookup keeps running until every waiting caller has gone.
func (r *Resolver) ResolveOne(ctx context.Context, service models.Provider, trackID string) (*models.TrackMapping, error) {
	key := Key(service, trackID)
	if m, ok := r.cache.Get(key); ok {
		metrics.RecordLookup(metrics.LookupCached)
		return m, nil
	}

	f := r.join(ctx, key)
	ch := r.group.DoChan(key, func() (any, error) {
		if m, ok := r.cache.Get(key); ok {
			metrics.RecordLookup(metrics.LookupCached)
			return m, nil
		}

		m, err := r.source.Lookup(f.ctx, service, trackID)
		if err != nil {
			metrics.RecordLookup(metrics.LookupError)
			return nil, &shared.MappingUnavailableError{Service: string(service), TrackID: trackID, Err: err}
		}

		if m == nil {
			metrics.RecordLookup(metrics.LookupMiss)
		} else {
			metrics.RecordLookup(metrics.LookupHit)
		}

		if !r.cache.SetIfAbsent(key, m) {
			if existing, ok := r.cache.Get(key); ok {
				m = existing
			}
		}
		return m, nil
	})

	select {
	case res := <-ch:
		r.leave(key, f)
		if res.Err != nil {
			return nil, res.Err
		}
		m, _ := res.Val.(*models.TrackMapping)
		return m, nil
	case <-ctx.Done():
		r.leave(key, f)
		return nil, ctx.Err()
	}
}

// flight is the context shared by every caller waiting on one key. It is
// cancelled only once all of them have gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (r *Resolver) join(ctx context.Context, key string) *flight {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		r.flights[key] = f
	}
	f.waiters++
	return f
}

func (r *Resolver) leave(key string, f *flight) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if r.flights[key] == f {
		delete(r.flights, key)
	}
	r.group.Forget(key)
}

type lookupResult struct {
	id      string
	mapping *models.TrackMapping
	err     error
}

// ResolveBatch resolves every id, returning a map that holds an entry (possibly nil) for each distinct id.
//
// Cached ids are answered at once; the rest are de-duplicated and spread over concurrency workers
// (the resolver default when concurrency <= 0). onProgress runs on the calling goroutine.
//
// A failed lookup is logged and left unmapped. When every uncached lookup fails the batch fails
// with the last [shared.MappingUnavailableError].
func (r *Resolver) ResolveBatch(ctx context.Context, service models.Provider, ids []string, concurrency int, onProgress ProgressFunc) (map[string]*models.TrackMapping, error) {
	total := len(ids)
	results := make(map[string]*models.TrackMapping, total)

	counts := make(map[string]int, total)
	var distinct []string
	for _, id := range ids {
		if counts[id] == 0 {
			distinct = append(distinct, id)
		}
		counts[id]++
	}

	completed := 0
	var pending []string
	for _, id := range distinct {
		if m, ok := r.cache.Get(Key(service, id)); ok {
			metrics.RecordLookup(metrics.LookupCached)
			results[id] = m
			completed += counts[id]
			continue
		}
		pending = append(pending, id)
	}

	if completed > 0 && onProgress != nil {
		onProgress(completed, total)
	}
	if len(pending) == 0 {
		return results, nil
	}

	workers := concurrency
	if workers <= 0 {
		workers = r.concurrency
	}
	workers = min(workers, len(pending))

	jobs := make(chan string, len(pending))
	for _, id := range pending {
		jobs <- id
	}
	close(jobs)

	out := make(chan lookupResult, len(pending))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go r.lookupWorker(ctx, &wg, service, jobs, out)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	var failures int
	var lastErr error
	for res := range out {
		if res.err != nil {
			failures++
			lastErr = res.err
			r.logger.Warn("mapping lookup failed, treating as unmapped", "service", service, "track", res.id, "error", res.err)
		}
		results[res.id] = res.mapping
		completed += counts[res.id]
		if onProgress != nil {
			onProgress(completed, total)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failures == len(pending) {
		return nil, lastErr
	}

	r.logger.Debug("resolved batch", "service", service, "ids", total, "looked_up", len(pending), "failed", failures)
	return results, nil
}

// lookupWorker drains jobs until the channel is empty or ctx is done.
func (r *Resolver) lookupWorker(ctx context.Context, wg *sync.WaitGroup, service models.Provider, jobs <-chan string, out chan<- lookupResult) {
	defer wg.Done()

	for id := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m, err := r.ResolveOne(ctx, service, id)
		out <- lookupResult{id: id, mapping: m, err: err}
	}
}

// TargetIDFor returns m's identifier on target, or "" when m is nil or lacks one.
func TargetIDFor(m *models.TrackMapping, target models.Provider) string {
	return m.TargetID(target)
}
