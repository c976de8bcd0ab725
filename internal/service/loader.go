package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/semaphore"

	"github.com/joeblew999/plat-overlay/internal/kml"
	"github.com/joeblew999/plat-overlay/internal/metrics"
)

// Loader defaults.
const (
	DefaultMaxConcurrentLoads = 3
	DefaultQueueDelay         = 100 * time.Millisecond
)

// ErrLoaderClosed is returned for loads submitted after Close.
var ErrLoaderClosed = errors.New("loader closed")

// DecodeFunc turns raw file bytes into a feature collection.
type DecodeFunc func(name string, data []byte) (*geojson.FeatureCollection, error)

// LoaderConfig configures a Loader. Zero values pick defaults.
type LoaderConfig struct {
	Registry      *Registry
	Decode        DecodeFunc
	Client        *http.Client
	MaxConcurrent int
	QueueDelay    time.Duration
	Logger        *slog.Logger
}

// Loader bounds decode and fetch work and hands decoded collections to a
// single registration goroutine, which adds them to the registry one at a
// time, in completion order, with a short pause between items.
type Loader struct {
	reg    *Registry
	decode DecodeFunc
	client *http.Client
	sem    *semaphore.Weighted
	delay  time.Duration
	log    *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}

	queue     chan registration
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type registration struct {
	name  string
	c     Classified
	reply chan registered
}

type registered struct {
	src *Source
	err error
}

// NewLoader creates a loader and starts its registration goroutine.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Decode == nil {
		cfg.Decode = kml.Decode
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrentLoads
	}
	if cfg.QueueDelay < 0 {
		cfg.QueueDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Loader{
		reg:     cfg.Registry,
		decode:  cfg.Decode,
		client:  cfg.Client,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		delay:   cfg.QueueDelay,
		log:     cfg.Logger,
		pending: make(map[string]struct{}),
		queue:   make(chan registration),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Close stops the registration goroutine. Pending loads fail with
// ErrLoaderClosed.
func (l *Loader) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		<-l.stopped
	})
}

// Reserve claims name until release is called. It fails with
// ErrDuplicateSource when the name is loaded or already claimed, so two
// loads of one name never run side by side.
func (l *Loader) Reserve(name string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, claimed := l.pending[name]; claimed {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateSource, name)
	}
	if err := l.checkLoaded(name); err != nil {
		return nil, err
	}
	l.pending[name] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.pending, name)
			l.mu.Unlock()
		})
	}, nil
}

// Load decodes data as the file name and registers it.
func (l *Loader) Load(ctx context.Context, name string, data []byte) (*Source, error) {
	release, err := l.Reserve(name)
	if err != nil {
		return nil, err
	}
	defer release()
	c, err := l.Prepare(ctx, name, data)
	if err != nil {
		return nil, err
	}
	return l.Register(ctx, name, c)
}

// LoadURL fetches url and registers its content under name.
func (l *Loader) LoadURL(ctx context.Context, name, url string) (*Source, error) {
	release, err := l.Reserve(name)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	data, err := l.fetch(ctx, url)
	var c Classified
	if err == nil {
		c, err = l.decodeClassify(name, data)
	}
	l.sem.Release(1)
	if err != nil {
		return nil, err
	}
	return l.Register(ctx, name, c)
}

// LoadCollection registers an already decoded collection.
func (l *Loader) LoadCollection(ctx context.Context, name string, fc *geojson.FeatureCollection) (*Source, error) {
	release, err := l.Reserve(name)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.Register(ctx, name, Classify(fc))
}

// Prepare decodes and classifies data under the concurrency bound without
// registering it. Names that are already loaded fail before decoding.
func (l *Loader) Prepare(ctx context.Context, name string, data []byte) (Classified, error) {
	if err := l.checkLoaded(name); err != nil {
		return Classified{}, err
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return Classified{}, err
	}
	defer l.sem.Release(1)
	return l.decodeClassify(name, data)
}

// Register queues a classified collection for registration and waits for
// the result.
func (l *Loader) Register(ctx context.Context, name string, c Classified) (*Source, error) {
	reply := make(chan registered, 1)
	select {
	case l.queue <- registration{name: name, c: c, reply: reply}:
	case <-l.done:
		return nil, ErrLoaderClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.src, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loader) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.done:
			return
		case job := <-l.queue:
			src, err := l.reg.Add(job.name, job.c)
			if err != nil {
				metrics.LoadFailuresTotal.WithLabelValues("register").Inc()
				l.log.Warn("register failed", "source", job.name, "error", err)
			} else {
				metrics.SourcesLoadedTotal.Inc()
				metrics.LoadedSources.Set(float64(l.reg.Len()))
			}
			job.reply <- registered{src: src, err: err}

			if l.delay > 0 {
				select {
				case <-time.After(l.delay):
				case <-l.done:
					return
				}
			}
		}
	}
}

func (l *Loader) decodeClassify(name string, data []byte) (Classified, error) {
	start := time.Now()
	fc, err := l.decode(name, data)
	if err != nil {
		metrics.LoadFailuresTotal.WithLabelValues("decode").Inc()
		return Classified{}, err
	}
	c := Classify(fc)
	metrics.LoadDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	if c.Dropped > 0 {
		l.log.Debug("unsupported geometries dropped", "source", name, "dropped", c.Dropped)
	}
	return c, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		metrics.LoadFailuresTotal.WithLabelValues("fetch").Inc()
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.LoadFailuresTotal.WithLabelValues("fetch").Inc()
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (l *Loader) checkLoaded(name string) error {
	if _, err := l.reg.Get(name); err == nil {
		return fmt.Errorf("%w: %q", ErrDuplicateSource, name)
	}
	return nil
}
