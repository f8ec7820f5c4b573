package pluginscan

// file: internal/pluginscan/scanner.go

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Scanner discovers plugins under a set of search paths.
type Scanner struct {
	searchPaths []string
	cacheFile   string
	workers     int
	logger      logging.Logger
	now         func() time.Time

	mu      sync.Mutex
	busy    chan struct{} // closed when the scan in flight finishes
	entries []Entry
}

// NewScanner creates a scanner. cacheFile may be empty, which disables the cache.
func NewScanner(searchPaths []string, cacheFile string, logger logging.Logger) *Scanner {
	return &Scanner{
		searchPaths: append([]string(nil), searchPaths...),
		cacheFile:   cacheFile,
		workers:     runtime.NumCPU(),
		logger:      logging.OrNoop(logger).WithField("component", "plugin_scanner"),
		now:         time.Now,
	}
}

// Entries returns the result of the last completed scan.
func (s *Scanner) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Start runs a scan on its own goroutine and calls done with the result.
// done runs on the scanner goroutine; callers that need another thread
// must hand the result over themselves.
func (s *Scanner) Start(ctx context.Context, cacheOnly bool, done func(Summary, error)) {
	go func() {
		sum, err := s.Scan(ctx, cacheOnly)
		if done != nil {
			done(sum, err)
		}
	}()
}

// Scan runs a scan synchronously. A scan requested while another is in
// flight waits for it and then runs its own pass.
func (s *Scanner) Scan(ctx context.Context, cacheOnly bool) (Summary, error) {
	if err := s.acquire(ctx); err != nil {
		return Summary{}, err
	}
	defer s.release()

	started := s.now()
	cached := s.readCache()

	var (
		entries []Entry
		sum     Summary
		err     error
	)
	if cacheOnly {
		entries = cached
		sum = Summary{Total: len(entries), Invalid: countInvalid(entries), FromCache: true}
	} else {
		entries, sum, err = s.fullScan(ctx, cached)
		if err != nil {
			return Summary{}, err
		}
		if s.cacheFile != "" {
			if err := saveCache(s.cacheFile, entries, s.now()); err != nil {
				s.logger.Warn("Failed to write plugin cache.", "path", s.cacheFile, "error", err)
			}
		}
	}
	sum.Duration = s.now().Sub(started)

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.logger.Info("Plugin scan finished.",
		"total", sum.Total, "new", sum.New, "changed", sum.Changed,
		"removed", sum.Removed, "invalid", sum.Invalid,
		"from_cache", sum.FromCache, "duration", sum.Duration)
	return sum, nil
}

func (s *Scanner) acquire(ctx context.Context) error {
	for {
		s.mu.Lock()
		wait := s.busy
		if wait == nil {
			s.busy = make(chan struct{})
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		s.logger.Debug("Waiting for the running plugin scan to finish.")
		select {
		case <-wait:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for running plugin scan")
		}
	}
}

func (s *Scanner) release() {
	s.mu.Lock()
	close(s.busy)
	s.busy = nil
	s.mu.Unlock()
}

func (s *Scanner) readCache() []Entry {
	if s.cacheFile == "" {
		return nil
	}
	entries, at, err := loadCache(s.cacheFile)
	if err != nil {
		s.logger.Warn("Discarding plugin cache.", "path", s.cacheFile, "error", err)
		return nil
	}
	s.logger.Debug("Loaded plugin cache.", "path", s.cacheFile, "entries", len(entries), "scanned_at", at)
	return entries
}

// walk collects plugin candidates from every search path concurrently.
func (s *Scanner) walk(ctx context.Context) ([]candidate, error) {
	var (
		mu    sync.Mutex
		found []candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, root := range s.searchPaths {
		g.Go(func() error {
			err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err != nil {
					if path == root && errors.Is(err, fs.ErrNotExist) {
						s.logger.Debug("Plugin search path does not exist.", "path", root)
						return nil
					}
					s.logger.Debug("Skipping unreadable path.", "path", path, "error", err)
					if d != nil && d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				format, ok, skip := classify(d)
				if ok {
					info, err := d.Info()
					if err == nil {
						mu.Lock()
						found = append(found, candidate{format: format, path: path, info: info})
						mu.Unlock()
					}
				}
				if skip {
					return filepath.SkipDir
				}
				return nil
			})
			return errors.Wrapf(err, "failed to walk %s", root)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

func (s *Scanner) fullScan(ctx context.Context, cached []Entry) ([]Entry, Summary, error) {
	cands, err := s.walk(ctx)
	if err != nil {
		return nil, Summary{}, err
	}

	prev := make(map[string]Entry, len(cached))
	for _, e := range cached {
		prev[e.Path] = e
	}

	var sum Summary
	out := make([]Entry, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.workers, 1))
	for i, c := range cands {
		old, known := prev[c.path]
		fresh := known && old.Size == c.info.Size() && old.ModTime.Equal(c.info.ModTime().UTC())
		switch {
		case fresh:
			out[i] = old
			continue
		case known:
			sum.Changed++
		default:
			sum.New++
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = probe(c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Summary{}, errors.Wrap(err, "plugin probe interrupted")
	}

	seen := make(map[string]bool, len(out))
	for _, e := range out {
		seen[e.Path] = true
	}
	for p := range prev {
		if !seen[p] {
			sum.Removed++
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	sum.Total = len(out)
	sum.Invalid = countInvalid(out)
	return out, sum, nil
}

func countInvalid(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if e.Status != StatusOK {
			n++
		}
	}
	return n
}
