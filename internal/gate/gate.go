// Package gate runs batches of independent outbound operations with a cap on
// how many are in flight at once.
package gate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxConcurrent is used when New is given a non-positive limit.
	DefaultMaxConcurrent = 10

	truncateShort  = 50
	truncateMedium = 100
)

// Work is one unit of a batch.
type Work struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Result reports the outcome of the Work at Index in the submitted batch.
type Result struct {
	Index int
	Name  string
	Err   error
}

// Gate bounds the parallelism of a batch. A failing item never cancels its
// siblings.
type Gate struct {
	max     int
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithRateLimit paces how quickly items may start.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(g *Gate) {
		if limit <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithLogger sets the logger used for per-item failures.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New returns a gate allowing maxConcurrent items in flight.
func New(maxConcurrent int, opts ...Option) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	g := &Gate{max: maxConcurrent, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxConcurrent returns the configured limit.
func (g *Gate) MaxConcurrent() int {
	return g.max
}

// Run executes every item and returns one Result per item, in input order.
// Items not yet started when ctx is done report ctx.Err().
func (g *Gate) Run(ctx context.Context, work []Work) []Result {
	results := make([]Result, len(work))
	eg := new(errgroup.Group)
	eg.SetLimit(g.max)

	for i, w := range work {
		i, w := i, w
		results[i] = Result{Index: i, Name: w.Name}
		eg.Go(func() error {
			results[i].Err = g.runOne(ctx, w)
			if err := results[i].Err; err != nil {
				g.logger.Warn("operation failed",
					zap.String("operation", TruncateShort(w.Name)),
					zap.String("error", TruncateMedium(err.Error())))
			}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (g *Gate) runOne(ctx context.Context, w Work) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.Fn(ctx)
}

// Failed counts results carrying an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// TruncateShort clips s to 50 characters for log fields.
func TruncateShort(s string) string {
	return truncate(s, truncateShort)
}

// TruncateMedium clips s to 100 characters for log fields.
func TruncateMedium(s string) string {
	return truncate(s, truncateMedium)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
