// Package ratelimit wraps a model.Adapter with an AIMD-style adaptive token
// bucket: it estimates the token cost of a call, blocks until the bucket has
// capacity, and halves its tokens-per-minute budget on a rate-limit error
// (recovering gradually on success). The limiter is process-local; it has no
// dependency on a cluster coordination layer, since this engine runs one
// adapter instance per process rather than a shared pool across processes.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fiberloom/engine/errtax"
	"github.com/fiberloom/engine/model"
)

// Limiter enforces an adaptive tokens-per-minute budget on top of a
// model.Adapter.
type Limiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// New constructs a Limiter with an initial and maximum tokens-per-minute
// budget. maxTPM is clamped up to initialTPM if given lower.
func New(initialTPM, maxTPM float64) *Limiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wrap returns a model.Adapter that delegates every call to next.
// FromEngineState first waits on l for the estimated token budget, and the
// outcome of Generate and Stream adjusts l's rate; other calls pass through.
func (l *Limiter) Wrap(next model.Adapter) model.Adapter {
	return &limited{next: next, limiter: l}
}

func (l *Limiter) wait(ctx context.Context, formatted model.FormattedInput) error {
	return l.limiter.WaitN(ctx, estimateTokens(formatted))
}

func (l *Limiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if isRateLimited(err) {
		l.backoff()
	}
}

func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.setRate(newTPM)
}

func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	l.setRate(newTPM)
}

// setRate must be called with l.mu held.
func (l *Limiter) setRate(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

func isRateLimited(err error) bool {
	return err != nil && errtax.Classify(err) == errtax.RateLimit
}

// estimateTokens is a cheap character-count heuristic: every formatted
// message's text blocks count toward the estimate, plus a fixed buffer for
// system prompt and provider framing overhead.
func estimateTokens(formatted model.FormattedInput) int {
	chars := 0
	if formatted.SystemMessage != nil {
		chars += blockChars(formatted.SystemMessage.Content)
	}
	for _, m := range formatted.Timeline {
		chars += blockChars(m.Content)
	}
	if chars <= 0 {
		return 500
	}
	tokens := chars / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}

func blockChars(blocks []model.Block) int {
	n := 0
	for _, b := range blocks {
		n += len(b.Text)
	}
	return n
}

type limited struct {
	next    model.Adapter
	limiter *Limiter
}

func (c *limited) Metadata() model.Metadata { return c.next.Metadata() }

func (c *limited) FromEngineState(ctx context.Context, formatted model.FormattedInput) (any, error) {
	if err := c.limiter.wait(ctx, formatted); err != nil {
		return nil, err
	}
	return c.next.FromEngineState(ctx, formatted)
}

func (c *limited) ToEngineState(ctx context.Context, modelOutput any) (model.EngineResponse, error) {
	return c.next.ToEngineState(ctx, modelOutput)
}

func (c *limited) Generate(ctx context.Context, modelInput any) (any, error) {
	out, err := c.next.Generate(ctx, modelInput)
	c.limiter.observe(err)
	return out, err
}

func (c *limited) Stream(ctx context.Context, modelInput any) (<-chan model.Chunk, error) {
	chunks, err := c.next.Stream(ctx, modelInput)
	c.limiter.observe(err)
	return chunks, err
}

func (c *limited) ProcessStream(ctx context.Context, chunks <-chan model.Chunk) (any, error) {
	return c.next.ProcessStream(ctx, chunks)
}
