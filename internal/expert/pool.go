package expert

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carepoint/council-controller/internal/triage"
)

// #endregion

// #region pool

// Pool runs lane prompts against the configured experts.
type Pool struct {
	backends map[string]Backend
	config   Config
	logger   *zap.Logger
}

// NewPool checks that every expert named in config has a backend.
func NewPool(backends []Backend, config Config, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]Backend, len(backends))
	for _, b := range backends {
		if _, dup := byName[b.Name()]; dup {
			return nil, fmt.Errorf("duplicate expert %q", b.Name())
		}
		byName[b.Name()] = b
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = DefaultConfig().MaxParallel
	}
	if len(config.Council) == 0 {
		return nil, errors.New("council lane needs at least one expert")
	}
	if len(config.Council) > 3 {
		return nil, fmt.Errorf("council lane allows at most 3 experts, got %d", len(config.Council))
	}
	seen := make(map[string]bool, len(config.Council))
	for _, n := range config.Council {
		if seen[n] {
			return nil, fmt.Errorf("council lane lists expert %q twice", n)
		}
		seen[n] = true
	}
	names := append([]string{config.Fast, config.Visual}, config.Council...)
	for _, n := range names {
		if _, ok := byName[n]; !ok {
			return nil, fmt.Errorf("no backend for expert %q", n)
		}
	}
	return &Pool{backends: byName, config: config, logger: logger}, nil
}

// Members returns the experts that serve a lane.
func (p *Pool) Members(lane triage.Lane) []string {
	switch lane {
	case triage.LaneCouncil:
		return append([]string(nil), p.config.Council...)
	case triage.LaneVisual:
		return []string{p.config.Visual}
	default:
		return []string{p.config.Fast}
	}
}

// #endregion pool

// #region consult

type call struct {
	opinion *Opinion
	failure *Failure
}

// Consult prompts every expert of the lane. Each expert runs under its own
// timeout; one expert failing never cancels another. It returns an
// *AllFailedError only when no expert produced an opinion.
func (p *Pool) Consult(ctx context.Context, lane triage.Lane, pc PromptContext) (Outcome, error) {
	if !lane.Valid() {
		return Outcome{}, fmt.Errorf("unknown lane %q", lane)
	}
	members := p.Members(lane)
	prompt := BuildPrompt(lane, pc)
	results := make([]call, len(members))

	var g errgroup.Group
	g.SetLimit(p.config.MaxParallel)
	for i, name := range members {
		g.Go(func() error {
			results[i] = p.ask(ctx, lane, name, prompt, pc.Image)
			return nil
		})
	}
	_ = g.Wait()

	var out Outcome
	for _, r := range results {
		if r.opinion != nil {
			out.Opinions = append(out.Opinions, *r.opinion)
		}
		if r.failure != nil {
			out.Failures = append(out.Failures, *r.failure)
		}
	}
	sort.Slice(out.Opinions, func(i, j int) bool { return out.Opinions[i].Expert < out.Opinions[j].Expert })
	sort.Slice(out.Failures, func(i, j int) bool { return out.Failures[i].Expert < out.Failures[j].Expert })

	if len(out.Opinions) == 0 {
		p.logger.Error("all experts failed", zap.String("lane", string(lane)), zap.Int("failures", len(out.Failures)))
		return out, &AllFailedError{Lane: lane, Failures: out.Failures}
	}
	if len(out.Failures) > 0 {
		p.logger.Warn("continuing with partial council",
			zap.String("lane", string(lane)),
			zap.Int("opinions", len(out.Opinions)),
			zap.Int("failures", len(out.Failures)))
	}
	return out, nil
}

// ask invokes one expert and converts any error, timeout or panic into a Failure.
func (p *Pool) ask(ctx context.Context, lane triage.Lane, name, prompt string, image *Image) (c call) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c = call{failure: &Failure{Expert: name, Reason: fmt.Sprintf("panic: %v", r)}}
		}
		if c.failure != nil {
			p.logger.Warn("expert failed", zap.String("expert", name), zap.String("reason", c.failure.Reason))
		} else {
			p.logger.Debug("expert answered", zap.String("expert", name), zap.Duration("elapsed", time.Since(start)))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	text, err := Call(ctx, p.backends[name], prompt, image)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", p.config.Timeout)
		}
		return call{failure: &Failure{Expert: name, Reason: reason}}
	}
	if text == "" {
		return call{failure: &Failure{Expert: name, Reason: "empty response"}}
	}

	op := ParseOpinion(name, text, p.fallbackVote(lane, name))
	return call{opinion: &op}
}

type boundedResult[T any] struct {
	val T
	err error
}

// Bounded runs fn and returns when it does or when ctx ends, whichever is
// first. A panic in fn becomes an error. fn keeps running after ctx ends;
// its late result is discarded.
func Bounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan boundedResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- boundedResult[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- boundedResult[T]{val: v, err: err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Call invokes b under Bounded.
func Call(ctx context.Context, b Backend, prompt string, image *Image) (string, error) {
	return Bounded(ctx, func(ctx context.Context) (string, error) {
		return b.Invoke(ctx, prompt, image)
	})
}

func (p *Pool) fallbackVote(lane triage.Lane, name string) Vote {
	if lane == triage.LaneCouncil {
		if v, ok := p.config.Votes[name]; ok && v.Urgency.Valid() {
			return v
		}
	}
	return DefaultVote(lane)
}

// #endregion consult
