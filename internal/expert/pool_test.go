package expert

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/carepoint/council-controller/internal/triage"
)

// #region fakes
type fakeBackend struct {
	name  string
	reply string
	err   error
	delay time.Duration
	block bool
	panic bool

	calls    atomic.Int32
	gotImage atomic.Bool
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Invoke(ctx context.Context, _ string, image *Image) (string, error) {
	f.calls.Add(1)
	if image != nil {
		f.gotImage.Store(true)
	}
	if f.panic {
		panic("backend exploded")
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func testConfig() Config {
	return Config{
		Fast:        "alpha",
		Visual:      "beta",
		Council:     []string{"gamma", "alpha", "beta"},
		Timeout:     200 * time.Millisecond,
		MaxParallel: 3,
	}
}

func newTestPool(t *testing.T, backends ...*fakeBackend) *Pool {
	t.Helper()
	bs := make([]Backend, len(backends))
	for i, b := range backends {
		bs[i] = b
	}
	p, err := NewPool(bs, testConfig(), nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return p
}

// #endregion fakes

func TestConsult_FastSingleExpert(t *testing.T) {
	alpha := &fakeBackend{name: "alpha", reply: "Rest. Urgency: LOW"}
	beta := &fakeBackend{name: "beta", reply: "x"}
	gamma := &fakeBackend{name: "gamma", reply: "y"}
	p := newTestPool(t, alpha, beta, gamma)

	out, err := p.Consult(context.Background(), triage.LaneFast, PromptContext{PatientText: "mild headache"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Opinions) != 1 || out.Opinions[0].Expert != "alpha" {
		t.Fatalf("opinions: %+v", out.Opinions)
	}
	if out.Opinions[0].Urgency != triage.UrgencyLow {
		t.Errorf("urgency: got %q", out.Opinions[0].Urgency)
	}
	if beta.calls.Load() != 0 || gamma.calls.Load() != 0 {
		t.Error("fast lane must consult exactly one expert")
	}
}

func TestConsult_CouncilAllSucceed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	alpha := &fakeBackend{name: "alpha", reply: "a", delay: 30 * time.Millisecond}
	beta := &fakeBackend{name: "beta", reply: "b", delay: 10 * time.Millisecond}
	gamma := &fakeBackend{name: "gamma", reply: "c"}
	p := newTestPool(t, alpha, beta, gamma)

	out, err := p.Consult(context.Background(), triage.LaneCouncil, PromptContext{PatientText: "chest pain"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Opinions) != 3 || len(out.Failures) != 0 {
		t.Fatalf("got %d opinions, %d failures", len(out.Opinions), len(out.Failures))
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if out.Opinions[i].Expert != want {
			t.Errorf("opinion %d: got %q, want %q", i, out.Opinions[i].Expert, want)
		}
	}
	if out.Opinions[0].Urgency != triage.UrgencyHigh || out.Opinions[0].Confidence != 0.9 {
		t.Errorf("council default vote: got %+v", out.Opinions[0])
	}
}

func TestConsult_CouncilPartialFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	alpha := &fakeBackend{name: "alpha", err: errors.New("quota exceeded")}
	beta := &fakeBackend{name: "beta", block: true}
	gamma := &fakeBackend{name: "gamma", reply: "Possible MI. Urgency: EMERGENCY. Confidence: 0.95"}
	p := newTestPool(t, alpha, beta, gamma)

	start := time.Now()
	out, err := p.Consult(context.Background(), triage.LaneCouncil, PromptContext{PatientText: "chest pain"})
	if err != nil {
		t.Fatalf("partial council must not fail: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not applied")
	}
	if len(out.Opinions) != 1 || out.Opinions[0].Expert != "gamma" {
		t.Fatalf("opinions: %+v", out.Opinions)
	}
	if out.Opinions[0].Urgency != triage.UrgencyEmergency {
		t.Errorf("urgency: got %q", out.Opinions[0].Urgency)
	}
	if len(out.Failures) != 2 {
		t.Fatalf("failures: %+v", out.Failures)
	}
	if out.Failures[0].Expert != "alpha" || !strings.Contains(out.Failures[0].Reason, "quota") {
		t.Errorf("failure 0: %+v", out.Failures[0])
	}
	if out.Failures[1].Expert != "beta" || !strings.Contains(out.Failures[1].Reason, "timed out") {
		t.Errorf("failure 1: %+v", out.Failures[1])
	}
}

func TestConsult_AllFail(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := newTestPool(t,
		&fakeBackend{name: "alpha", err: errors.New("down")},
		&fakeBackend{name: "beta", panic: true},
		&fakeBackend{name: "gamma", reply: ""},
	)

	out, err := p.Consult(context.Background(), triage.LaneCouncil, PromptContext{PatientText: "stroke"})
	if !errors.Is(err, ErrAllExpertsFailed) {
		t.Fatalf("expected ErrAllExpertsFailed, got %v", err)
	}
	var afe *AllFailedError
	if !errors.As(err, &afe) {
		t.Fatal("expected *AllFailedError")
	}
	if len(afe.Failures) != 3 || afe.Lane != triage.LaneCouncil {
		t.Errorf("got %+v", afe)
	}
	if len(out.Opinions) != 0 {
		t.Error("no opinions expected")
	}
	if !strings.Contains(afe.Failures[1].Reason, "panic") {
		t.Errorf("panic not recorded: %+v", afe.Failures[1])
	}
}

func TestConsult_ImageForwarded(t *testing.T) {
	alpha := &fakeBackend{name: "alpha", reply: "a"}
	beta := &fakeBackend{name: "beta", reply: "b"}
	gamma := &fakeBackend{name: "gamma", reply: "c"}
	p := newTestPool(t, alpha, beta, gamma)

	img := &Image{Data: pngBytes, MIMEType: "image/png"}
	if _, err := p.Consult(context.Background(), triage.LaneCouncil, PromptContext{Image: img}); err != nil {
		t.Fatal(err)
	}
	for _, b := range []*fakeBackend{alpha, beta, gamma} {
		if !b.gotImage.Load() {
			t.Errorf("%s did not receive the image", b.name)
		}
	}
}

func TestConsult_PerExpertVote(t *testing.T) {
	alpha := &fakeBackend{name: "alpha", reply: "no structured vote"}
	beta := &fakeBackend{name: "beta", reply: "b"}
	gamma := &fakeBackend{name: "gamma", reply: "c"}
	cfg := testConfig()
	cfg.Votes = map[string]Vote{"alpha": {Urgency: triage.UrgencyHigh, Confidence: 0.92}}
	p, err := NewPool([]Backend{alpha, beta, gamma}, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Consult(context.Background(), triage.LaneCouncil, PromptContext{PatientText: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Opinions[0].Confidence != 0.92 {
		t.Errorf("alpha confidence: got %v", out.Opinions[0].Confidence)
	}
	if out.Opinions[1].Confidence != 0.90 {
		t.Errorf("beta confidence: got %v", out.Opinions[1].Confidence)
	}
}

func TestNewPool_Validation(t *testing.T) {
	a := &fakeBackend{name: "alpha"}
	b := &fakeBackend{name: "beta"}
	g := &fakeBackend{name: "gamma"}

	if _, err := NewPool([]Backend{a, b}, testConfig(), nil); err == nil {
		t.Error("expected error for missing gamma backend")
	}
	if _, err := NewPool([]Backend{a, a, b, g}, testConfig(), nil); err == nil {
		t.Error("expected error for duplicate backend")
	}
	cfg := testConfig()
	cfg.Council = []string{"alpha", "beta", "gamma", "alpha"}
	if _, err := NewPool([]Backend{a, b, g}, cfg, nil); err == nil {
		t.Error("expected error for oversized council")
	}
	cfg.Council = nil
	if _, err := NewPool([]Backend{a, b, g}, cfg, nil); err == nil {
		t.Error("expected error for empty council")
	}
}

func TestNewPool_RepeatedCouncilMember(t *testing.T) {
	a := &fakeBackend{name: "alpha"}
	b := &fakeBackend{name: "beta"}

	cfg := testConfig()
	cfg.Council = []string{"alpha", "alpha", "alpha"}
	if _, err := NewPool([]Backend{a, b}, cfg, nil); err == nil {
		t.Fatal("expected error for repeated council member")
	}
}

func TestCall_IgnoresLateReply(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := Bounded(ctx, func(context.Context) (string, error) {
		<-release
		return "too late", nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Bounded returned after %s", elapsed)
	}
}

func TestCall_RecoversPanic(t *testing.T) {
	_, err := Call(context.Background(), &fakeBackend{name: "boom", panic: true}, "hi", nil)
	if err == nil || !strings.Contains(err.Error(), "backend exploded") {
		t.Fatalf("expected panic error, got %v", err)
	}
}

func TestConsult_UnknownLane(t *testing.T) {
	p := newTestPool(t, &fakeBackend{name: "alpha"}, &fakeBackend{name: "beta"}, &fakeBackend{name: "gamma"})
	if _, err := p.Consult(context.Background(), triage.Lane("slow"), PromptContext{}); err == nil {
		t.Fatal("expected error")
	}
}
