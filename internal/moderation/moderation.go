// Package moderation screens user content through an external classifier and
// applies the configured failure policy.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/marcoordaz69/clawcreate/internal/apperr"
)

type Outcome string

const (
	OutcomeClean       Outcome = "clean"
	OutcomeFlagged     Outcome = "flagged"
	OutcomeUnavailable Outcome = "unavailable"
)

type Content struct {
	Text     string
	ImageURL string
}

func (c Content) Empty() bool {
	return strings.TrimSpace(c.Text) == "" && strings.TrimSpace(c.ImageURL) == ""
}

// Verdict is what a screener concluded. Unavailable is never the same as clean.
type Verdict struct {
	Outcome    Outcome
	Categories []string
	Err        error
}

type Screener interface {
	Screen(ctx context.Context, content Content) Verdict
}

type Policy string

const (
	FailOpen   Policy = "fail-open"
	FailClosed Policy = "fail-closed"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("unknown moderation policy %q", s)
}

// Result is the gate's answer for one piece of content.
type Result struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories"`
	Outcome    Outcome  `json:"outcome"`
}

type Gate struct {
	screener Screener
	policy   Policy
	timeout  time.Duration
	observe  func(Outcome)
}

const DefaultTimeout = 5 * time.Second

func NewGate(screener Screener, policy Policy, timeout time.Duration, observe func(Outcome)) *Gate {
	if screener == nil {
		screener = Noop{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if policy == "" {
		policy = FailOpen
	}
	return &Gate{screener: screener, policy: policy, timeout: timeout, observe: observe}
}

// Check screens content within the gate timeout. A screener that overruns is
// abandoned and treated as unavailable. Under fail-closed an unavailable
// verdict becomes an upstream error.
func (g *Gate) Check(ctx context.Context, content Content) (Result, error) {
	if content.Empty() {
		return Result{Outcome: OutcomeClean, Categories: []string{}}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ch := make(chan Verdict, 1)
	go func() { ch <- g.screener.Screen(ctx, content) }()

	var v Verdict
	select {
	case v = <-ch:
	case <-ctx.Done():
		v = Verdict{Outcome: OutcomeUnavailable, Err: ctx.Err()}
	}
	if g.observe != nil {
		g.observe(v.Outcome)
	}

	switch v.Outcome {
	case OutcomeFlagged:
		cats := append([]string(nil), v.Categories...)
		sort.Strings(cats)
		return Result{Flagged: true, Categories: cats, Outcome: OutcomeFlagged}, nil
	case OutcomeClean:
		return Result{Outcome: OutcomeClean, Categories: []string{}}, nil
	}
	if g.policy == FailClosed {
		return Result{Outcome: OutcomeUnavailable}, apperr.Upstream("content moderation unavailable", v.Err)
	}
	return Result{Outcome: OutcomeUnavailable, Categories: []string{}}, nil
}

// Noop reports every piece of content as unavailable, which the gate resolves
// through its policy.
type Noop struct{}

func (Noop) Screen(context.Context, Content) Verdict {
	return Verdict{Outcome: OutcomeUnavailable, Err: errNotConfigured}
}

var errNotConfigured = errors.New("moderation provider not configured")
