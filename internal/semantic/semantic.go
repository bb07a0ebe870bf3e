// Package semantic holds the last-resort correction providers consulted
// after every deterministic strategy has failed.
//
// Two interchangeable variants exist: Local, a rule-based corrector that
// runs in-process, and Remote, which asks a network service. Both follow
// the same contract: fix layout and spelling only, never rephrase, and
// report false when the input should be left alone.
package semantic

import (
	"context"
	"errors"
	"fmt"
)

// Kind selects a provider variant.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// ParseKind accepts the variant names plus the legacy "tinyllm" and "api"
// spellings.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "local", "tinyllm", "":
		return KindLocal, nil
	case "remote", "api":
		return KindRemote, nil
	}
	return "", fmt.Errorf("semantic: unknown provider %q", s)
}

// ErrRateLimited is returned by Remote when the call budget is exhausted.
var ErrRateLimited = errors.New("semantic: rate limited")

// Provider corrects text with surrounding context. The returned bool is
// false when there is no correction. Callers bound every call with ctx.
type Provider interface {
	Name() string
	Correct(ctx context.Context, text, surrounding string) (string, bool, error)
}
