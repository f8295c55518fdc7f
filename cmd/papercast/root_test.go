package main

import (
	"errors"
	"testing"

	"github.com/jackzampolin/papercast/internal/podcast"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("boom"), 1},
		{"bad input", podcast.NewError(podcast.ErrBadInput, "paper too short"), 1},
		{"budget exceeded", podcast.NewError(podcast.ErrBudgetExceeded, "cost cap hit"), 2},
		{"transient upstream", podcast.NewError(podcast.ErrUpstreamTransient, "provider 503"), 3},
		{"permanent upstream", podcast.NewError(podcast.ErrUpstreamPermanent, "provider 401"), 3},
		{"contract", podcast.NewError(podcast.ErrContract, "malformed response"), 4},
		{"verify unresolvable", podcast.NewError(podcast.ErrVerifyUnresolvable, "cannot verify"), 4},
		{"internal", podcast.NewError(podcast.ErrInternal, "illegal transition"), 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Errorf("exitCode() = %d, want %d", got, tc.want)
			}
		})
	}
}
