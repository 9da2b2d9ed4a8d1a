package scorer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nijaru/reelflow/config"
	apperrors "github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/logger"
	"github.com/nijaru/reelflow/services/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCompleter struct {
	replies []string
	errs    []error
	calls   int
	last    ai.Request
}

func (c *scriptedCompleter) Complete(ctx context.Context, req ai.Request) (string, error) {
	i := c.calls
	c.calls++
	c.last = req
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	reply := ""
	if i < len(c.replies) {
		reply = c.replies[i]
	}
	return reply, err
}

func newTestScorer(c ai.Completer, slept *[]time.Duration) *Scorer {
	s := New(c, config.AIConfig{
		MaxRetries: 3,
		RetryBase:  2 * time.Second,
		RetryMax:   10 * time.Second,
	}, logger.Discard())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return s
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		reply   string
		want    int
		wantErr bool
	}{
		{"85", 85, false},
		{"Score: 72/100", 72, false},
		{"  7 ", 7, false},
		{"150", 100, false},
		{"-20", 20, false},
		{"999999999999999999999999", 100, false},
		{"0", 0, false},
		{"none", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, err := ParseScore(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestScoreRetriesThenSucceeds(t *testing.T) {
	var slept []time.Duration
	c := &scriptedCompleter{
		replies: []string{"", "hmm", "88"},
		errs:    []error{errors.New("timeout")},
	}
	s := newTestScorer(c, &slept)

	score, err := s.Score(context.Background(), "funny cat")
	require.NoError(t, err)
	assert.Equal(t, 88, score)
	assert.Equal(t, 3, c.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, slept)
	assert.Equal(t, ai.Small, c.last.Model)
	assert.Equal(t, "funny cat", c.last.Prompt)
}

func TestScoreExhaustsRetries(t *testing.T) {
	var slept []time.Duration
	boom := errors.New("boom")
	c := &scriptedCompleter{errs: []error{boom, boom, boom, boom}}
	s := newTestScorer(c, &slept)

	_, err := s.Score(context.Background(), "caption")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindScoring))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, c.calls)
	assert.Len(t, slept, 2)
}
