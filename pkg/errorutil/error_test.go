package errorutil

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesKind(t *testing.T) {
	err := fmt.Errorf("geo_flows: %w", MissingLookup("region", "ATLANTIS"))

	assert.True(t, errors.Is(err, ErrMissingLookup))
	assert.False(t, errors.Is(err, ErrEmptyLedger))
	assert.Contains(t, err.Error(), `region "ATLANTIS"`)
}

func TestUnwrap_ReachesCause(t *testing.T) {
	err := SinkFailure("redis", io.ErrUnexpectedEOF, true)

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, errors.Is(err, ErrSink))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "sink redis write failed: unexpected EOF", err.Error())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))

	inner := EmptyLedger("stats")
	assert.Same(t, inner, Wrap(fmt.Errorf("outer: %w", inner)))

	plain := Wrap(errors.New("boom"))
	assert.Equal(t, KindInternal, plain.Kind)
	assert.False(t, plain.Retryable)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Retriable(KindSink, "timeout", nil)))
	assert.False(t, IsRetryable(NonRetriable(KindInvalidInput, "bad")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
