package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByType(t *testing.T) {
	sentinel := CapabilityError("full-text index unavailable")

	wrapped := CapabilityErrorf(fmt.Errorf("no such index"), "query change_text_ft")
	assert.True(t, Is(wrapped, sentinel))

	outer := fmt.Errorf("retrieve: %w", wrapped)
	assert.True(t, Is(outer, sentinel), "should match through fmt wrapping")

	other := DatabaseErrorf(fmt.Errorf("connection refused"), "query")
	assert.False(t, Is(other, sentinel))
}

func TestGetTypeAndFatal(t *testing.T) {
	err := fmt.Errorf("run: %w", NotFoundError("no links"))
	assert.Equal(t, ErrorTypeNotFound, GetType(err))
	assert.True(t, IsFatal(err))

	assert.False(t, IsFatal(CapabilityError("x")))
	assert.Equal(t, ErrorTypeInternal, GetType(fmt.Errorf("plain")))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeDatabase, SeverityHigh, "noop"))
}

func TestDetailedString(t *testing.T) {
	err := NetworkErrorf(fmt.Errorf("timeout"), "fetch %s", "https://example.com").
		WithContext("status", 504)

	s := err.DetailedString()
	assert.Contains(t, s, "[HIGH] [NETWORK] fetch https://example.com")
	assert.Contains(t, s, "Caused by: timeout")
	assert.Contains(t, s, "status: 504")
}
