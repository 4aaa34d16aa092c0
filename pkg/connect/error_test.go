package connect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWrappingPreservesKind(t *testing.T) {
	base := NewRetryableError("orders", "timeout", fmt.Errorf("dial tcp: timeout"))
	wrapped := fmt.Errorf("flush mapping orders: %w", base)

	assert.True(t, AsKind(wrapped, KindRetryable))
	assert.False(t, AsKind(wrapped, KindFatal))
}

func TestErrorMessageIncludesMapping(t *testing.T) {
	err := NewFatalError("orders", "destination revoked credentials", nil)
	assert.Contains(t, err.Error(), "orders")
	assert.Contains(t, err.Error(), "fatal")
}
