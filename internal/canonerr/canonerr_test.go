package canonerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericcug/streamcanary/internal/canonerr"
)

func TestClassifyAndKindOf(t *testing.T) {
	wrapped := fmt.Errorf("fetch failed: %w", canonerr.Classify(canonerr.KindTransport, canonerr.ErrConnect))
	assert.Equal(t, canonerr.KindTransport, canonerr.KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, canonerr.ErrConnect))
}

func TestClassifyNilReturnsNil(t *testing.T) {
	assert.NoError(t, canonerr.Classify(canonerr.KindTransport, nil))
}

func TestKindOfUnclassifiedIsEmpty(t *testing.T) {
	assert.Equal(t, canonerr.ErrorKind(""), canonerr.KindOf(errors.New("plain")))
}
