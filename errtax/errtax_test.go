package errtax

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_BuiltinCategories(t *testing.T) {
	require.Equal(t, Abort, Classify(NewAbortError("interrupted")))
	require.Equal(t, Abort, Classify(context.Canceled))
	require.Equal(t, Timeout, Classify(context.DeadlineExceeded))
	require.Equal(t, Unknown, Classify(nil))
	require.Equal(t, Application, Classify(errors.New("boom")))
}

func TestClassify_WithOverridesAutomaticDetection(t *testing.T) {
	err := With(errors.New("quota exceeded"), RateLimit)
	assert.Equal(t, RateLimit, Classify(err))

	var cl *Classified
	require.True(t, errors.As(err, &cl))
	assert.Equal(t, "quota exceeded", cl.Error())
}

func TestClassify_RegisteredPredicateConsulted(t *testing.T) {
	sentinel := errors.New("429 too many requests")
	Register(func(err error) (Category, bool) {
		if errors.Is(err, sentinel) {
			return RateLimit, true
		}
		return "", false
	})
	assert.Equal(t, RateLimit, Classify(fmt.Errorf("wrapped: %w", sentinel)))
}

func TestCategory_Recoverable(t *testing.T) {
	assert.False(t, Authentication.Recoverable())
	assert.False(t, Validation.Recoverable())
	assert.False(t, Abort.Recoverable())
	assert.True(t, Network.Recoverable())
	assert.True(t, RateLimit.Recoverable())
	assert.True(t, Timeout.Recoverable())
	assert.True(t, Unknown.Recoverable())
}

func TestAbortError_DefaultsReasonText(t *testing.T) {
	assert.Equal(t, "execution aborted", (&AbortError{}).Error())
	assert.Equal(t, "execution aborted: shutdown", NewAbortError("shutdown").Error())
}
