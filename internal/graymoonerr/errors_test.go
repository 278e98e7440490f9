package graymoonerr

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify_DirectKind(t *testing.T) {
	err := New(KindNotFound, "repository %d not found", 42)
	assert.Equal(t, KindNotFound, Classify(err))
	assert.Equal(t, "repository 42 not found", err.Error())
}

func TestClassify_WrappedKind(t *testing.T) {
	inner := New(KindVcsFailure, "git clone failed")
	wrapped := errors.Wrap(inner, "sync repository")
	assert.Equal(t, KindVcsFailure, Classify(wrapped))
}

func TestClassify_UnknownDefaultsToInternalError(t *testing.T) {
	assert.Equal(t, KindInternalError, Classify(fmt.Errorf("plain error")))
}

func TestClassify_Nil(t *testing.T) {
	assert.Equal(t, Kind(""), Classify(nil))
}

func TestNotFound(t *testing.T) {
	err := NotFound("workspace", int64(7))
	assert.Equal(t, KindNotFound, Classify(err))
	assert.Contains(t, err.Error(), "workspace 7 not found")
}

func TestDependencyUnsatisfied(t *testing.T) {
	err := DependencyUnsatisfied("Acme.Core", "1.2.3")
	assert.Equal(t, KindDependencyUnsatisfied, Classify(err))
}

func TestVcsFailure_PreservesKindThroughWrap(t *testing.T) {
	cause := fmt.Errorf("exit status 128")
	err := VcsFailure(cause, "git fetch")
	assert.Equal(t, KindVcsFailure, Classify(err))
	assert.Contains(t, err.Error(), "git fetch")
}

func TestSentinels(t *testing.T) {
	assert.Equal(t, KindAgentDisconnected, Classify(ErrAgentDisconnected))
	assert.Equal(t, KindCancelled, Classify(ErrCancelled))
	assert.Equal(t, KindRegistryUnavailable, Classify(ErrRegistryUnavailable))
}
