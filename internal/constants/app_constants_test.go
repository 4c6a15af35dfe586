package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStatusAllowed(t *testing.T) {
	assert.True(t, IsStatusAllowed(StatusPendingLLM, AllowedStatusesForLLM))
	assert.True(t, IsStatusAllowed(StatusLLMFailed, AllowedStatusesForLLM))
	assert.False(t, IsStatusAllowed(StatusCompleted, AllowedStatusesForLLM))
	assert.False(t, IsStatusAllowed("", AllowedStatusesForLLM))
}
