package processor

import (
	"errors"
	"testing"

	"resume-matcher-go/internal/constants"
	"resume-matcher-go/internal/tracing"
	"resume-matcher-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicInfoFromResume(t *testing.T) {
	resume, err := types.Validate(validResumeMap())
	require.NoError(t, err)

	info := basicInfoFromResume(resume)
	assert.Equal(t, "张三", info["name"])
	assert.Equal(t, "zhangsan@example.com", info["email"])
	assert.Equal(t, "13800138000", info["phone"])
}

func TestResumeIdentifier(t *testing.T) {
	resume, err := types.Validate(validResumeMap())
	require.NoError(t, err)
	assert.Equal(t, "张三_13800138000", resumeIdentifier(resume))

	empty, err := types.Validate(map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, resumeIdentifier(empty))
}

func TestResumeProcessErrorMatching(t *testing.T) {
	err := NewValidationError("uuid-1", "结构不合法")
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.NotErrorIs(t, err, ErrConvertFailed)

	var rpe *ResumeProcessError
	require.ErrorAs(t, err, &rpe)
	assert.Equal(t, "uuid-1", rpe.SubmissionUUID)
	assert.Equal(t, "validate", rpe.Op)
}

func TestFailureStatusFor(t *testing.T) {
	status, errType := failureStatusFor(NewValidationError("u1", "缺少字段"),
		constants.StatusLLMFailed, tracing.ErrorTypeLLM)
	assert.Equal(t, constants.StatusValidationFailed, status)
	assert.Equal(t, tracing.ErrorTypeValidation, errType)

	status, errType = failureStatusFor(NewConvertError("u1", "转换超时"),
		constants.StatusParsingFailed, tracing.ErrorTypeInternal)
	assert.Equal(t, constants.StatusParsingFailed, status)
	assert.Equal(t, tracing.ErrorTypeInternal, errType)

	status, errType = failureStatusFor(errors.New("连接中断"),
		constants.StatusLLMFailed, tracing.ErrorTypeLLM)
	assert.Equal(t, constants.StatusLLMFailed, status)
	assert.Equal(t, tracing.ErrorTypeLLM, errType)
}
