package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// FromContext 返回ctx中携带的logger，没有则回退到全局Logger
func FromContext(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &Logger
	}
	return l
}

// WithSubmissionUUID 把submission_uuid写入ctx中的logger，后续日志自动带上该字段
func WithSubmissionUUID(ctx context.Context, submissionUUID string) context.Context {
	l := FromContext(ctx).With().Str("submission_uuid", submissionUUID).Logger()
	return l.WithContext(ctx)
}
