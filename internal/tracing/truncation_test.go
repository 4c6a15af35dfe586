package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "13*******78", MaskPII("13812345678"))

	masked := MaskPII("myemail@example.com")
	assert.True(t, strings.HasPrefix(masked, "my"))
	assert.True(t, strings.HasSuffix(masked, "om"))
	assert.NotContains(t, masked, "example")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "短文本", TruncateString("短文本", 10))

	long := strings.Repeat("简历内容", 100)
	got := TruncateString(long, 20)
	assert.Contains(t, got, "...")
	assert.LessOrEqual(t, len([]rune(got)), 20)
}

func TestSafeAttributeValue(t *testing.T) {
	// 敏感字段名触发掩码
	got := SafeAttributeValue("candidate_phone", "13812345678", DefaultMaxLength)
	assert.Equal(t, "13*******78", got)

	// 普通字段只做截断
	got = SafeAttributeValue("file_path", "resumes/2024/abc.pdf", DefaultMaxLength)
	assert.Equal(t, "resumes/2024/abc.pdf", got)
}
