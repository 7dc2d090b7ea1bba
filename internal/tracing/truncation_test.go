package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "a*", MaskPII("ab"))
	assert.Equal(t, "a**d", MaskPII("abcd"))

	masked := MaskPII("zhang@example.com")
	assert.True(t, strings.HasPrefix(masked, "zh"))
	assert.True(t, strings.HasSuffix(masked, "om"))
	assert.Contains(t, masked, "*")
}

func TestSafeAttributeValue(t *testing.T) {
	// 名称里带敏感关键词时做掩码
	assert.Contains(t, SafeAttributeValue("user.email", "zhang@example.com", 200), "*")
	// 普通属性只做截断
	long := strings.Repeat("x", 300)
	safe := SafeAttributeValue("query.text", long, 20)
	assert.LessOrEqual(t, len([]rune(safe)), 20)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))

	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	out := TruncateString(long, 21)
	assert.Contains(t, out, "...")
	assert.True(t, strings.HasPrefix(out, "aaa"))
	assert.True(t, strings.HasSuffix(out, "bbb"))
	assert.Equal(t, 21, len([]rune(out)))

	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}
