package metadata

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec()
	payload := &EmbeddedPayload{
		Type:    PayloadType,
		Version: PayloadVersion,
		ResumeData: map[string]any{
			"personalInfo": map[string]any{"name": "张三", "email": "z@example.com"},
			"summary":      "后端工程师",
		},
		SourceResumeID: "resume-123",
	}

	encoded, err := codec.Encode(payload)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded := codec.Decode(encoded)
	require.NotNil(t, decoded)
	assert.Equal(t, payload, decoded)
}

func TestCodecEncodeDeterministic(t *testing.T) {
	codec := NewCodec()
	payload := &EmbeddedPayload{
		Type:    PayloadType,
		Version: PayloadVersion,
		ResumeData: map[string]any{
			"b": "2", "a": "1", "c": "3",
		},
	}

	first, err := codec.Encode(payload)
	require.NoError(t, err)
	second, err := codec.Encode(payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCodecEncodeURLSafe(t *testing.T) {
	codec := NewCodec()
	payload := &EmbeddedPayload{
		Type:       PayloadType,
		Version:    PayloadVersion,
		ResumeData: map[string]any{"summary": "含有中文和特殊符号?&=的内容"},
	}

	encoded, err := codec.Encode(payload)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
}

func TestCodecDecodeInvalidBase64(t *testing.T) {
	codec := NewCodec()
	assert.Nil(t, codec.Decode("这不是base64!!!"))
}

func TestCodecDecodeNotGzip(t *testing.T) {
	codec := NewCodec()
	encoded := base64.URLEncoding.EncodeToString([]byte("明文数据"))
	assert.Nil(t, codec.Decode(encoded))
}

func TestCodecDecodeNotJSONObject(t *testing.T) {
	codec := NewCodec()

	for _, body := range []string{"not json at all", `"只是字符串"`, `[1,2,3]`} {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		encoded := base64.URLEncoding.EncodeToString(buf.Bytes())
		assert.Nil(t, codec.Decode(encoded), "body=%s", body)
	}
}

func TestCodecDecodeEmpty(t *testing.T) {
	codec := NewCodec()
	assert.Nil(t, codec.Decode(""))
}
