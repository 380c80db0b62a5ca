package capture

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PipeOpsHQ/livehook/internal/models"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		kind        models.PayloadKind
	}{
		{"empty", "application/json", "", models.PayloadEmpty},
		{"json", "application/json; charset=utf-8", `{"a":1}`, models.PayloadStructured},
		{"json suffix", "application/vnd.api+json", `[1,2]`, models.PayloadStructured},
		{"bad json", "application/json", `{"a":`, models.PayloadText},
		{"json trailing", "application/json", `{} {}`, models.PayloadText},
		{"form", "application/x-www-form-urlencoded", "a=1&b=2&b=3", models.PayloadStructured},
		{"bad form", "application/x-www-form-urlencoded", "a=%zz", models.PayloadText},
		{"yaml", "application/yaml", "a: 1\nb: [x, y]\n", models.PayloadStructured},
		{"bad yaml", "text/yaml", "a: [", models.PayloadText},
		{"text", "text/plain", "hello", models.PayloadText},
		{"xml", "application/xml", "<a>1</a>", models.PayloadText},
		{"no type", "", "hello", models.PayloadText},
		{"binary", "application/octet-stream", "\x00\x01\x02\x03\x04", models.PayloadBinary},
		{"invalid utf8", "", "\xff\xfe\xfd", models.PayloadBinary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, DecodeBody(tt.contentType, []byte(tt.body)).Kind)
		})
	}
}

func TestDecodeBody_JSONKeepsNumbers(t *testing.T) {
	p := DecodeBody("application/json", []byte(`{"big":12345678901234567890}`))
	out, err := json.Marshal(p.Value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"big":12345678901234567890}`, string(out))
}

func TestDecodeBody_FormValues(t *testing.T) {
	p := DecodeBody("application/x-www-form-urlencoded", []byte("a=1&b=2&b=3"))
	assert.Equal(t, map[string]any{"a": "1", "b": []string{"2", "3"}}, p.Value)
}

func TestDecodeBody_YAMLIsJSONSafe(t *testing.T) {
	p := DecodeBody("application/yaml", []byte("1: one\nnested:\n  2: two\nx: .inf\n"))
	require.Equal(t, models.PayloadStructured, p.Kind)
	out, err := json.Marshal(p.Value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":"one","nested":{"2":"two"},"x":"+Inf"}`, string(out))
}

func TestDecompress(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write([]byte(`{"a":1}`))
	gw.Close()
	assert.Equal(t, `{"a":1}`, string(Decompress("gzip", gz.Bytes())))

	var zl bytes.Buffer
	zw := zlib.NewWriter(&zl)
	zw.Write([]byte("hello"))
	zw.Close()
	assert.Equal(t, "hello", string(Decompress("deflate", zl.Bytes())))

	assert.Equal(t, "not gzip", string(Decompress("gzip", []byte("not gzip"))))
	assert.Equal(t, "plain", string(Decompress("", []byte("plain"))))
}

func TestQueryMap(t *testing.T) {
	q, _ := url.ParseQuery("a=1&tag=x&tag=y&empty=")
	assert.Equal(t, map[string]any{
		"a":     "1",
		"tag":   []string{"x", "y"},
		"empty": "",
	}, QueryMap(q))
}
