package capture

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/url"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/PipeOpsHQ/livehook/internal/models"
)

// binarySample bounds how many leading bytes the binary heuristic inspects.
const binarySample = 1000

// Decompress undoes a gzip or deflate Content-Encoding. Unknown encodings or
// corrupt streams return body unchanged.
func Decompress(contentEncoding string, body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	var (
		r   io.ReadCloser
		err error
	)
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(bytes.NewReader(body))
	case "deflate":
		r, err = zlib.NewReader(bytes.NewReader(body))
	default:
		return body
	}
	if err != nil {
		return body
	}
	defer r.Close()

	decoded, err := io.ReadAll(r)
	if err != nil || len(decoded) == 0 {
		return body
	}
	return decoded
}

// DecodeBody classifies an already decompressed body by its Content-Type.
// Anything that fails to parse is kept as text, or as binary when it does
// not look like text at all.
func DecodeBody(contentType string, body []byte) models.Payload {
	if len(body) == 0 {
		return models.EmptyPayload()
	}

	mediaType := mediaTypeOf(contentType)
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if v, err := decodeJSON(body); err == nil {
			return models.StructuredPayload(v)
		}
	case mediaType == "application/x-www-form-urlencoded":
		if v, err := decodeForm(body); err == nil {
			return models.StructuredPayload(v)
		}
	case mediaType == "application/yaml" || mediaType == "application/x-yaml" || mediaType == "text/yaml":
		if v, err := decodeYAML(body); err == nil {
			return models.StructuredPayload(v)
		}
	}

	if looksBinary(body, isTextType(mediaType)) {
		return models.BinaryPayload(body)
	}
	return models.TextPayload(string(body))
}

// QueryMap collapses single-valued keys to a string and keeps repeated keys
// as a list.
func QueryMap(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vals := range values {
		switch len(vals) {
		case 0:
			out[k] = ""
		case 1:
			out[k] = vals[0]
		default:
			out[k] = append([]string(nil), vals...)
		}
	}
	return out
}

func mediaTypeOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func isTextType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") ||
		strings.Contains(mediaType, "json") ||
		strings.Contains(mediaType, "xml") ||
		strings.Contains(mediaType, "html") ||
		strings.Contains(mediaType, "form-urlencoded")
}

// looksBinary counts control bytes other than tab, LF, CR and ESC in the
// leading sample. Declared text types tolerate up to half; anything else a
// quarter, and must also be valid UTF-8.
func looksBinary(body []byte, textType bool) bool {
	sample := body
	if len(sample) > binarySample {
		sample = sample[:binarySample]
	}
	nonPrintable := 0
	for _, b := range sample {
		if b < 32 && b != 9 && b != 10 && b != 13 && b != 27 {
			nonPrintable++
		}
	}
	threshold := 0.25
	if textType {
		threshold = 0.50
	}
	if float64(nonPrintable)/float64(len(sample)) > threshold {
		return true
	}
	return !textType && !utf8.Valid(body)
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after json value")
	}
	return v, nil
}

func decodeForm(body []byte) (any, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	return QueryMap(values), nil
}

func decodeYAML(body []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return normalizeYAML(v), nil
}

// normalizeYAML rewrites what JSON cannot encode: non-string map keys and
// the special floats .inf and .nan.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return fmt.Sprint(t)
		}
		return t
	default:
		return v
	}
}
