package uhttp

import (
	"encoding/json"
	"io"
	"net/url"
)

// DefaultTransformRequest leaves the configuration untouched.
func DefaultTransformRequest(*Config) {}

// DefaultTransformResponse leaves the response untouched.
func DefaultTransformResponse(resp *Response) *Response {
	return resp
}

// DefaultTransformRequestData JSON encodes structured bodies and passes
// binary and form payloads through unchanged.
func DefaultTransformRequestData(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case url.Values:
		return []byte(b.Encode()), nil
	case io.Reader:
		return io.ReadAll(b)
	default:
		return json.Marshal(b)
	}
}

// DefaultTransformResponseData parses the body as JSON and falls back to the
// raw text when that fails. It never returns an error.
func DefaultTransformResponseData(resp *Response) any {
	if resp == nil {
		return nil
	}

	var v any
	if err := json.Unmarshal([]byte(resp.BodyText), &v); err != nil {
		return resp.BodyText
	}
	return v
}

// isStructuredBody reports whether body would be JSON encoded by the
// default request data transform.
func isStructuredBody(body any) bool {
	switch body.(type) {
	case nil, []byte, string, url.Values, io.Reader:
		return false
	default:
		return true
	}
}

// IsSuccessStatus reports whether status resolves the success branch: any 2xx or 304.
func IsSuccessStatus(status int) bool {
	return (status >= 200 && status < 300) || status == 304
}
