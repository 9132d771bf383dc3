package uhttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// HTTPTransport dispatches requests with a net/http client. Credentialed
// requests carry the jar's cookies and store any Set-Cookie they receive.
type HTTPTransport struct {
	Client *http.Client
	Jar    *CookieJar
}

// NewHTTPTransport builds a transport. A nil client uses a client with no
// overall timeout, since the pipeline enforces its own.
func NewHTTPTransport(client *http.Client, jar *CookieJar) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	return &HTTPTransport{Client: client, Jar: jar}
}

// RoundTrip implements Transport.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.WithCredentials && t.Jar != nil {
		for _, c := range t.Jar.Cookies() {
			httpReq.AddCookie(c)
		}
	}

	resp, err := t.client().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if req.WithCredentials && t.Jar != nil {
		for _, c := range resp.Cookies() {
			t.Jar.store(c)
		}
	}

	out := &Response{
		Method:  req.Method,
		URL:     req.URL,
		Status:  resp.StatusCode,
		Headers: resp.Header.Clone(),
	}

	// HEAD responses never carry a body.
	if req.Method == http.MethodHead {
		return out, nil
	}

	var r io.Reader = resp.Body
	if req.Progress != nil {
		r = &progressReader{r: resp.Body, total: resp.ContentLength, fn: req.Progress}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	out.BodyText = string(data)
	return out, nil
}

func (t *HTTPTransport) client() *http.Client {
	if t.Client == nil {
		return http.DefaultClient
	}
	return t.Client
}

type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	fn     ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.loaded += int64(n)
	if n > 0 || err == io.EOF {
		p.fn(p.loaded, p.total)
	}
	return n, err
}
