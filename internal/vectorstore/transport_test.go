package vectorstore

import (
	"bytes"
	"io"
	"net/http"
)

// recordingTransport passes requests through and reports each request body.
type recordingTransport struct {
	next   http.RoundTripper
	onBody func(path, body string)
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(b))
		t.onBody(req.URL.Path, string(b))
	}
	return t.next.RoundTrip(req)
}
