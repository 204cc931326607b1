package repo

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

// upstreamFunc answers outbound requests in place of the home core or the
// blueprint catalogue.
type upstreamFunc func(*http.Request) (*http.Response, error)

func (f upstreamFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func fakeUpstream(f upstreamFunc) *http.Client {
	return &http.Client{Transport: f}
}

func jsonResponse(t *testing.T, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return rawResponse(http.StatusOK, data)
}

func rawResponse(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}
