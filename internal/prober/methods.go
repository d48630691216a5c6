package prober

import (
	"context"
	"io"
	"net/http"
	"strings"

	"PingTower/internal/scheduler/models"
)

const defaultContentType = "application/json"

// requestBuilder turns a probe request into an *http.Request for one method family.
type requestBuilder func(ctx context.Context, method string, req models.ProbeRequest) (*http.Request, error)

var builders = map[string]requestBuilder{
	http.MethodGet:     withoutBody,
	http.MethodHead:    withoutBody,
	http.MethodDelete:  withoutBody,
	http.MethodOptions: withoutBody,
	http.MethodPost:    withBody,
	http.MethodPut:     withBody,
	http.MethodPatch:   withBody,
}

// buildRequest picks the strategy for req.Method, falling back to GET for unknown methods.
func buildRequest(ctx context.Context, req models.ProbeRequest) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	build, ok := builders[method]
	if !ok {
		method = http.MethodGet
		build = withoutBody
	}

	httpReq, err := build(ctx, method, req)
	if err != nil {
		return nil, err
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

func withoutBody(ctx context.Context, method string, req models.ProbeRequest) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, req.URL, nil)
}

func withBody(ctx context.Context, method string, req models.ProbeRequest) (*http.Request, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	httpReq.Header.Set("Content-Type", contentType)

	return httpReq, nil
}
