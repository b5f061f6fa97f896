package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nvalerio/portalsync/internal/reliability"
	"github.com/nvalerio/portalsync/internal/session"
)

// StatusError is a non-2xx answer from the progress endpoint. It is still a
// transport-level failure from the poller's point of view, but callers can
// ask whether retrying the channel makes sense.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("progress fetch failed: status %d", e.Code)
}

func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.Code)
}

// HTTPFetcher reads session progress from the service's query endpoint.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (f *HTTPFetcher) FetchProgress(ctx context.Context) (session.Progress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/v1/session/progress", nil)
	if err != nil {
		return session.Progress{}, err
	}
	res, err := f.client.Do(req)
	if err != nil {
		return session.Progress{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return session.Progress{}, &StatusError{Code: res.StatusCode}
	}
	var prog session.Progress
	if err := json.NewDecoder(res.Body).Decode(&prog); err != nil {
		return session.Progress{}, fmt.Errorf("decode progress: %w", err)
	}
	return prog, nil
}
