package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/oriys/fncore/internal/domain"
)

// HTTPFetcher implements Fetcher against an upstream loader service
// reachable over HTTP, using the URI conventions from spec §6:
// /functions/{id}, /execute/{id}, /connect/{id}, /scheduled/{id},
// /queue/{id}.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher constructs an HTTPFetcher. A nil client defaults to
// http.DefaultClient.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{BaseURL: baseURL, Client: client}
}

func (f *HTTPFetcher) Metadata(ctx context.Context, functionID string) (Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/functions/"+functionID, nil)
	if err != nil {
		return Metadata{}, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Metadata{}, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Metadata{}, &StatusError{StatusCode: resp.StatusCode}
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, functionID string, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	return f.proxy(ctx, "/execute/"+functionID, req)
}

func (f *HTTPFetcher) Connect(ctx context.Context, functionID string, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	return f.proxy(ctx, "/connect/"+functionID, req)
}

func (f *HTTPFetcher) Scheduled(ctx context.Context, functionID string) (*domain.ExecutionResult, error) {
	result, _, err := f.proxy(ctx, "/scheduled/"+functionID, domain.Request{Method: http.MethodPost})
	return result, err
}

func (f *HTTPFetcher) Queue(ctx context.Context, functionID string, messages json.RawMessage) (*domain.ExecutionResult, error) {
	result, _, err := f.proxy(ctx, "/queue/"+functionID, domain.Request{Method: http.MethodPost, Body: messages})
	return result, err
}

type proxyResponse struct {
	Result         domain.ExecutionResult `json:"result"`
	domain.Response `json:"response"`
}

func (f *HTTPFetcher) proxy(ctx context.Context, path string, in domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	body := bytes.NewReader(in.Body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+path, body)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &StatusError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	var wire proxyResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, nil, fmt.Errorf("decode proxy response: %w", err)
	}
	result := wire.Result
	response := wire.Response
	return &result, &response, nil
}
