package pin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hashdrive/hashdrive/internal/cid"
	"github.com/hashdrive/hashdrive/internal/faults"
)

// HTTPProvider pins content through a remote pinning service's HTTP API,
// authenticating every request with a key/secret header pair.
type HTTPProvider struct {
	name    string
	baseURL string
	key     string
	secret  string
	client  *http.Client
}

// NewHTTPProvider creates a provider for the service at baseURL. Missing
// credentials are a configuration error, not something to retry.
func NewHTTPProvider(name, baseURL, key, secret string) (*HTTPProvider, error) {
	if key == "" || secret == "" {
		return nil, faults.New(faults.Validation, "invalid_credentials",
			fmt.Sprintf("pinning provider %q requires an API key and secret", name))
	}
	return &HTTPProvider{
		name:    name,
		baseURL: baseURL,
		key:     key,
		secret:  secret,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Name implements Provider.
func (p *HTTPProvider) Name() string { return p.name }

// pinResponse is the provider's wire answer for pin requests.
type pinResponse struct {
	Success   bool   `json:"success"`
	Hash      string `json:"hash"`
	SizeBytes int64  `json:"sizeBytes"`
	Timestamp int64  `json:"timestamp"` // epoch-ms
	Error     string `json:"error"`
}

// statusResponse is the provider's wire answer for status requests.
type statusResponse struct {
	IsPinned  bool   `json:"isPinned"`
	PinnedAt  int64  `json:"pinnedAt"` // epoch-ms, 0 when unknown
	SizeBytes int64  `json:"sizeBytes"`
	Error     string `json:"error"`
}

// PinFile uploads and pins raw content in one multipart request.
func (p *HTTPProvider) PinFile(ctx context.Context, data []byte, meta Metadata) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", meta.Name)
	if err != nil {
		return nil, fmt.Errorf("build pin-file body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("build pin-file body: %w", err)
	}
	if metaJSON, err := json.Marshal(meta); err == nil {
		_ = mw.WriteField("metadata", string(metaJSON))
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build pin-file body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pin-file", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return p.doPin(req)
}

// PinByHash asks the provider to pin content it can already reach.
func (p *HTTPProvider) PinByHash(ctx context.Context, contentID string, meta Metadata) (*Result, error) {
	payload, err := json.Marshal(struct {
		Hash     string   `json:"hash"`
		Metadata Metadata `json:"metadata"`
	}{Hash: cid.Normalize(contentID), Metadata: meta})
	if err != nil {
		return nil, fmt.Errorf("build pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pins", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return p.doPin(req)
}

// Unpin releases a pinned hash.
func (p *HTTPProvider) Unpin(ctx context.Context, contentID string) (*UnpinResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/unpin/"+cid.Normalize(contentID), nil)
	if err != nil {
		return nil, err
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.Pinning, "unpin request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var wire pinResponse
	if err := p.decode(resp, &wire); err != nil {
		return nil, err
	}
	return &UnpinResult{Success: wire.Success, Error: wire.Error}, nil
}

// Status reports whether a hash is pinned with this provider.
func (p *HTTPProvider) Status(ctx context.Context, contentID string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/pin-status?hash="+cid.Normalize(contentID), nil)
	if err != nil {
		return nil, err
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.Pinning, "pin status request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var wire statusResponse
	if err := p.decode(resp, &wire); err != nil {
		return nil, err
	}

	s := &Status{IsPinned: wire.IsPinned, SizeBytes: wire.SizeBytes, Provider: p.name}
	if wire.PinnedAt > 0 {
		at := time.UnixMilli(wire.PinnedAt)
		s.PinnedAt = &at
	}
	return s, nil
}

// doPin sends an authorized pin request and maps the wire response.
func (p *HTTPProvider) doPin(req *http.Request) (*Result, error) {
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.Pinning, "pin request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var wire pinResponse
	if err := p.decode(resp, &wire); err != nil {
		return nil, err
	}

	r := &Result{
		Success:   wire.Success,
		ContentID: wire.Hash,
		SizeBytes: wire.SizeBytes,
		Error:     wire.Error,
	}
	if wire.Timestamp > 0 {
		r.PinnedAt = time.UnixMilli(wire.Timestamp)
	} else if wire.Success {
		r.PinnedAt = time.Now()
	}
	return r, nil
}

// decode maps a provider response, folding HTTP-level failures into the
// uniform error shape.
func (p *HTTPProvider) decode(resp *http.Response, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return faults.Wrap(faults.Pinning, "read provider response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return faults.New(faults.Auth, "invalid_credentials",
			fmt.Sprintf("pinning provider %q rejected credentials", p.name))
	}
	if resp.StatusCode >= 400 {
		// Prefer the provider's own error text when it sent any.
		var wire struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &wire) == nil && wire.Error != "" {
			return faults.New(faults.Pinning, "", fmt.Sprintf("provider %s: %s", p.name, wire.Error))
		}
		return faults.New(faults.Pinning, "", fmt.Sprintf("provider %s returned %d", p.name, resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return faults.Wrap(faults.Pinning, "decode provider response", err)
	}
	return nil
}

func (p *HTTPProvider) authorize(req *http.Request) {
	req.Header.Set("X-API-Key", p.key)
	req.Header.Set("X-API-Secret", p.secret)
}
