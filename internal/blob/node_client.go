package blob

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

// NodeClient talks to a storage node's HTTP API for writes (and direct
// reads when a node is available). Reads through public gateways are the
// retrieval engine's job, not this client's.
type NodeClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewNodeClient creates a client for the node API at baseURL. The token is
// the caller's bearer credential from the identity provider.
func NewNodeClient(baseURL, token string) *NodeClient {
	return &NodeClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// addResponse is the node API's answer to an add request.
type addResponse struct {
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Put uploads data to the node and returns the content id it assigned.
func (n *NodeClient) Put(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "blob")
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/api/v0/add", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	n.authorize(req)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", faults.Wrap(faults.StorageNetwork, "upload to storage node", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", n.statusError(resp, "upload")
	}

	var result addResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode add response: %w", err)
	}
	if result.Hash == "" {
		return "", faults.New(faults.StorageNetwork, "", "storage node returned no content id")
	}
	return result.Hash, nil
}

// Get fetches a blob directly from the node.
func (n *NodeClient) Get(ctx context.Context, contentID string) ([]byte, error) {
	hash := cid.Normalize(contentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/api/v0/cat?arg="+hash, nil)
	if err != nil {
		return nil, err
	}
	n.authorize(req)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.StorageNetwork, "fetch from storage node", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, n.statusError(resp, "fetch")
	}
	return io.ReadAll(resp.Body)
}

// Has checks a blob's existence via the node's stat endpoint.
func (n *NodeClient) Has(ctx context.Context, contentID string) (bool, error) {
	hash := cid.Normalize(contentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, n.baseURL+"/api/v0/stat?arg="+hash, nil)
	if err != nil {
		return false, err
	}
	n.authorize(req)

	resp, err := n.client.Do(req)
	if err != nil {
		return false, faults.Wrap(faults.StorageNetwork, "stat on storage node", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, n.statusError(resp, "stat")
	}
}

func (n *NodeClient) authorize(req *http.Request) {
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
}

func (n *NodeClient) statusError(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return faults.New(faults.StorageNetwork, "",
		fmt.Sprintf("%s failed: storage node returned %d: %s", op, resp.StatusCode, bytes.TrimSpace(body)))
}
