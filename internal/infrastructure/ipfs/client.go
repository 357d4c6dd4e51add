// Package ipfs is a thin client for the content-addressed object store that
// holds off-chain marketplace metadata (accept terms, verification records,
// user profiles).
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client talks to an IPFS HTTP API endpoint
type Client struct {
	gateway string
	http    *http.Client
}

// NewClient creates a client for the given API gateway URL
func NewClient(gateway string) *Client {
	return &Client{
		gateway: gateway,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// GetObject fetches a JSON object by content hash
func (c *Client) GetObject(ctx context.Context, hash string, dest interface{}) error {
	url := fmt.Sprintf("%s/api/v0/cat?arg=%s", c.gateway, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfs cat %s: status %d", hash, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

// PutObject stores a JSON object and returns its content hash
func (c *Client) PutObject(ctx context.Context, obj interface{}) (string, error) {
	payload, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "object.json")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(payload); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/api/v0/add", c.gateway)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipfs add: status %d", resp.StatusCode)
	}

	var result struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Hash == "" {
		return "", fmt.Errorf("ipfs add: empty hash in response")
	}
	return result.Hash, nil
}
