// Package chat carries conversations about a word between the reader and a
// language model. The server side streams model output as "data: " lines;
// the client side posts a request and hands back the raw stream.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DataPrefix starts every payload line of a chat stream.
const DataPrefix = "data: "

// Message is one entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of a chat call. History holds the conversation so far,
// not including Message.
type Request struct {
	Message string    `json:"message"`
	History []Message `json:"conversation_history"`
	Model   string    `json:"model,omitempty"`
}

var (
	// ErrStatus is returned when the backend answers with a non-2xx status.
	ErrStatus = errors.New("chat backend returned an error status")
	// ErrUnknownWord is returned when a word has no corpus occurrences.
	ErrUnknownWord = errors.New("word not found")
)

// Client posts chat requests to a chat server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the server at baseURL. The HTTP client has
// no overall timeout; streams are bounded by the caller's context.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{}}
}

// Stream posts req for word and returns the response body. The caller must
// close it.
func (c *Client) Stream(ctx context.Context, word string, req Request) (io.ReadCloser, error) {
	endpoint := c.BaseURL + "/chat/word/" + url.PathEscape(word)
	return c.post(ctx, endpoint, req)
}

// StreamPlain posts a message without word context.
func (c *Client) StreamPlain(ctx context.Context, req Request) (io.ReadCloser, error) {
	return c.post(ctx, c.BaseURL+"/chat/stream", req)
}

func (c *Client) post(ctx context.Context, endpoint string, req Request) (io.ReadCloser, error) {
	if req.History == nil {
		req.History = []Message{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}
	return resp.Body, nil
}
