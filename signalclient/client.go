// Package signalclient implements the outbound HTTP calls to the Signal
// gateway: sending a message and toggling the typing indicator (spec
// §4.4).
package signalclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client performs the gateway's three outbound operations for a single
// registered account, sharing one *http.Client for connection pooling —
// the same texture as the teacher's signal-outbound.go.
type Client struct {
	httpClient *http.Client
	gateway    string
	account    string
}

// New builds a Client against gateway (host:port, no scheme) for
// account.
func New(gateway, account string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		gateway:    gateway,
		account:    account,
	}
}

type sendRequest struct {
	Message    string   `json:"message"`
	Number     string   `json:"number"`
	Recipients []string `json:"recipients"`
}

// SendResult carries the gateway's response to a SendMessage call.
type SendResult struct {
	Timestamp int64
}

// SendMessage posts message to recipient (a resolved group public id or
// a bare sender identifier), per spec §4.4's /v2/send contract.
func (c *Client) SendMessage(message, recipient string) (*SendResult, error) {
	body := sendRequest{
		Message:    message,
		Number:     c.account,
		Recipients: []string{recipient},
	}

	var raw json.RawMessage
	if err := c.do(http.MethodPost, "/v2/send", body, &raw); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	return parseSendResult(raw)
}

// parseSendResult extracts the response timestamp, tolerating the
// gateway returning it as either a JSON number or a JSON string.
func parseSendResult(raw json.RawMessage) (*SendResult, error) {
	var loose struct {
		Timestamp json.Number `json:"timestamp"`
	}
	if len(raw) == 0 {
		return &SendResult{}, nil
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("parse send response: %w", err)
	}
	ts, _ := loose.Timestamp.Int64()
	return &SendResult{Timestamp: ts}, nil
}

type recipientRequest struct {
	Recipient string `json:"recipient"`
}

// IndicateTyping turns the typing indicator on for recipient.
func (c *Client) IndicateTyping(recipient string) error {
	path := fmt.Sprintf("/v1/typing-indicator/%s", c.account)
	if err := c.do(http.MethodPut, path, recipientRequest{Recipient: recipient}, nil); err != nil {
		return fmt.Errorf("indicate typing: %w", err)
	}
	return nil
}

// HideIndicator turns the typing indicator off for recipient.
func (c *Client) HideIndicator(recipient string) error {
	path := fmt.Sprintf("/v1/typing-indicator/%s", c.account)
	if err := c.do(http.MethodDelete, path, recipientRequest{Recipient: recipient}, nil); err != nil {
		return fmt.Errorf("hide indicator: %w", err)
	}
	return nil
}

// do issues an HTTP request with a JSON body against the gateway and
// decodes a JSON response into out, if out is non-nil. A non-2xx
// response is returned as an error carrying the status and body.
func (c *Client) do(method, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", c.gateway, path)
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
