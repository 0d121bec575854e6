package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/kbenzarti/botbench/logger"
	"github.com/kbenzarti/botbench/model"
)

// TransportError marks a network-level failure (connection refused, DNS,
// timeout). Callers classify these as ERROR outcomes, as opposed to API-level
// rejections which are APIError.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a well-formed Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s rejected by API (code %d): %s", e.Method, e.Code, e.Description)
}

// IsTransport reports whether err originated below the API layer.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ============================================================================
// WIRE TYPES
// ============================================================================

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// ============================================================================
// CLIENT
// ============================================================================

// Client is a minimal Telegram Bot API client covering what the harness
// needs. Each request is retried on transport failures with linear backoff;
// application-level rejections (ok=false) are returned immediately.
type Client struct {
	cfg        model.Config
	httpClient *http.Client
}

func NewClient(cfg model.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// call issues one Bot API method with retries and returns the raw result
// payload. The envelope is stripped; ok=false becomes an APIError.
func (c *Client) call(ctx context.Context, method string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.cfg.APIBaseURL, "/"), c.cfg.BotToken, method)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		body, err := c.post(ctx, endpoint, params)
		if err == nil {
			return c.unwrap(method, body)
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < c.cfg.MaxRetries {
			delay := c.cfg.RetryDelay * time.Duration(attempt)
			logger.Logger.Warn("API request failed, retrying",
				"method", method, "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &TransportError{Op: method, Err: ctx.Err()}
			}
		}
	}

	return nil, &TransportError{Op: method, Err: lastErr}
}

func (c *Client) post(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

func (c *Client) unwrap(method string, body []byte) ([]byte, error) {
	var env envelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{Op: method, Err: fmt.Errorf("malformed API response: %w", err)}
	}

	if !env.OK {
		return nil, &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	}

	return env.Result, nil
}

// GetMe verifies the token and returns the bot's own identity.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	raw, err := c.call(ctx, "getMe", url.Values{})
	if err != nil {
		return nil, err
	}

	var user User
	if err := sonic.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode getMe result: %w", err)
	}

	return &user, nil
}

// SendMessage sends a text message to the configured test chat and returns
// the sent message.
func (c *Client) SendMessage(ctx context.Context, text string) (*Message, error) {
	params := url.Values{}
	params.Set("chat_id", c.cfg.TestChatID)
	params.Set("text", text)

	raw, err := c.call(ctx, "sendMessage", params)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode sendMessage result: %w", err)
	}

	logger.Logger.Debug("Message sent", "message_id", msg.MessageID, "text", text)
	return &msg, nil
}

// SendCommand sends a slash command. The leading slash is added when missing.
func (c *Client) SendCommand(ctx context.Context, command string) (*Message, error) {
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	return c.SendMessage(ctx, command)
}

// GetUpdates fetches pending updates after the given offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit int) ([]Update, []byte, error) {
	params := url.Values{}
	if offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", offset))
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	raw, err := c.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, nil, err
	}

	var updates []Update
	if err := sonic.Unmarshal(raw, &updates); err != nil {
		return nil, nil, fmt.Errorf("failed to decode getUpdates result: %w", err)
	}

	return updates, raw, nil
}

// GetLatestMessage returns the newest message visible in the update queue,
// along with the raw JSON of that message for path-based assertions. A nil
// message with nil error means the queue is empty.
func (c *Client) GetLatestMessage(ctx context.Context) (*Message, []byte, error) {
	updates, _, err := c.GetUpdates(ctx, 0, 0)
	if err != nil {
		return nil, nil, err
	}

	for i := len(updates) - 1; i >= 0; i-- {
		if updates[i].Message != nil {
			raw, err := sonic.Marshal(updates[i].Message)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to re-encode message: %w", err)
			}
			return updates[i].Message, raw, nil
		}
	}

	return nil, nil, nil
}

// WaitForReply polls the update queue until a message newer than sinceID
// arrives or the deadline passes. The poll interval is fixed at 500ms.
func (c *Client) WaitForReply(ctx context.Context, sinceID int64, timeout time.Duration) (*Message, []byte, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		msg, raw, err := c.GetLatestMessage(ctx)
		if err != nil {
			return nil, nil, err
		}
		if msg != nil && msg.MessageID > sinceID {
			return msg, raw, nil
		}

		if time.Now().After(deadline) {
			return nil, nil, &TransportError{Op: "waitForReply", Err: fmt.Errorf("no reply within %s", timeout)}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, nil, &TransportError{Op: "waitForReply", Err: ctx.Err()}
		}
	}
}
