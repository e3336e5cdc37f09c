package chatclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// Conversation is the wire representation returned by the server.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type mutationPayload struct {
	ChatID  string `json:"chat_id"`
	Applied bool   `json:"applied"`
}

type chatPayload struct {
	ChatID string  `json:"chat_id"`
	Reply  Message `json:"reply"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

type listEnvelope[T any] struct {
	Total int64 `json:"total"`
	Data  []T   `json:"data"`
}

// APIError is a typed failure returned by the server.
type APIError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"error"`
	RequestID string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client talks to the conversation API over HTTP.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.http.SetAuthToken(token)
	}
}

// WithTimeout bounds each request round trip.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// WithLogger attaches a logger for request debugging.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log.With().Str("component", "chat-client").Logger()
	}
}

// New creates a conversation API client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")

	c := &Client{
		http: httpClient,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases transport resources.
func (c *Client) Close() error {
	return c.http.Close()
}

func apiErrorFrom(res *resty.Response) error {
	apiErr, ok := res.Error().(*APIError)
	if !ok || apiErr == nil {
		return &APIError{Status: res.StatusCode(), Message: strings.TrimSpace(res.String())}
	}
	apiErr.Status = res.StatusCode()
	return apiErr
}

// CreateConversation starts a new empty conversation.
func (c *Client) CreateConversation(ctx context.Context) (*Conversation, error) {
	var env dataEnvelope[Conversation]
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&APIError{}).
		Post("/v1/conversations")
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if !res.IsSuccess() {
		return nil, apiErrorFrom(res)
	}
	return &env.Data, nil
}

// ListConversations fetches every conversation owned by the caller.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var env listEnvelope[Conversation]
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&APIError{}).
		Get("/v1/conversations")
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if !res.IsSuccess() {
		return nil, apiErrorFrom(res)
	}
	return env.Data, nil
}

// RenameConversation changes a conversation title. The returned flag reports
// whether the rename actually touched a record.
func (c *Client) RenameConversation(ctx context.Context, chatID, name string) (bool, error) {
	var env dataEnvelope[mutationPayload]
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": chatID, "name": name}).
		SetResult(&env).
		SetError(&APIError{}).
		Post("/v1/conversations/rename")
	if err != nil {
		return false, fmt.Errorf("rename conversation: %w", err)
	}
	if !res.IsSuccess() {
		return false, apiErrorFrom(res)
	}
	return env.Data.Applied, nil
}

// DeleteConversation removes a conversation. The returned flag reports
// whether the delete actually touched a record.
func (c *Client) DeleteConversation(ctx context.Context, chatID string) (bool, error) {
	var env dataEnvelope[mutationPayload]
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": chatID}).
		SetResult(&env).
		SetError(&APIError{}).
		Post("/v1/conversations/delete")
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	if !res.IsSuccess() {
		return false, apiErrorFrom(res)
	}
	return env.Data.Applied, nil
}

// SendMessage appends the prompt to the conversation and returns the
// assistant reply once the completion finishes. There is no client-side
// timeout or retry beyond the transport defaults.
func (c *Client) SendMessage(ctx context.Context, chatID, prompt string) (*Message, error) {
	var env dataEnvelope[chatPayload]
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": chatID, "prompt": prompt}).
		SetResult(&env).
		SetError(&APIError{}).
		Post("/v1/chat")
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if !res.IsSuccess() {
		return nil, apiErrorFrom(res)
	}
	return &env.Data.Reply, nil
}
