package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Push is one outbound notification.
type Push struct {
	Title    string
	Message  string
	Priority int
	Group    string
}

// Pusher delivers a push to the provider. Implementations must honour ctx.
type Pusher interface {
	Push(ctx context.Context, p Push) error
}

// ProviderError is returned when the endpoint answered but reported failure.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("push provider failure: status %d: %s", e.StatusCode, e.Body)
}

// AlertzyClient posts pushes to the relay that fronts the Alertzy API.
// The account key is attached by the relay, never here.
type AlertzyClient struct {
	client   *resty.Client
	endpoint string
}

type pushRequest struct {
	Title    string `json:"title,omitempty"`
	Message  string `json:"message,omitempty"`
	Priority int    `json:"priority"`
	Group    string `json:"group,omitempty"`
}

// providerReply covers both the relay's {ok:false} and Alertzy's {response:"fail"}.
type providerReply struct {
	OK       *bool  `json:"ok"`
	Response string `json:"response"`
}

// NewAlertzyClient creates a client for the push endpoint
func NewAlertzyClient(endpoint string, timeout time.Duration) *AlertzyClient {
	return &AlertzyClient{
		client:   resty.New().SetTimeout(timeout),
		endpoint: endpoint,
	}
}

// Push sends p to the endpoint
func (c *AlertzyClient) Push(ctx context.Context, p Push) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(pushRequest{
			Title:    p.Title,
			Message:  p.Message,
			Priority: p.Priority,
			Group:    p.Group,
		}).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("send push request: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return &ProviderError{StatusCode: status, Body: resp.String()}
	}

	var reply providerReply
	if err := json.Unmarshal(resp.Body(), &reply); err != nil {
		// Non-JSON 2xx bodies count as success.
		return nil
	}
	if (reply.OK != nil && !*reply.OK) || reply.Response == "fail" {
		return &ProviderError{StatusCode: status, Body: resp.String()}
	}
	return nil
}
