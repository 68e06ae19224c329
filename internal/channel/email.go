package channel

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"eventRelay/internal/model"
)

// Email posts a message to an HTTP mail relay.
type Email struct {
	client   *resty.Client
	endpoint string
	apiKey   string
	from     string
}

func NewEmail(client *resty.Client, endpoint, apiKey, from string) *Email {
	if client == nil {
		client = newClient()
	}
	return &Email{client: client, endpoint: endpoint, apiKey: apiKey, from: from}
}

func (e *Email) Send(ctx context.Context, cfg model.ChannelConfig, n model.Notification) error {
	if e.endpoint == "" {
		return fmt.Errorf("%w: email endpoint missing", ErrNotConfigured)
	}
	address, err := requireSetting(cfg, "address")
	if err != nil {
		return err
	}
	req := e.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"from":    e.from,
			"to":      address,
			"subject": n.Title,
			"text":    n.Message,
		})
	if e.apiKey != "" {
		req.SetAuthToken(e.apiKey)
	}
	resp, err := req.Post(e.endpoint)
	return checkResponse("email", resp, err)
}
