package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

var errAPIKeyRequired = errors.New("sendgrid api key is required")

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Mailer delivers plain-text transactional email through SendGrid.
type Mailer struct {
	client sendClient
	from   *mail.Email
}

// New builds a SendGrid backed mailer.
func New(cfg config.SendgridConfig) (*Mailer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	return newWithClient(sendgrid.NewSendClient(apiKey), cfg), nil
}

func newWithClient(client sendClient, cfg config.SendgridConfig) *Mailer {
	return &Mailer{
		client: client,
		from:   mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
	}
}

// Send delivers one message. Any non-2xx response is returned as an error.
func (m *Mailer) Send(ctx context.Context, address, subject, body string) error {
	if m == nil || m.client == nil {
		return errors.New("mailer not initialized")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("recipient address is required")
	}
	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", address), body, "")
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp == nil {
		return errors.New("sendgrid returned no response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected message: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
