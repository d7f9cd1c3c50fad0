package redis

import "strings"

const keyNamespace = "mk"

type keyKind string

const (
	kindIdempotency keyKind = "idempotency"
	kindRateLimit   keyKind = "rate_limit"
	kindWebhook     keyKind = "webhook"
	kindLock        keyKind = "lock"
)

// IdempotencyKey namespaces a cached mutation response by route scope and
// client supplied key.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(kindIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return joinKey(kindRateLimit, scope)
}

// WebhookEventKey marks a provider delivery as processed.
func (c *Client) WebhookEventKey(provider, eventID string) string {
	return joinKey(kindWebhook, provider, eventID)
}

func (c *Client) LockKey(name string) string {
	return joinKey(kindLock, name)
}

// joinKey drops empty segments so optional parts never produce "::".
func joinKey(kind keyKind, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(string(kind))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
