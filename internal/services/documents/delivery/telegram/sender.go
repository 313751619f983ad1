// Package telegram delivers messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/louisbranch/docwatch/internal/services/documents/delivery"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

const defaultClientTimeout = time.Minute

// ErrTokenRequired indicates the bot token is missing.
var ErrTokenRequired = errors.New("telegram bot token is required")

// Sender calls sendMessage for each delivery. It never polls for updates.
type Sender struct {
	bot   *bot.Bot
	token string
}

type options struct {
	baseURL string
	client  *http.Client
}

// Option customizes a Sender.
type Option func(*options)

// WithBaseURL points the sender at another Bot API server.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			o.baseURL = trimmed
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// NewSender builds a Bot API sender for token. It does not contact the API.
func NewSender(token string, opts ...Option) (*Sender, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenRequired
	}
	o := options{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		opt(&o)
	}
	b, err := bot.New(token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(o.baseURL),
		bot.WithHTTPClient(defaultClientTimeout, o.client),
	)
	if err != nil {
		return nil, fmt.Errorf("new telegram bot: %w", redactToken(err, token))
	}
	return &Sender{bot: b, token: token}, nil
}

// Send posts text to chatID. Rejections the Bot API will repeat for the same
// chat (bad request, bot blocked) are marked permanent.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	if s == nil || s.bot == nil {
		return ErrTokenRequired
	}
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err == nil {
		return nil
	}
	err = fmt.Errorf("telegram sendMessage: %w", redactToken(err, s.token))
	if errors.Is(err, bot.ErrorBadRequest) || errors.Is(err, bot.ErrorForbidden) {
		return delivery.Permanent(err)
	}
	return err
}

// redactToken keeps the bot token out of transport errors, which embed the
// request URL.
func redactToken(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), cause: err}
}

type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string { return e.msg }

// Is matches through the original error without exposing its text.
func (e *redactedError) Is(target error) bool {
	return errors.Is(e.cause, target)
}

var _ delivery.Sender = (*Sender)(nil)
