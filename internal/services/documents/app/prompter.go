package app

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/docwatch/internal/platform/timeouts"
	"github.com/louisbranch/docwatch/internal/services/documents/delivery"
	"github.com/louisbranch/docwatch/internal/services/documents/domain"
)

// travelPromptRenderer renders the travel question in a holder's language.
type travelPromptRenderer interface {
	TravelPrompt(lang, typeCode, documentName string) string
}

// travelPrompter sends the post-extension travel question through the
// reminder delivery channel.
type travelPrompter struct {
	renderer travelPromptRenderer
	sender   delivery.Sender
	timeout  time.Duration
}

func newTravelPrompter(renderer travelPromptRenderer, sender delivery.Sender) *travelPrompter {
	return &travelPrompter{renderer: renderer, sender: sender, timeout: timeouts.Delivery}
}

func (p *travelPrompter) PromptTravelConfirmation(ctx context.Context, holder domain.Holder, doc domain.Instance) error {
	if p == nil || p.renderer == nil || p.sender == nil {
		return fmt.Errorf("travel prompter is not configured")
	}
	if holder.ChatID == 0 {
		return fmt.Errorf("holder %s has no chat", holder.ID)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	text := p.renderer.TravelPrompt(holder.Language, doc.TypeCode, "")
	if err := p.sender.Send(ctx, holder.ChatID, text); err != nil {
		return fmt.Errorf("send travel prompt for %s: %w", doc.ID, err)
	}
	return nil
}
