package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/quickrupee/loanflow/internal/models"
	"github.com/quickrupee/loanflow/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // access to the underlying client for event handling
	events   chan models.InboundEvent
	done     chan struct{}
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		events: make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}

	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient strips non-digit characters from a phone
// number and validates the result.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("WhatsAppService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start begins background event processing.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")

	if s.waClient != nil {
		go s.handleEvents(ctx)
		slog.Debug("WhatsAppService event handler started")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
	}

	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	close(s.events)
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// SendPrompt renders a prompt to text and sends it.
func (s *WhatsAppService) SendPrompt(ctx context.Context, to string, prompt models.PromptSpec) error {
	if err := prompt.Validate(); err != nil {
		slog.Error("WhatsAppService SendPrompt invalid prompt", "error", err, "to", to)
		return err
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendPrompt validation error", "error", err, "to", to)
		return err
	}
	body := RenderPrompt(prompt)
	slog.Debug("WhatsAppService SendPrompt invoked", "to", canonicalTo, "kind", prompt.Kind, "body_length", len(body))
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendPrompt error", "error", err, "to", canonicalTo)
		return err
	}
	slog.Info("WhatsAppService prompt sent", "to", canonicalTo, "kind", prompt.Kind)
	return nil
}

// Events returns a channel of normalized inbound events.
func (s *WhatsAppService) Events() <-chan models.InboundEvent {
	return s.events
}

// handleEvents registers a whatsmeow event handler and forwards messages
// into the events channel.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	slog.Debug("WhatsAppService handleEvents starting")

	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		default:
			// Ignore receipts, presence and other event types.
		}
	})

	slog.Debug("WhatsAppService event handler registered")

	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// extractInbound pulls the conversational payload out of a raw WhatsApp
// message: plain text, a button or list reply ID, or an image marker.
func extractInbound(msg *waE2E.Message) (text, buttonID string, hasImage bool) {
	if msg == nil {
		return "", "", false
	}
	if id := msg.GetButtonsResponseMessage().GetSelectedButtonID(); id != "" {
		return msg.GetButtonsResponseMessage().GetSelectedDisplayText(), id, false
	}
	if id := msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID(); id != "" {
		return msg.GetListResponseMessage().GetTitle(), id, false
	}
	if id := msg.GetTemplateButtonReplyMessage().GetSelectedID(); id != "" {
		return msg.GetTemplateButtonReplyMessage().GetSelectedDisplayText(), id, false
	}
	if msg.GetImageMessage() != nil {
		return msg.GetImageMessage().GetCaption(), "", true
	}
	if msg.GetConversation() != "" {
		return msg.GetConversation(), "", false
	}
	if t := msg.GetExtendedTextMessage().GetText(); t != "" {
		return t, "", false
	}
	return "", "", false
}

// handleIncomingMessage normalizes one inbound WhatsApp message.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}
	if evt.Info.IsFromMe {
		return
	}

	text, buttonID, hasImage := extractInbound(evt.Message)
	if text == "" && buttonID == "" && !hasImage {
		slog.Debug("WhatsAppService ignoring unsupported message", "from", evt.Info.Sender.String())
		return
	}

	fromNumber := evt.Info.Sender.User
	if !strings.HasPrefix(fromNumber, "+") {
		fromNumber = "+" + fromNumber
	}

	event := models.InboundEvent{
		From:       fromNumber,
		Text:       text,
		ButtonID:   buttonID,
		HasImage:   hasImage,
		ReceivedAt: evt.Info.Timestamp,
	}

	slog.Debug("WhatsAppService processing incoming message", "from", event.From,
		"text_length", len(event.Text), "button_id", event.ButtonID, "has_image", event.HasImage)

	select {
	case s.events <- event:
		slog.Info("WhatsAppService incoming message forwarded", "from", event.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService events channel blocked, dropping message", "from", event.From, "timeout", DefaultChannelTimeout)
	}
}
