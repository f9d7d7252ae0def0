package messaging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quickrupee/loanflow/internal/models"
)

// RenderPrompt converts a prompt spec into plain WhatsApp-compatible text.
// Choice options become a numbered list so users on channels without native
// buttons can reply with the option number.
func RenderPrompt(p models.PromptSpec) string {
	if p.Kind != models.PromptChoice || len(p.Options) == 0 {
		return p.Body
	}
	var b strings.Builder
	b.WriteString(p.Body)
	for i, opt := range p.Options {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, opt.Label))
	}
	return b.String()
}

// ResolveOptionID maps a user reply to an option ID from the given prompt.
// Accepted forms, in order: a native button ID, the option number from the
// rendered list, an exact label match, and the option ID typed as text.
// Returns "" when nothing matches.
func ResolveOptionID(p models.PromptSpec, ev models.InboundEvent) string {
	if len(p.Options) == 0 {
		return ""
	}
	if ev.ButtonID != "" {
		for _, opt := range p.Options {
			if opt.ID == ev.ButtonID {
				return opt.ID
			}
		}
		return ""
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return ""
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(text, ".")); err == nil {
		if n >= 1 && n <= len(p.Options) {
			return p.Options[n-1].ID
		}
		return ""
	}
	lower := strings.ToLower(text)
	for _, opt := range p.Options {
		if strings.ToLower(opt.Label) == lower || strings.EqualFold(opt.ID, text) {
			return opt.ID
		}
	}
	return ""
}
