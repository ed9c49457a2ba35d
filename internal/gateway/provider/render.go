package provider

import (
	"fmt"
	"strings"

	"tradecouncil/internal/logger"
)

const continuePrompt = "Review the positions above and reply with your updated decision as a single JSON object."

// Conversation is a transcript rendered from one provider's point of view.
type Conversation struct {
	System string
	Turns  []Message
}

// RenderFor maps the shared transcript onto a chat conversation for selfID.
// The provider's own earlier answers stay assistant turns; answers from other
// providers become user turns tagged with their id. The rendered conversation
// always ends on a user turn.
func RenderFor(selfID string, transcript []Message) Conversation {
	var conv Conversation
	var system []string
	for _, msg := range transcript {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			system = append(system, content)
		case RoleAssistant:
			if msg.ProviderID == "" || msg.ProviderID == selfID {
				conv.Turns = append(conv.Turns, Message{Role: RoleAssistant, ProviderID: msg.ProviderID, Content: content})
				continue
			}
			conv.Turns = append(conv.Turns, Message{
				Role:       RoleUser,
				ProviderID: msg.ProviderID,
				Content:    fmt.Sprintf("[%s] %s", msg.ProviderID, content),
			})
		default:
			conv.Turns = append(conv.Turns, Message{Role: RoleUser, Content: content})
		}
	}
	conv.System = strings.Join(system, "\n\n")
	if n := len(conv.Turns); n == 0 || conv.Turns[n-1].Role != RoleUser {
		conv.Turns = append(conv.Turns, Message{Role: RoleUser, Content: continuePrompt})
	}
	return conv
}

// MergeUserTurns joins consecutive turns of the same role; some vendors
// reject back-to-back user messages.
func MergeUserTurns(turns []Message) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			out[n-1].Content += "\n\n" + t.Content
			continue
		}
		out = append(out, t)
	}
	return out
}

func logConversation(id, purpose string, conv Conversation, payload string) {
	turns := make([]logger.Turn, 0, len(conv.Turns)+1)
	if conv.System != "" {
		turns = append(turns, logger.Turn{Role: string(RoleSystem), Content: conv.System})
	}
	for _, t := range conv.Turns {
		turns = append(turns, logger.Turn{Role: string(t.Role), Speaker: t.ProviderID, Content: t.Content})
	}
	logger.LogLLMRequest(id, purpose, turns, payload)
}

func maskKey(key string) string {
	if len(key) > 4 {
		return "****" + key[len(key)-4:]
	}
	return "****"
}
