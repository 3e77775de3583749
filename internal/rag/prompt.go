package rag

import (
	"fmt"

	"github.com/ashureev/hope-map/internal/domain"
)

const persona = "You are an empathetic AI assistant named Hope. Your goal is to respond supportively " +
	"and concisely to users discussing sensitive topics."

// SystemInstruction builds the single system message that opens every prompt.
func SystemInstruction(ctx Context) string {
	if ctx.Summary != nil {
		return fmt.Sprintf("%s\n\nCONTEXT: A relevant story has a sentiment of '%s'. The story summary is: \"%s\". "+
			"Use this context to inform your response, making it specific and empathetic to the general tone "+
			"of the user's inquiry.", persona, ctx.Sentiment, *ctx.Summary)
	}
	return persona + "\n\nRespond based on general knowledge with high empathy."
}

// Assemble returns the message sequence for the model: one system
// instruction, the prior history unchanged, then the new user turn.
func Assemble(ctx Context, prior domain.History, utterance string) []domain.ChatTurn {
	out := make([]domain.ChatTurn, 0, len(prior)+2)
	out = append(out, domain.ChatTurn{Role: domain.RoleSystem, Text: SystemInstruction(ctx)})
	out = append(out, prior...)
	out = append(out, domain.ChatTurn{Role: domain.RoleUser, Text: utterance})
	return out
}
