package usecase

import (
	"strings"
	"time"
	"unicode/utf8"

	"programme-qa/internal/domain"
)

const (
	// MaxHistoryTurns is how many prior turns, counted from the start of the
	// supplied history, are considered.
	MaxHistoryTurns = 10
	// MaxHistoryTurnLength drops any history turn longer than this many characters.
	MaxHistoryTurnLength = 10000
)

// PromptInput contains the pieces that feed into the prompt builder.
type PromptInput struct {
	Question    string
	Documents   []domain.Document
	ContextNote string
	History     []domain.HistoryTurn

	// Language selects the reply language. Empty means English.
	Language Language
}

// PromptBuilder builds the chat messages sent to the generation service.
type PromptBuilder interface {
	Build(input PromptInput) []domain.Message
}

var rulesPreamble = []string{
	"You are a helpful assistant answering questions about the IIT Madras BS programme.",
	"",
	"CRITICAL RULES - Follow these STRICTLY:",
	"1. ONLY answer using information from the documents provided below",
	"2. If the documents don't contain the answer, say \"I don't have this information in the available documentation\"",
	"3. NEVER make up facts, dates, numbers, names, or any specific details",
	"4. NEVER answer questions unrelated to the IIT Madras BS programme (e.g., general knowledge, other topics)",
	"5. If unsure, explicitly state your uncertainty",
	"6. Quote or reference specific documents when possible",
	"7. Keep answers CONCISE and in simple Markdown",
	"8. NEVER provide specific salary figures, placement statistics, or guarantees about salary, placement or admission outcomes unless explicitly mentioned in documents",
}

// DocumentPromptBuilder tags every usable document with its filename and
// places it in an assistant message ahead of the conversation.
type DocumentPromptBuilder struct {
	now func() time.Time
}

// NewDocumentPromptBuilder uses now for the date injected into the rules.
// A nil now falls back to time.Now.
func NewDocumentPromptBuilder(now func() time.Time) PromptBuilder {
	if now == nil {
		now = time.Now
	}
	return &DocumentPromptBuilder{now: now}
}

// Build renders the Messages for Chat API.
func (b *DocumentPromptBuilder) Build(input PromptInput) []domain.Message {
	var sys strings.Builder
	sys.WriteString(strings.Join(rulesPreamble, "\n"))
	sys.WriteString("\n\nCurrent date: ")
	sys.WriteString(b.now().UTC().Format(time.DateOnly))
	sys.WriteString(".\n\nThe documents below are your ONLY source of truth. Do not use any other knowledge.")
	if input.Language != "" && input.Language != LanguageEnglish {
		sys.WriteString(" Respond in ")
		sys.WriteString(string(input.Language))
		sys.WriteString(".")
	}
	if input.ContextNote != "" {
		sys.WriteString("\n\n")
		sys.WriteString(input.ContextNote)
	}

	docs := make([]string, 0, len(input.Documents))
	for _, d := range input.Documents {
		var sb strings.Builder
		sb.WriteString(`<document filename="`)
		sb.WriteString(escape(d.Filename))
		sb.WriteString(`">`)
		sb.WriteString(d.RawContent)
		sb.WriteString("</document>")
		docs = append(docs, sb.String())
	}

	history := ValidateHistory(input.History)
	messages := make([]domain.Message, 0, len(history)+3)
	messages = append(messages,
		domain.Message{Role: domain.RoleSystem, Content: sys.String()},
		domain.Message{Role: domain.RoleAssistant, Content: strings.Join(docs, "\n\n")},
	)
	for _, h := range history {
		messages = append(messages, domain.Message{Role: h.Role, Content: h.Content})
	}
	return append(messages, domain.Message{Role: domain.RoleUser, Content: input.Question})
}

// ValidateHistory keeps the first MaxHistoryTurns turns and drops, rather than
// rejects, entries with an unknown role, empty content or oversized content.
func ValidateHistory(turns []domain.HistoryTurn) []domain.HistoryTurn {
	if len(turns) > MaxHistoryTurns {
		turns = turns[:MaxHistoryTurns]
	}
	out := make([]domain.HistoryTurn, 0, len(turns))
	for _, t := range turns {
		if t.Role != domain.RoleUser && t.Role != domain.RoleAssistant {
			continue
		}
		if t.Content == "" || utf8.RuneCountInString(t.Content) > MaxHistoryTurnLength {
			continue
		}
		out = append(out, t)
	}
	return out
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&#39;",
)

func escape(value string) string {
	return attrEscaper.Replace(strings.TrimSpace(value))
}
