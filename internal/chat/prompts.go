package chat

import (
	"fmt"

	"github.com/tokligence/tokligence-relay/internal/openai"
)

// SummaryPrompt asks for a markdown summary of a video transcript.
func SummaryPrompt(transcript string) string {
	return fmt.Sprintf(`Provide a concise summary of this YouTube video transcript using markdown formatting:

%s

Required format:
# TLDR
[2-3 sentence overview]

# Key Points
[Main content summary formatted as markdown]

Formatting rules:
- Use bullet points for key points
- Use **bold** for important terms
- Use *italic* for emphasis
- Use > for notable quotes
- Use --- for section breaks
- Use `+"`code`"+` for technical terms
- Use [text](link) for any references

Be direct and concise. Do not use introductory phrases like "Here's a summary" or "Let me summarize".`, transcript)
}

// SummaryMessages wraps SummaryPrompt in a single user message.
func SummaryMessages(transcript string) []openai.ChatMessage {
	return []openai.ChatMessage{{Role: openai.RoleUser, Content: SummaryPrompt(transcript)}}
}

// QuestionMessages builds a follow-up conversation: a system message carrying
// the summary, the prior history, then the question.
func QuestionMessages(question, summary string, history []openai.ChatMessage) []openai.ChatMessage {
	system := openai.ChatMessage{
		Role: openai.RoleSystem,
		Content: fmt.Sprintf(`You are a friendly and helpful AI assistant discussing a YouTube video. Here is the video's summary for context:

%s

If the user asks something that isn't covered in the summary, you can say so while still trying to be helpful based on the context you have. Be direct and concise in your responses.`, summary),
	}
	out := make([]openai.ChatMessage, 0, len(history)+2)
	out = append(out, system)
	out = append(out, history...)
	return append(out, openai.ChatMessage{Role: openai.RoleUser, Content: question})
}
