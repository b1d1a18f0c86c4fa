package llm

import (
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const toolRegistryVar = "{{TOOL_REGISTRY}}"

// DefaultSystemPrompt is used when no template file is configured or the
// configured file cannot be read.
const DefaultSystemPrompt = `You are Friday, a research assistant that answers questions about an indexed document collection.

Structure every reply with these tags:
<thinking>your private reasoning</thinking>
<tool_NAME>...</tool_NAME> to call a tool (as many as needed)
<present_answer>the answer shown to the user</present_answer>

Rules:
- Call tools before answering when the answer depends on the documents.
- Never nest tags other than tool parameters.
- Close every tag you open.
- Cite document ids from tool results in the answer.

## Tools

{{TOOL_REGISTRY}}
`

// BuildSystemPrompt loads the template at templatePath and substitutes the
// tool registry description. An empty path or an unreadable file falls back
// to DefaultSystemPrompt.
func BuildSystemPrompt(templatePath, toolRegistry string) string {
	template := DefaultSystemPrompt
	if templatePath != "" {
		if raw, err := os.ReadFile(templatePath); err == nil {
			template = string(raw)
		}
	}
	return strings.ReplaceAll(template, toolRegistryVar, toolRegistry)
}

// PromptMessages splits an assembled prompt into a system message and a user
// message carrying the rest. prompt must start with systemPrompt.
func PromptMessages(systemPrompt, prompt string) []Message {
	body := strings.TrimPrefix(prompt, systemPrompt)
	return []Message{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: strings.TrimLeft(body, "\n")},
	}
}
