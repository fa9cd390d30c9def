package ai

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
	"github.com/wenhua-ai/xiaowen/backend/internal/model/persona"
)

// BuildSystemPrompt renders the fixed system instruction for the assistant persona.
func BuildSystemPrompt(p persona.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你是%s公司的%s%s，请以%s的态度回答用户问题。", p.Company, p.Title, p.Name, p.Tone)

	if focus := joinEnumeration(p.Focus); focus != "" {
		fmt.Fprintf(&b, "回答要简洁明了，专注于提供%s。", focus)
	} else {
		b.WriteString("回答要简洁明了。")
	}

	if p.Hotline != "" {
		fmt.Fprintf(&b, "如果用户咨询购买问题，请明确提供%s方便用户转人工服务。", p.Hotline)
	}

	b.WriteString("保持上下文逻辑关联，确保回答准确、专业。")

	for _, rule := range p.Rules {
		b.WriteString(rule)
	}
	return b.String()
}

// joinEnumeration joins items the way Chinese lists read: 甲、乙和丙.
func joinEnumeration(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], "、") + "和" + items[len(items)-1]
	}
}

// buildHistoryMessages converts the whole transcript, oldest first.
func buildHistoryMessages(turns []chat.ChatTurn) []*schema.Message {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(turn.Message))
		case chat.SenderAI:
			history = append(history, schema.AssistantMessage(turn.Message, nil))
		}
	}
	return history
}
