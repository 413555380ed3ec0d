package llm

import (
	"fmt"
	"strings"
)

// ChatTemplate は役割付きメッセージを単一プロンプトに平坦化し、応答から区切り記号を取り除きます。
type ChatTemplate interface {
	Name() string
	Format(messages []Message) string
	Clean(reply string) string
}

// NewChatTemplate は名前からテンプレートを返します。
func NewChatTemplate(name string) (ChatTemplate, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "llama2", "llama":
		return Llama2Template{}, nil
	case "zephyr", "":
		return ZephyrTemplate{}, nil
	default:
		return nil, fmt.Errorf("未対応のチャットテンプレート: %s", name)
	}
}

// Llama2Template は [INST] / <<SYS>> 形式
//
//	<s>[INST] <<SYS>>
//	{system}
//	<</SYS>>
//
//	{user} [/INST] {assistant} </s><s>[INST] ...
type Llama2Template struct{}

func (Llama2Template) Name() string { return "llama2" }

func (Llama2Template) Format(messages []Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			sb.WriteString("<s>[INST] <<SYS>>\n")
			sb.WriteString(msg.Content)
			sb.WriteString("\n<</SYS>>\n\n")
		case RoleUser:
			if sb.Len() > 0 {
				sb.WriteString(msg.Content + " [/INST] ")
			} else {
				sb.WriteString("[INST] " + msg.Content + " [/INST] ")
			}
		case RoleAssistant:
			sb.WriteString(msg.Content + " </s><s>[INST] ")
		}
	}

	prompt := sb.String()
	if !strings.HasSuffix(prompt, "[INST] ") {
		prompt += "[/INST]"
	}
	return prompt
}

func (Llama2Template) Clean(reply string) string {
	reply, _, _ = strings.Cut(reply, "[INST]")
	if i := strings.LastIndex(reply, "<<SYS>>"); i >= 0 {
		reply = reply[i+len("<<SYS>>"):]
	}
	if i := strings.LastIndex(reply, "<</SYS>>"); i >= 0 {
		reply = reply[i+len("<</SYS>>"):]
	}
	reply = strings.ReplaceAll(reply, "</s>", "")
	reply = strings.ReplaceAll(reply, "<s>", "")
	reply = strings.ReplaceAll(reply, "[/INST]", "")
	return strings.TrimSpace(reply)
}

// ZephyrTemplate は <|system|> / <|user|> / <|assistant|> 形式
type ZephyrTemplate struct{}

func (ZephyrTemplate) Name() string { return "zephyr" }

func (ZephyrTemplate) Format(messages []Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
			sb.WriteString("<|" + msg.Role + "|>\n")
			sb.WriteString(msg.Content)
			sb.WriteString("</s>\n")
		}
	}
	sb.WriteString("<|assistant|>\n")
	return sb.String()
}

func (ZephyrTemplate) Clean(reply string) string {
	if i := strings.LastIndex(reply, "<|assistant|>"); i >= 0 {
		reply = reply[i+len("<|assistant|>"):]
	}
	// 次の役割が生成され始めたらそこで打ち切る
	for _, marker := range []string{"<|user|>", "<|system|>"} {
		reply, _, _ = strings.Cut(reply, marker)
	}
	reply = strings.ReplaceAll(reply, "</s>", "")
	reply = strings.ReplaceAll(reply, "<s>", "")
	return strings.TrimSpace(reply)
}
