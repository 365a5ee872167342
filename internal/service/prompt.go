package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/katakuxiko/finqa/internal/model"
)

// AssembleContext склеивает найденные чанки в один текст для промпта.
// Каждый блок помечен номером источника, страницей и метаданными.
func AssembleContext(chunks []model.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, sc := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Source %d (page %d)", i+1, sc.Chunk.Page)
		if len(sc.Chunk.Metadata) > 0 {
			if meta, err := json.Marshal(sc.Chunk.Metadata); err == nil {
				b.WriteString(" ")
				b.Write(meta)
			}
		}
		b.WriteString(":\n")
		b.WriteString(sc.Chunk.Text)
	}
	return b.String()
}

// ToDialogue переводит сохранённые реплики в сообщения для модели.
// Реплики с неизвестной ролью пропускаются.
func ToDialogue(turns []model.ConversationTurn) []model.DialogueMessage {
	out := make([]model.DialogueMessage, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case model.RoleUser:
			out = append(out, model.DialogueMessage{Speaker: model.SpeakerHuman, Content: t.Content})
		case model.RoleAssistant:
			out = append(out, model.DialogueMessage{Speaker: model.SpeakerModel, Content: t.Content})
		}
	}
	return out
}

const instructions = `You are a helpful AI assistant that answers questions about financial statements.
Answer only from the context below. Cite the sources you used by number, e.g. [Source 2].
Format figures and lists as bullet points where it helps readability.
If the context is empty or does not contain the answer, say that you don't know.`

func systemPrompt(contextText string) string {
	if contextText == "" {
		contextText = "(no relevant context found)"
	}
	return instructions + "\n\nContext:\n" + contextText
}
