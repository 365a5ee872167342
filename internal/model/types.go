package model

import "time"

// Chunk — кусок текста документа с источником и страницей.
type Chunk struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	SourceID  string         `json:"source"`
	Page      int            `json:"page"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Seq       int64          `json:"-"`
	CreatedAt time.Time      `json:"-"`
}

// ScoredChunk — результат поиска; меньше Distance значит ближе.
type ScoredChunk struct {
	Chunk    Chunk
	Distance float64
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn — сохранённая реплика беседы.
type ConversationTurn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

type Speaker string

const (
	SpeakerSystem Speaker = "system"
	SpeakerHuman  Speaker = "human"
	SpeakerModel  Speaker = "model"
)

// DialogueMessage — сообщение в том виде, в каком его получает модель.
type DialogueMessage struct {
	Speaker Speaker
	Content string
}

type Source struct {
	Content  string         `json:"content"`
	Page     int            `json:"page"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// AnswerResult — результат пайплайна ответа.
type AnswerResult struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	ProcessingTime float64  `json:"processing_time"`
}

type DocumentInfo struct {
	Filename   string    `json:"filename"`
	UploadDate time.Time `json:"upload_date"`
	ChunkCount int       `json:"chunks_count"`
	Status     string    `json:"status"`
}

type ChunkInfo struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Page     int            `json:"page"`
	Metadata map[string]any `json:"metadata"`
}

type Message struct {
	ID                int64     `json:"id"`
	ConversationToken string    `json:"conversation_token"`
	Role              Role      `json:"role"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"created_at"`
}

type Conversation struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Turns возвращает сообщения беседы как реплики, старые первыми.
func (c *Conversation) Turns() []ConversationTurn {
	turns := make([]ConversationTurn, 0, len(c.Messages))
	for _, m := range c.Messages {
		turns = append(turns, ConversationTurn{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return turns
}

type UploadResult struct {
	Filename       string
	ChunkCount     int
	ProcessingTime float64
}

type ClearResult struct {
	DeletedFiles  int
	ClearedChunks bool
}

// ChatResult — ответ пайплайна плюс данные беседы.
type ChatResult struct {
	AnswerResult
	ConversationToken string
	CreatedAt         time.Time
}
