package model

import "time"

// Схемы HTTP запросов и ответов.

type ChatRequest struct {
	ConversationToken string `json:"conversation_token"`
	Question          string `json:"question"`
}

type ChatResponse struct {
	Answer            string    `json:"answer"`
	Sources           []Source  `json:"sources"`
	ProcessingTime    float64   `json:"processing_time"`
	ConversationToken string    `json:"conversation_token"`
	CreatedAt         time.Time `json:"created_at"`
}

type UploadResponse struct {
	Message        string  `json:"message"`
	Filename       string  `json:"filename"`
	ChunksCount    int     `json:"chunks_count"`
	ProcessingTime float64 `json:"processing_time"`
}

type DocumentsResponse struct {
	Documents []DocumentInfo `json:"documents"`
}

type ChunksResponse struct {
	Chunks     []ChunkInfo `json:"chunks"`
	TotalCount int         `json:"total_count"`
}

type ClearResponse struct {
	Message       string `json:"message"`
	DeletedFiles  int    `json:"deleted_files"`
	ClearedChunks bool   `json:"cleared_chunks"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
