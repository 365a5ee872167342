package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/katakuxiko/finqa/internal/config"
	"github.com/katakuxiko/finqa/internal/model"
	"github.com/sashabaranov/go-openai"
)

// LLMClient — клиент для OpenAI совместимых моделей (OpenAI, LM Studio)
type LLMClient struct {
	client      *openai.Client
	embedName   string
	chatName    string
	temperature float32
	maxTokens   int
}

// NewLLMClient создаёт новый клиент с настройками из config
func NewLLMClient(cfg *config.Config) *LLMClient {
	key := cfg.OpenAIKey
	if key == "" {
		key = "not-needed"
	}
	oaiCfg := openai.DefaultConfig(key)
	oaiCfg.BaseURL = cfg.LMBaseURL

	return &LLMClient{
		client:      openai.NewClientWithConfig(oaiCfg),
		embedName:   cfg.EmbedModel,
		chatName:    cfg.ChatModel,
		temperature: cfg.LLMTemperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// EmbedModel — имя модели эмбеддингов, нужно для ключей кэша
func (l *LLMClient) EmbedModel() string { return l.embedName }

// Embed получает эмбеддинги пачкой, в порядке входных текстов
func (l *LLMClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := l.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(l.embedName),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

// Complete отправляет диалог модели и возвращает текст первого варианта
func (l *LLMClient) Complete(ctx context.Context, msgs []model.DialogueMessage) (string, error) {
	return l.complete(ctx, openai.ChatCompletionRequest{
		Model:       l.chatName,
		Messages:    toOpenAI(msgs),
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	})
}

// Name придумывает короткое название беседы по первому вопросу и ответу
func (l *LLMClient) Name(ctx context.Context, question, answer string) (string, error) {
	system := "Generate a concise and relevant conversation name for the given question. " +
		"Start the response with an emoji or a relevant symbol. " +
		"Here's the answer to the question:\n" + answer
	return l.complete(ctx, openai.ChatCompletionRequest{
		Model: l.chatName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		Temperature: 0.9,
		MaxTokens:   20,
	})
}

func (l *LLMClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM вернул пустой ответ")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ListModels возвращает список моделей провайдера
func (l *LLMClient) ListModels(ctx context.Context) ([]openai.Model, error) {
	resp, err := l.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Models, nil
}

func toOpenAI(msgs []model.DialogueMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		var role string
		switch m.Speaker {
		case model.SpeakerSystem:
			role = openai.ChatMessageRoleSystem
		case model.SpeakerHuman:
			role = openai.ChatMessageRoleUser
		case model.SpeakerModel:
			role = openai.ChatMessageRoleAssistant
		default:
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
