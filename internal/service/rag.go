package service

import (
	"context"
	"log"
	"time"

	"github.com/katakuxiko/finqa/internal/model"
)

// Retriever ищет чанки, близкие к вопросу.
type Retriever interface {
	Search(ctx context.Context, query string, k int, maxDistance float64) ([]model.ScoredChunk, error)
}

// Completer — языковая модель.
type Completer interface {
	Complete(ctx context.Context, msgs []model.DialogueMessage) (string, error)
}

type RAGService struct {
	retriever   Retriever
	llm         Completer
	k           int
	maxDistance float64
	debug       bool
}

func NewRAGService(r Retriever, llm Completer, k int, maxDistance float64, debug bool) *RAGService {
	return &RAGService{retriever: r, llm: llm, k: k, maxDistance: maxDistance, debug: debug}
}

// Answer отвечает на вопрос по найденному контексту и истории беседы.
// Источники в ответе ровно те чанки, что ушли в контекст.
func (s *RAGService) Answer(ctx context.Context, question string, history []model.ConversationTurn) (*model.AnswerResult, error) {
	start := time.Now()

	found, err := s.retriever.Search(ctx, question, s.k, s.maxDistance)
	if err != nil {
		return nil, model.NewError(model.KindGeneration, "retrieve", err)
	}
	searched := time.Since(start)

	msgs := make([]model.DialogueMessage, 0, len(history)+2)
	msgs = append(msgs, model.DialogueMessage{Speaker: model.SpeakerSystem, Content: systemPrompt(AssembleContext(found))})
	msgs = append(msgs, ToDialogue(history)...)
	msgs = append(msgs, model.DialogueMessage{Speaker: model.SpeakerHuman, Content: question})

	answer, err := s.llm.Complete(ctx, msgs)
	if err != nil {
		return nil, model.NewError(model.KindGeneration, "complete", err)
	}
	if answer == "" {
		return nil, model.Errorf(model.KindGeneration, "complete", "empty model response")
	}

	sources := make([]model.Source, 0, len(found))
	for _, sc := range found {
		sources = append(sources, model.Source{
			Content:  sc.Chunk.Text,
			Page:     sc.Chunk.Page,
			Score:    sc.Distance,
			Metadata: sc.Chunk.Metadata,
		})
	}

	elapsed := time.Since(start)
	if s.debug {
		log.Printf("answer: %d sources, search %s, total %s", len(found), searched, elapsed)
	}
	return &model.AnswerResult{
		Answer:         answer,
		Sources:        sources,
		ProcessingTime: elapsed.Seconds(),
	}, nil
}
