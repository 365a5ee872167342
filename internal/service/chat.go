package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/katakuxiko/finqa/internal/model"
	"github.com/katakuxiko/finqa/internal/util"
)

const nameFallbackLen = 50

type Answerer interface {
	Answer(ctx context.Context, question string, history []model.ConversationTurn) (*model.AnswerResult, error)
}

// Namer придумывает название новой беседы.
type Namer interface {
	Name(ctx context.Context, question, answer string) (string, error)
}

// Conversations — хранилище бесед.
type Conversations interface {
	Start(ctx context.Context, token, name string, at time.Time, msgs ...model.Message) ([]model.Message, error)
	Append(ctx context.Context, token string, msgs ...model.Message) ([]model.Message, error)
	Get(ctx context.Context, token string) (*model.Conversation, error)
	Messages(ctx context.Context, token string) ([]model.Message, error)
	List(ctx context.Context) ([]model.Conversation, error)
}

type ChatService struct {
	rag   Answerer
	namer Namer
	convs Conversations
	now   func() time.Time
}

func NewChatService(rag Answerer, namer Namer, convs Conversations) *ChatService {
	return &ChatService{rag: rag, namer: namer, convs: convs, now: time.Now}
}

// Chat отвечает на вопрос в рамках беседы. Пустой или неизвестный токен
// открывает новую беседу.
func (s *ChatService) Chat(ctx context.Context, question, token string) (*model.ChatResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, model.Errorf(model.KindInvalid, "chat", "question is required")
	}

	var history []model.ConversationTurn
	isNew := token == ""
	if isNew {
		token = uuid.NewString()
	} else {
		conv, err := s.convs.Get(ctx, token)
		switch {
		case errors.Is(err, model.ErrNotFound):
			isNew = true
		case err != nil:
			return nil, err
		default:
			history = conv.Turns()
		}
	}

	asked := s.now()
	res, err := s.rag.Answer(ctx, question, history)
	if err != nil {
		return nil, err
	}

	turns := []model.Message{
		{Role: model.RoleUser, Content: question, CreatedAt: asked},
		{Role: model.RoleAssistant, Content: res.Answer, CreatedAt: s.now()},
	}
	var saved []model.Message
	if isNew {
		saved, err = s.convs.Start(ctx, token, s.name(ctx, question, res.Answer), asked, turns...)
	} else {
		saved, err = s.convs.Append(ctx, token, turns...)
	}
	if err != nil {
		return nil, err
	}

	return &model.ChatResult{
		AnswerResult:      *res,
		ConversationToken: token,
		CreatedAt:         saved[len(saved)-1].CreatedAt,
	}, nil
}

func (s *ChatService) name(ctx context.Context, question, answer string) string {
	if s.namer != nil {
		name, err := s.namer.Name(ctx, question, answer)
		if err == nil && strings.TrimSpace(name) != "" {
			return strings.Trim(strings.TrimSpace(name), `"`)
		}
		if err != nil {
			log.Printf("conversation name: %v", err)
		}
	}
	return util.TruncateRunes(question, nameFallbackLen)
}

func (s *ChatService) Conversations(ctx context.Context) ([]model.Conversation, error) {
	convs, err := s.convs.List(ctx)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return convs, nil
}

func (s *ChatService) Messages(ctx context.Context, token string) ([]model.Message, error) {
	return s.convs.Messages(ctx, token)
}
