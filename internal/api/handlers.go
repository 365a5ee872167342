package api

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/katakuxiko/finqa/internal/model"
	"github.com/katakuxiko/finqa/internal/util"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultChunkLimit = 100
	maxChunkLimit     = 1000
)

type Chatter interface {
	Chat(ctx context.Context, question, token string) (*model.ChatResult, error)
	Conversations(ctx context.Context) ([]model.Conversation, error)
	Messages(ctx context.Context, token string) ([]model.Message, error)
}

type Documents interface {
	Ingest(ctx context.Context, path, name string) (*model.UploadResult, error)
	ListDocuments(ctx context.Context) ([]model.DocumentInfo, error)
	ListChunks(ctx context.Context, offset, limit int) ([]model.ChunkInfo, int, error)
	ClearAll(ctx context.Context) (model.ClearResult, error)
}

type ModelLister interface {
	ListModels(ctx context.Context) ([]openai.Model, error)
}

// Handler хранит зависимости для обработчиков
type Handler struct {
	chat      Chatter
	docs      Documents
	models    ModelLister
	uploadDir string
}

// NewHandler конструктор
func NewHandler(chat Chatter, docs Documents, models ModelLister, uploadDir string) *Handler {
	return &Handler{chat: chat, docs: docs, models: models, uploadDir: uploadDir}
}

// Root — приветствие сервиса
func (h *Handler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Financial document Q&A service is running"})
}

// Health — простая проверка
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

// ListModels — проксирование к провайдеру (список моделей)
func (h *Handler) ListModels(c *fiber.Ctx) error {
	models, err := h.models.ListModels(c.UserContext())
	if err != nil {
		log.Printf("list models error: %v", err)
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(models)
}

// Upload — загрузка PDF, разбиение на чанки и индексирование
func (h *Handler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return model.Errorf(model.KindInvalid, "upload", "file is required (form field: file)")
	}
	name := util.SafeFilename(file.Filename)
	if name == "" || !util.HasExt(name, ".pdf") {
		return model.Errorf(model.KindInvalid, "upload", "only PDF files are allowed")
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		log.Printf("mkdir error: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to prepare storage")
	}
	// пишем во временный файл: прежняя версия документа остаётся на месте,
	// пока новая не проиндексирована
	savePath := filepath.Join(h.uploadDir, name)
	tmpPath := filepath.Join(h.uploadDir, ".upload-"+uuid.NewString()+".pdf")
	if err := c.SaveFile(file, tmpPath); err != nil {
		log.Printf("save file error: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save file")
	}

	res, err := h.docs.Ingest(c.UserContext(), tmpPath, name)
	if err != nil {
		log.Printf("ingest %s error: %v", name, err)
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			log.Printf("remove %s: %v", tmpPath, rmErr)
		}
		return err
	}
	if err := os.Rename(tmpPath, savePath); err != nil {
		log.Printf("rename %s: %v", tmpPath, err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save file")
	}
	return c.JSON(model.UploadResponse{
		Message:        "Document processed successfully",
		Filename:       res.Filename,
		ChunksCount:    res.ChunkCount,
		ProcessingTime: res.ProcessingTime,
	})
}

func (h *Handler) ListDocuments(c *fiber.Ctx) error {
	docs, err := h.docs.ListDocuments(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(model.DocumentsResponse{Documents: docs})
}

// ListChunks — постраничный просмотр чанков
func (h *Handler) ListChunks(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", defaultChunkLimit)
	if err != nil || limit < 1 || limit > maxChunkLimit {
		return model.Errorf(model.KindInvalid, "list chunks", "limit must be between 1 and %d", maxChunkLimit)
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		return model.Errorf(model.KindInvalid, "list chunks", "offset must be a non-negative integer")
	}

	chunks, total, err := h.docs.ListChunks(c.UserContext(), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(model.ChunksResponse{Chunks: chunks, TotalCount: total})
}

func (h *Handler) ClearDocuments(c *fiber.Ctx) error {
	res, err := h.docs.ClearAll(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(model.ClearResponse{
		Message:       "All documents cleared",
		DeletedFiles:  res.DeletedFiles,
		ClearedChunks: res.ClearedChunks,
	})
}

// Chat — RAG: поиск + LLM с историей беседы
func (h *Handler) Chat(c *fiber.Ctx) error {
	var req model.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return model.Errorf(model.KindInvalid, "chat", `invalid request, expected JSON: {"question":"..."}`)
	}
	res, err := h.chat.Chat(c.UserContext(), req.Question, req.ConversationToken)
	if err != nil {
		log.Printf("chat error: %v", err)
		return err
	}
	return c.JSON(model.ChatResponse{
		Answer:            res.Answer,
		Sources:           res.Sources,
		ProcessingTime:    res.ProcessingTime,
		ConversationToken: res.ConversationToken,
		CreatedAt:         res.CreatedAt,
	})
}

func (h *Handler) Conversations(c *fiber.Ctx) error {
	convs, err := h.chat.Conversations(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(convs)
}

func (h *Handler) Messages(c *fiber.Ctx) error {
	msgs, err := h.chat.Messages(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(model.MessagesResponse{Messages: msgs})
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// ErrorHandler переводит ошибки сервисов в HTTP статусы и {"error": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := StatusOf(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	if status >= fiber.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(model.ErrorResponse{Error: err.Error()})
}

// StatusOf — HTTP статус для ошибки сервиса.
func StatusOf(err error) int {
	switch model.KindOf(err) {
	case model.KindInvalid:
		return fiber.StatusBadRequest
	case model.KindIngest:
		return fiber.StatusUnprocessableEntity
	case model.KindNotFound:
		return fiber.StatusNotFound
	case model.KindEmbedding, model.KindGeneration:
		return fiber.StatusBadGateway
	case model.KindIndexUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
