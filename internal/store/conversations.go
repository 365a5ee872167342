package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/katakuxiko/finqa/internal/model"
)

// ConversationStore хранит беседы и сообщения в реляционной базе
// (Postgres или SQLite). Сообщения только добавляются.
type ConversationStore struct {
	db     *sql.DB
	driver string
}

func NewConversationStore(db *sql.DB, driver string) (*ConversationStore, error) {
	s := &ConversationStore{db: db, driver: driver}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("conversation schema: %w", err)
	}
	return s, nil
}

func (s *ConversationStore) ensureSchema() error {
	idCol := "id BIGSERIAL PRIMARY KEY"
	if s.driver == DriverSQLite {
		idCol = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			token VARCHAR(64) PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			` + idCol + `,
			conversation_token VARCHAR(64) NOT NULL REFERENCES conversations(token),
			role VARCHAR(16) NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_token, created_at, id)`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return err
		}
	}
	return nil
}

func (s *ConversationStore) q(query string) string { return rebind(s.driver, query) }

// Create заводит беседу без сообщений; повторный Create с тем же токеном — ошибка.
func (s *ConversationStore) Create(ctx context.Context, token, name string, at time.Time) error {
	_, err := s.Start(ctx, token, name, at)
	return err
}

// Append добавляет сообщения одной транзакцией и возвращает их с ID.
func (s *ConversationStore) Append(ctx context.Context, token string, msgs ...model.Message) ([]model.Message, error) {
	return s.inTx(ctx, func(tx *sql.Tx) ([]model.Message, error) {
		return s.insertMessages(ctx, tx, token, msgs)
	})
}

// Start заводит беседу и пишет первые сообщения одной транзакцией:
// беседы без сообщений после сбоя не остаётся.
func (s *ConversationStore) Start(ctx context.Context, token, name string, at time.Time, msgs ...model.Message) ([]model.Message, error) {
	return s.inTx(ctx, func(tx *sql.Tx) ([]model.Message, error) {
		_, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO conversations (token, name, created_at) VALUES ($1, $2, $3)`),
			token, name, toMicros(at))
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		return s.insertMessages(ctx, tx, token, msgs)
	})
}

func (s *ConversationStore) inTx(ctx context.Context, fn func(*sql.Tx) ([]model.Message, error)) ([]model.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ConversationStore) insertMessages(ctx context.Context, tx *sql.Tx, token string, msgs []model.Message) ([]model.Message, error) {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		m.ConversationToken = token
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		err := tx.QueryRowContext(ctx,
			s.q(`INSERT INTO messages (conversation_token, role, content, created_at)
				VALUES ($1, $2, $3, $4) RETURNING id`),
			token, string(m.Role), m.Content, toMicros(m.CreatedAt),
		).Scan(&m.ID)
		if err != nil {
			return nil, fmt.Errorf("append message: %w", err)
		}
		m.CreatedAt = fromMicros(toMicros(m.CreatedAt))
		out = append(out, m)
	}
	return out, nil
}

// Get возвращает беседу с сообщениями в хронологическом порядке.
func (s *ConversationStore) Get(ctx context.Context, token string) (*model.Conversation, error) {
	var (
		c       model.Conversation
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT token, name, created_at FROM conversations WHERE token = $1`), token,
	).Scan(&c.Token, &c.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.Errorf(model.KindNotFound, "get conversation", "conversation %q not found", token)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.CreatedAt = fromMicros(created)
	if c.Messages, err = s.messages(ctx, token); err != nil {
		return nil, err
	}
	return &c, nil
}

// Messages — то же, что Get, но только сообщения.
func (s *ConversationStore) Messages(ctx context.Context, token string) ([]model.Message, error) {
	c, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	return c.Messages, nil
}

// List возвращает все беседы, новые первыми.
func (s *ConversationStore) List(ctx context.Context) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token, name, created_at FROM conversations ORDER BY created_at DESC, token`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var convs []model.Conversation
	for rows.Next() {
		var (
			c       model.Conversation
			created int64
		)
		if err := rows.Scan(&c.Token, &c.Name, &created); err != nil {
			rows.Close()
			return nil, err
		}
		c.CreatedAt = fromMicros(created)
		convs = append(convs, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// сообщения читаем после закрытия rows: у SQLite одно соединение
	for i := range convs {
		if convs[i].Messages, err = s.messages(ctx, convs[i].Token); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (s *ConversationStore) messages(ctx context.Context, token string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, conversation_token, role, content, created_at
			FROM messages WHERE conversation_token = $1
			ORDER BY created_at, id`), token)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var (
			m       model.Message
			role    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationToken, &role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.CreatedAt = fromMicros(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
