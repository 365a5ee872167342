package model

import (
	"errors"
	"fmt"
)

// Kind — класс ошибки, по нему HTTP слой выбирает статус.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalid
	KindIngest
	KindEmbedding
	KindIndexUnavailable
	KindGeneration
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid request"
	case KindIngest:
		return "ingest error"
	case KindEmbedding:
		return "embedding error"
	case KindIndexUnavailable:
		return "index unavailable"
	case KindGeneration:
		return "generation error"
	case KindNotFound:
		return "not found"
	}
	return "unknown error"
}

// Error — ошибка с классом, операцией и причиной.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is совпадает с голым сентинелом того же класса, поэтому errors.Is(err, ErrEmbedding)
// верно и для ошибки генерации, вызванной сбоем эмбеддингов.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInvalid          = &Error{Kind: KindInvalid}
	ErrIngest           = &Error{Kind: KindIngest}
	ErrEmbedding        = &Error{Kind: KindEmbedding}
	ErrIndexUnavailable = &Error{Kind: KindIndexUnavailable}
	ErrGeneration       = &Error{Kind: KindGeneration}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

func NewError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf возвращает внешний класс в цепочке err.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
