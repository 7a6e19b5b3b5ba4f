package domain

import (
	"errors"
	"fmt"
)

// Kind — класс ошибки для транспортного слоя (HTTP/gRPC).
type Kind int

const (
	KindInternal Kind = iota // Сбой инфраструктуры (БД, сеть)
	KindNotFound
	KindConflict
	KindInvalid
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "internal"
}

// Error — доменная ошибка с классом. Сравнивается через errors.Is по указателю.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var (
	ErrTokenInvalid          = &Error{KindNotFound, "registration token is invalid"}
	ErrTokenUsed             = &Error{KindConflict, "registration token already used"}
	ErrTokenExpired          = &Error{KindInvalid, "registration token expired"}
	ErrCommandNotWhitelisted = &Error{KindInvalid, "command is not whitelisted"}
	ErrAgentNotFound         = &Error{KindNotFound, "agent not found"}
	ErrAgentOffline          = &Error{KindConflict, "agent is not online"}
	ErrJobNotFound           = &Error{KindNotFound, "job not found"}
	ErrUserNotFound          = &Error{KindNotFound, "user not found"}
	ErrInvalidInput          = &Error{KindInvalid, "invalid input"}
	ErrUnauthorized          = &Error{KindUnauthorized, "unauthorized"}
)

// Invalidf оборачивает ErrInvalidInput с уточнением.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// KindOf достает класс из цепочки ошибок. Все, что не доменное, — Internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
