package executor

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки executor'а.
var (
	// ErrCommandFailed — команда завершилась с ненулевым кодом.
	ErrCommandFailed = errors.New("command failed")

	// ErrEmptyCommand — не задан argv.
	ErrEmptyCommand = errors.New("empty command")

	// ErrStartFailed — процесс не удалось запустить (бинарник не найден и т.п.).
	ErrStartFailed = errors.New("command start failed")
)

// CommandFailedError — ненулевой код завершения с хвостом вывода.
type CommandFailedError struct {
	Command string
	Status  int
	Tail    []string
}

// Error реализует интерфейс error.
func (e *CommandFailedError) Error() string {
	msg := fmt.Sprintf("CommandFailed(%d): %s", e.Status, e.Command)
	if len(e.Tail) > 0 {
		msg += "\n" + strings.Join(e.Tail, "\n")
	}
	return msg
}

// Unwrap позволяет errors.Is(err, ErrCommandFailed).
func (e *CommandFailedError) Unwrap() error {
	return ErrCommandFailed
}
