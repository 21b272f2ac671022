package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Default configuration values.
const (
	defaultTailLines = 20
	defaultWaitDelay = time.Second
)

// Command — внешняя команда с окружением.
type Command struct {
	// Args — argv; Args[0] — исполняемый файл.
	Args []string

	// Dir — рабочий каталог (пусто — текущий).
	Dir string

	// Env — окружение команды (уже слитое: scope поверх pipeline).
	Env map[string]string

	// Stdin — данные для stdin (например, пароль для --password-stdin).
	Stdin []byte

	// Mask — значения, заменяемые на **** в захваченном выводе.
	Mask []string
}

// String возвращает argv одной строкой (для логов).
func (c *Command) String() string {
	return strings.Join(c.Args, " ")
}

// Result — результат выполнения команды.
type Result struct {
	// ExitCode — код завершения процесса.
	ExitCode int

	// Output — захваченный объединённый вывод.
	Output *Output

	// Command — команда (для диагностики).
	Command string
}

// Err возвращает *CommandFailedError для ненулевого кода, иначе nil.
//
// Executor сам не интерпретирует код: решение, фатальна ли ошибка,
// принимает stage.
func (r *Result) Err() error {
	if r == nil || r.ExitCode == 0 {
		return nil
	}
	var tail []string
	if r.Output != nil {
		tail = r.Output.Tail(defaultTailLines)
	}
	return &CommandFailedError{Command: r.Command, Status: r.ExitCode, Tail: tail}
}

// Executor — запуск внешних процессов.
//
// Run блокирует до завершения процесса. Ненулевой код не является
// ошибкой Run: он возвращается в Result. error — только инфраструктурные
// сбои (процесс не запустился, контекст отменён). Повторов нет.
type Executor interface {
	Run(ctx context.Context, cmd *Command) (*Result, error)
}

// Config — конфигурация Process.
type Config struct {
	// InheritEnv — добавлять окружение текущего процесса (PATH, HOME, ...)
	// под окружение команды.
	InheritEnv bool

	// WaitDelay — сколько ждать закрытия stdout/stderr после отмены,
	// если процесс оставил потомков (default: 1s).
	WaitDelay time.Duration

	// Logger
	Logger *slog.Logger
}

// Process — Executor на os/exec.
type Process struct {
	inheritEnv bool
	waitDelay  time.Duration
	logger     *slog.Logger
}

// New создаёт новый Process.
func New(cfg Config) *Process {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	waitDelay := cfg.WaitDelay
	if waitDelay <= 0 {
		waitDelay = defaultWaitDelay
	}
	return &Process{
		inheritEnv: cfg.InheritEnv,
		waitDelay:  waitDelay,
		logger:     logger,
	}
}

// Run реализует Executor.
func (p *Process) Run(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd == nil || len(cmd.Args) == 0 {
		return nil, ErrEmptyCommand
	}

	out := NewOutput(cmd.Mask...)
	result := &Result{Output: out, Command: maskString(cmd.String(), cmd.Mask)}

	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Dir = cmd.Dir
	c.Env = p.environ(cmd.Env)
	c.Stdout = out
	c.Stderr = out
	c.WaitDelay = p.waitDelay
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	p.logger.Debug("running command", "command", result.Command, "dir", cmd.Dir)

	err := c.Run()
	out.Flush()

	if err != nil {
		// Отмена имеет приоритет: процесс убит, код не имеет смысла
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			p.logger.Debug("command exited", "command", result.Command, "exit_code", result.ExitCode)
			return result, nil
		}
		return result, fmt.Errorf("%w: %s: %v", ErrStartFailed, cmd.Args[0], err)
	}

	p.logger.Debug("command exited", "command", result.Command, "exit_code", 0)
	return result, nil
}

// environ строит окружение процесса в формате KEY=VALUE.
func (p *Process) environ(overlay map[string]string) []string {
	merged := make(map[string]string)
	if p.inheritEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				merged[k] = v
			}
		}
	}
	for k, v := range overlay {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}

// maskString заменяет секреты в строке.
func maskString(s string, masks []string) string {
	for _, m := range masks {
		if m != "" {
			s = strings.ReplaceAll(s, m, maskReplacement)
		}
	}
	return s
}
