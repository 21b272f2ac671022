package executor

import (
	"context"
	"sync"
)

// Reply — сценарный ответ Recorder на команду.
type Reply struct {
	ExitCode int
	Lines    []string
	Err      error
}

// Recorder — Executor, который не запускает процессы, а записывает
// вызовы и отвечает по сценарию. Используется для dry-run и в тестах.
type Recorder struct {
	// Script возвращает ответ на команду. nil — код 0 без вывода.
	Script func(cmd *Command) Reply

	mu    sync.Mutex
	calls []Command
}

// Run реализует Executor.
func (r *Recorder) Run(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd == nil || len(cmd.Args) == 0 {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.calls = append(r.calls, copyCommand(cmd))
	r.mu.Unlock()

	reply := Reply{}
	if r.Script != nil {
		reply = r.Script(cmd)
	}

	out := NewOutput(cmd.Mask...)
	for _, line := range reply.Lines {
		out.Append(line)
	}
	result := &Result{
		ExitCode: reply.ExitCode,
		Output:   out,
		Command:  maskString(cmd.String(), cmd.Mask),
	}
	return result, reply.Err
}

// Calls возвращает записанные команды. Секреты в записи уже скрыты:
// значения из Mask заменены на ****, Stdin и Mask не сохраняются.
func (r *Recorder) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ran проверяет, запускалась ли команда с таким исполняемым файлом.
func (r *Recorder) Ran(program string) bool {
	for _, c := range r.Calls() {
		if c.Args[0] == program {
			return true
		}
	}
	return false
}

// copyCommand снимает копию команды без секретов: запись переживает
// secret scope, в котором команда запускалась.
func copyCommand(cmd *Command) Command {
	c := Command{
		Args: make([]string, len(cmd.Args)),
		Dir:  cmd.Dir,
	}
	for i, arg := range cmd.Args {
		c.Args[i] = maskString(arg, cmd.Mask)
	}
	if cmd.Env != nil {
		c.Env = make(map[string]string, len(cmd.Env))
		for k, v := range cmd.Env {
			c.Env[k] = maskString(v, cmd.Mask)
		}
	}
	return c
}
