// Package registry собирает и публикует образы через docker CLI.
//
// Каждая операция — одна команда executor. Ненулевой код возвращается
// как *executor.CommandFailedError.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/Conveyor/internal/executor"
)

// Default configuration values.
const defaultBinary = "docker"

// Config — конфигурация Docker.
type Config struct {
	// Executor запускает docker.
	Executor executor.Executor

	// Binary — путь к docker CLI (default: "docker").
	Binary string

	// Logger
	Logger *slog.Logger
}

// Docker — клиент docker CLI.
type Docker struct {
	exec   executor.Executor
	binary string
	logger *slog.Logger
}

// New создаёт новый Docker.
func New(cfg Config) *Docker {
	binary := cfg.Binary
	if binary == "" {
		binary = defaultBinary
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Docker{
		exec:   cfg.Executor,
		binary: binary,
		logger: logger,
	}
}

// Build собирает образ image из каталога contextDir.
func (d *Docker) Build(ctx context.Context, image, contextDir, dockerfile string) error {
	if contextDir == "" {
		contextDir = "."
	}
	args := []string{"build", "-t", image}
	if dockerfile != "" {
		args = append(args, "-f", dockerfile)
	}
	args = append(args, contextDir)
	return d.run(ctx, &executor.Command{Args: d.argv(args...)})
}

// Tag добавляет образу alias.
func (d *Docker) Tag(ctx context.Context, image, alias string) error {
	return d.run(ctx, &executor.Command{Args: d.argv("tag", image, alias)})
}

// Login авторизуется в registry. Пароль передаётся через stdin.
func (d *Docker) Login(ctx context.Context, server, username, password string) error {
	args := []string{"login", "--username", username, "--password-stdin"}
	if server != "" {
		args = append(args, server)
	}
	return d.run(ctx, &executor.Command{
		Args:  d.argv(args...),
		Stdin: []byte(password),
		Mask:  []string{password},
	})
}

// Push публикует образ.
func (d *Docker) Push(ctx context.Context, image string) error {
	return d.run(ctx, &executor.Command{Args: d.argv("push", image)})
}

// Logout удаляет сохранённые учётные данные registry.
func (d *Docker) Logout(ctx context.Context, server string) error {
	args := []string{"logout"}
	if server != "" {
		args = append(args, server)
	}
	return d.run(ctx, &executor.Command{Args: d.argv(args...)})
}

func (d *Docker) argv(args ...string) []string {
	return append([]string{d.binary}, args...)
}

func (d *Docker) run(ctx context.Context, cmd *executor.Command) error {
	res, err := d.exec.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("docker %s: %w", cmd.Args[1], err)
	}
	if err := res.Err(); err != nil {
		return err
	}
	d.logger.Debug("docker command succeeded", "command", res.Command)
	return nil
}

// Reference собирает ссылку на образ "repository:tag".
func Reference(repository, tag string) string {
	if tag == "" {
		return repository
	}
	return strings.TrimSuffix(repository, ":") + ":" + tag
}

// Server возвращает хост registry из ссылки на образ.
// Для образов Docker Hub ("library/app", "app") возвращает "".
func Server(image string) string {
	first, _, ok := strings.Cut(image, "/")
	if !ok {
		return ""
	}
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first
	}
	return ""
}

// Repository отбрасывает тег из ссылки на образ.
func Repository(image string) string {
	slash := strings.LastIndex(image, "/")
	if colon := strings.LastIndex(image, ":"); colon > slash {
		return image[:colon]
	}
	return image
}
