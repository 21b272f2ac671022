package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Request — запрос одного credential для scope.
type Request struct {
	// ID — идентификатор credential в хранилище.
	ID string

	// Kind — форма, которую ожидает потребитель.
	Kind Kind

	// Var — переменная окружения для token и file (путь).
	Var string

	// UsernameVar, PasswordVar — переменные для username_password.
	UsernameVar string
	PasswordVar string
}

// validate проверяет, что запрос можно привязать к окружению.
func (r Request) validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRequest)
	}
	switch r.Kind {
	case KindToken, KindFile:
		if r.Var == "" {
			return fmt.Errorf("%w: %s: variable name required", ErrInvalidRequest, r.ID)
		}
	case KindUsernamePassword:
		if r.UsernameVar == "" || r.PasswordVar == "" {
			return fmt.Errorf("%w: %s: username and password variables required", ErrInvalidRequest, r.ID)
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidRequest, r.ID, r.Kind)
	}
	return nil
}

// Binding — пара (имя → значение), валидная только внутри своего scope.
type Binding struct {
	// Name — имя переменной окружения.
	Name string

	// CredentialID — id credential, из которого получено значение.
	CredentialID string

	// Masked — значение секретное и должно маскироваться в выводе.
	Masked bool

	value []byte
	file  string
	scope *Scope
}

// Value возвращает значение binding. После выхода из scope — ErrScopeClosed.
func (b *Binding) Value() (string, error) {
	b.scope.mu.Lock()
	defer b.scope.mu.Unlock()

	if b.scope.closed {
		return "", fmt.Errorf("%w: %s", ErrScopeClosed, b.Name)
	}
	return string(b.value), nil
}

// Scope — динамический экстент, внутри которого видны разрешённые секреты.
type Scope struct {
	mu       sync.Mutex
	bindings []*Binding
	creds    []*Credential
	closed   bool
	logger   *slog.Logger
}

// Bindings возвращает bindings в порядке захвата.
func (s *Scope) Bindings() []*Binding {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Binding, len(s.bindings))
	copy(out, s.bindings)
	return out
}

// Lookup возвращает значение переменной, привязанной в этом scope.
func (s *Scope) Lookup(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false
	}
	for i := len(s.bindings) - 1; i >= 0; i-- {
		if s.bindings[i].Name == name {
			return string(s.bindings[i].value), true
		}
	}
	return "", false
}

// Env возвращает переменные окружения scope. После Close — пустая карта.
func (s *Scope) Env() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	env := make(map[string]string, len(s.bindings))
	if s.closed {
		return env
	}
	for _, b := range s.bindings {
		env[b.Name] = string(b.value)
	}
	return env
}

// Secrets возвращает значения, которые нужно маскировать в выводе команд.
func (s *Scope) Secrets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	var out []string
	for _, b := range s.bindings {
		if b.Masked && len(b.value) > 0 {
			out = append(out, string(b.value))
		}
	}
	return out
}

// Closed проверяет, завершён ли scope.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close уничтожает bindings в порядке, обратном захвату.
// Повторный вызов ничего не делает.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.bindings) - 1; i >= 0; i-- {
		b := s.bindings[i]
		if b.file != "" {
			if err := os.Remove(b.file); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove credential file for %s: %w", b.CredentialID, err))
			}
			b.file = ""
		}
		zero(b.value)
		b.value = nil
	}
	for i := len(s.creds) - 1; i >= 0; i-- {
		s.creds[i].Wipe()
	}
	s.creds = nil

	if s.logger != nil {
		s.logger.Debug("secret scope closed", "bindings", len(s.bindings))
	}
	return errors.Join(errs...)
}

func (s *Scope) bind(req Request, name string, value []byte, masked bool) *Binding {
	b := &Binding{
		Name:         name,
		CredentialID: req.ID,
		Masked:       masked,
		value:        value,
		scope:        s,
	}
	s.bindings = append(s.bindings, b)
	return b
}

// Default configuration values.
const defaultFileMode = 0o600

// ManagerConfig — конфигурация Manager.
type ManagerConfig struct {
	// Store — хранилище credentials.
	Store Store

	// TempDir — каталог для материализации file credentials (default: os.TempDir()).
	TempDir string

	// Logger
	Logger *slog.Logger
}

// Manager разрешает credential id в scoped bindings.
type Manager struct {
	store   Store
	tempDir string
	logger  *slog.Logger
}

// NewManager создаёт новый Manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   cfg.Store,
		tempDir: cfg.TempDir,
		logger:  logger,
	}
}

// Enter открывает scope и разрешает все запросы.
//
// При ошибке уже захваченные bindings уничтожаются до возврата.
func (m *Manager) Enter(ctx context.Context, reqs ...Request) (*Scope, error) {
	scope := &Scope{logger: m.logger}

	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			scope.Close()
			return nil, err
		}
		if err := req.validate(); err != nil {
			scope.Close()
			return nil, err
		}
		if err := m.resolve(ctx, scope, req); err != nil {
			scope.Close()
			return nil, err
		}
	}

	if len(reqs) > 0 {
		ids := make([]string, len(reqs))
		for i, r := range reqs {
			ids[i] = r.ID
		}
		m.logger.Debug("secret scope opened", "credentials", ids)
	}
	return scope, nil
}

// With выполняет fn внутри scope и гарантирует его закрытие на любом пути
// выхода (возврат, ошибка, panic, отмена контекста).
func (m *Manager) With(ctx context.Context, reqs []Request, fn func(*Scope) error) (err error) {
	scope, err := m.Enter(ctx, reqs...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(scope)
}

// resolve читает credential и добавляет bindings в scope.
func (m *Manager) resolve(ctx context.Context, scope *Scope, req Request) error {
	if m.store == nil {
		return fmt.Errorf("%w: %s (no credential store configured)", ErrCredentialNotFound, req.ID)
	}

	cred, err := m.store.Resolve(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", req.ID, err)
	}
	if cred.Kind != req.Kind {
		kind := cred.Kind
		cred.Wipe()
		return fmt.Errorf("%w: %s is %s, expected %s", ErrCredentialTypeMismatch, req.ID, kind, req.Kind)
	}
	scope.creds = append(scope.creds, cred)

	switch req.Kind {
	case KindToken:
		scope.bind(req, req.Var, cloneBytes(cred.Secret), true)

	case KindUsernamePassword:
		scope.bind(req, req.UsernameVar, []byte(cred.Username), false)
		scope.bind(req, req.PasswordVar, cloneBytes(cred.Password), true)

	case KindFile:
		path := cred.Path
		var file string
		if path == "" {
			file, err = m.materialize(cred)
			if err != nil {
				return err
			}
			path = file
		}
		b := scope.bind(req, req.Var, []byte(path), false)
		b.file = file
	}
	return nil
}

// materialize записывает содержимое file credential во временный файл 0600.
func (m *Manager) materialize(cred *Credential) (string, error) {
	f, err := os.CreateTemp(m.tempDir, "conveyor-cred-*")
	if err != nil {
		return "", fmt.Errorf("create credential file for %s: %w", cred.ID, err)
	}
	name := f.Name()

	if err := f.Chmod(defaultFileMode); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("chmod credential file for %s: %w", cred.ID, err)
	}
	if _, err := f.Write(cred.Content); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("write credential file for %s: %w", cred.ID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close credential file for %s: %w", cred.ID, err)
	}
	return name, nil
}
