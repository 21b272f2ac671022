package secrets

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

// Store — хранилище credentials.
//
// Resolve возвращает ErrCredentialNotFound для незарегистрированного id.
// Каждый вызов должен возвращать новую копию значения.
type Store interface {
	Resolve(ctx context.Context, id string) (*Credential, error)
}

// MemoryStore — хранилище в памяти процесса.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential)}
}

// Put регистрирует credential (копия).
func (s *MemoryStore) Put(cred *Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.ID] = cred.Clone()
}

// PutToken регистрирует token.
func (s *MemoryStore) PutToken(id, value string) {
	s.Put(&Credential{ID: id, Kind: KindToken, Secret: []byte(value)})
}

// PutUsernamePassword регистрирует пару логин/пароль.
func (s *MemoryStore) PutUsernamePassword(id, username, password string) {
	s.Put(&Credential{ID: id, Kind: KindUsernamePassword, Username: username, Password: []byte(password)})
}

// PutFile регистрирует file credential с содержимым.
func (s *MemoryStore) PutFile(id string, content []byte) {
	s.Put(&Credential{ID: id, Kind: KindFile, Content: content})
}

// Credentials возвращает копии всех credentials, упорядоченные по id.
func (s *MemoryStore) Credentials() []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Credential, 0, len(s.creds))
	for _, cred := range s.creds {
		out = append(out, cred.Clone())
	}
	slices.SortFunc(out, func(a, b *Credential) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Resolve реализует Store.
func (s *MemoryStore) Resolve(_ context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
	}
	return cred.Clone(), nil
}

// EnvStore читает credentials из переменных окружения процесса.
//
// Для id "registry-creds" и префикса "CONVEYOR_CRED_":
//   - CONVEYOR_CRED_REGISTRY_CREDS          → token
//   - CONVEYOR_CRED_REGISTRY_CREDS_USERNAME + _PASSWORD → username_password
//   - CONVEYOR_CRED_REGISTRY_CREDS_FILE     → file (путь)
type EnvStore struct {
	Prefix string

	// Lookup — источник переменных (по умолчанию os.LookupEnv).
	Lookup func(string) (string, bool)
}

// Resolve реализует Store.
func (s *EnvStore) Resolve(_ context.Context, id string) (*Credential, error) {
	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := s.Prefix
	if prefix == "" {
		prefix = "CONVEYOR_CRED_"
	}

	key := prefix + envKey(id)

	if user, ok := lookup(key + "_USERNAME"); ok {
		pass, _ := lookup(key + "_PASSWORD")
		return &Credential{ID: id, Kind: KindUsernamePassword, Username: user, Password: []byte(pass)}, nil
	}
	if path, ok := lookup(key + "_FILE"); ok {
		return &Credential{ID: id, Kind: KindFile, Path: path}, nil
	}
	if val, ok := lookup(key); ok {
		return &Credential{ID: id, Kind: KindToken, Secret: []byte(val)}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
}

// envKey приводит id к виду имени переменной: "sonar-token" → "SONAR_TOKEN".
func envKey(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
}
