package secrets

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCredentialsFile — файл credentials не удалось разобрать.
var ErrInvalidCredentialsFile = errors.New("invalid credentials file")

// fileEntry — запись файла credentials.
type fileEntry struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind"`
	Value    string `yaml:"value,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Content  string `yaml:"content,omitempty"`
}

// LoadFile читает YAML файл credentials в MemoryStore.
//
//	credentials:
//	  - id: sonar-token
//	    kind: token
//	    value: squ_abc
//	  - id: registry
//	    kind: username_password
//	    username: ci
//	    password: hunter2
//	  - id: kubeconfig
//	    kind: file
//	    path: /etc/conveyor/kubeconfig
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return ParseFile(data)
}

// ParseFile разбирает содержимое файла credentials.
func ParseFile(data []byte) (*MemoryStore, error) {
	var doc struct {
		Credentials []fileEntry `yaml:"credentials"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentialsFile, err)
	}

	store := NewMemoryStore()
	for i, e := range doc.Credentials {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: credentials[%d]: id is required", ErrInvalidCredentialsFile, i)
		}
		kind, err := ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCredentialsFile, e.ID, err)
		}

		switch kind {
		case KindToken:
			store.PutToken(e.ID, e.Value)
		case KindUsernamePassword:
			store.PutUsernamePassword(e.ID, e.Username, e.Password)
		case KindFile:
			if e.Path == "" && e.Content == "" {
				return nil, fmt.Errorf("%w: %s: path or content is required", ErrInvalidCredentialsFile, e.ID)
			}
			store.Put(&Credential{ID: e.ID, Kind: KindFile, Path: e.Path, Content: []byte(e.Content)})
		}
	}
	return store, nil
}
