package secrets

import (
	"fmt"
	"strings"
)

// Kind — форма credential.
type Kind string

const (
	KindToken            Kind = "token"
	KindUsernamePassword Kind = "username_password"
	KindFile             Kind = "file"
)

// ParseKind парсит строку в Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindToken:
		return KindToken, nil
	case KindUsernamePassword, "userpass", "username-password":
		return KindUsernamePassword, nil
	case KindFile:
		return KindFile, nil
	default:
		return "", fmt.Errorf("unknown credential kind %q", s)
	}
}

// Credential — значение, возвращаемое хранилищем.
//
// Хранилище обязано возвращать свежую копию: Scope затирает её байты
// при закрытии.
type Credential struct {
	ID   string
	Kind Kind

	// Secret — значение для KindToken.
	Secret []byte

	// Username, Password — для KindUsernamePassword.
	Username string
	Password []byte

	// Path — путь к файлу для KindFile.
	Path string

	// Content — содержимое для KindFile, если файла на диске нет.
	Content []byte
}

// Wipe обнуляет секретные байты.
func (c *Credential) Wipe() {
	zero(c.Secret)
	zero(c.Password)
	zero(c.Content)
	c.Secret = nil
	c.Password = nil
	c.Content = nil
	c.Username = ""
	c.Path = ""
}

// Clone возвращает независимую копию credential.
func (c *Credential) Clone() *Credential {
	return &Credential{
		ID:       c.ID,
		Kind:     c.Kind,
		Secret:   cloneBytes(c.Secret),
		Username: c.Username,
		Password: cloneBytes(c.Password),
		Path:     c.Path,
		Content:  cloneBytes(c.Content),
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
