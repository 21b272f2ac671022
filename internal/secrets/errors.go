package secrets

import "errors"

// Ошибки scope manager.
var (
	// ErrCredentialNotFound — credential id не зарегистрирован в хранилище.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialTypeMismatch — форма credential не совпадает с ожидаемой.
	ErrCredentialTypeMismatch = errors.New("credential type mismatch")

	// ErrScopeClosed — обращение к binding после выхода из scope.
	ErrScopeClosed = errors.New("secret scope closed")

	// ErrInvalidRequest — запрос без id или без имени переменной.
	ErrInvalidRequest = errors.New("invalid credential request")
)
