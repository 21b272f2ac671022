package config

import "errors"

// Ошибки валидации определения.
var (
	// ErrEmptyName — pipeline без имени.
	ErrEmptyName = errors.New("pipeline has empty name")

	// ErrNoStages — pipeline не содержит stages.
	ErrNoStages = errors.New("pipeline has no stages")

	// ErrEmptyStageName — stage без имени.
	ErrEmptyStageName = errors.New("stage has empty name")

	// ErrDuplicateStage — несколько stages с одинаковым именем.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrNoSteps — stage или scope без шагов.
	ErrNoSteps = errors.New("no steps")

	// ErrEmptyStep — шаг не задаёт ни одного вида.
	ErrEmptyStep = errors.New("step has no kind")

	// ErrAmbiguousStep — шаг задаёт несколько видов.
	ErrAmbiguousStep = errors.New("step has several kinds")

	// ErrEmptyCommand — пустой argv.
	ErrEmptyCommand = errors.New("empty command")

	// ErrUnknownCredentialKind — неизвестный вид credential.
	ErrUnknownCredentialKind = errors.New("unknown credential kind")

	// ErrInvalidCredential — credential без id или имени переменной.
	ErrInvalidCredential = errors.New("invalid credential request")

	// ErrInvalidTimeout — таймаут gate отсутствует или не положителен.
	ErrInvalidTimeout = errors.New("gate timeout must be positive")

	// ErrInvalidDuration — строка не является длительностью.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrMissingGateID — gate без id и без report.
	ErrMissingGateID = errors.New("gate requires id or report")

	// ErrMissingDeployment — rollout или deploy без deployment.
	ErrMissingDeployment = errors.New("missing deployment")

	// ErrMissingImage — push или deploy без образа.
	ErrMissingImage = errors.New("missing image")

	// ErrInvalidPullSecret — pull secret без имени, сервера или credential.
	ErrInvalidPullSecret = errors.New("invalid pull secret")

	// ErrInvalidSchedule — некорректное cron выражение.
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// ErrParse — файл не является корректным YAML определением.
var ErrParse = errors.New("parse pipeline definition")

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Stage   string // stage, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Stage != "" {
		return "stage " + e.Stage + ": " + e.Field + ": " + e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stage, field, message string, err error) *ValidationError {
	return &ValidationError{
		Stage:   stage,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
