package domain

// PipelineSpec — определение pipeline (содержимое YAML файла).
//
// Это фиксированный линейный список stages, а не язык workflow:
// ни условий, ни циклов, ни параллельных веток.
type PipelineSpec struct {
	// Name — имя pipeline.
	Name string `yaml:"name" json:"name"`

	// Env — базовое окружение, доступное всем stages.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Timeout — общий бюджет времени run ("45m"). Пусто — без ограничения.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Schedule — cron выражения для запуска по расписанию.
	Schedule []string `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	// Gate — настройки ожидания quality gate по умолчанию.
	Gate *GateDefaults `yaml:"gate,omitempty" json:"gate,omitempty"`

	// Rollout — настройки наблюдения за rollout по умолчанию.
	Rollout *RolloutDefaults `yaml:"rollout,omitempty" json:"rollout,omitempty"`

	// Stages — stages в порядке выполнения.
	Stages []StageSpec `yaml:"stages" json:"stages"`

	// Hooks — команды, выполняемые после завершения run.
	Hooks *HooksSpec `yaml:"hooks,omitempty" json:"hooks,omitempty"`
}

// GateDefaults — настройки Gate Waiter.
type GateDefaults struct {
	// GraceDelay — пауза перед первым опросом ("10s").
	GraceDelay string `yaml:"grace_delay,omitempty" json:"grace_delay,omitempty"`

	// PollInterval — интервал опроса ("5s").
	PollInterval string `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
}

// RolloutDefaults — настройки Rollout Monitor.
type RolloutDefaults struct {
	// Interval — интервал опроса статуса ("5s").
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// StageSpec — определение stage.
type StageSpec struct {
	// Name — уникальное имя stage в рамках pipeline.
	Name string `yaml:"name" json:"name"`

	// Credentials — секреты, доступные на время stage.
	Credentials []CredentialSpec `yaml:"credentials,omitempty" json:"credentials,omitempty"`

	// Env — переменные окружения stage (поверх базового окружения).
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Steps — actions stage в порядке выполнения.
	Steps []StepSpec `yaml:"steps" json:"steps"`
}

// CredentialSpec — запрос секрета для scope.
type CredentialSpec struct {
	// ID — идентификатор credential в хранилище.
	ID string `yaml:"id" json:"id"`

	// Kind — ожидаемая форма: "token", "username_password", "file".
	Kind string `yaml:"kind" json:"kind"`

	// Env — переменная для token/file.
	Env string `yaml:"env,omitempty" json:"env,omitempty"`

	// UsernameEnv, PasswordEnv — переменные для username_password.
	UsernameEnv string `yaml:"username_env,omitempty" json:"username_env,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty" json:"password_env,omitempty"`
}

// StepSpec — одно action внутри stage. Должно быть задано ровно одно
// из полей Run, Gate, Rollout, Push, Deploy, Scope.
type StepSpec struct {
	// Name — имя шага для логов (необязательно).
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Run — argv внешней команды.
	Run []string `yaml:"run,omitempty" json:"run,omitempty"`

	// Env — переопределения окружения для команды.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Dir — рабочий каталог команды.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// AllowFailure — ненулевой код не останавливает stage.
	AllowFailure bool `yaml:"allow_failure,omitempty" json:"allow_failure,omitempty"`

	// Gate — ожидание внешнего решения.
	Gate *GateSpec `yaml:"gate,omitempty" json:"gate,omitempty"`

	// Rollout — ожидание стабилизации deployment.
	Rollout *RolloutSpec `yaml:"rollout,omitempty" json:"rollout,omitempty"`

	// Push — сборка и публикация образа.
	Push *PushSpec `yaml:"push,omitempty" json:"push,omitempty"`

	// Deploy — обновление образа deployment.
	Deploy *DeploySpec `yaml:"deploy,omitempty" json:"deploy,omitempty"`

	// Scope — вложенный scope секретов вокруг внутренних шагов.
	Scope *ScopeSpec `yaml:"scope,omitempty" json:"scope,omitempty"`
}

// PushSpec — сборка образа и публикация в registry.
type PushSpec struct {
	// Image — ссылка на образ, обычно "{{ .Env.IMAGE_REPO }}:{{ .Build.ImageTag }}".
	Image string `yaml:"image" json:"image"`

	// Context — каталог сборки (default: ".").
	Context string `yaml:"context,omitempty" json:"context,omitempty"`

	// Dockerfile — путь к Dockerfile.
	Dockerfile string `yaml:"dockerfile,omitempty" json:"dockerfile,omitempty"`

	// Tags — дополнительные теги ("latest").
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Credential — id username_password credential для docker login.
	Credential string `yaml:"credential,omitempty" json:"credential,omitempty"`

	// Registry — сервер для login (default: хост из Image).
	Registry string `yaml:"registry,omitempty" json:"registry,omitempty"`
}

// DeploySpec — обновление образа контейнера deployment.
type DeploySpec struct {
	Deployment string `yaml:"deployment" json:"deployment"`
	Namespace  string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// Container — имя контейнера (default: имя deployment).
	Container string `yaml:"container,omitempty" json:"container,omitempty"`

	// Image — новый образ.
	Image string `yaml:"image" json:"image"`

	// PullSecret — secret для доступа к registry.
	PullSecret *PullSecretSpec `yaml:"pull_secret,omitempty" json:"pull_secret,omitempty"`

	// Wait — дождаться стабилизации rollout.
	Wait bool `yaml:"wait,omitempty" json:"wait,omitempty"`
}

// PullSecretSpec — docker-registry secret в кластере.
type PullSecretSpec struct {
	Name       string `yaml:"name" json:"name"`
	Server     string `yaml:"server" json:"server"`
	Credential string `yaml:"credential" json:"credential"`
}

// GateSpec — параметры ожидания gate.
type GateSpec struct {
	// ID — идентификатор решения (task id анализа или ключ проекта).
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Report — путь к report-task.txt, из которого читается ceTaskId.
	Report string `yaml:"report,omitempty" json:"report,omitempty"`

	// Timeout — верхняя граница ожидания ("5m").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// RolloutSpec — параметры наблюдения за rollout.
type RolloutSpec struct {
	Deployment string `yaml:"deployment" json:"deployment"`
	Namespace  string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// ScopeSpec — вложенный scope секретов.
type ScopeSpec struct {
	Credentials []CredentialSpec `yaml:"credentials" json:"credentials"`
	Steps       []StepSpec       `yaml:"steps" json:"steps"`
}

// HooksSpec — команды hook'ов по исходу run.
type HooksSpec struct {
	OnSuccess [][]string `yaml:"on_success,omitempty" json:"on_success,omitempty"`
	OnFailure [][]string `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
	OnAborted [][]string `yaml:"on_aborted,omitempty" json:"on_aborted,omitempty"`
	Always    [][]string `yaml:"always,omitempty" json:"always,omitempty"`
}
