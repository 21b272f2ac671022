package pipeline

import (
	"fmt"

	"github.com/shaiso/Conveyor/internal/hooks"
	"github.com/shaiso/Conveyor/internal/secrets"
)

// Stage — именованная группа actions с собственным secret scope.
//
// Stage атомарен с точки зрения Runner: он либо завершается целиком,
// либо останавливает run.
type Stage struct {
	// Name — уникальное имя stage.
	Name string

	// Credentials — credentials, доступные actions этого stage.
	Credentials []secrets.Request

	// Env — переменные stage поверх базы pipeline. Значения могут быть шаблонами.
	Env map[string]string

	// Actions — actions, выполняемые строго по порядку.
	Actions []Action
}

// Definition — всё, из чего строится Pipeline.
type Definition struct {
	Name   string
	Env    map[string]string
	Stages []Stage

	// Hooks — обработчики финального результата (nil — нет hooks).
	Hooks *hooks.Dispatcher
}

// Pipeline — неизменяемая последовательность stages.
type Pipeline struct {
	name   string
	env    Environment
	stages []Stage
	hooks  *hooks.Dispatcher
}

// New проверяет определение и строит Pipeline.
func New(def Definition) (*Pipeline, error) {
	if len(def.Stages) == 0 {
		return nil, ErrEmptyPipeline
	}

	seen := make(map[string]bool, len(def.Stages))
	stages := make([]Stage, len(def.Stages))
	for i, st := range def.Stages {
		if st.Name == "" {
			return nil, fmt.Errorf("%w: stage #%d", ErrEmptyStageName, i)
		}
		if seen[st.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStage, st.Name)
		}
		seen[st.Name] = true

		for j, a := range st.Actions {
			if a == nil {
				return nil, fmt.Errorf("%w: %s #%d", ErrNilAction, st.Name, j)
			}
		}

		stages[i] = Stage{
			Name:        st.Name,
			Credentials: append([]secrets.Request(nil), st.Credentials...),
			Env:         NewEnvironment(st.Env).Map(),
			Actions:     append([]Action(nil), st.Actions...),
		}
	}

	return &Pipeline{
		name:   def.Name,
		env:    NewEnvironment(def.Env),
		stages: stages,
		hooks:  def.Hooks,
	}, nil
}

// Name возвращает имя pipeline.
func (p *Pipeline) Name() string {
	return p.name
}

// Env возвращает базовое окружение.
func (p *Pipeline) Env() Environment {
	return p.env
}

// Len возвращает число stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Stage возвращает stage по индексу.
func (p *Pipeline) Stage(i int) Stage {
	return p.stages[i]
}

// StageNames возвращает имена stages по порядку.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.Name
	}
	return names
}

// Hooks возвращает dispatcher pipeline (может быть nil).
func (p *Pipeline) Hooks() *hooks.Dispatcher {
	return p.hooks
}
