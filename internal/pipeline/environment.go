package pipeline

import "sort"

// Environment — неизменяемый набор переменных pipeline.
//
// Создаётся один раз при построении Pipeline. Stage получает свою копию
// через Overlay и никогда не меняет базу.
type Environment struct {
	vars map[string]string
}

// NewEnvironment копирует vars в новое окружение.
func NewEnvironment(vars map[string]string) Environment {
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	return Environment{vars: copied}
}

// Get возвращает значение переменной.
func (e Environment) Get(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Len возвращает число переменных.
func (e Environment) Len() int {
	return len(e.vars)
}

// Keys возвращает имена переменных в отсортированном порядке.
func (e Environment) Keys() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map возвращает копию переменных.
func (e Environment) Map() map[string]string {
	return e.Overlay()
}

// Overlay возвращает новую карту: база, поверх неё layers по порядку
// (последний слой выигрывает).
func (e Environment) Overlay(layers ...map[string]string) map[string]string {
	size := len(e.vars)
	for _, l := range layers {
		size += len(l)
	}

	out := make(map[string]string, size)
	for k, v := range e.vars {
		out[k] = v
	}
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}
