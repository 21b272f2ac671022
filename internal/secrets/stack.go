package secrets

import (
	"errors"
	"sync"
)

// Stack — явный стек scopes одного выполнения pipeline.
//
// Push/Pop соблюдают дисциплину арены: освобождается только верхний
// фрейм, Close освобождает все фреймы сверху вниз.
type Stack struct {
	mu     sync.Mutex
	frames []*Scope
}

// Push кладёт scope на вершину стека.
func (st *Stack) Push(s *Scope) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.frames = append(st.frames, s)
}

// Pop снимает и закрывает верхний scope.
func (st *Stack) Pop() error {
	st.mu.Lock()
	if len(st.frames) == 0 {
		st.mu.Unlock()
		return nil
	}
	top := st.frames[len(st.frames)-1]
	st.frames[len(st.frames)-1] = nil
	st.frames = st.frames[:len(st.frames)-1]
	st.mu.Unlock()

	return top.Close()
}

// Depth возвращает количество открытых фреймов.
func (st *Stack) Depth() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.frames)
}

// Env сливает окружение фреймов снизу вверх: внутренний scope выигрывает.
func (st *Stack) Env() map[string]string {
	st.mu.Lock()
	frames := append([]*Scope(nil), st.frames...)
	st.mu.Unlock()

	env := make(map[string]string)
	for _, f := range frames {
		for k, v := range f.Env() {
			env[k] = v
		}
	}
	return env
}

// Secrets возвращает значения для маскирования из всех фреймов.
func (st *Stack) Secrets() []string {
	st.mu.Lock()
	frames := append([]*Scope(nil), st.frames...)
	st.mu.Unlock()

	var out []string
	for _, f := range frames {
		out = append(out, f.Secrets()...)
	}
	return out
}

// Close закрывает все фреймы в обратном порядке.
func (st *Stack) Close() error {
	var errs []error
	for st.Depth() > 0 {
		if err := st.Pop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
