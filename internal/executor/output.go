package executor

import (
	"bytes"
	"strings"
	"sync"
)

const maskReplacement = "****"

// Output — упорядоченный журнал объединённого stdout/stderr.
//
// Только добавление: строки никогда не изменяются и не удаляются.
// Безопасен для конкурентной записи из stdout и stderr.
type Output struct {
	mu      sync.Mutex
	lines   []string
	partial bytes.Buffer
	masks   []string
}

// NewOutput создаёт Output, маскирующий перечисленные значения.
func NewOutput(masks ...string) *Output {
	o := &Output{}
	for _, m := range masks {
		if m != "" {
			o.masks = append(o.masks, m)
		}
	}
	return o
}

// Write реализует io.Writer: разбивает поток на строки.
func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.partial.Write(p)
	for {
		data := o.partial.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := string(data[:i])
		o.partial.Next(i + 1)
		o.appendLocked(strings.TrimSuffix(line, "\r"))
	}
	return len(p), nil
}

// Append добавляет готовую строку.
func (o *Output) Append(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appendLocked(line)
}

// Flush дописывает незавершённую последнюю строку.
func (o *Output) Flush() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.partial.Len() > 0 {
		o.appendLocked(o.partial.String())
		o.partial.Reset()
	}
}

func (o *Output) appendLocked(line string) {
	for _, m := range o.masks {
		line = strings.ReplaceAll(line, m, maskReplacement)
	}
	o.lines = append(o.lines, line)
}

// Lines возвращает копию всех строк.
func (o *Output) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]string, len(o.lines))
	copy(out, o.lines)
	return out
}

// Tail возвращает последние n строк.
func (o *Output) Tail(n int) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n <= 0 || len(o.lines) == 0 {
		return nil
	}
	if n > len(o.lines) {
		n = len(o.lines)
	}
	out := make([]string, n)
	copy(out, o.lines[len(o.lines)-n:])
	return out
}

// Len возвращает количество строк.
func (o *Output) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.lines)
}

// String возвращает весь вывод одной строкой.
func (o *Output) String() string {
	return strings.Join(o.Lines(), "\n")
}
