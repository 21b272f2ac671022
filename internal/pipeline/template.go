package pipeline

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// TemplateData — данные для рендеринга аргументов команд.
//
// Доступны в Go templates:
//   - {{ .Env.IMAGE_REPO }}
//   - {{ .Build.ID }}, {{ .Build.ImageTag }}, {{ .Build.Revision }}
//   - {{ .Run.ID }}, {{ .Stage }}
type TemplateData struct {
	// Env — эффективное окружение stage.
	Env map[string]string

	// Build — данные запуска.
	Build BuildInfo

	// Run — данные выполнения.
	Run RunInfo

	// Stage — имя текущего stage.
	Stage string
}

// BuildInfo — данные сборки из trigger.
type BuildInfo struct {
	ID       string
	ImageTag string
	Revision string
	Source   string
}

// RunInfo — данные выполнения.
type RunInfo struct {
	ID       string
	Pipeline string
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val string) string {
		if val == "" {
			return def
		}
		return val
	},

	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
	"hasPrefix": strings.HasPrefix,

	// short — первые 7 символов ревизии
	"short": func(s string) string {
		if len(s) > 7 {
			return s[:7]
		}
		return s
	},
}

// Render рендерит строковый шаблон.
//
// Обращение к отсутствующей переменной окружения — ошибка рендеринга.
func Render(tmpl string, data *TemplateData) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderArgs рендерит каждый аргумент команды.
func RenderArgs(args []string, data *TemplateData) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		rendered, err := Render(a, data)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = rendered
	}
	return out, nil
}

// RenderMap рендерит значения карты.
func RenderMap(m map[string]string, data *TemplateData) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		rendered, err := Render(v, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = rendered
	}
	return out, nil
}
