package config

import (
	"fmt"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/secrets"
)

// Validate выполняет полную валидацию определения.
//
// Проверяет:
// - Имя pipeline и наличие stages
// - Уникальность имён stages
// - Что каждый шаг задаёт ровно один вид
// - Запросы credentials
// - Длительности и cron выражения
func Validate(spec *domain.PipelineSpec) error {
	if spec == nil {
		return ErrNoStages
	}
	if strings.TrimSpace(spec.Name) == "" {
		return NewValidationError("", "name", "pipeline has empty name", ErrEmptyName)
	}
	if len(spec.Stages) == 0 {
		return NewValidationError("", "stages", "pipeline has no stages", ErrNoStages)
	}

	if _, err := parseDuration("", "timeout", spec.Timeout); err != nil {
		return err
	}
	if spec.Gate != nil {
		if _, err := parseDuration("", "gate.grace_delay", spec.Gate.GraceDelay); err != nil {
			return err
		}
		if _, err := parseDuration("", "gate.poll_interval", spec.Gate.PollInterval); err != nil {
			return err
		}
	}
	if spec.Rollout != nil {
		if _, err := parseDuration("", "rollout.interval", spec.Rollout.Interval); err != nil {
			return err
		}
	}

	for _, expr := range spec.Schedule {
		if err := scheduler.ValidateCronExpr(expr); err != nil {
			return NewValidationError("", "schedule", err.Error(), ErrInvalidSchedule)
		}
	}

	seen := make(map[string]bool, len(spec.Stages))
	for i := range spec.Stages {
		stage := &spec.Stages[i]

		if strings.TrimSpace(stage.Name) == "" {
			return NewValidationError("", "name", fmt.Sprintf("stage #%d has empty name", i), ErrEmptyStageName)
		}
		if seen[stage.Name] {
			return NewValidationError(stage.Name, "name",
				fmt.Sprintf("duplicate stage name: %s", stage.Name), ErrDuplicateStage)
		}
		seen[stage.Name] = true

		if err := validateCredentials(stage.Name, "credentials", stage.Credentials); err != nil {
			return err
		}
		if err := validateSteps(stage.Name, "steps", stage.Steps); err != nil {
			return err
		}
	}

	if spec.Hooks != nil {
		for field, cmds := range map[string][][]string{
			"hooks.on_success": spec.Hooks.OnSuccess,
			"hooks.on_failure": spec.Hooks.OnFailure,
			"hooks.on_aborted": spec.Hooks.OnAborted,
			"hooks.always":     spec.Hooks.Always,
		} {
			for _, argv := range cmds {
				if len(argv) == 0 || argv[0] == "" {
					return NewValidationError("", field, "hook command is empty", ErrEmptyCommand)
				}
			}
		}
	}

	return nil
}

// validateSteps проверяет шаги stage или scope.
func validateSteps(stage, field string, steps []domain.StepSpec) error {
	if len(steps) == 0 {
		return NewValidationError(stage, field, "no steps", ErrNoSteps)
	}

	for i := range steps {
		step := &steps[i]
		at := fmt.Sprintf("%s[%d]", field, i)

		kinds := stepKinds(step)
		switch {
		case len(kinds) == 0:
			return NewValidationError(stage, at, "step has no kind (run, gate, rollout, push, deploy, scope)", ErrEmptyStep)
		case len(kinds) > 1:
			return NewValidationError(stage, at,
				fmt.Sprintf("step has several kinds: %s", strings.Join(kinds, ", ")), ErrAmbiguousStep)
		}

		if err := validateStep(stage, at, step); err != nil {
			return err
		}
	}
	return nil
}

// stepKinds возвращает заданные виды шага.
func stepKinds(step *domain.StepSpec) []string {
	var kinds []string
	if len(step.Run) > 0 {
		kinds = append(kinds, "run")
	}
	if step.Gate != nil {
		kinds = append(kinds, "gate")
	}
	if step.Rollout != nil {
		kinds = append(kinds, "rollout")
	}
	if step.Push != nil {
		kinds = append(kinds, "push")
	}
	if step.Deploy != nil {
		kinds = append(kinds, "deploy")
	}
	if step.Scope != nil {
		kinds = append(kinds, "scope")
	}
	return kinds
}

// validateStep проверяет параметры шага его вида.
func validateStep(stage, at string, step *domain.StepSpec) error {
	switch {
	case len(step.Run) > 0:
		if step.Run[0] == "" {
			return NewValidationError(stage, at+".run", "empty command", ErrEmptyCommand)
		}

	case step.Gate != nil:
		if step.Gate.ID == "" && step.Gate.Report == "" {
			return NewValidationError(stage, at+".gate", "gate requires id or report", ErrMissingGateID)
		}
		if step.Gate.Timeout == "" {
			return NewValidationError(stage, at+".gate.timeout", "gate timeout is required", ErrInvalidTimeout)
		}
		timeout, err := parseDuration(stage, at+".gate.timeout", step.Gate.Timeout)
		if err != nil {
			return err
		}
		if timeout <= 0 {
			return NewValidationError(stage, at+".gate.timeout", "gate timeout must be positive", ErrInvalidTimeout)
		}

	case step.Rollout != nil:
		if step.Rollout.Deployment == "" {
			return NewValidationError(stage, at+".rollout.deployment", "deployment is required", ErrMissingDeployment)
		}

	case step.Push != nil:
		if step.Push.Image == "" {
			return NewValidationError(stage, at+".push.image", "image is required", ErrMissingImage)
		}

	case step.Deploy != nil:
		if step.Deploy.Deployment == "" {
			return NewValidationError(stage, at+".deploy.deployment", "deployment is required", ErrMissingDeployment)
		}
		if step.Deploy.Image == "" {
			return NewValidationError(stage, at+".deploy.image", "image is required", ErrMissingImage)
		}
		if ps := step.Deploy.PullSecret; ps != nil && (ps.Name == "" || ps.Server == "" || ps.Credential == "") {
			return NewValidationError(stage, at+".deploy.pull_secret",
				"pull secret requires name, server and credential", ErrInvalidPullSecret)
		}

	case step.Scope != nil:
		if err := validateCredentials(stage, at+".scope.credentials", step.Scope.Credentials); err != nil {
			return err
		}
		return validateSteps(stage, at+".scope.steps", step.Scope.Steps)
	}

	return nil
}

// validateCredentials проверяет, что запросы можно привязать к окружению.
func validateCredentials(stage, field string, creds []domain.CredentialSpec) error {
	for i, c := range creds {
		at := fmt.Sprintf("%s[%d]", field, i)

		if c.ID == "" {
			return NewValidationError(stage, at+".id", "credential id is required", ErrInvalidCredential)
		}
		if _, err := request(c); err != nil {
			return NewValidationError(stage, at, err.Error(), err)
		}
	}
	return nil
}

// request превращает CredentialSpec в secrets.Request.
func request(c domain.CredentialSpec) (secrets.Request, error) {
	kind, err := secrets.ParseKind(c.Kind)
	if err != nil {
		return secrets.Request{}, fmt.Errorf("%w: %q", ErrUnknownCredentialKind, c.Kind)
	}

	req := secrets.Request{
		ID:          c.ID,
		Kind:        kind,
		Var:         c.Env,
		UsernameVar: c.UsernameEnv,
		PasswordVar: c.PasswordEnv,
	}

	switch kind {
	case secrets.KindUsernamePassword:
		if req.UsernameVar == "" || req.PasswordVar == "" {
			return secrets.Request{}, fmt.Errorf("%w: %s needs username_env and password_env", ErrInvalidCredential, c.ID)
		}
	default:
		if req.Var == "" {
			return secrets.Request{}, fmt.Errorf("%w: %s needs env", ErrInvalidCredential, c.ID)
		}
	}
	return req, nil
}
