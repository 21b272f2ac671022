// Package cluster управляет deployment через kubectl.
//
// Kubectl реализует rollout.Source: статус deployment читается из
// `kubectl get deployment -o json` и интерпретируется так же, как это
// делает `kubectl rollout status`.
package cluster

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/rollout"
)

// Default configuration values.
const defaultBinary = "kubectl"

// Ошибки клиента kubectl.
var (
	// ErrInvalidResource — некорректный идентификатор deployment.
	ErrInvalidResource = errors.New("invalid deployment reference")

	// ErrNoExecutor — не задан Executor ни в Config, ни в контексте.
	ErrNoExecutor = errors.New("no executor configured")
)

// Ref — ссылка на deployment.
type Ref struct {
	Namespace string
	Name      string
}

// ParseRef разбирает "namespace/name", "deployment/name" или "name".
func ParseRef(s string) (Ref, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "deployment/")
	ns, name, ok := strings.Cut(s, "/")
	if !ok {
		name, ns = ns, ""
	}
	if name == "" || strings.Contains(name, "/") {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidResource, s)
	}
	return Ref{Namespace: ns, Name: name}, nil
}

// String возвращает "namespace/name" или "name".
func (r Ref) String() string {
	if r.Namespace == "" {
		return r.Name
	}
	return r.Namespace + "/" + r.Name
}

// Config — конфигурация Kubectl.
type Config struct {
	// Executor запускает kubectl.
	Executor executor.Executor

	// Binary — путь к kubectl (default: "kubectl").
	Binary string

	// Context — kube context (пусто — текущий).
	Context string

	// Logger
	Logger *slog.Logger
}

// Kubectl — клиент kubectl.
type Kubectl struct {
	exec    executor.Executor
	binary  string
	context string
	logger  *slog.Logger
}

// New создаёт новый Kubectl.
func New(cfg Config) *Kubectl {
	binary := cfg.Binary
	if binary == "" {
		binary = defaultBinary
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Kubectl{
		exec:    cfg.Executor,
		binary:  binary,
		context: cfg.Context,
		logger:  logger,
	}
}

// SetImage меняет образ контейнера deployment.
func (k *Kubectl) SetImage(ctx context.Context, ref Ref, container, image string) error {
	args := k.argv(ref.Namespace, "set", "image", "deployment/"+ref.Name, container+"="+image)
	_, err := k.run(ctx, &executor.Command{Args: args})
	return err
}

// ApplyPullSecret создаёт или обновляет docker-registry secret.
//
// Манифест собирается в процессе и передаётся через stdin, поэтому
// пароль не попадает ни в argv, ни в захваченный вывод.
func (k *Kubectl) ApplyPullSecret(ctx context.Context, namespace, name, server, username, password string) error {
	manifest, err := pullSecretManifest(namespace, name, server, username, password)
	if err != nil {
		return err
	}

	args := k.argv(namespace, "apply", "-f", "-")
	_, err = k.run(ctx, &executor.Command{Args: args, Stdin: manifest, Mask: []string{password}})
	return err
}

// Status реализует rollout.Source.
func (k *Kubectl) Status(ctx context.Context, resourceID string) (rollout.Status, error) {
	ref, err := ParseRef(resourceID)
	if err != nil {
		return rollout.Status{}, err
	}

	res, err := k.run(ctx, &executor.Command{Args: k.argv(ref.Namespace, "get", "deployment", ref.Name, "-o", "json")})
	if err != nil {
		return rollout.Status{}, err
	}

	status, err := DeploymentStatus([]byte(res.Output.String()))
	if err != nil {
		return rollout.Status{}, fmt.Errorf("%s: %w", ref, err)
	}
	k.logger.Debug("deployment status", "deployment", ref.String(), "state", status.State, "reason", status.Reason)
	return status, nil
}

// DeploymentStatus интерпретирует JSON объекта Deployment.
func DeploymentStatus(doc []byte) (rollout.Status, error) {
	if !gjson.ValidBytes(doc) {
		return rollout.Status{}, errors.New("deployment status is not valid JSON")
	}
	d := gjson.ParseBytes(doc)

	generation := d.Get("metadata.generation").Int()
	observed := d.Get("status.observedGeneration").Int()
	if observed < generation {
		return progressing("waiting for deployment spec update to be observed"), nil
	}

	progress := d.Get(`status.conditions.#(type=="Progressing")`)
	if progress.Get("reason").String() == "ProgressDeadlineExceeded" {
		return rollout.Status{
			State:  rollout.StateFailed,
			Reason: fmt.Sprintf("deployment %q exceeded its progress deadline", d.Get("metadata.name").String()),
		}, nil
	}

	desired := int64(1)
	if v := d.Get("spec.replicas"); v.Exists() {
		desired = v.Int()
	}
	updated := d.Get("status.updatedReplicas").Int()
	total := d.Get("status.replicas").Int()
	available := d.Get("status.availableReplicas").Int()

	switch {
	case updated < desired:
		return progressing(fmt.Sprintf("%d of %d updated replicas are available", updated, desired)), nil
	case total > updated:
		return progressing(fmt.Sprintf("%d old replicas are pending termination", total-updated)), nil
	case available < updated:
		return progressing(fmt.Sprintf("%d of %d updated replicas are available", available, updated)), nil
	}

	return rollout.Status{State: rollout.StateStable}, nil
}

func progressing(reason string) rollout.Status {
	return rollout.Status{State: rollout.StateProgressing, Reason: reason}
}

func (k *Kubectl) argv(namespace string, args ...string) []string {
	argv := []string{k.binary}
	if k.context != "" {
		argv = append(argv, "--context", k.context)
	}
	if namespace != "" {
		argv = append(argv, "--namespace", namespace)
	}
	return append(argv, args...)
}

func (k *Kubectl) run(ctx context.Context, cmd *executor.Command) (*executor.Result, error) {
	exec := executor.FromContext(ctx, k.exec)
	if exec == nil {
		return nil, fmt.Errorf("kubectl: %w", ErrNoExecutor)
	}
	res, err := exec.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("kubectl: %w", err)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// pullSecretManifest строит манифест Secret типа kubernetes.io/dockerconfigjson.
func pullSecretManifest(namespace, name, server, username, password string) ([]byte, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	config := map[string]any{
		"auths": map[string]any{
			server: map[string]string{
				"username": username,
				"password": password,
				"auth":     auth,
			},
		},
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("encode docker config: %w", err)
	}

	metadata := map[string]string{"name": name}
	if namespace != "" {
		metadata["namespace"] = namespace
	}
	secret := map[string]any{
		"apiVersion": "v1",
		"kind":       "Secret",
		"type":       "kubernetes.io/dockerconfigjson",
		"metadata":   metadata,
		"data": map[string]string{
			".dockerconfigjson": base64.StdEncoding.EncodeToString(configJSON),
		},
	}
	return json.Marshal(secret)
}
