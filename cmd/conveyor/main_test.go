package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/shaiso/Conveyor/internal/secrets"
)

const demoPipeline = `name: demo
env:
  IMAGE_REPO: registry.example.com/demo/app
stages:
  - name: Build
    steps:
      - run: [make, build]
  - name: Gate
    steps:
      - gate: {id: demo, timeout: 1m}
  - name: Push
    steps:
      - push:
          image: "{{ .Env.IMAGE_REPO }}:{{ .Build.ImageTag }}"
          credential: registry
  - name: Deploy
    credentials:
      - {id: kubeconfig, kind: file, env: KUBECONFIG}
    steps:
      - deploy:
          deployment: app
          namespace: demo
          image: "{{ .Env.IMAGE_REPO }}:{{ .Build.ImageTag }}"
          wait: true
hooks:
  on_success: [[echo, deployed]]
`

const demoCredentials = `credentials:
  - id: registry
    kind: username_password
    username: ci
    password: hunter2
  - id: kubeconfig
    kind: file
    content: "apiVersion: v1\n"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(viper.New())
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRun_DryRunSucceeds(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "conveyor.yaml", demoPipeline)
	creds := writeFile(t, dir, "credentials.yaml", demoCredentials)

	stdout, _, err := execute(t, "run", "-f", file, "--credentials", creds, "--build-id", "42", "--dry-run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, want := range []string{
		"==> Build",
		"$ make build",
		"gate demo: Passed",
		"$ docker build -t registry.example.com/demo/app:build-42",
		"$ kubectl --namespace demo set image deployment/app app=registry.example.com/demo/app:build-42",
		"rollout demo/app: stable",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("transcript missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "hunter2") {
		t.Error("registry password leaked into transcript")
	}
}

func TestRun_MissingCredentialExitsWithFailure(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "conveyor.yaml", demoPipeline)
	creds := writeFile(t, dir, "credentials.yaml", "credentials: []\n")

	_, _, err := execute(t, "run", "-f", file, "--credentials", creds, "--build-id", "42", "--dry-run")

	var exit *exitError
	if !errors.As(err, &exit) {
		t.Fatalf("expected exitError, got %v", err)
	}
	if exit.code != 1 {
		t.Errorf("expected exit code 1, got %d", exit.code)
	}
}

func TestRun_RequiresBuildID(t *testing.T) {
	file := writeFile(t, t.TempDir(), "conveyor.yaml", demoPipeline)

	_, _, err := execute(t, "run", "-f", file, "--dry-run")
	if err == nil || !strings.Contains(err.Error(), "--build-id") {
		t.Fatalf("expected build id error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	file := writeFile(t, t.TempDir(), "conveyor.yaml", demoPipeline)

	stdout, stderr, err := execute(t, "validate", "-f", file)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(stdout, "Deploy") || !strings.Contains(stdout, "kubeconfig") {
		t.Errorf("unexpected stage table:\n%s", stdout)
	}
	if !strings.Contains(stderr, "Pipeline demo is valid") {
		t.Errorf("unexpected stderr: %q", stderr)
	}
}

func TestValidate_FileFromEnvironment(t *testing.T) {
	file := writeFile(t, t.TempDir(), "broken.yaml", "name: broken\nstages: []\n")
	t.Setenv("CONVEYOR_FILE", file)

	_, _, err := execute(t, "validate")
	if err == nil {
		t.Fatal("expected validation error for empty pipeline")
	}
}

func TestCredentialsImport_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "creds.yaml", "credentials:\n  - {id: registry, kind: certificate}\n")

	_, _, err := execute(t, "credentials", "import", path)
	if !errors.Is(err, secrets.ErrInvalidCredentialsFile) {
		t.Fatalf("expected ErrInvalidCredentialsFile, got %v", err)
	}
}
