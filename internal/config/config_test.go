package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/rollout"
	"github.com/shaiso/Conveyor/internal/secrets"
)

func TestLoad_Example(t *testing.T) {
	spec, err := Load("testdata/aceest.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spec.Name != "aceest-fitness" || len(spec.Stages) != 6 {
		t.Fatalf("unexpected spec: %s with %d stages", spec.Name, len(spec.Stages))
	}
	if Timeout(spec) != 45*time.Minute {
		t.Errorf("unexpected timeout: %s", Timeout(spec))
	}
	grace, poll := GateTiming(spec)
	if grace != 10*time.Second || poll != 5*time.Second {
		t.Errorf("unexpected gate timing: %s %s", grace, poll)
	}
	if RolloutInterval(spec) != 5*time.Second {
		t.Errorf("unexpected rollout interval: %s", RolloutInterval(spec))
	}
	if spec.Stages[2].Steps[0].Gate.Report != ".scannerwork/report-task.txt" {
		t.Errorf("unexpected gate: %+v", spec.Stages[2].Steps[0].Gate)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{
			name: "empty document",
			yaml: "",
			err:  ErrParse,
		},
		{
			name: "unknown field",
			yaml: "name: x\nstages:\n  - name: A\n    stpes: []\n",
			err:  ErrParse,
		},
		{
			name: "no name",
			yaml: "stages:\n  - name: A\n    steps:\n      - run: [true]\n",
			err:  ErrEmptyName,
		},
		{
			name: "no stages",
			yaml: "name: x\nstages: []\n",
			err:  ErrNoStages,
		},
		{
			name: "empty stage name",
			yaml: "name: x\nstages:\n  - steps:\n      - run: [true]\n",
			err:  ErrEmptyStageName,
		},
		{
			name: "duplicate stage",
			yaml: "name: x\nstages:\n  - name: A\n    steps: [{run: [a]}]\n  - name: A\n    steps: [{run: [b]}]\n",
			err:  ErrDuplicateStage,
		},
		{
			name: "stage without steps",
			yaml: "name: x\nstages:\n  - name: A\n",
			err:  ErrNoSteps,
		},
		{
			name: "step without kind",
			yaml: "name: x\nstages:\n  - name: A\n    steps:\n      - name: nothing\n",
			err:  ErrEmptyStep,
		},
		{
			name: "step with several kinds",
			yaml: "name: x\nstages:\n  - name: A\n    steps:\n      - run: [a]\n        rollout: {deployment: app}\n",
			err:  ErrAmbiguousStep,
		},
		{
			name: "unknown credential kind",
			yaml: "name: x\nstages:\n  - name: A\n    credentials: [{id: c, kind: certificate, env: C}]\n    steps: [{run: [a]}]\n",
			err:  ErrUnknownCredentialKind,
		},
		{
			name: "credential without variable",
			yaml: "name: x\nstages:\n  - name: A\n    credentials: [{id: c, kind: username_password, username_env: U}]\n    steps: [{run: [a]}]\n",
			err:  ErrInvalidCredential,
		},
		{
			name: "gate without timeout",
			yaml: "name: x\nstages:\n  - name: G\n    steps: [{gate: {id: g}}]\n",
			err:  ErrInvalidTimeout,
		},
		{
			name: "gate with zero timeout",
			yaml: "name: x\nstages:\n  - name: G\n    steps: [{gate: {id: g, timeout: 0s}}]\n",
			err:  ErrInvalidTimeout,
		},
		{
			name: "gate with bad timeout",
			yaml: "name: x\nstages:\n  - name: G\n    steps: [{gate: {id: g, timeout: soon}}]\n",
			err:  ErrInvalidDuration,
		},
		{
			name: "rollout without deployment",
			yaml: "name: x\nstages:\n  - name: D\n    steps: [{rollout: {namespace: prod}}]\n",
			err:  ErrMissingDeployment,
		},
		{
			name: "deploy without image",
			yaml: "name: x\nstages:\n  - name: D\n    steps: [{deploy: {deployment: app}}]\n",
			err:  ErrMissingImage,
		},
		{
			name: "nested scope without steps",
			yaml: "name: x\nstages:\n  - name: S\n    steps: [{scope: {credentials: [{id: t, kind: token, env: T}]}}]\n",
			err:  ErrNoSteps,
		},
		{
			name: "bad schedule",
			yaml: "name: x\nschedule: ['every day']\nstages:\n  - name: A\n    steps: [{run: [a]}]\n",
			err:  ErrInvalidSchedule,
		},
		{
			name: "empty hook command",
			yaml: "name: x\nstages:\n  - name: A\n    steps: [{run: [a]}]\nhooks:\n  always: [[]]\n",
			err:  ErrEmptyCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestParse_ValidationErrorContext(t *testing.T) {
	_, err := Parse([]byte("name: x\nstages:\n  - name: Deploy\n    steps:\n      - run: [a]\n      - rollout: {}\n"))

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Stage != "Deploy" || verr.Field != "steps[1].rollout.deployment" {
		t.Errorf("unexpected context: %+v", verr)
	}
	if !strings.Contains(err.Error(), "stage Deploy") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

// fakeCluster отвечает на kubectl get deployment как стабильный deployment.
func fakeCluster(cmd *executor.Command) executor.Reply {
	if len(cmd.Args) > 1 && cmd.Args[0] == "kubectl" && contains(cmd.Args, "get") {
		return executor.Reply{Lines: []string{
			`{"metadata":{"generation":1},"spec":{"replicas":1},"status":{"observedGeneration":1,"replicas":1,"updatedReplicas":1,"availableReplicas":1}}`,
		}}
	}
	return executor.Reply{}
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}

func TestBuild_RunsExample(t *testing.T) {
	spec, err := Load("testdata/aceest.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Gate не участвует: его проверяют тесты pipeline.
	spec.Stages = append(spec.Stages[:2], spec.Stages[3:]...)

	var loginStdin string
	rec := &executor.Recorder{Script: func(cmd *executor.Command) executor.Reply {
		if contains(cmd.Args, "login") {
			loginStdin = string(cmd.Stdin)
		}
		return fakeCluster(cmd)
	}}
	p, err := Build(spec, BuildOptions{HookExecutor: rec})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	assertNames(t, p.StageNames(), "Checkout", "Analyze", "Test", "Push", "Deploy")

	store := secrets.NewMemoryStore()
	store.PutToken("sonar-token", "sonar-secret")
	store.PutUsernamePassword("registry", "deployer", "hunter2")
	store.PutFile("kubeconfig", []byte("apiVersion: v1\nkind: Config\n"))

	runner := pipeline.NewRunner(pipeline.Config{
		Executor: rec,
		Secrets:  secrets.NewManager(secrets.ManagerConfig{Store: store}),
		Rollouts: rollout.NewMonitor(rollout.Config{
			Source:   rollout.SourceFunc(stableAfterOne()),
			Interval: time.Millisecond,
		}),
	})

	e := runner.Run(context.Background(), p, domain.Trigger{BuildID: "17", Source: domain.TriggerSourceSCM})
	if e.Outcome().Kind != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s: %s", e.Outcome(), e.Outcome().Detail)
	}

	var commands []string
	for _, c := range rec.Calls() {
		commands = append(commands, strings.Join(c.Args, " "))
	}
	want := []string{
		"git fetch --depth=1 origin",
		"sonar-scanner -Dsonar.projectKey=aceest",
		"pip install -r requirements.txt",
		"pytest -q",
		"docker build -t registry.example.com/aceest/app:build-17 .",
		"docker tag registry.example.com/aceest/app:build-17 registry.example.com/aceest/app:latest",
		"docker login --username deployer --password-stdin registry.example.com",
		"docker push registry.example.com/aceest/app:build-17",
		"docker push registry.example.com/aceest/app:latest",
		"docker logout registry.example.com",
		"kubectl --namespace aceest apply -f -",
		"kubectl --namespace aceest set image deployment/app app=registry.example.com/aceest/app:build-17",
		"echo deployed",
		"docker logout registry.example.com",
	}
	assertNames(t, commands, want...)

	calls := rec.Calls()
	if loginStdin != "hunter2" {
		t.Error("docker login should read the password from stdin")
	}
	if _, ok := calls[3].Env["SONAR_TOKEN"]; ok {
		t.Error("Test stage must not see the Analyze token")
	}
	if calls[11].Env["KUBECONFIG"] == "" {
		t.Error("Deploy stage should see the kubeconfig path")
	}
	if _, ok := calls[11].Env[registryPasswordVar]; ok {
		t.Error("registry password must be released after the pull secret step")
	}
}

func stableAfterOne() func(context.Context, string) (rollout.Status, error) {
	polls := 0
	return func(_ context.Context, resource string) (rollout.Status, error) {
		polls++
		if resource != "aceest/app" {
			return rollout.Status{}, errors.New("unexpected resource " + resource)
		}
		if polls == 1 {
			return rollout.Status{State: rollout.StateProgressing}, nil
		}
		return rollout.Status{State: rollout.StateStable}, nil
	}
}

func TestBuild_PushWithoutCredentialSkipsLogin(t *testing.T) {
	spec, err := Parse([]byte(`
name: local
stages:
  - name: Build
    steps:
      - push: {image: "localhost:5000/app:{{ .Build.ImageTag }}", context: ./app}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	rec := &executor.Recorder{}
	p, err := Build(spec, BuildOptions{Docker: registryBinary("/opt/docker")})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	e := pipeline.NewRunner(pipeline.Config{Executor: rec}).Run(context.Background(), p, domain.Trigger{BuildID: "3"})
	if e.Outcome().Kind != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s", e.Outcome())
	}

	var commands []string
	for _, c := range rec.Calls() {
		commands = append(commands, strings.Join(c.Args, " "))
	}
	assertNames(t, commands,
		"/opt/docker build -t localhost:5000/app:build-3 ./app",
		"/opt/docker push localhost:5000/app:build-3",
	)
}

func TestFileLoader_BuildsFreshPipeline(t *testing.T) {
	loader := &FileLoader{Path: "testdata/aceest.yaml", Options: BuildOptions{HookExecutor: &executor.Recorder{}}}

	first, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	second, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if first == second {
		t.Error("each load should build a new pipeline")
	}
	if first.Name() != "aceest-fitness" || first.Len() != 6 {
		t.Errorf("unexpected pipeline: %s with %d stages", first.Name(), first.Len())
	}

	if _, err := (&FileLoader{Path: "testdata/missing.yaml"}).Load(); err == nil {
		t.Error("expected error for missing file")
	}
}

func assertNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func registryBinary(path string) registry.Config {
	return registry.Config{Binary: path}
}
