package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/droverhq/drover/internal/plans"
	"github.com/droverhq/drover/internal/swarm"
)

// runCLI executes the root command with args, capturing everything written
// to stdout (commands print with fmt directly, like the rest of the CLI).
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(resetFlags)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w

	rootCmd.SetOut(w)
	rootCmd.SetErr(w)
	rootCmd.SetArgs(args)
	execErr := rootCmd.Execute()

	os.Stdout = orig
	w.Close()
	out, _ := io.ReadAll(r)
	r.Close()
	return string(out), execErr
}

// resetFlags clears command flag variables between runs; pflag only
// re-applies defaults for flags present on the command line.
func resetFlags() {
	dispatchRun = false
	dispatchWorktrees = false
	dispatchTasks = ""
	applyRun = false
	cleanArtifacts = false
}

// setupWorkspace moves the test into a fresh directory and creates the
// state dir the default config resolves to.
func setupWorkspace(t *testing.T) string {
	t.Helper()

	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("failed to enter workspace: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	stateDir := filepath.Join(cwd, ".ai")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatalf("failed to create state dir: %v", err)
	}
	return stateDir
}

func writePlan(t *testing.T, stateDir, name string) {
	t.Helper()
	path := filepath.Join(stateDir, "plan-"+name+".md")
	if err := os.WriteFile(path, []byte("# "+name+"\n\n1. do the thing\n"), 0o644); err != nil {
		t.Fatalf("failed to write plan artifact: %v", err)
	}
}

// feedStdin replaces os.Stdin with a pipe holding data, the way the session
// host delivers hook events.
func feedStdin(t *testing.T, data string) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	if _, err := w.WriteString(data); err != nil {
		t.Fatalf("failed to write stdin: %v", err)
	}
	w.Close()

	orig := os.Stdin
	os.Stdin = r
	t.Cleanup(func() {
		os.Stdin = orig
		r.Close()
	})
}

// fakeHost serves the session host's JSON-RPC surface: every session's
// final assistant message is the given reply.
func fakeHost(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	var (
		mu       sync.Mutex
		sessions int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
			ID     any            `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case "session/create":
			mu.Lock()
			sessions++
			id := fmt.Sprintf("host-sess-%d", sessions)
			mu.Unlock()
			result = map[string]any{"sessionId": id}
		case "session/prompt":
			result = map[string]any{}
		case "session/messages":
			result = map[string]any{"messages": []map[string]any{
				{"role": "user", "parts": []map[string]any{{"type": "text", "text": "prompt"}}},
				{"role": "assistant", "parts": []map[string]any{{"type": "text", "text": reply}}},
			}}
		default:
			http.Error(w, "unknown method "+req.Method, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRootRegistersSubcommands(t *testing.T) {
	if rootCmd.Use != "drover" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "drover")
	}

	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"dispatch", "apply", "plans", "swarms", "agents", "clean", "watch", "hook"} {
		if !names[want] {
			t.Errorf("expected subcommand %q registered", want)
		}
	}
}

func TestAgentsListsPersonas(t *testing.T) {
	setupWorkspace(t)

	out, err := runCLI(t, "agents")
	if err != nil {
		t.Fatalf("agents failed: %v", err)
	}
	for _, want := range []string{"implementer", "reviewer", "plan-author", "via /plan only", "via dispatch_swarm only"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in the listing, got:\n%s", want, out)
		}
	}
}

func TestAgentsIncludesManifestOverrides(t *testing.T) {
	stateDir := setupWorkspace(t)

	agentsDir := filepath.Join(stateDir, "agents")
	if err := os.MkdirAll(agentsDir, 0o755); err != nil {
		t.Fatalf("failed to create agents dir: %v", err)
	}
	manifest := "---\nname: migrator\ndescription: runs schema migrations\ndirect: true\n---\nYou migrate schemas.\n"
	if err := os.WriteFile(filepath.Join(agentsDir, "migrator.md"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	out, err := runCLI(t, "agents")
	if err != nil {
		t.Fatalf("agents failed: %v", err)
	}
	if !strings.Contains(out, "migrator") || !strings.Contains(out, "runs schema migrations") {
		t.Errorf("expected the manifest persona listed, got:\n%s", out)
	}
}

func TestDispatchSinglePlanRedirects(t *testing.T) {
	stateDir := setupWorkspace(t)
	writePlan(t, stateDir, "auth-login")

	_, err := runCLI(t, "dispatch", "auth-login")
	if err == nil {
		t.Fatal("expected a rejection for a single plan")
	}
	if !strings.Contains(err.Error(), "drover apply auth-login") {
		t.Errorf("expected the singular alternative named, got %q", err)
	}
}

func TestDispatchRejectsInvalidNames(t *testing.T) {
	setupWorkspace(t)

	_, err := runCLI(t, "dispatch", "Bad_Name", "auth-login")
	if err == nil {
		t.Fatal("expected a rejection for an invalid name")
	}
	if !strings.Contains(err.Error(), "Bad_Name") {
		t.Errorf("expected the offending name echoed, got %q", err)
	}
}

func TestDispatchReportsMissingArtifacts(t *testing.T) {
	setupWorkspace(t)

	_, err := runCLI(t, "dispatch", "auth-login", "db-migrate")
	if err == nil {
		t.Fatal("expected a rejection for missing artifacts")
	}
	for _, name := range []string{"auth-login", "db-migrate"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("expected %q in the report, got %q", name, err)
		}
	}
}

func TestDispatchPrintsPayload(t *testing.T) {
	stateDir := setupWorkspace(t)
	writePlan(t, stateDir, "auth-login")
	writePlan(t, stateDir, "db-migrate")

	out, err := runCLI(t, "dispatch", "auth-login", "db-migrate")
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if !strings.Contains(out, "dispatching 2 plans") {
		t.Errorf("expected the explanation echoed, got:\n%s", out)
	}
	if !strings.Contains(out, `"planArtifactPath"`) {
		t.Errorf("expected the payload JSON printed, got:\n%s", out)
	}
}

func TestDispatchTasksPrintsRequests(t *testing.T) {
	setupWorkspace(t)

	out, err := runCLI(t, "dispatch", "--tasks", "implementer: add request logging\nreviewer: check the diff")
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if !strings.Contains(out, `"agent": "implementer"`) || !strings.Contains(out, `"agent": "reviewer"`) {
		t.Errorf("expected both task requests printed, got:\n%s", out)
	}
}

func TestDispatchTasksExclusiveWithNames(t *testing.T) {
	stateDir := setupWorkspace(t)
	writePlan(t, stateDir, "auth-login")

	_, err := runCLI(t, "dispatch", "auth-login", "--tasks", "implementer: x")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected a mutual-exclusion error, got %v", err)
	}
}

func TestDispatchRunExecutesPlans(t *testing.T) {
	stateDir := setupWorkspace(t)
	writePlan(t, stateDir, "auth-login")
	writePlan(t, stateDir, "db-migrate")

	preg := plans.New(stateDir, 0)
	if err := preg.Register("author-session-1", "auth-login"); err != nil {
		t.Fatalf("failed to seed plan registry: %v", err)
	}

	srv := fakeHost(t, `{"status": "completed", "filesChanged": ["src/auth.go"], "summary": "done"}`)
	t.Setenv("DROVER_WORKER_BASE_URL", srv.URL)

	out, err := runCLI(t, "dispatch", "auth-login", "db-migrate", "--run")
	if err != nil {
		t.Fatalf("dispatch --run failed: %v", err)
	}
	if !strings.Contains(out, "completed") {
		t.Errorf("expected the outcome printed, got:\n%s", out)
	}

	records, err := swarm.New(stateDir, 0).List()
	if err != nil {
		t.Fatalf("failed to list swarms: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one swarm recorded, got %d", len(records))
	}
	rec := records[0]
	if rec.Status != swarm.StatusCompleted {
		t.Errorf("expected swarm completed, got %q", rec.Status)
	}
	if rec.Tasks[0].ID != "auth-login" || rec.Tasks[1].ID != "db-migrate" {
		t.Errorf("expected plan names as task IDs, got %q and %q", rec.Tasks[0].ID, rec.Tasks[1].ID)
	}

	entries, err := preg.List()
	if err != nil {
		t.Fatalf("failed to list plans: %v", err)
	}
	if len(entries) != 1 || entries[0].Record.Status != plans.StatusExecuted {
		t.Errorf("expected auth-login marked executed, got %+v", entries)
	}
}

func TestApplyResolvesPartialAndMarksExecuted(t *testing.T) {
	stateDir := setupWorkspace(t)
	writePlan(t, stateDir, "auth-login")
	writePlan(t, stateDir, "db-migrate")

	preg := plans.New(stateDir, 0)
	if err := preg.Register("author-session-2", "auth-login"); err != nil {
		t.Fatalf("failed to seed plan registry: %v", err)
	}

	out, err := runCLI(t, "apply", "login")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !strings.Contains(out, "Plan: auth-login") {
		t.Errorf("expected the resolved plan printed, got:\n%s", out)
	}

	entries, err := preg.List()
	if err != nil {
		t.Fatalf("failed to list plans: %v", err)
	}
	if len(entries) != 1 || entries[0].Record.Status != plans.StatusExecuted {
		t.Errorf("expected auth-login marked executed, got %+v", entries)
	}
}

func TestApplyAmbiguousListsCandidates(t *testing.T) {
	stateDir := setupWorkspace(t)
	writePlan(t, stateDir, "auth-login")
	writePlan(t, stateDir, "auth-logout")

	_, err := runCLI(t, "apply", "auth")
	if err == nil {
		t.Fatal("expected an ambiguity error")
	}
	if !strings.Contains(err.Error(), "auth-login") || !strings.Contains(err.Error(), "auth-logout") {
		t.Errorf("expected both candidates listed, got %q", err)
	}
}

func TestApplyUnknownPlan(t *testing.T) {
	setupWorkspace(t)

	_, err := runCLI(t, "apply", "zzz")
	if err == nil || !strings.Contains(err.Error(), "no plan matching") {
		t.Fatalf("expected a no-match error, got %v", err)
	}
}

func TestCleanDropsRegistry(t *testing.T) {
	stateDir := setupWorkspace(t)
	writePlan(t, stateDir, "auth-login")

	preg := plans.New(stateDir, 0)
	if err := preg.Register("author-session-3", "auth-login"); err != nil {
		t.Fatalf("failed to seed plan registry: %v", err)
	}

	if _, err := runCLI(t, "clean"); err != nil {
		t.Fatalf("clean failed: %v", err)
	}
	if _, err := os.Stat(preg.Path()); !os.IsNotExist(err) {
		t.Error("expected the registry file removed")
	}
	if !preg.ArtifactExists("auth-login") {
		t.Error("expected the artifact kept without --artifacts")
	}

	if _, err := runCLI(t, "clean", "--artifacts"); err != nil {
		t.Fatalf("clean --artifacts failed: %v", err)
	}
	if preg.ArtifactExists("auth-login") {
		t.Error("expected the artifact removed with --artifacts")
	}
}

func TestHookPreAllowsAndEchoesCall(t *testing.T) {
	setupWorkspace(t)
	feedStdin(t, `{"tool_name": "Bash", "session_id": "sess-hook-1", "call_id": "c1", "tool_input": {"command": "ls -la"}}`)

	out, err := runCLI(t, "hook", "pre-tool")
	if err != nil {
		t.Fatalf("pre-tool failed: %v", err)
	}
	if !strings.Contains(out, `"tool_name":"Bash"`) || !strings.Contains(out, "ls -la") {
		t.Errorf("expected the call echoed as JSON, got:\n%s", out)
	}
}

func TestHookPreRegistersPlanArtifact(t *testing.T) {
	stateDir := setupWorkspace(t)

	path := filepath.Join(stateDir, "plan-checkout.md")
	event := fmt.Sprintf(`{"tool_name": "Write", "session_id": "hook-author-session", "call_id": "c2", "tool_input": {"file_path": %q, "content": "# checkout"}}`, path)
	feedStdin(t, event)

	if _, err := runCLI(t, "hook", "pre-tool"); err != nil {
		t.Fatalf("pre-tool failed: %v", err)
	}

	// The host performs the write after the hook allows it.
	writePlan(t, stateDir, "checkout")

	rec, err := plans.New(stateDir, 0).Lookup("hook-author-session")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if rec == nil || rec.Plan != "checkout" {
		t.Fatalf("expected the plan registered, got %+v", rec)
	}
	if rec.Status != plans.StatusCreated {
		t.Errorf("expected status created, got %q", rec.Status)
	}
}

func TestHookPostAppendsAudit(t *testing.T) {
	stateDir := setupWorkspace(t)
	feedStdin(t, `{"tool_name": "Write", "session_id": "hook-writer-session", "tool_input": {"file_path": "/repo/main.go"}, "tool_output": "ok"}`)

	if _, err := runCLI(t, "hook", "post-tool"); err != nil {
		t.Fatalf("post-tool failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(stateDir, "swarm-audit.log"))
	if err != nil {
		t.Fatalf("expected an audit line: %v", err)
	}
	line := string(data)
	for _, want := range []string{"Write", "hook-wri", "/repo/main.go"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in the audit line, got %q", want, line)
		}
	}
}

func TestHookPreRejectsMalformedEvent(t *testing.T) {
	setupWorkspace(t)
	feedStdin(t, `{"session_id": "no-tool"}`)

	if _, err := runCLI(t, "hook", "pre-tool"); err == nil || !strings.Contains(err.Error(), "tool_name") {
		t.Fatalf("expected a decode error naming tool_name, got %v", err)
	}
}
