package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/flowstack/sessioncore/internal/jobs"
	"github.com/flowstack/sessioncore/pkg/models"
)

type stubTool struct {
	name    string
	calls   int
	results []models.ToolResult
	err     error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Execute(ctx context.Context, sessionID string, input json.RawMessage) (models.ToolResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) {
		return s.results[i], s.err
	}
	return s.results[len(s.results)-1], s.err
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "echo"})
	tool, ok := r.Get("echo")
	if !ok || tool.Name() != "echo" {
		t.Fatalf("Get(echo) = (%v, %v)", tool, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected missing tool to report false")
	}
}

func TestExecutor_Invoke_UnknownTool(t *testing.T) {
	e := NewExecutor(NewRegistry(), DefaultExecutorOptions())
	result := e.Invoke(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "nope"})
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if result.ToolCallID != "c1" {
		t.Errorf("ToolCallID = %q, want c1", result.ToolCallID)
	}
}

func TestExecutor_Invoke_RetriesThenSucceeds(t *testing.T) {
	stub := &stubTool{
		name: "flaky",
		results: []models.ToolResult{
			{Success: false, Error: "boom"},
			{Success: false, Error: "boom"},
			{Success: true, Message: "done"},
		},
	}
	r := NewRegistry()
	r.Register(stub)
	e := NewExecutor(r, ExecutorOptions{MaxAttempts: 3})

	result := e.Invoke(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "flaky"})
	if !result.Success || result.Message != "done" {
		t.Fatalf("Invoke() = %+v, want success after retries", result)
	}
	if stub.calls != 3 {
		t.Errorf("calls = %d, want 3", stub.calls)
	}
}

func TestExecutor_Invoke_ExhaustsRetries(t *testing.T) {
	stub := &stubTool{name: "always-fails", results: []models.ToolResult{{Success: false, Error: "nope"}}}
	r := NewRegistry()
	r.Register(stub)
	e := NewExecutor(r, ExecutorOptions{MaxAttempts: 3})

	result := e.Invoke(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "always-fails"})
	if result.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if stub.calls != 3 {
		t.Errorf("calls = %d, want 3", stub.calls)
	}
}

func TestExecutor_Invoke_ToolErrorSurfaces(t *testing.T) {
	stub := &stubTool{name: "erroring", results: []models.ToolResult{{}}, err: errors.New("transport down")}
	r := NewRegistry()
	r.Register(stub)
	e := NewExecutor(r, ExecutorOptions{MaxAttempts: 1})

	result := e.Invoke(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "erroring"})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error == "" {
		t.Error("expected an error message")
	}
}

func TestFileTool_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	ft := NewFileTool(dir)
	ctx := context.Background()

	writeInput, _ := json.Marshal(fileInput{Action: "write", Path: "notes/a.txt", Content: "hello"})
	res, err := ft.Execute(ctx, "session-1", writeInput)
	if err != nil || !res.Success {
		t.Fatalf("write: %+v, %v", res, err)
	}

	readInput, _ := json.Marshal(fileInput{Action: "read", Path: "notes/a.txt"})
	res, err = ft.Execute(ctx, "session-1", readInput)
	if err != nil || !res.Success || res.Message != "hello" {
		t.Fatalf("read: %+v, %v", res, err)
	}
}

func TestFileTool_RejectsEscape(t *testing.T) {
	dir := t.TempDir()
	ft := NewFileTool(dir)
	input, _ := json.Marshal(fileInput{Action: "read", Path: "../../etc/passwd"})
	res, err := ft.Execute(context.Background(), "session-1", input)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Success {
		t.Fatal("expected path escape to be rejected")
	}
}

func TestFileTool_RejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	ft := NewFileTool(dir)
	input, _ := json.Marshal(fileInput{Action: "read", Path: "/etc/passwd"})
	res, _ := ft.Execute(context.Background(), "session-1", input)
	if res.Success {
		t.Fatal("expected absolute path to be rejected")
	}
}

func TestFileTool_Replace(t *testing.T) {
	dir := t.TempDir()
	ft := NewFileTool(dir)
	ctx := context.Background()

	writeInput, _ := json.Marshal(fileInput{Action: "write", Path: "a.txt", Content: "hello world"})
	if res, err := ft.Execute(ctx, "session-1", writeInput); err != nil || !res.Success {
		t.Fatalf("write: %+v, %v", res, err)
	}

	replaceInput, _ := json.Marshal(fileInput{Action: "replace", Path: "a.txt", OldStr: "world", NewStr: "there"})
	res, err := ft.Execute(ctx, "session-1", replaceInput)
	if err != nil || !res.Success {
		t.Fatalf("replace: %+v, %v", res, err)
	}

	readInput, _ := json.Marshal(fileInput{Action: "read", Path: "a.txt"})
	res, err = ft.Execute(ctx, "session-1", readInput)
	if err != nil || res.Message != "hello there" {
		t.Fatalf("read after replace: %+v, %v", res, err)
	}
}

func TestFileTool_Replace_RejectsAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	ft := NewFileTool(dir)
	ctx := context.Background()

	writeInput, _ := json.Marshal(fileInput{Action: "write", Path: "a.txt", Content: "foo foo"})
	if res, err := ft.Execute(ctx, "session-1", writeInput); err != nil || !res.Success {
		t.Fatalf("write: %+v, %v", res, err)
	}

	replaceInput, _ := json.Marshal(fileInput{Action: "replace", Path: "a.txt", OldStr: "foo", NewStr: "bar"})
	res, err := ft.Execute(ctx, "session-1", replaceInput)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Success {
		t.Fatal("expected ambiguous old_str to be rejected")
	}
}

func TestFileTool_Search(t *testing.T) {
	dir := t.TempDir()
	ft := NewFileTool(dir)
	ctx := context.Background()

	writeInput, _ := json.Marshal(fileInput{Action: "write", Path: "a.txt", Content: "line one\nline two\nline three"})
	if res, err := ft.Execute(ctx, "session-1", writeInput); err != nil || !res.Success {
		t.Fatalf("write: %+v, %v", res, err)
	}

	searchInput, _ := json.Marshal(fileInput{Action: "search", Path: "a.txt", Pattern: "two"})
	res, err := ft.Execute(ctx, "session-1", searchInput)
	if err != nil || !res.Success {
		t.Fatalf("search: %+v, %v", res, err)
	}
	if res.Message != "2: line two" {
		t.Errorf("search message = %q, want %q", res.Message, "2: line two")
	}
}

func TestFileTool_Find(t *testing.T) {
	dir := t.TempDir()
	ft := NewFileTool(dir)
	ctx := context.Background()

	for _, p := range []string{"a.txt", "sub/b.txt", "sub/c.log"} {
		writeInput, _ := json.Marshal(fileInput{Action: "write", Path: p, Content: "x"})
		if res, err := ft.Execute(ctx, "session-1", writeInput); err != nil || !res.Success {
			t.Fatalf("write %s: %+v, %v", p, res, err)
		}
	}

	findInput, _ := json.Marshal(fileInput{Action: "find", Pattern: "*.txt"})
	res, err := ft.Execute(ctx, "session-1", findInput)
	if err != nil || !res.Success {
		t.Fatalf("find: %+v, %v", res, err)
	}
	paths, _ := res.Data.(map[string]any)["paths"].([]string)
	if len(paths) != 2 {
		t.Errorf("find returned %d paths, want 2: %v", len(paths), paths)
	}
}

func TestIsAskUser(t *testing.T) {
	if !IsAskUser("message_ask_user") {
		t.Error("expected message_ask_user to be recognized")
	}
	if IsAskUser("message_notify_user") {
		t.Error("expected message_notify_user to not be recognized as ask_user")
	}
}

func TestShellTool_RejectsUnsafeCommand(t *testing.T) {
	st := NewShellTool()
	input, _ := json.Marshal(shellInput{Command: "rm; rm -rf /", Args: nil})
	res, err := st.Execute(context.Background(), "s1", input)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Success {
		t.Fatal("expected unsafe command to be rejected")
	}
}

func TestShellTool_RunsWithStubbedRunner(t *testing.T) {
	st := NewShellTool()
	st.Runner = func(ctx context.Context, cwd, command string, args []string) (string, int, error) {
		return "hello", 0, nil
	}
	input, _ := json.Marshal(shellInput{Command: "echo", Args: []string{"hi"}})
	res, err := st.Execute(context.Background(), "s1", input)
	if err != nil || !res.Success || res.Message != "hello" {
		t.Fatalf("Execute() = %+v, %v", res, err)
	}
}

func TestShellTool_BackgroundExecViewWaitKill(t *testing.T) {
	st := NewShellTool()
	ctx := context.Background()

	startInput, _ := json.Marshal(shellInput{Action: "exec_background", Command: "sleep", Args: []string{"5"}})
	res, err := st.Execute(ctx, "s1", startInput)
	if err != nil || !res.Success {
		t.Fatalf("exec_background: %+v, %v", res, err)
	}
	id, _ := res.Data.(map[string]any)["id"].(string)
	if id == "" {
		t.Fatal("expected a session id in exec_background result")
	}

	viewInput, _ := json.Marshal(shellInput{Action: "view", ID: id})
	if res, err := st.Execute(ctx, "s1", viewInput); err != nil || !res.Success {
		t.Fatalf("view: %+v, %v", res, err)
	}

	waitInput, _ := json.Marshal(shellInput{Action: "wait", ID: id, TimeoutMS: 50})
	res, err = st.Execute(ctx, "s1", waitInput)
	if err != nil || !res.Success {
		t.Fatalf("wait: %+v, %v", res, err)
	}
	if exited, _ := res.Data.(map[string]any)["exited"].(bool); exited {
		t.Fatal("expected sleep 5 to still be running after a 50ms wait")
	}

	killInput, _ := json.Marshal(shellInput{Action: "kill", ID: id})
	if res, err := st.Execute(ctx, "s1", killInput); err != nil || !res.Success {
		t.Fatalf("kill: %+v, %v", res, err)
	}
}

func TestShellTool_JobsTracksBackgroundExec(t *testing.T) {
	st := NewShellTool()
	ctx := context.Background()

	startInput, _ := json.Marshal(shellInput{Action: "exec_background", Command: "true"})
	res, err := st.Execute(ctx, "s1", startInput)
	if err != nil || !res.Success {
		t.Fatalf("exec_background: %+v, %v", res, err)
	}
	id, _ := res.Data.(map[string]any)["id"].(string)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		job, gerr := st.Jobs.Get(ctx, id)
		if gerr != nil {
			t.Fatalf("Jobs.Get: %v", gerr)
		}
		if job != nil && job.Status == jobs.StatusSucceeded {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	jobsInput, _ := json.Marshal(shellInput{Action: "jobs"})
	res, err = st.Execute(ctx, "s1", jobsInput)
	if err != nil || !res.Success {
		t.Fatalf("jobs: %+v, %v", res, err)
	}
	list, _ := res.Data.(map[string]any)["jobs"].([]*jobs.Job)
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("jobs list = %+v, want one entry for %q", list, id)
	}
	if list[0].Status != jobs.StatusSucceeded {
		t.Errorf("job status = %v, want succeeded", list[0].Status)
	}
}

func TestShellTool_BackgroundExecWrite(t *testing.T) {
	st := NewShellTool()
	ctx := context.Background()

	startInput, _ := json.Marshal(shellInput{Action: "exec_background", Command: "cat"})
	res, err := st.Execute(ctx, "s1", startInput)
	if err != nil || !res.Success {
		t.Fatalf("exec_background: %+v, %v", res, err)
	}
	id, _ := res.Data.(map[string]any)["id"].(string)

	writeInput, _ := json.Marshal(shellInput{Action: "write", ID: id, Input: "hi\n"})
	if res, err := st.Execute(ctx, "s1", writeInput); err != nil || !res.Success {
		t.Fatalf("write: %+v, %v", res, err)
	}

	killInput, _ := json.Marshal(shellInput{Action: "kill", ID: id})
	if res, err := st.Execute(ctx, "s1", killInput); err != nil || !res.Success {
		t.Fatalf("kill: %+v, %v", res, err)
	}
}

func TestShellTool_UnknownSession(t *testing.T) {
	st := NewShellTool()
	ctx := context.Background()

	for _, action := range []string{"view", "wait", "write", "kill"} {
		input, _ := json.Marshal(shellInput{Action: action, ID: "missing"})
		res, err := st.Execute(ctx, "s1", input)
		if err != nil {
			t.Fatalf("%s: Execute returned error: %v", action, err)
		}
		if res.Success {
			t.Errorf("%s: expected failure for unknown session", action)
		}
	}
}
