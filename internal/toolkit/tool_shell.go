package toolkit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	execsafety "github.com/flowstack/sessioncore/internal/exec"
	"github.com/flowstack/sessioncore/internal/jobs"
	"github.com/flowstack/sessioncore/internal/shell"
	"github.com/flowstack/sessioncore/pkg/models"
)

// ShellTool exposes the sandbox's shell surface, grounded on the
// teacher's internal/exec argument sanitization plus
// internal/shell.ProcessRegistry for the multi-session bookkeeping
// spec.md §4.3 names: "exec/view/wait/write/kill sessions". A plain
// synchronous exec (the default action, no session left running) goes
// through Runner for single-shot commands and local-dev testability;
// a backgrounded exec is tracked in Registry so later view/wait/
// write/kill calls can address it by id, and mirrored into Jobs so
// background shell runs show up in the same async-tool-execution
// ledger any other long-running tool would use.
type ShellTool struct {
	// Runner executes a sanitized synchronous command line and returns
	// combined output. Defaults to a local os/exec runner; sandboxed
	// deployments override this to shell out through the sandbox's
	// exec endpoint instead.
	Runner  func(ctx context.Context, cwd, command string, args []string) (string, int, error)
	Timeout time.Duration

	Registry *shell.ProcessRegistry
	Jobs     jobs.Store

	mu        sync.Mutex
	processes map[string]*runningProcess
}

type runningProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	done   chan struct{}
}

type shellInput struct {
	// Action selects the operation: "exec" (default, synchronous),
	// "exec_background" (start and return immediately, tracked by ID),
	// "view", "wait", "write", "kill".
	Action string `json:"action"`

	Command string   `json:"command"`
	Args    []string `json:"args"`
	CWD     string   `json:"cwd"`

	ID        string `json:"id"`         // session id for view/wait/write/kill
	Input     string `json:"input"`      // stdin to send for "write"
	TimeoutMS int    `json:"timeout_ms"` // bound on "wait"
	Limit     int    `json:"limit"`      // page size for "jobs" (0 = all)
}

// NewShellTool returns a ShellTool that runs commands with os/exec,
// suitable for local development and unit tests.
func NewShellTool() *ShellTool {
	return &ShellTool{
		Timeout:   30 * time.Second,
		Runner:    runLocal,
		Registry:  shell.NewProcessRegistry(nil),
		Jobs:      jobs.NewMemoryStore(),
		processes: make(map[string]*runningProcess),
	}
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Description() string {
	return "Runs and manages shell sessions in the sandbox: exec, exec_background, view, wait, write, kill, jobs."
}

func (t *ShellTool) Execute(ctx context.Context, sessionID string, input json.RawMessage) (models.ToolResult, error) {
	var in shellInput
	if err := json.Unmarshal(input, &in); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid shell input: %v", err)}, nil
	}

	switch in.Action {
	case "", "exec":
		return t.exec(ctx, in)
	case "exec_background":
		return t.execBackground(ctx, in)
	case "view":
		return t.view(in)
	case "wait":
		return t.wait(in)
	case "write":
		return t.write(in)
	case "kill":
		return t.kill(ctx, in)
	case "jobs":
		return t.listJobs(ctx, in)
	default:
		return models.ToolResult{Success: false, Error: fmt.Sprintf("unknown shell action %q", in.Action)}, nil
	}
}

func (t *ShellTool) exec(ctx context.Context, in shellInput) (models.ToolResult, error) {
	if !execsafety.IsSafeExecutableValue(in.Command) {
		return models.ToolResult{Success: false, Error: "unsafe executable value"}, nil
	}
	sanitizedArgs, err := execsafety.SanitizeArguments(in.Args)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, exitCode, err := t.Runner(runCtx, in.CWD, in.Command, sanitizedArgs)
	if err != nil {
		return models.ToolResult{Success: false, Message: out, Error: err.Error(), Data: map[string]any{"exit_code": exitCode}}, nil
	}
	return models.ToolResult{Success: exitCode == 0, Message: out, Data: map[string]any{"exit_code": exitCode}}, nil
}

// execBackground starts a long-running process outside of Runner (it
// must keep writing output asynchronously) and registers it so
// view/wait/write/kill can address it afterward.
func (t *ShellTool) execBackground(ctx context.Context, in shellInput) (models.ToolResult, error) {
	if !execsafety.IsSafeExecutableValue(in.Command) {
		return models.ToolResult{Success: false, Error: "unsafe executable value"}, nil
	}
	sanitizedArgs, err := execsafety.SanitizeArguments(in.Args)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}

	id := uuid.NewString()
	cmd := exec.Command(in.Command, sanitizedArgs...)
	if in.CWD != "" {
		cmd.Dir = in.CWD
	}
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if err := cmd.Start(); err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}

	session := &shell.ProcessSession{
		ID:        id,
		Command:   strings.Join(append([]string{in.Command}, sanitizedArgs...), " "),
		CWD:       in.CWD,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	t.Registry.AddSession(session)

	proc := &runningProcess{cmd: cmd, stdin: stdinPipe, done: make(chan struct{})}
	t.mu.Lock()
	t.processes[id] = proc
	t.mu.Unlock()

	if t.Jobs != nil {
		jobCtx, cancel := context.WithCancel(context.Background())
		job := &jobs.Job{ID: id, ToolName: t.Name(), Status: jobs.StatusRunning, CreatedAt: time.Now(), StartedAt: time.Now()}
		if err := t.Jobs.Create(jobCtx, job); err != nil {
			cancel()
		} else if store, ok := t.Jobs.(*jobs.MemoryStore); ok {
			store.SetCancelFunc(id, cancel)
		} else {
			cancel()
		}
	}

	go t.pump(session, "stdout", stdoutPipe)
	go t.pump(session, "stderr", stderrPipe)
	go t.await(id, session, proc, cmd)

	return models.ToolResult{Success: true, Message: "started", Data: map[string]any{"id": id}}, nil
}

func (t *ShellTool) pump(session *shell.ProcessSession, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		t.Registry.AppendOutput(session, stream, scanner.Text()+"\n")
	}
}

func (t *ShellTool) await(id string, session *shell.ProcessSession, proc *runningProcess, cmd *exec.Cmd) {
	err := cmd.Wait()
	close(proc.done)

	status := shell.ProcessStatusCompleted
	var exitCode *int
	var exitSignal string
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			exitCode = &code
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				exitSignal = ws.Signal().String()
				status = shell.ProcessStatusKilled
			} else {
				status = shell.ProcessStatusFailed
			}
		} else {
			status = shell.ProcessStatusFailed
		}
	} else {
		code := 0
		exitCode = &code
	}
	t.Registry.MarkExited(session, exitCode, exitSignal, status)

	if t.Jobs != nil {
		if job, jerr := t.Jobs.Get(context.Background(), id); jerr == nil && job != nil {
			job.FinishedAt = time.Now()
			if status == shell.ProcessStatusCompleted {
				job.Status = jobs.StatusSucceeded
			} else {
				job.Status = jobs.StatusFailed
				if err != nil {
					job.Error = err.Error()
				}
			}
			_ = t.Jobs.Update(context.Background(), job)
		}
	}
}

func (t *ShellTool) view(in shellInput) (models.ToolResult, error) {
	session, ok := t.Registry.GetSession(in.ID)
	if !ok {
		if finished, ok := t.Registry.GetFinishedSession(in.ID); ok {
			return models.ToolResult{Success: true, Message: finished.Tail, Data: map[string]any{
				"status": finished.Status, "exit_code": finished.ExitCode,
			}}, nil
		}
		return models.ToolResult{Success: false, Error: fmt.Sprintf("unknown shell session %q", in.ID)}, nil
	}
	stdout, stderr := t.Registry.DrainSession(session)
	return models.ToolResult{Success: true, Message: session.Tail, Data: map[string]any{
		"stdout": stdout, "stderr": stderr, "exited": session.Exited,
	}}, nil
}

func (t *ShellTool) wait(in shellInput) (models.ToolResult, error) {
	t.mu.Lock()
	proc, ok := t.processes[in.ID]
	t.mu.Unlock()
	if !ok {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("unknown shell session %q", in.ID)}, nil
	}

	timeout := time.Duration(in.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-proc.done:
		return t.view(in)
	case <-time.After(timeout):
		return models.ToolResult{Success: true, Message: "still running", Data: map[string]any{"exited": false}}, nil
	}
}

func (t *ShellTool) write(in shellInput) (models.ToolResult, error) {
	t.mu.Lock()
	proc, ok := t.processes[in.ID]
	t.mu.Unlock()
	if !ok {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("unknown shell session %q", in.ID)}, nil
	}
	if _, err := io.WriteString(proc.stdin, in.Input); err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return models.ToolResult{Success: true, Message: "written"}, nil
}

func (t *ShellTool) kill(ctx context.Context, in shellInput) (models.ToolResult, error) {
	t.mu.Lock()
	proc, ok := t.processes[in.ID]
	t.mu.Unlock()
	if !ok {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("unknown shell session %q", in.ID)}, nil
	}
	if err := proc.cmd.Process.Kill(); err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if t.Jobs != nil {
		_ = t.Jobs.Cancel(ctx, in.ID)
	}
	return models.ToolResult{Success: true, Message: "killed"}, nil
}

// listJobs reports the async execution ledger for backgrounded shell
// runs, most recent first within the store's insertion order.
func (t *ShellTool) listJobs(ctx context.Context, in shellInput) (models.ToolResult, error) {
	if t.Jobs == nil {
		return models.ToolResult{Success: true, Data: map[string]any{"jobs": []*jobs.Job{}}}, nil
	}
	list, err := t.Jobs.List(ctx, in.Limit, 0)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return models.ToolResult{Success: true, Data: map[string]any{"jobs": list}}, nil
}

func runLocal(ctx context.Context, cwd, command string, args []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	output := strings.TrimSpace(buf.String())
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return output, exitErr.ExitCode(), err
		}
		return output, -1, err
	}
	return output, 0, nil
}
