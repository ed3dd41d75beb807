// Package orchestrator is the façade Chat/session surface, grounded
// almost line for line on the original ai-manus project's
// agent_service.py (façade) and agent_domain_service.py (task binding,
// at-most-one-worker enforcement), with the per-session locking
// primitive ported from the teacher's
// internal/agent/tool_registry.go sessionLock/lockSession since the
// Python original relies on single-threaded asyncio and this module
// runs with real goroutine concurrency.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowstack/sessioncore/internal/agentloop"
	"github.com/flowstack/sessioncore/internal/agentmemory"
	"github.com/flowstack/sessioncore/internal/agentstore"
	"github.com/flowstack/sessioncore/internal/eventstream"
	"github.com/flowstack/sessioncore/internal/executor"
	"github.com/flowstack/sessioncore/internal/flow"
	"github.com/flowstack/sessioncore/internal/jsonrepair"
	"github.com/flowstack/sessioncore/internal/llmclient"
	"github.com/flowstack/sessioncore/internal/planner"
	"github.com/flowstack/sessioncore/internal/sandboxpool"
	"github.com/flowstack/sessioncore/internal/sessionstore"
	"github.com/flowstack/sessioncore/internal/taskrunner"
	"github.com/flowstack/sessioncore/internal/toolkit"
	"github.com/flowstack/sessioncore/pkg/models"
)

// SandboxClientFor adapts a sandboxpool.Handle to the interface
// taskrunner needs for tool-content enrichment. Implementations are
// backend-specific (e.g. sandboxhttp.Provisioner.ClientFor).
type SandboxClientFor func(handle *sandboxpool.Handle) taskrunner.SandboxClient

// Orchestrator is the top-level entry point: it owns every session's
// durable state and the goroutines driving their task runners.
type Orchestrator struct {
	agents   agentstore.Store
	sessions sessionstore.Store
	streams  eventstream.Factory
	sandbox  *sandboxpool.Pool
	memory   agentmemory.Store
	llm      llmclient.Client
	tools    *toolkit.Registry
	repairer jsonrepair.Repairer

	defaultModel       string
	defaultTemperature float64
	defaultMaxTokens   int
	executorSchemas    []llmclient.ToolSchema

	sandboxClientFor SandboxClientFor

	locks *sessionLocks

	mu      sync.Mutex
	runners map[string]*taskrunner.Runner
	wg      sync.WaitGroup
}

// Config bundles everything needed to wire an Orchestrator.
type Config struct {
	Agents             agentstore.Store
	Sessions           sessionstore.Store
	Streams            eventstream.Factory
	Sandbox            *sandboxpool.Pool
	Memory             agentmemory.Store
	LLM                llmclient.Client
	Tools              *toolkit.Registry
	DefaultModel        string
	DefaultTemperature float64
	DefaultMaxTokens   int
	SandboxClientFor   SandboxClientFor
}

// New returns an Orchestrator wired per cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		agents:             cfg.Agents,
		sessions:           cfg.Sessions,
		streams:            cfg.Streams,
		sandbox:            cfg.Sandbox,
		memory:             cfg.Memory,
		llm:                cfg.LLM,
		tools:              cfg.Tools,
		repairer:           llmclient.AsRepairer(cfg.LLM, cfg.DefaultModel),
		defaultModel:       cfg.DefaultModel,
		defaultTemperature: cfg.DefaultTemperature,
		defaultMaxTokens:   cfg.DefaultMaxTokens,
		executorSchemas:    toolSchemas(cfg.Tools),
		sandboxClientFor:   cfg.SandboxClientFor,
		locks:              newSessionLocks(),
		runners:            make(map[string]*taskrunner.Runner),
	}
}

// toolSchemas builds a permissive ToolSchema per registered tool: the
// registry only carries name/description, not a parameter schema, so
// every tool is advertised with a free-form object schema and the
// resilient JSON parser handles whatever shape the model emits for
// function.arguments.
func toolSchemas(registry *toolkit.Registry) []llmclient.ToolSchema {
	var schemas []llmclient.ToolSchema
	for _, name := range registry.Names() {
		tool, ok := registry.Get(name)
		if !ok {
			continue
		}
		schemas = append(schemas, llmclient.ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  map[string]any{"type": "object", "additionalProperties": true},
		})
	}
	return schemas
}

// CreateSession materializes a fresh Agent config and a PENDING
// Session bound to it.
func (o *Orchestrator) CreateSession(ctx context.Context) (*models.Session, error) {
	agent := &models.Agent{
		ID:          uuid.NewString(),
		ModelName:   o.defaultModel,
		Temperature: o.defaultTemperature,
		MaxTokens:   o.defaultMaxTokens,
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.agents.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("orchestrator: create agent: %w", err)
	}

	session := models.NewSession(uuid.NewString(), agent.ID)
	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("orchestrator: create session: %w", err)
	}
	return session, nil
}

func (o *Orchestrator) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return o.sessions.Get(ctx, id)
}

func (o *Orchestrator) GetAllSessions(ctx context.Context) ([]*models.Session, error) {
	return o.sessions.GetAll(ctx)
}

// GetSessionEvents returns the session's persisted event history, for
// the reference transport's GET /sessions/{id} (spec.md §6).
func (o *Orchestrator) GetSessionEvents(ctx context.Context, id string) ([]*models.SessionEvent, error) {
	return o.sessions.GetEvents(ctx, id)
}

// SandboxClient returns a sandbox client bound to the session's
// already-provisioned handle, for the reference transport's shell/file
// snapshot endpoints (§6). It does not provision a sandbox: a session
// that has never run has nothing to snapshot.
func (o *Orchestrator) SandboxClient(sessionID string) (taskrunner.SandboxClient, bool) {
	if o.sandboxClientFor == nil {
		return nil, false
	}
	handle, ok := o.sandbox.Lookup(sessionID)
	if !ok {
		return nil, false
	}
	return o.sandboxClientFor(handle), true
}

// DeleteSession stops any active run and removes the session entirely.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	if err := o.StopSession(ctx, id); err != nil && err != sessionstore.ErrNotFound {
		return err
	}
	if err := o.sandbox.Release(ctx, id); err != nil {
		return fmt.Errorf("orchestrator: release sandbox: %w", err)
	}
	return o.sessions.Delete(ctx, id)
}

// StopSession cancels the session's active task, if any, and marks it
// COMPLETED.
func (o *Orchestrator) StopSession(ctx context.Context, id string) error {
	unlock := o.locks.lock(id)
	defer unlock()

	runner := o.takeRunner(id)
	if runner == nil {
		return o.sessions.UpdateStatus(ctx, id, models.SessionCompleted)
	}
	return runner.Cancel(ctx)
}

func (o *Orchestrator) takeRunner(id string) *taskrunner.Runner {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.runners[id]
	delete(o.runners, id)
	return r
}

func (o *Orchestrator) setRunner(id string, r *taskrunner.Runner) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runners[id] = r
}

// Chat is the single legal way to inject user input. If message is
// non-empty and the session is not already RUNNING, it creates (or
// reuses) the session's task runner, queues the message, and launches
// the run in the background under the session's lock — guaranteeing
// at most one active worker per session. It then streams every event
// from the session's outbox starting at lastEventID, resetting the
// unread counter on each yield, until a terminal event is observed.
func (o *Orchestrator) Chat(ctx context.Context, sessionID, message, lastEventID string) (<-chan *models.SessionEvent, error) {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: chat: %w", err)
	}

	if message != "" && session.Status != models.SessionRunning {
		if err := o.startRun(ctx, session, message); err != nil {
			return nil, err
		}
	}

	out := make(chan *models.SessionEvent)
	go o.stream(ctx, sessionID, lastEventID, out)
	return out, nil
}

func (o *Orchestrator) startRun(ctx context.Context, session *models.Session, message string) error {
	unlock := o.locks.lock(session.ID)
	defer unlock()

	wasRunning := session.Status == models.SessionRunning
	wasWaiting := session.Status == models.SessionWaiting

	runner, flw, err := o.ensureRunner(ctx, session)
	if err != nil {
		return err
	}

	if session.Status != models.SessionPending {
		if err := flw.RollBack(ctx); err != nil {
			return fmt.Errorf("orchestrator: roll back session: %w", err)
		}
	}
	flw.Resume(wasRunning, wasWaiting)

	if err := o.sessions.UpdateStatus(ctx, session.ID, models.SessionRunning); err != nil {
		return fmt.Errorf("orchestrator: mark running: %w", err)
	}

	payload, err := json.Marshal(models.MemoryMessage{Role: models.RoleUser, Content: message})
	if err != nil {
		return fmt.Errorf("orchestrator: encode input: %w", err)
	}
	if _, err := o.streams.Inbox(session.ID).Put(ctx, payload); err != nil {
		return fmt.Errorf("orchestrator: queue input: %w", err)
	}

	userEvent := models.NewMessageEvent(models.RoleUser, message)
	id, err := o.streams.Outbox(session.ID).Put(ctx, mustMarshal(userEvent))
	if err != nil {
		return fmt.Errorf("orchestrator: append user message event: %w", err)
	}
	userEvent.ID = id
	if err := o.sessions.AppendEvent(ctx, session.ID, userEvent); err != nil {
		return fmt.Errorf("orchestrator: persist user message event: %w", err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		runCtx := context.Background()
		if err := runner.Run(runCtx); err != nil {
			errEvent := models.NewErrorEvent(err.Error())
			id, putErr := o.streams.Outbox(session.ID).Put(runCtx, mustMarshal(errEvent))
			if putErr == nil {
				errEvent.ID = id
				_ = o.sessions.AppendEvent(runCtx, session.ID, errEvent)
			}
			_ = o.sessions.UpdateStatus(runCtx, session.ID, models.SessionCompleted)
		}
	}()
	return nil
}

// ensureRunner returns the session's task runner, building a fresh one
// (reusing or acquiring a sandbox, reconstructing the in-flight plan
// from the session's event history) if none is active yet.
func (o *Orchestrator) ensureRunner(ctx context.Context, session *models.Session) (*taskrunner.Runner, *flow.Flow, error) {
	o.mu.Lock()
	if r, ok := o.runners[session.ID]; ok {
		o.mu.Unlock()
		return r, r.Flow(), nil
	}
	o.mu.Unlock()

	agent, err := o.agents.Get(ctx, session.AgentID)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: load agent: %w", err)
	}

	plannerLoop := agentloop.New(o.memory, o.llm, toolkit.NewExecutor(o.tools, toolkit.DefaultExecutorOptions()), agentloop.Options{})
	p := planner.New(plannerLoop, o.repairer, agent.ModelName)

	executorLoop := agentloop.New(o.memory, o.llm, toolkit.NewExecutor(o.tools, toolkit.DefaultExecutorOptions()), agentloop.Options{})
	e := executor.New(executorLoop, o.executorSchemas, agent.ModelName)

	plan, err := lastPlan(ctx, o.sessions, session.ID)
	if err != nil {
		return nil, nil, err
	}
	flw := flow.New(agent.ID, session.ID, p, e, plan)

	handle, err := o.sandbox.Acquire(ctx, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: acquire sandbox: %w", err)
	}
	if err := o.sessions.BindSandbox(ctx, session.ID, handle.ID); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: bind sandbox: %w", err)
	}

	var sandboxClient taskrunner.SandboxClient
	if o.sandboxClientFor != nil {
		sandboxClient = o.sandboxClientFor(handle)
	}

	release := func(ctx context.Context) error { return o.sandbox.Release(ctx, session.ID) }
	runner := taskrunner.New(session.ID, flw, o.sessions, o.streams, sandboxClient, release)

	o.setRunner(session.ID, runner)
	return runner, flw, nil
}

// lastPlan replays the session's persisted events looking for the most
// recent plan snapshot, so a resumed session picks its flow back up
// mid-plan instead of starting a new one.
func lastPlan(ctx context.Context, sessions sessionstore.Store, sessionID string) (*models.Plan, error) {
	events, err := sessions.GetEvents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load session events: %w", err)
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == models.EventPlan && events[i].Plan != nil {
			return events[i].Plan, nil
		}
	}
	return nil, nil
}

func (o *Orchestrator) stream(ctx context.Context, sessionID, lastEventID string, out chan<- *models.SessionEvent) {
	defer close(out)
	outbox := o.streams.Outbox(sessionID)
	cursor := lastEventID

	for {
		id, raw, err := outbox.Get(ctx, cursor, 1000)
		if err != nil {
			errEvent := models.NewErrorEvent(err.Error())
			select {
			case out <- errEvent:
			case <-ctx.Done():
			}
			return
		}
		if raw == nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		event, err := models.UnmarshalSessionEvent(raw)
		if err != nil {
			errEvent := models.NewErrorEvent(err.Error())
			select {
			case out <- errEvent:
			case <-ctx.Done():
			}
			return
		}
		cursor = id

		_ = o.sessions.ResetUnreadMessageCount(ctx, sessionID)

		select {
		case out <- event:
		case <-ctx.Done():
			return
		}

		if event.IsTerminal() {
			return
		}
	}
}

// Shutdown cancels and destroys every active task runner, bounded by
// ctx's deadline (spec.md's 30s shutdown budget).
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	runners := make([]*taskrunner.Runner, 0, len(o.runners))
	for id, r := range o.runners {
		runners = append(runners, r)
		delete(o.runners, id)
	}
	o.mu.Unlock()

	for _, r := range runners {
		if err := r.Cancel(ctx); err != nil {
			return fmt.Errorf("orchestrator: shutdown cancel: %w", err)
		}
		if err := r.Destroy(ctx); err != nil {
			return fmt.Errorf("orchestrator: shutdown destroy: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func mustMarshal(event *models.SessionEvent) json.RawMessage {
	raw, err := event.Marshal()
	if err != nil {
		panic(fmt.Sprintf("orchestrator: marshal event: %v", err))
	}
	return raw
}
