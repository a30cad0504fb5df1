package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/strandway/relay/llmstream"
)

// SubagentStatus represents the lifecycle state of a subagent.
type SubagentStatus string

const (
	SubagentRunning   SubagentStatus = "running"
	SubagentCompleted SubagentStatus = "completed"
	SubagentFailed    SubagentStatus = "failed"
)

// SubagentHandle tracks a spawned subagent. The parent never receives
// its events; the handle exists for status inspection and shutdown.
type SubagentHandle struct {
	ID     string `json:"id"`
	Task   string `json:"task"`
	cancel context.CancelFunc

	mu     sync.Mutex
	status SubagentStatus
}

// Status returns the subagent's current lifecycle state.
func (h *SubagentHandle) Status() SubagentStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *SubagentHandle) setStatus(s SubagentStatus) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

// SubagentSupervisor spawns fire-and-forget worker loops. A spawned
// subagent runs a fresh conversation with a restricted tool set and a
// task-focused system prompt; its event stream is consumed here and
// logged, never mixed into the parent's stream. Subagent failures stop
// at the supervisor boundary.
type SubagentSupervisor struct {
	client   *llmstream.Client
	registry *ToolRegistry
	env      ExecutionEnvironment
	cfg      Config
	logger   *slog.Logger

	mu     sync.RWMutex
	agents map[string]*SubagentHandle
	wg     sync.WaitGroup
}

// NewSubagentSupervisor creates a supervisor that spawns subagents over
// the given client, tool registry and environment. registry is the
// parent's registry; the supervisor derives the restricted subagent set
// from it. A nil logger falls back to slog.Default().
func NewSubagentSupervisor(client *llmstream.Client, registry *ToolRegistry, env ExecutionEnvironment, cfg Config, logger *slog.Logger) *SubagentSupervisor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &SubagentSupervisor{
		client:   client,
		registry: registry,
		env:      env,
		cfg:      cfg,
		logger:   logger,
		agents:   make(map[string]*SubagentHandle),
	}
}

// CanSpawn returns true if nesting depth allows spawning.
func (s *SubagentSupervisor) CanSpawn() bool {
	return s.cfg.subagentDepth < s.cfg.MaxSubagentDepth
}

// Spawn starts a detached subagent for the task and returns immediately
// with an acknowledgement string. The subagent runs on its own context:
// cancelling the parent's request does not stop it.
func (s *SubagentSupervisor) Spawn(task string) (string, error) {
	if !s.CanSpawn() {
		return "", fmt.Errorf("maximum subagent depth (%d) reached", s.cfg.MaxSubagentDepth)
	}

	id := uuid.New().String()[:8]
	ctx, cancel := context.WithCancel(context.Background())

	handle := &SubagentHandle{
		ID:     id,
		Task:   task,
		cancel: cancel,
		status: SubagentRunning,
	}

	s.mu.Lock()
	s.agents[id] = handle
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runSubagent(ctx, handle, task)

	return fmt.Sprintf("Subagent %s started on task: %s. It works independently; its progress is logged, not returned.", id, task), nil
}

// runSubagent drives one subagent loop to completion, consuming its
// events into the log.
func (s *SubagentSupervisor) runSubagent(ctx context.Context, handle *SubagentHandle, task string) {
	defer s.wg.Done()
	logger := s.logger.With("subagent", handle.ID)

	defer func() {
		if r := recover(); r != nil {
			handle.setStatus(SubagentFailed)
			logger.Error("subagent panicked", "panic", r)
		}
	}()

	cfg := s.cfg
	cfg.subagentDepth = s.cfg.subagentDepth + 1

	registry := s.subagentRegistry(cfg)
	loop := NewLoop(s.client, registry, s.env, cfg)
	loop.SetSystemPrompt(SubagentSystemPrompt(s.env, task))

	events, err := loop.Submit(ctx, task)
	if err != nil {
		handle.setStatus(SubagentFailed)
		logger.Error("subagent failed to start", "error", err)
		return
	}

	failed := false
	for ev := range events {
		switch ev.Kind {
		case EventTextDelta:
			logger.Info("text", "delta", ev.Text)
		case EventToolInvoked:
			logger.Info("tool call", "tool", ev.ToolName, "call_id", ev.CallID)
		case EventToolCompleted:
			logger.Info("tool result", "tool", ev.ToolName, "call_id", ev.CallID, "is_error", ev.IsError)
		case EventError:
			failed = true
			logger.Error("error", "detail", ev.Text)
		case EventRoundLimit, EventLoopWarning:
			logger.Warn(string(ev.Kind), "detail", ev.Text)
		}
	}

	if failed {
		handle.setStatus(SubagentFailed)
	} else {
		handle.setStatus(SubagentCompleted)
	}
	logger.Info("subagent finished", "status", string(handle.Status()))
}

// subagentRegistry builds the restricted tool set for a child loop:
// the parent's tools minus spawning, plus the clarification stub.
func (s *SubagentSupervisor) subagentRegistry(cfg Config) *ToolRegistry {
	var registry *ToolRegistry
	if s.registry != nil {
		registry = s.registry.WithoutTool("spawn_subagent")
	} else {
		registry = NewToolRegistry()
		RegisterCoreTools(registry, cfg.DefaultCommandTimeoutMS, cfg.MaxCommandTimeoutMS)
	}
	registerAskUserStub(registry)
	return registry
}

// registerAskUserStub registers a clarification tool that cannot reach a
// user. Subagents have no interactive channel, so the stub answers with
// a fixed instruction to proceed on best judgment.
func registerAskUserStub(reg *ToolRegistry) {
	if reg.Get("ask_user") != nil {
		return
	}
	reg.MustRegister(RegisteredTool{
		Definition: llmstream.ToolDefinition{
			Name:        "ask_user",
			Description: "Ask the user a clarifying question.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]interface{}{
						"type":        "string",
						"description": "The question to ask.",
					},
				},
				"required": []string{"question"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			return "No user is available to answer. Proceed using your best judgment and note the assumption in your summary.", nil
		},
	})
}

// Get returns a subagent handle by ID, or nil.
func (s *SubagentSupervisor) Get(id string) *SubagentHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agents[id]
}

// List returns handles for all spawned subagents.
func (s *SubagentSupervisor) List() []*SubagentHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SubagentHandle, 0, len(s.agents))
	for _, h := range s.agents {
		out = append(out, h)
	}
	return out
}

// CloseAll cancels all running subagents and waits for them to wind down.
func (s *SubagentSupervisor) CloseAll() {
	s.mu.RLock()
	for _, handle := range s.agents {
		handle.cancel()
	}
	s.mu.RUnlock()
	s.wg.Wait()
}

// RegisterSubagentTool registers the spawn_subagent tool on a registry.
func RegisterSubagentTool(reg *ToolRegistry, sup *SubagentSupervisor) error {
	return reg.Register(RegisteredTool{
		Definition: llmstream.ToolDefinition{
			Name: "spawn_subagent",
			Description: "Start an autonomous subagent on a scoped task. Returns immediately; " +
				"the subagent works in the background and does not report back.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task": map[string]interface{}{
						"type":        "string",
						"description": "Natural language task description, with all the context the subagent needs.",
					},
				},
				"required": []string{"task"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			task, ok := GetStringArg(args, "task")
			if !ok || task == "" {
				return "", fmt.Errorf("task is required")
			}
			return sup.Spawn(task)
		},
	})
}
