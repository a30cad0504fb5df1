package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strandway/relay/llmstream"
)

// LoopState labels where a loop is in its round cycle.
type LoopState string

const (
	StateIdle        LoopState = "idle"
	StateStreaming   LoopState = "streaming"
	StateToolParsing LoopState = "tool_parsing"
	StateDispatching LoopState = "dispatching"
	StateTerminal    LoopState = "terminal"
)

// Loop drives the conversation with the model: it streams a response,
// reassembles any tool calls, dispatches them, folds the results back
// into the conversation and goes around again until the model answers
// with plain text or a limit is hit. One Loop owns one conversation.
type Loop struct {
	ID string

	client    *llmstream.Client
	registry  *ToolRegistry
	env       ExecutionEnvironment
	cfg       Config
	subagents *SubagentSupervisor

	mu           sync.Mutex
	history      []llmstream.Message
	systemPrompt string
	state        LoopState
	running      bool
}

// NewLoop creates a Loop over the given client, tool registry and
// execution environment. Config zero values are filled with defaults.
func NewLoop(client *llmstream.Client, registry *ToolRegistry, env ExecutionEnvironment, cfg Config) *Loop {
	cfg.applyDefaults()
	if registry == nil {
		registry = NewToolRegistry()
	}

	l := &Loop{
		ID:       uuid.New().String(),
		client:   client,
		registry: registry,
		env:      env,
		cfg:      cfg,
		state:    StateIdle,
	}
	l.systemPrompt = BuildSystemPrompt(env, registry, cfg)
	return l
}

// SetSystemPrompt replaces the assembled system prompt. For subagents
// and tests.
func (l *Loop) SetSystemPrompt(prompt string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.systemPrompt = prompt
}

// AttachSubagents wires a supervisor into the loop and registers the
// spawn tool. Must be called before the first Submit.
func (l *Loop) AttachSubagents(sup *SubagentSupervisor) error {
	l.subagents = sup
	return RegisterSubagentTool(l.registry, sup)
}

// State returns the loop's current state.
func (l *Loop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// History returns a copy of the conversation so far.
func (l *Loop) History() []llmstream.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]llmstream.Message, len(l.history))
	copy(out, l.history)
	return out
}

// AddUserMessage appends a user message without running the loop.
func (l *Loop) AddUserMessage(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, llmstream.UserMessage(text))
}

// Submit feeds one user input into the loop and returns the event
// channel for it. The channel is closed when the loop goes terminal for
// this input. Sends block: the loop advances at the pace of the
// consumer. A second Submit while one is in flight is an error.
func (l *Loop) Submit(ctx context.Context, input string) (<-chan AgentEvent, error) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil, fmt.Errorf("loop %s already has an input in flight", l.ID)
	}
	l.running = true
	l.history = append(l.history, llmstream.UserMessage(input))
	l.mu.Unlock()

	events := make(chan AgentEvent)
	go func() {
		defer close(events)
		defer func() {
			l.mu.Lock()
			l.running = false
			l.state = StateTerminal
			l.mu.Unlock()
		}()
		l.run(ctx, events)
	}()
	return events, nil
}

func (l *Loop) setState(s LoopState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) emit(ctx context.Context, events chan<- AgentEvent, ev AgentEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// run executes rounds until the model stops calling tools, a limit is
// hit, or the transport gives up.
func (l *Loop) run(ctx context.Context, events chan<- AgentEvent) {
	for round := 0; ; round++ {
		if round >= l.cfg.MaxRounds {
			l.emit(ctx, events, AgentEvent{
				Kind:      EventRoundLimit,
				Timestamp: time.Now(),
				Text:      fmt.Sprintf("Stopped after %d rounds without the model yielding a final answer.", round),
			})
			return
		}

		if !l.cfg.DisableLoopDetection && DetectLoop(l.History(), l.cfg.LoopDetectionWindow) {
			warning := "You appear to be repeating the same tool calls without making progress. Step back, reconsider the approach, and either try something different or explain why you are stuck."
			l.mu.Lock()
			l.history = append(l.history, llmstream.UserMessage(warning))
			l.mu.Unlock()
			l.emit(ctx, events, AgentEvent{
				Kind:      EventLoopWarning,
				Timestamp: time.Now(),
				Text:      warning,
			})
		}

		acc, err := l.streamRound(ctx, events)
		if err != nil {
			l.emit(ctx, events, errorEvent(fmt.Sprintf("Request failed after %d attempts: %v", l.cfg.RetryAttempts, err)))
			return
		}

		l.setState(StateToolParsing)
		if !acc.HasToolCalls() {
			if text := acc.Content(); text != "" {
				l.mu.Lock()
				l.history = append(l.history, llmstream.AssistantMessage(text))
				l.mu.Unlock()
			}
			return
		}

		l.setState(StateDispatching)
		recurse := l.dispatchRound(ctx, events, acc)
		if !recurse {
			return
		}
	}
}

// streamRound performs one retried request-and-drain. Every attempt gets
// a fresh accumulator; an error anywhere between issuing the request and
// stream end counts as a failed attempt.
func (l *Loop) streamRound(ctx context.Context, events chan<- AgentEvent) (*StreamAccumulator, error) {
	l.setState(StateStreaming)

	req := l.buildRequest()
	policy := llmstream.RetryPolicy{
		MaxAttempts: l.cfg.RetryAttempts,
		Interval:    l.cfg.RetryInterval(),
	}

	emit := func(ev AgentEvent) {
		l.emit(ctx, events, ev)
	}

	return llmstream.Retry(ctx, policy, func(ctx context.Context) (*StreamAccumulator, error) {
		acc := NewStreamAccumulator()
		ch, err := l.client.Stream(ctx, req)
		if err != nil {
			return nil, err
		}
		for chunk := range ch {
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			acc.Ingest(chunk, emit)
		}
		return acc, nil
	})
}

func (l *Loop) buildRequest() llmstream.Request {
	l.mu.Lock()
	defer l.mu.Unlock()

	messages := make([]llmstream.Message, 0, len(l.history)+1)
	if l.systemPrompt != "" {
		messages = append(messages, llmstream.SystemMessage(l.systemPrompt))
	}
	messages = append(messages, l.history...)

	maxTokens := l.cfg.MaxOutputTokens
	return llmstream.Request{
		Model:     l.cfg.Model,
		Provider:  l.cfg.Provider,
		Messages:  messages,
		ToolDefs:  l.registry.Definitions(),
		MaxTokens: &maxTokens,
	}
}

// dispatchRound executes the accumulated tool calls in order. Each
// dispatched call appends exactly two messages: the assistant message
// carrying the round's text and the call, and the tool result. Returns
// true when the loop should go another round.
func (l *Loop) dispatchRound(ctx context.Context, events chan<- AgentEvent, acc *StreamAccumulator) bool {
	calls := acc.Calls()
	roundText := acc.Content()
	dispatched := 0

	for _, call := range calls {
		args := call.Arguments
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			// A call whose arguments never became valid JSON poisons the
			// whole round: drop it and everything after it.
			l.emit(ctx, events, errorEvent(fmt.Sprintf(
				"Discarding tool call %s (%s): arguments are not valid JSON.", call.ID, call.Name)))
			return false
		}

		tool := l.registry.Get(call.Name)
		if tool == nil {
			l.emit(ctx, events, errorEvent(fmt.Sprintf(
				"Model requested unknown tool %q; skipping call %s.", call.Name, call.ID)))
			continue
		}

		l.emit(ctx, events, AgentEvent{
			Kind:      EventToolInvoked,
			Timestamp: time.Now(),
			CallIndex: call.Index,
			CallID:    call.ID,
			ToolName:  call.Name,
			Arguments: args,
		})

		result, execErr := l.safeExecute(ctx, tool, json.RawMessage(args))
		isError := execErr != nil
		if isError {
			result = fmt.Sprintf("Error executing %s: %v", call.Name, execErr)
		}

		l.emit(ctx, events, AgentEvent{
			Kind:      EventToolCompleted,
			Timestamp: time.Now(),
			CallIndex: call.Index,
			CallID:    call.ID,
			ToolName:  call.Name,
			Arguments: args,
			Result:    result,
			IsError:   isError,
		})

		// The event above carries the full result; the history gets the
		// truncated version.
		truncated := TruncateToolOutput(result, call.Name, l.cfg.ToolOutputCharLimits, l.cfg.ToolOutputLineLimits)

		assistantMsg := llmstream.AssistantToolCallMessage(roundText, llmstream.ToolCall{
			ID:       call.ID,
			Type:     "function",
			Function: llmstream.FunctionCall{Name: call.Name, Arguments: args},
		})

		l.mu.Lock()
		l.history = append(l.history, assistantMsg, llmstream.ToolResultMessage(call.ID, truncated))
		l.mu.Unlock()
		dispatched++
	}

	if dispatched == 0 {
		// Nothing ran; recursing would replay the identical request.
		if roundText != "" {
			l.mu.Lock()
			l.history = append(l.history, llmstream.AssistantMessage(roundText))
			l.mu.Unlock()
		}
		return false
	}
	return true
}

// safeExecute runs a tool executor with panic containment. A panicking
// tool becomes an error result instead of taking the loop down.
func (l *Loop) safeExecute(ctx context.Context, tool *RegisteredTool, args json.RawMessage) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Executor(ctx, args, l.env)
}
