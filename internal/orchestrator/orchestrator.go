package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
)

// Defaults applied when make_decision omits fields, or when a run ends
// without any decision at all.
const (
	defaultNoDecisionOutput = "Workflow did not produce a decision."
	defaultRefuseOutput     = "I cannot answer this based on the provided documents."
	defaultAnswerOutput     = "No output provided."
	decisionAck             = "Decision recorded."
)

// Config carries the orchestrating-model parameters and loop bounds.
type Config struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxTurns      int
	MaxConcurrent int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.1
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 15
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	return c
}

// Orchestrator runs bounded-turn tool-use agent loops. It holds only static
// state (registry, clients, config) and is safe for concurrent Run calls;
// all per-run state lives on the stack of Run.
type Orchestrator struct {
	client       TurnClient
	tools        *tool.Registry
	execProvider llm.Provider
	execRoute    llm.ModelRoute
	cfg          Config
	log          *zap.Logger
}

// New creates an Orchestrator. The execution provider and route identify
// the model under evaluation, reachable only through call_model.
func New(client TurnClient, tools *tool.Registry, execProvider llm.Provider, execRoute llm.ModelRoute, cfg Config, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		client:       client,
		tools:        tools,
		execProvider: execProvider,
		execRoute:    execRoute,
		cfg:          cfg.withDefaults(),
		log:          log,
	}
}

// recorder accumulates the trace and forwards entries to the optional
// streaming observer.
type recorder struct {
	entries  []TraceEntry
	observer func(TraceEntry)
	decided  bool
}

func (r *recorder) add(e TraceEntry) {
	r.entries = append(r.entries, e)
	if e.Step == StepDecision {
		r.decided = true
	}
	if r.observer != nil {
		r.observer(e)
	}
}

// Run executes one evaluation workflow. It returns an error only for an
// invalid request; every started run yields a well-formed RunResult whose
// trace ends with exactly one decision entry.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if err := req.Validate(); err != nil {
		return RunResult{}, err
	}

	log := o.log
	if req.WorkflowID != "" {
		log = log.With(zap.String("workflow_id", req.WorkflowID))
	}

	ec := tool.NewExecContext(o.execProvider, o.execRoute, o.cfg.MaxConcurrent)
	rec := &recorder{observer: req.Observer}
	system := systemPrompt(o.cfg.MaxTurns)
	schemas := o.tools.Schemas()

	messages := []Message{
		{Role: RoleUser, Content: []ContentBlock{TextBlock(buildUserMessage(req))}},
	}

	finalDecision := tool.DecisionRefuse
	finalOutput := defaultNoDecisionOutput
	state := StateTerminatedByExhaustion
	turns := 0

	for turn := 0; turn < o.cfg.MaxTurns; turn++ {
		turns = turn + 1
		log.Info("orchestrator turn",
			zap.Int("turn", turn+1),
			zap.Int("max_turns", o.cfg.MaxTurns))

		resp, err := o.client.CreateTurn(ctx, TurnRequest{
			Model:       o.cfg.Model,
			System:      system,
			MaxTokens:   o.cfg.MaxTokens,
			Temperature: o.cfg.Temperature,
			Tools:       schemas,
			Messages:    messages,
		})
		if err != nil {
			log.Error("orchestrator model call failed", zap.Error(err))
			rec.add(TraceEntry{Step: StepError, Output: fmt.Sprintf("Orchestrator error: %v", err)})
			state = StateTerminatedByError
			break
		}

		reasoning := joinText(resp.Content)
		if reasoning != "" {
			rec.add(TraceEntry{Step: StepReasoning, Output: reasoning})
		}

		if resp.StopReason != StopToolUse {
			log.Info("orchestrator stopped without tool use")
			if reasoning != "" {
				finalOutput = reasoning
			}
			state = StateTerminatedByModelStop
			break
		}

		// Process tool calls strictly in the order the model emitted
		// them. A make_decision call marks the run for termination but
		// must not short-circuit: every ToolUse still gets its
		// ToolResult so the protocol stays well-formed.
		toolResults := make([]ContentBlock, 0, len(resp.Content))
		decided := false

		for _, block := range resp.Content {
			if block.Type != BlockToolUse {
				continue
			}
			log.Info("tool call", zap.String("tool", block.Name))

			if block.Name == tool.NameMakeDecision {
				finalDecision, finalOutput = decisionFields(block.Input)
				rec.add(TraceEntry{Step: StepDecision, Decision: finalDecision, Output: finalOutput})
				toolResults = append(toolResults, ToolResultBlock(block.ID, decisionAck, false))
				decided = true
				continue
			}

			c, ok := o.tools.Lookup(block.Name)
			if !ok {
				msg := fmt.Sprintf("Unknown tool: %s", block.Name)
				log.Warn(msg)
				toolResults = append(toolResults, ToolResultBlock(block.ID, msg, true))
				rec.add(TraceEntry{Step: block.Name, Output: msg})
				continue
			}

			result, err := c.Execute(ctx, block.Input, ec)
			if err != nil {
				msg := fmt.Sprintf("Tool execution error: %v", err)
				log.Error(msg, zap.String("tool", block.Name))
				toolResults = append(toolResults, ToolResultBlock(block.ID, msg, true))
				rec.add(TraceEntry{Step: block.Name, Output: msg})
				continue
			}

			entry := TraceEntry{Step: block.Name, Output: result}
			if p, ok := block.Input["prompt"].(string); ok {
				entry.Prompt = p
			}
			if t, ok := numberField(block.Input, "temperature"); ok {
				entry.Temperature = &t
			}
			rec.add(entry)
			toolResults = append(toolResults, ToolResultBlock(block.ID, result, false))
		}

		messages = append(messages,
			Message{Role: RoleAssistant, Content: resp.Content},
			Message{Role: RoleUser, Content: toolResults},
		)

		if decided {
			log.Info("workflow complete", zap.String("decision", finalDecision))
			return RunResult{
				FinalOutput:   finalOutput,
				FinalDecision: finalDecision,
				Trace:         rec.entries,
				Termination:   StateTerminatedByDecision,
				Turns:         turns,
			}, nil
		}
	}

	if state == StateTerminatedByExhaustion {
		log.Warn("max turns reached without make_decision, forcing refuse")
	}
	if !rec.decided {
		rec.add(TraceEntry{Step: StepDecision, Decision: finalDecision, Output: finalOutput})
	}

	return RunResult{
		FinalOutput:   finalOutput,
		FinalDecision: finalDecision,
		Trace:         rec.entries,
		Termination:   state,
		Turns:         turns,
	}, nil
}

func joinText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// decisionFields extracts the terminal decision with defaults: an absent
// or invalid decision falls back to refuse, an absent output falls back to
// a decision-appropriate message.
func decisionFields(input map[string]interface{}) (string, string) {
	decision, _ := input["decision"].(string)
	if decision != tool.DecisionAnswer && decision != tool.DecisionRefuse {
		decision = tool.DecisionRefuse
	}

	output, ok := input["output"].(string)
	if !ok {
		if decision == tool.DecisionRefuse {
			output = defaultRefuseOutput
		} else {
			output = defaultAnswerOutput
		}
	}
	return decision, output
}

func numberField(input map[string]interface{}, key string) (float64, bool) {
	switch v := input[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
