package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"campaign-orchestrator/internal/common/metrics"
)

// ErrToolRoundsExceeded is returned when the tool-resolution loop hits its
// round cap. The partial conversation gathered so far is still returned.
var ErrToolRoundsExceeded = errors.New("TOOL_ROUNDS_EXCEEDED")

// ToolExecutor resolves tool calls requested by the model. Implementations
// validate arguments and dispatch against the record store.
type ToolExecutor interface {
	Definitions() []ToolDef
	Execute(ctx context.Context, name, arguments string) (string, error)
}

// ConversationResult is the outcome of a tool-resolution loop.
type ConversationResult struct {
	Final        *ChatResponse
	Messages     []Message
	Rounds       int
	Incomplete   bool
	FailedTools  []string
}

// RunConversation drives the tool loop: send the request, execute any tool
// calls the assistant requests, append the results, and re-send until the
// assistant returns a final answer or the round cap is hit. A failing tool
// is retried once, then skipped with its failure recorded in the transcript
// so the model can proceed on partial evidence.
func (c *Client) RunConversation(ctx context.Context, req *ChatRequest, exec ToolExecutor, maxRounds int) (*ConversationResult, error) {
	if maxRounds <= 0 {
		maxRounds = 5
	}
	if exec != nil && len(req.Tools) == 0 {
		req.Tools = exec.Definitions()
		req.ToolChoice = "auto"
	}

	result := &ConversationResult{Messages: req.Messages}

	for round := 0; ; round++ {
		resp, err := c.Chat(ctx, &ChatRequest{
			Model:       req.Model,
			Messages:    result.Messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Tools:       req.Tools,
			ToolChoice:  req.ToolChoice,
		})
		if err != nil {
			return result, err
		}

		result.Final = resp
		result.Rounds = round + 1

		calls := resp.ToolCalls()
		if len(calls) == 0 || exec == nil {
			return result, nil
		}

		if round+1 >= maxRounds {
			result.Incomplete = true
			return result, ErrToolRoundsExceeded
		}

		result.Messages = append(result.Messages, resp.Choices[0].Message)

		for _, call := range calls {
			content := c.resolveToolCall(ctx, exec, call, result)
			result.Messages = append(result.Messages, Message{
				Role:       RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			})
		}
	}
}

func (c *Client) resolveToolCall(ctx context.Context, exec ToolExecutor, call ToolCall, result *ConversationResult) string {
	name := call.Function.Name

	out, err := exec.Execute(ctx, name, call.Function.Arguments)
	if err != nil {
		// One retry, then fall back to a flagged failure message.
		out, err = exec.Execute(ctx, name, call.Function.Arguments)
	}
	if err != nil {
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		result.FailedTools = append(result.FailedTools, name)
		c.logger.Warn("tool call failed after retry, proceeding with partial evidence", map[string]interface{}{
			"tool":  name,
			"error": err.Error(),
		})
		fallback, _ := json.Marshal(map[string]interface{}{
			"success": false,
			"error":   err.Error(),
			"note":    fmt.Sprintf("tool %s unavailable, answer with the evidence gathered so far", name),
		})
		return string(fallback)
	}

	metrics.ToolCalls.WithLabelValues(name, "success").Inc()
	return out
}
