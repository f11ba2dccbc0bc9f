package pod

import (
	"context"
	"fmt"
	"time"

	"github.com/tbwo/engine/pkg/contract"
	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/tbworder"
	"github.com/tbwo/engine/pkg/tooldispatch"
)

// runToolLoop streams the model response, collects tool-use requests, and
// drives the tool loop of §4.3 steps 4-5, capped at MaxToolLoopIterations.
func (p *Pod) runToolLoop(ctx context.Context, in TaskExecutionInput, messages []modelclient.ConversationMessage) (TaskExecutionResult, error) {
	var result TaskExecutionResult
	writtenPaths := map[string]struct{}{}

	for iteration := 0; iteration < MaxToolLoopIterations; iteration++ {
		ch, err := p.Deps.Model.Generate(ctx, modelclient.GenerateInput{
			SessionID:   p.State.ID,
			ExecutionID: in.Task.ID,
			Messages:    messages,
			Tools:       p.Behavior.SpecializedTools(),
			Temperature: p.State.ModelConfig.Temperature,
			MaxTokens:   p.State.ModelConfig.MaxTokens,
		})
		if err != nil {
			return result, fmt.Errorf("%w: %v", tbworder.ErrModelFailure, err)
		}

		var pending []modelclient.ToolCall
		var textThisTurn string

		for chunk := range ch {
			switch c := chunk.(type) {
			case modelclient.TextChunk:
				textThisTurn += c.Text
				result.Output += c.Text
			case modelclient.ThinkingChunk:
				// Not persisted; streamed to the update stream only in a full
				// deployment. Nothing to accumulate here.
			case modelclient.ToolCallChunk:
				pending = append(pending, c.Call)
			case modelclient.UsageChunk:
				result.TokensUsed.InputTokens += c.InputTokens
				result.TokensUsed.OutputTokens += c.OutputTokens
				result.TokensUsed.TotalTokens += c.TotalTokens
				result.TokensUsed.ThinkingTokens += c.ThinkingTokens
			case modelclient.ErrorChunk:
				return result, fmt.Errorf("%w: %v", tbworder.ErrModelFailure, c.Err)
			case modelclient.CompleteChunk:
				// stream done
			}
		}

		messages = append(messages, modelclient.ConversationMessage{Role: modelclient.RoleAssistant, Content: textThisTurn})

		if len(pending) == 0 {
			return result, nil
		}

		for _, call := range pending {
			toolResult, toolErr := p.handleToolCall(ctx, in, call, writtenPaths)
			result.ToolCallLog = append(result.ToolCallLog, tooldispatch.Request{Tool: tooldispatch.Name(call.Name), Input: call.Input})
			if toolErr != nil {
				return result, toolErr
			}
			messages = append(messages, modelclient.ConversationMessage{
				Role:       modelclient.RoleTool,
				Content:    toolResult,
				ToolCallID: call.ID,
			})
		}
	}

	return result, fmt.Errorf("%w: exceeded %d tool-loop iterations", tbworder.ErrInternal, MaxToolLoopIterations)
}

// handleToolCall implements §4.3 step 5 for one tool call: clarification
// routing, contract validation, the file_write rewrite-loop guard, and
// dispatch. After a successful file_write or edit_file it broadcasts an
// artifact_ready bus message carrying the path; it does not create an
// ArtifactDraft for the written file, so a task's artifacts come only from
// the role behavior's ProcessTaskOutput.
func (p *Pod) handleToolCall(ctx context.Context, in TaskExecutionInput, call modelclient.ToolCall, writtenPaths map[string]struct{}) (string, error) {
	if tooldispatch.Name(call.Name) == tooldispatch.RequestClarification {
		question, _ := call.Input["question"].(string)
		clarContext, _ := call.Input["context"].(string)
		var options []string
		if raw, ok := call.Input["options"].([]any); ok {
			for _, o := range raw {
				if s, ok := o.(string); ok {
					options = append(options, s)
				}
			}
		}
		answer, err := p.Deps.Clarification.RequestClarification(ctx, in.WorkOrderID, "pod_requested", question, clarContext, options)
		if err != nil {
			return "", fmt.Errorf("%w: clarification failed: %v", tbworder.ErrModelFailure, err)
		}
		return answer, nil
	}

	path, hasPath := call.Input["path"].(string)

	validation, err := p.Deps.Contracts.ValidateAction(in.ContractID, contract.Action{Tool: call.Name, Path: path})
	if err != nil {
		return "", fmt.Errorf("%w: %v", tbworder.ErrInternal, err)
	}
	if !validation.Allowed {
		msg := fmt.Sprintf("Contract violation: %v", validation.Violations)
		return msg, nil
	}

	if tooldispatch.Name(call.Name) == tooldispatch.FileWrite && hasPath {
		norm := tooldispatch.NormalizePath(path)
		if _, already := writtenPaths[norm]; already {
			return "already written", nil
		}
		writtenPaths[norm] = struct{}{}
	}

	start := time.Now()
	res, err := p.Deps.Tools.Dispatch(ctx, tooldispatch.Request{Tool: tooldispatch.Name(call.Name), Input: call.Input})
	res.Duration = time.Since(start)
	if err != nil {
		return "", fmt.Errorf("%w: %v", tbworder.ErrToolFailure, err)
	}
	if res.IsError {
		return res.Content, nil
	}

	if _, produces := tooldispatch.FileProducingTools[tooldispatch.Name(call.Name)]; produces && p.Deps.Bus != nil {
		p.Deps.Bus.Send(tbworder.BusMessage{
			From:      p.State.ID,
			To:        "*",
			Type:      tbworder.MsgArtifactReady,
			Payload:   map[string]any{"path": path},
			Priority:  tbworder.PriorityNormal,
			Timestamp: time.Now(),
		})
	}

	return res.Content, nil
}
