package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chat sends a chat completion request.
func (c *OpenRouterClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.doChat(ctx, req, nil)
}

// ChatWithTools sends a chat request with tool definitions.
func (c *OpenRouterClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.doChat(ctx, req, tools)
}

func (c *OpenRouterClient) doChat(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	start := time.Now()

	// Generate request ID if not provided
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  OpenRouterName,
	}

	// Build OpenRouter request
	orReq := openRouterRequest{
		Model:       model,
		Messages:    toOpenRouterMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		// Ask OpenRouter to include cost accounting in usage.
		Usage: &openRouterUsageRequest{Include: true},
	}

	// Native structured outputs where the routed backend supports them;
	// anthropic/* models fall back to prompt + local validation.
	if req.ResponseFormat != nil {
		adapted, err := adaptedResponseFormat(model, req.ResponseFormat)
		if err != nil {
			result.Success = false
			result.ErrorType = "schema_error"
			result.ErrorMessage = err.Error()
			result.TotalTime = time.Since(start)
			return result, err
		}
		orReq.ResponseFormat = adapted
	}

	// Add tools if specified
	if len(tools) > 0 {
		orReq.Tools = tools
	}

	attempts := 0
	for {
		attempts++
		result.Attempts = attempts

		// Make request (pass pointer for nonce injection on retries)
		orResp, httpErr := c.doRequest(ctx, "/chat/completions", &orReq)
		if httpErr != nil {
			result.Success = false
			result.ErrorType = "http_error"
			result.ErrorMessage = httpErr.Error()
			result.TotalTime = time.Since(start)
			if rle, ok := IsRateLimitError(httpErr); ok {
				result.RetryAfter = rle.RetryAfter
			}
			return result, httpErr
		}

		if len(orResp.Choices) == 0 {
			result.Success = false
			result.ErrorType = "empty_response"
			result.ErrorMessage = "no choices in response"
			result.TotalTime = time.Since(start)
			return result, fmt.Errorf("no choices in response")
		}

		// Extract content
		content := ""
		if orResp.Choices[0].Message.Content != nil {
			switch v := orResp.Choices[0].Message.Content.(type) {
			case string:
				content = v
			default:
				b, err := json.Marshal(v)
				if err != nil {
					result.Success = false
					result.ErrorType = "content_marshal_error"
					result.ErrorMessage = fmt.Sprintf("failed to marshal content: %v", err)
					result.TotalTime = time.Since(start)
					return result, fmt.Errorf("failed to marshal content: %w", err)
				}
				content = string(b)
			}
		}

		result.Content = content
		result.ModelUsed = orResp.Model

		// Token counts and cost accumulate across repair turns.
		result.PromptTokens += orResp.Usage.PromptTokens
		result.CompletionTokens += orResp.Usage.CompletionTokens
		result.TotalTokens += orResp.Usage.TotalTokens
		result.ReasoningTokens += orResp.Usage.CompletionTokensDetails.ReasoningTokens
		cost := orResp.Usage.Cost
		if cost == 0 {
			cost = orResp.Usage.NativeTotalCost
		}
		result.CostUSD += cost

		// Include reasoning_details for reasoning models
		if len(orResp.Choices[0].Message.ReasoningDetails) > 0 {
			result.ReasoningDetails = orResp.Choices[0].Message.ReasoningDetails
		}

		// Extract tool calls if present
		if len(orResp.Choices[0].Message.ToolCalls) > 0 {
			result.ToolCalls = make([]ToolCall, len(orResp.Choices[0].Message.ToolCalls))
			for i, tc := range orResp.Choices[0].Message.ToolCalls {
				result.ToolCalls[i] = ToolCall{
					ID:   tc.ID,
					Type: tc.Type,
				}
				result.ToolCalls[i].Function.Name = tc.Function.Name
				result.ToolCalls[i].Function.Arguments = tc.Function.Arguments
			}
		}

		if req.ResponseFormat == nil {
			result.Success = true
			break
		}

		// Structured output: parse, validate against the canonical schema,
		// and run a bounded self-repair loop on failure.
		parsed, parseErr := parseStructuredJSON(content)
		if parseErr == nil {
			if valErr := validateStructuredJSON(req.ResponseFormat.JSONSchema, parsed); valErr != nil {
				parseErr = valErr
			}
		}
		if parseErr == nil {
			result.Success = true
			result.ParsedJSON = parsed
			break
		}

		if attempts > maxStructuredRepairAttempts {
			result.Success = false
			result.ErrorType = "json_parse"
			result.ErrorMessage = fmt.Sprintf("structured output failed after %d attempts: %v", attempts, parseErr)
			break
		}

		orReq.Messages = append(orReq.Messages,
			openRouterMessage{Role: "assistant", Content: content},
			openRouterMessage{Role: "user", Content: structuredRepairPrompt(req.ResponseFormat.JSONSchema, content, parseErr)},
		)
	}

	result.ExecutionTime = time.Since(start)
	result.TotalTime = result.ExecutionTime

	return result, nil
}

// toOpenRouterMessages converts provider-neutral messages to the OpenRouter
// wire shape, expanding vision messages into multipart content.
func toOpenRouterMessages(messages []Message) []openRouterMessage {
	out := make([]openRouterMessage, 0, len(messages))
	for _, m := range messages {
		orMsg := openRouterMessage{
			Role: m.Role,
		}

		// Handle vision messages with images or file attachments
		if len(m.Images) > 0 || len(m.Files) > 0 {
			content := []openRouterContent{
				{Type: "text", Text: m.Content},
			}
			for _, img := range m.Images {
				content = append(content, openRouterContent{
					Type: "image_url",
					ImageURL: &openRouterImageURL{
						URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
					},
				})
			}
			for _, f := range m.Files {
				mediaType := f.MediaType
				if mediaType == "" {
					mediaType = "application/pdf"
				}
				content = append(content, openRouterContent{
					Type: "file",
					File: &openRouterFile{
						Filename: f.Filename,
						FileData: "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(f.Data),
					},
				})
			}
			orMsg.Content = content
		} else {
			orMsg.Content = m.Content
		}

		// Include tool_calls for assistant messages (required by API)
		if len(m.ToolCalls) > 0 {
			orMsg.ToolCalls = m.ToolCalls
		}

		// Include tool_call_id for tool response messages
		if m.ToolCallID != "" {
			orMsg.ToolCallID = m.ToolCallID
		}

		// Include reasoning_details for reasoning models
		if len(m.ReasoningDetails) > 0 {
			orMsg.ReasoningDetails = m.ReasoningDetails
		}

		out = append(out, orMsg)
	}
	return out
}
