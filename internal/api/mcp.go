package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/kernel"
	"github.com/kalambet/attune/internal/metrics"
	"github.com/kalambet/attune/internal/onboarding"
	"github.com/kalambet/attune/internal/pacing"
	"github.com/kalambet/attune/internal/profile"
	"github.com/kalambet/attune/internal/textmatch"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Profiles   *profile.Manager
	Onboarding *onboarding.Engine
	Policy     *kernel.Engine
	Connection *connection.Tracker
	Nudges     *connection.NudgeLog
	Metrics    *metrics.Metrics  // optional
	Matcher    textmatch.Matcher // optional; literal matching if nil
}

// NewMCPServer creates an MCP server with the attune tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Matcher == nil {
		deps.Matcher = textmatch.Literal{}
	}

	s := server.NewMCPServer(
		"attune",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("attune: the person's cognitive profile, onboarding interview and the policy every companion reply must pass."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("next_question",
			mcp.WithDescription("Return the next onboarding question, or report that the interview is done."),
		),
		mcpNextQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("record_answer",
			mcp.WithDescription("Record the person's answer to an onboarding question. The reply may be an option number, value or label, or free text for open questions."),
			mcp.WithString("question_id", mcp.Description("ID of the question being answered"), mcp.Required()),
			mcp.WithString("reply", mcp.Description("The person's answer"), mcp.Required()),
		),
		mcpRecordAnswer(deps),
	)

	s.AddTool(
		mcp.NewTool("validate_response",
			mcp.WithDescription("Check a candidate companion reply against the hard rules, guidelines and tenets. Only send it if can_send is true."),
			mcp.WithString("response", mcp.Description("The candidate reply"), mcp.Required()),
			mcp.WithString("user_message", mcp.Description("The message the reply answers")),
		),
		mcpValidateResponse(deps),
	)

	s.AddTool(
		mcp.NewTool("detect_pacing",
			mcp.WithDescription("Classify the person's current state from their message and optional speech metrics, and return how to pace the reply."),
			mcp.WithString("text", mcp.Description("The person's message"), mcp.Required()),
			mcp.WithNumber("words_per_minute", mcp.Description("Speech rate, if spoken")),
			mcp.WithNumber("pauses_per_minute", mcp.Description("Pause rate, if spoken")),
			mcp.WithNumber("average_volume", mcp.Description("Average volume from 0 to 1, if spoken")),
		),
		mcpDetectPacing(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"user://profile",
			"Cognitive Profile",
			mcp.WithResourceDescription("Current cognitive profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"attune://principles",
			"Companion Principles",
			mcp.WithResourceDescription("Beliefs, active rules and tenets as prompt text"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourcePrinciples(deps),
	)

	return s
}

func mcpNextQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st := deps.Onboarding.Status()
		if st.Complete || st.Next == nil {
			return mcpText(`{"done":true}`), nil
		}
		return mcpJSON(map[string]any{
			"done":      false,
			"question":  st.Next,
			"remaining": st.Remaining,
		})
	}
}

func mcpRecordAnswer(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("question_id")
		if err != nil {
			return mcpError("question_id is required"), nil
		}
		reply, err := req.RequireString("reply")
		if err != nil {
			return mcpError("reply is required"), nil
		}

		q, ok := deps.Onboarding.Catalog().Get(id)
		if !ok {
			return mcpError(fmt.Sprintf("unknown question %q", id)), nil
		}
		answer, err := onboarding.ParseAnswer(q, reply)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		res, err := deps.Onboarding.Record(answer)
		if errors.Is(err, onboarding.ErrInvalidAnswer) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to record answer: %v", err)), nil
		}
		if deps.Metrics != nil {
			deps.Metrics.AnswersRecorded.Inc()
		}

		out := map[string]any{
			"recorded":   answer,
			"confidence": res.Profile.Confidence,
			"done":       res.Next == nil,
		}
		if res.Next != nil {
			out["next"] = res.Next
		}
		return mcpJSON(out)
	}
}

func mcpValidateResponse(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		response, err := req.RequireString("response")
		if err != nil {
			return mcpError("response is required"), nil
		}

		v := deps.Policy.ValidateCoachResponse(kernel.Input{
			Response:     response,
			UserMessage:  req.GetString("user_message", ""),
			Profile:      deps.Profiles.GetProfile(),
			Connection:   deps.Connection.Current(),
			RecentNudges: deps.Nudges.Times(),
			Now:          time.Now().UTC(),
		})
		deps.Metrics.ObserveVerdict(v.CanSend, v.Verdict.Score,
			kernel.IDs(v.Verdict.Violations), kernel.IDs(v.Verdict.Suggestions), kernel.IDs(v.Verdict.TenetViolations))
		return mcpJSON(v)
	}
}

func mcpDetectPacing(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		in := pacing.Input{Text: text}
		audio := pacing.AudioMetrics{
			WordsPerMinute:  req.GetFloat("words_per_minute", 0),
			PausesPerMinute: req.GetFloat("pauses_per_minute", 0),
			AverageVolume:   req.GetFloat("average_volume", 0),
		}
		if audio != (pacing.AudioMetrics{}) {
			in.Audio = &audio
		}

		res := pacing.DetectWith(deps.Matcher, in)
		return mcpJSON(map[string]any{
			"state":     res.State,
			"directive": res.Directive,
			"hint":      res.Directive.PromptHint(),
			"signals":   res.Signals,
		})
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Profiles.GetProfile())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourcePrinciples(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     deps.Policy.PrincipleContext(),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
