package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/attune/internal/coach"
	"github.com/kalambet/attune/internal/llm"
	"github.com/kalambet/attune/internal/pacing"
)

// audioField is the optional request field carrying spoken-turn metrics.
const audioField = "audio_metrics"

// Turner runs one gated conversational turn.
type Turner interface {
	Turn(ctx context.Context, req coach.TurnRequest) (coach.TurnResult, error)
}

// NewOpenAIHandler returns an http.Handler implementing the OpenAI-compatible
// chat API. Every reply goes through the coach, so nothing reaches the client
// without passing the policy engine. model is echoed in responses.
func NewOpenAIHandler(t Turner, model string, token string) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(token))

	r.Get("/v1/models", handleModels(model))
	r.Post("/v1/chat/completions", handleChatCompletions(t, model))

	return r
}

func handleModels(model string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": model, "object": "model", "owned_by": "attune"},
			},
		})
	}
}

func handleChatCompletions(t Turner, model string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req llm.ChatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Stream {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "streaming is not supported")
			return
		}

		turn, err := turnRequest(req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		res, err := t.Turn(r.Context(), turn)
		if errors.Is(err, coach.ErrNoMessage) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "a non-empty user message is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "turn failed: %v", err)
			return
		}
		slog.Debug("turn delivered",
			"mode", res.Mode,
			"attempts", res.Attempts,
			"fallback", res.Fallback,
		)

		if req.Model != "" {
			model = req.Model
		}
		w.Header().Set("X-Attune-Mode", res.Mode)
		if res.Fallback != "" {
			w.Header().Set("X-Attune-Fallback", res.Fallback)
		}
		writeJSON(w, llm.ChatResponse{
			ID:      "chatcmpl-" + uuid.New().String(),
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   model,
			Choices: []llm.Choice{{
				Index:        0,
				Message:      llm.Message{Role: "assistant", Content: res.Reply},
				FinishReason: "stop",
			}},
		})
	}
}

// turnRequest splits a chat request into the last user message and the
// history before it.
func turnRequest(req llm.ChatRequest) (coach.TurnRequest, error) {
	last := -1
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = i
			break
		}
	}
	if last < 0 {
		return coach.TurnRequest{}, errors.New("messages must include a user message")
	}

	turn := coach.TurnRequest{
		Message: req.Messages[last].Content,
		History: req.Messages[:last],
	}
	if raw, ok := req.Extra[audioField]; ok {
		var audio pacing.AudioMetrics
		if err := json.Unmarshal(raw, &audio); err != nil {
			return coach.TurnRequest{}, errors.New("invalid " + audioField)
		}
		turn.Audio = &audio
	}
	return turn, nil
}
