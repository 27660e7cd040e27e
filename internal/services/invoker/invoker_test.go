package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const diagnosisJSON = `{"code":"J02.9","description":"Acute pharyngitis"}`

func chatCompletionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "deepseek/deepseek-chat",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func openRouterDef(baseURL string) models.ProviderConfig {
	return models.ProviderConfig{
		Provider: models.ProviderOpenRouter,
		ModelID:  "deepseek/deepseek-chat",
		APIKey:   "sk-test",
		BaseURL:  baseURL,
		Headers:  map[string]string{"X-Title": "Sentra Referral CDSS"},
	}
}

func TestRegistryOpenRouterSuccess(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Sentra Referral CDSS", r.Header.Get("X-Title"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		writeJSON(w, http.StatusOK, chatCompletionBody(diagnosisJSON))
	}))
	defer srv.Close()

	reg := NewRegistry(map[string]models.ProviderConfig{"DEEPSEEK_V3": openRouterDef(srv.URL + "/")}, time.Second)
	text, err := reg.Invoke(context.Background(), "DEEPSEEK_V3", Request{
		RequestID:   "req-1",
		System:      "system",
		Prompt:      "Sakit tenggorokan",
		Temperature: 0.05,
		MaxTokens:   800,
	})
	require.NoError(t, err)
	assert.Equal(t, diagnosisJSON, text)

	assert.Equal(t, "deepseek/deepseek-chat", captured["model"])
	assert.InDelta(t, 0.05, captured["temperature"], 1e-9)
	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])
	assert.Len(t, captured["messages"], 2)
}

func TestRegistryGeminiModelSkipsJSONMode(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		writeJSON(w, http.StatusOK, chatCompletionBody(diagnosisJSON))
	}))
	defer srv.Close()

	def := openRouterDef(srv.URL + "/")
	def.ModelID = "google/gemini-2.0-flash"
	reg := NewRegistry(map[string]models.ProviderConfig{"GEMINI_FLASH": def}, time.Second)

	_, err := reg.Invoke(context.Background(), "GEMINI_FLASH", Request{Prompt: "x"})
	require.NoError(t, err)
	assert.NotContains(t, captured, "response_format")
}

func TestRegistryClassifiesHTTPFailures(t *testing.T) {
	cases := []struct {
		status int
		want   models.FailureKind
	}{
		{http.StatusUnauthorized, models.FailureProviderAuth},
		{http.StatusForbidden, models.FailureProviderAuth},
		{http.StatusTooManyRequests, models.FailureRateLimited},
		{http.StatusServiceUnavailable, models.FailureServiceUnavailable},
		{http.StatusInternalServerError, models.FailureServiceUnavailable},
		{http.StatusBadRequest, models.FailureUnknown},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, map[string]any{"error": map[string]any{"message": "nope", "type": "error"}})
			}))
			defer srv.Close()

			reg := NewRegistry(map[string]models.ProviderConfig{"M": openRouterDef(srv.URL + "/")}, time.Second)
			_, err := reg.Invoke(context.Background(), "M", Request{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tc.want, models.KindOf(err))
		})
	}
}

func TestRegistryTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	def := openRouterDef(srv.URL + "/")
	def.TimeoutMs = 50
	reg := NewRegistry(map[string]models.ProviderConfig{"SLOW": def}, time.Minute)

	start := time.Now()
	_, err := reg.Invoke(context.Background(), "SLOW", Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, models.FailureTimeout, models.KindOf(err))
	assert.Equal(t, http.StatusGatewayTimeout, models.SanitizeError(err).GetStatusCode())
	assert.Less(t, time.Since(start), time.Second)
}

func TestRegistryConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/"
	srv.Close()

	reg := NewRegistry(map[string]models.ProviderConfig{"DOWN": openRouterDef(url)}, time.Second)
	_, err := reg.Invoke(context.Background(), "DOWN", Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, models.FailureConnection, models.KindOf(err))
}

func TestRegistryEmptyContentIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, chatCompletionBody("   "))
	}))
	defer srv.Close()

	reg := NewRegistry(map[string]models.ProviderConfig{"M": openRouterDef(srv.URL + "/")}, time.Second)
	_, err := reg.Invoke(context.Background(), "M", Request{Prompt: "x"})
	assert.Equal(t, models.FailureMalformedResponse, models.KindOf(err))
}

func TestRegistryConfigurationErrors(t *testing.T) {
	reg := NewRegistry(map[string]models.ProviderConfig{
		"NOKEY": {Provider: models.ProviderOpenAI, ModelID: "gpt-4o-mini"},
		"ODD":   {Provider: "cohere", ModelID: "x", APIKey: "k"},
	}, time.Second)

	_, err := reg.Invoke(context.Background(), "MISSING", Request{})
	assert.Equal(t, models.FailureUnknown, models.KindOf(err))

	_, err = reg.Invoke(context.Background(), "NOKEY", Request{})
	assert.Equal(t, models.FailureProviderAuth, models.KindOf(err))

	_, err = reg.Invoke(context.Background(), "ODD", Request{})
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestRegistryAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "claude-3-5-haiku-latest", req["model"])
		assert.EqualValues(t, 1024, req["max_tokens"])

		writeJSON(w, http.StatusOK, map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-3-5-haiku-latest",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": diagnosisJSON}},
			"usage":         map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer srv.Close()

	reg := NewRegistry(map[string]models.ProviderConfig{"HAIKU": {
		Provider: models.ProviderAnthropic,
		ModelID:  "claude-3-5-haiku-latest",
		APIKey:   "sk-ant",
		BaseURL:  srv.URL + "/",
	}}, time.Second)

	text, err := reg.Invoke(context.Background(), "HAIKU", Request{System: "s", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, diagnosisJSON, text)
}

func TestClassifyPlainErrors(t *testing.T) {
	assert.Equal(t, models.FailureTimeout, Classify("M", context.DeadlineExceeded).Kind)
	assert.Equal(t, models.FailureTimeout, Classify("M", errors.New("i/o timeout")).Kind)
	assert.Equal(t, models.FailureConnection, Classify("M", errors.New("dial tcp: connection refused")).Kind)
	assert.Equal(t, models.FailureUnknown, Classify("M", errors.New("something odd")).Kind)
	assert.Equal(t, models.FailureServiceUnavailable, Classify("M", genai.APIError{Code: 503}).Kind)
	assert.Equal(t, models.FailureRateLimited, Classify("M", &genai.APIError{Code: 429}).Kind)

	malformed := models.NewMalformedResponseError("M", "bad json", nil)
	assert.Same(t, malformed, Classify("M", malformed))
}
