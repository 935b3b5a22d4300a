package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haloassist/halo/pkg/orchestrator"
)

// LLMAnalyser implements Analyser over any orchestrator.LLMProvider,
// the MemoryAnalyser §4.11 calls "external" and leaves unspecified:
// one Complete call, prompted to propose an updated {short, long} pair
// as JSON, is enough to satisfy the Analyser contract without a
// dedicated memory-modeling service.
type LLMAnalyser struct {
	LLM orchestrator.LLMProvider
}

// NewLLMAnalyser wraps llm as a MemoryAnalyser.
func NewLLMAnalyser(llm orchestrator.LLMProvider) *LLMAnalyser {
	return &LLMAnalyser{LLM: llm}
}

const distilSystemPrompt = `You maintain a compact memory of one user across conversations.
Given the previous memory and the latest exchange, respond with a single JSON
object {"short": "...", "long": "..."} only, no prose.
"short" captures context relevant to the current conversation only.
"long" captures durable facts about the user worth keeping across sessions.
Keep both fields brief; omit nothing load-bearing, pad nothing.`

// Distil implements memory.Analyser.
func (a *LLMAnalyser) Distil(ctx context.Context, hardwareID, prompt, finalText string, previous Pair) (Pair, error) {
	user := fmt.Sprintf(
		"PREVIOUS SHORT-TERM MEMORY: %s\nPREVIOUS LONG-TERM MEMORY: %s\n\nUSER SAID: %s\nASSISTANT REPLIED: %s",
		previous.Short, previous.Long, prompt, finalText,
	)
	messages := []orchestrator.Message{
		{Role: "system", Content: distilSystemPrompt},
		{Role: "user", Content: user},
	}

	reply, err := a.LLM.Complete(ctx, messages)
	if err != nil {
		return Pair{}, fmt.Errorf("memory: analyser completion failed: %w", err)
	}

	var out struct {
		Short string `json:"short"`
		Long  string `json:"long"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(reply)), &out); err != nil {
		return Pair{}, fmt.Errorf("memory: analyser returned non-JSON reply: %w", err)
	}
	return Pair{Short: out.Short, Long: out.Long}, nil
}

// extractJSONObject trims any leading/trailing prose a chat model adds
// around the JSON object it was asked for.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
