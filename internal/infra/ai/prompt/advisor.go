package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior sustainability (ESG) consultant. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase priority values: high, medium, low.
- pillar is one of: environmental, social, governance.
- Base every action on the submitted metrics and the engine recommendations; do not invent figures.
- If a metric is missing, say so in gaps instead of guessing.

Schema (example with empty values):
{
  "summary": "<string>",
  "score_commentary": "<string>",
  "actions": [
    {
      "pillar": "<environmental|social|governance>",
      "priority": "<high|medium|low>",
      "title": "<string>",
      "detail": "<string>"
    }
  ],
  "gaps": ["<string>"]
}`
}

// reportContext is what the model sees of a report.
type reportContext struct {
	CompanyName     string          `json:"company_name"`
	Industry        string          `json:"industry"`
	TotalEsgScore   *float64        `json:"total_esg_score"`
	InputMetrics    json.RawMessage `json:"input_metrics"`
	Recommendations json.RawMessage `json:"engine_recommendations,omitempty"`
}

// GetUserPrompt wraps a stored report into the user message.
func GetUserPrompt(r *reports.Report) (string, error) {
	b, err := json.Marshal(reportContext{
		CompanyName:     r.CompanyName,
		Industry:        r.Industry,
		TotalEsgScore:   r.TotalEsgScore,
		InputMetrics:    r.InputMetrics,
		Recommendations: r.Recommendations,
	})
	if err != nil {
		return "", fmt.Errorf("marshal report context: %w", err)
	}
	return fmt.Sprintf("Review this ESG report and respond with the JSON per schema.\nReport: %s", b), nil
}

// Advice matches the schema requested by the system prompt.
type Advice struct {
	Summary         string `json:"summary"`
	ScoreCommentary string `json:"score_commentary"`
	Actions         []struct {
		Pillar   string `json:"pillar"`
		Priority string `json:"priority"`
		Title    string `json:"title"`
		Detail   string `json:"detail"`
	} `json:"actions"`
	Gaps []string `json:"gaps"`
}

// ParseAdvice checks that content is a JSON object of the advice schema and
// returns it compacted.
func ParseAdvice(content string) (string, error) {
	var a Advice
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return "", fmt.Errorf("advice is not valid json: %w", err)
	}
	if a.Summary == "" {
		return "", fmt.Errorf("advice has no summary")
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
