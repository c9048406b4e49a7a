package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/fsaudit/fsaudit/internal/types"
)

// DefaultAIModel is the model used for AI-backed reviews. Haiku keeps
// per-file cost low.
const DefaultAIModel = "claude-3-5-haiku-20241022"

// aiMaxContentChars bounds how much file content goes into one prompt.
const aiMaxContentChars = 20_000

// codeFenceRegex strips markdown code fences from model replies.
var codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

// AIAgent asks Claude to review a file and reports the issues it finds
// as findings. It is registered only when explicitly enabled and an API
// key is configured; availability is a composition-time decision.
type AIAgent struct {
	client  *anthropic.Client
	model   string
	limiter *rate.Limiter
}

// NewAIAgent creates a Claude-backed agent. The API key comes from the
// ANTHROPIC_API_KEY environment variable; a missing key is a
// configuration error, not a silent no-op.
func NewAIAgent(model string) (*AIAgent, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	if model == "" {
		model = DefaultAIModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AIAgent{
		client: &client,
		model:  model,
		// One request per second with a small burst keeps a full-tree
		// audit under provider rate limits.
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}, nil
}

// Name implements Agent.
func (a *AIAgent) Name() string {
	return "claude"
}

// aiFinding is the JSON shape the model is asked to reply with.
type aiFinding struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Analyze implements Agent.
func (a *AIAgent) Analyze(ctx context.Context, path, content string) ([]types.Finding, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	excerpt := content
	if len(excerpt) > aiMaxContentChars {
		excerpt = excerpt[:aiMaxContentChars]
	}
	prompt := a.buildPrompt(path, excerpt)

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	parsed, err := parseAIFindings(responseText)
	if err != nil {
		return nil, fmt.Errorf("parsing AI response for %s: %w", path, err)
	}

	findings := make([]types.Finding, 0, len(parsed))
	for _, p := range parsed {
		severity := types.Severity(strings.ToUpper(p.Severity))
		if !severity.IsValid() {
			severity = types.SeverityLow
		}
		rule := p.Rule
		if rule == "" {
			rule = "AI_REVIEW"
		}
		findings = append(findings, types.Finding{
			Path:     path,
			Rule:     rule,
			Severity: severity,
			Message:  p.Message,
		})
	}
	return findings, nil
}

func (a *AIAgent) buildPrompt(path, excerpt string) string {
	return fmt.Sprintf(`You are a code auditor. Review the file below and report concrete issues.

Reply with ONLY a JSON array (no prose). Each element:
{"rule": "SHORT_RULE_ID", "severity": "LOW"|"MEDIUM"|"HIGH", "message": "one-line description"}

Reply with [] if the file is fine.

File: %s

%s`, path, excerpt)
}

// parseAIFindings parses the model reply, tolerating markdown fences and
// surrounding prose.
func parseAIFindings(text string) ([]aiFinding, error) {
	candidate := strings.TrimSpace(text)
	if m := codeFenceRegex.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	var findings []aiFinding
	if err := json.Unmarshal([]byte(candidate), &findings); err == nil {
		return findings, nil
	}

	// Fall back to the outermost array in mixed content.
	start := strings.Index(candidate, "[")
	end := strings.LastIndex(candidate, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(candidate[start:end+1]), &findings); err == nil {
			return findings, nil
		}
	}

	return nil, fmt.Errorf("response is not a JSON array")
}
