package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/campusreport/internal/models"
)

// Classification is the model's suggestion for a free-text problem description.
type Classification struct {
	IssueTypes []string `json:"issue_types"`
	Importance string   `json:"importance"`
	Reason     string   `json:"reason"`
}

// Client wraps the Anthropic API for issue classification.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildClassifyPrompt constructs the system and user prompts for classifying
// a facility problem description.
func buildClassifyPrompt(comment, room string) (system string, user string) {
	var cats strings.Builder
	for _, c := range models.Categories {
		cats.WriteString("- \"")
		cats.WriteString(c)
		cats.WriteString("\"\n")
	}

	system = `You triage facility problems reported on a university campus. Given a problem description, return a JSON object with exactly these fields:
- "issue_types": an array with one or more of the following category labels, copied exactly:
` + cats.String() + `- "importance": one of "low", "medium", "high"
- "reason": one short sentence explaining the choice

Rules:
- Pick every category that clearly applies, and at least one
- "high" is for safety hazards, flooding, outages affecting many people, or anything blocking teaching
- "low" is for cosmetic or minor inconveniences
- Default importance to "medium" when unsure
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if room != "" {
		sb.WriteString("Room: ")
		sb.WriteString(room)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Problem description:\n")
	sb.WriteString(comment)
	user = sb.String()
	return
}

// Classify asks the model which categories and importance fit a problem description.
// Labels outside the predefined categories are dropped.
func (c *Client) Classify(ctx context.Context, comment, room string) (*Classification, error) {
	systemPrompt, userPrompt := buildClassifyPrompt(comment, room)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseClassification(text)
}

func parseClassification(text string) (*Classification, error) {
	text = stripFence(text)

	var cl Classification
	if err := json.Unmarshal([]byte(text), &cl); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	known, _ := models.NormalizeIssueTypes(cl.IssueTypes)
	if len(known) == 0 {
		return nil, fmt.Errorf("LLM response contains no known issue type: %s", text)
	}
	cl.IssueTypes = known

	if imp, ok := models.ParseImportance(cl.Importance); ok {
		cl.Importance = string(imp)
	} else {
		cl.Importance = string(models.ImportanceMedium)
	}
	return &cl, nil
}

// stripFence removes markdown code fencing if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
