package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-3-flash-preview"
const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// ClassifierError reports a failed external classification: the call could
// not be completed or the returned payload failed schema validation.
type ClassifierError struct {
	Reason string
	Err    error
}

func (e *ClassifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("classifier: %s", e.Reason)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

const classifierSystemInstruction = `You are an AI assistant specializing in mobile app automation.
Your task is to determine if a new user query matches an existing defined app function.

Match Criteria:
- Semantic Similarity: Even if words are different, does the intent match an existing function?
- App Context: Is the app mentioned or implied the same as a defined function?
- Specificity: A match must be highly specific to the function's purpose.

Definitions provided in the JSON list.`

// condensedFunction is the size-capped catalog projection embedded in the
// classifier request. Path and landing page are omitted to bound payload size.
type condensedFunction struct {
	ID      string   `json:"id"`
	App     string   `json:"app"`
	Func    string   `json:"func"`
	Queries []string `json:"queries"`
}

// classifierResponse mirrors the external response schema. Required fields
// are pointers so a missing key can be told apart from a zero value.
type classifierResponse struct {
	IsDefined            *bool    `json:"isDefined"`
	MatchScore           *float64 `json:"matchScore"`
	MatchedFunctionID    string   `json:"matchedFunctionId"`
	Reasoning            *string  `json:"reasoning"`
	SuggestedImprovement string   `json:"suggestedImprovement"`
}

// Classifier orchestrates one query classification against the external
// semantic-matching service. It never mutates the catalog; appending a
// history record is the caller's responsibility.
type Classifier struct {
	cfg Config
}

func NewClassifier(cfg Config) (*Classifier, error) {
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini_api_key is required when llm_provider=gemini")
		}
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	default:
		return nil, fmt.Errorf("unknown llm_provider '%s'", cfg.LLMProvider)
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify audits one query against the catalog. The request carries a
// condensed projection of at most cfg.CatalogContextLimit entries; the
// response's matchedFunctionId is resolved against the full catalog.
func (c *Classifier) Classify(ctx context.Context, query string, catalog []FunctionEntry) (ClassificationResult, error) {
	userPrompt := buildClassifyPrompt(query, catalog, c.cfg.CatalogContextLimit)

	var responseText string
	var err error
	switch c.cfg.LLMProvider {
	case "anthropic":
		model := c.cfg.LLMModel
		if model == "" {
			model = defaultAnthropicModel
		}
		log.Printf("classify provider=anthropic model=%s catalog=%d", model, len(catalog))
		responseText, err = callAnthropic(ctx, c.cfg.AnthropicAPIKey, model, userPrompt)
	default:
		model := c.cfg.LLMModel
		if model == "" {
			model = defaultGeminiModel
		}
		log.Printf("classify provider=gemini model=%s catalog=%d", model, len(catalog))
		responseText, err = callGemini(ctx, c.cfg.GeminiAPIKey, model, userPrompt)
	}
	if err != nil {
		return ClassificationResult{}, &ClassifierError{Reason: "request failed", Err: err}
	}

	parsed, err := parseClassifierResponse(responseText)
	if err != nil {
		return ClassificationResult{}, err
	}
	return buildResult(parsed, catalog), nil
}

// buildClassifyPrompt embeds the query and the condensed catalog in the user
// prompt. Only the first `limit` entries in encounter order are sent; recall
// against larger catalogs is capped by design.
func buildClassifyPrompt(query string, catalog []FunctionEntry, limit int) string {
	if limit < 1 {
		limit = 100
	}
	if len(catalog) > limit {
		catalog = catalog[:limit]
	}

	condensed := make([]condensedFunction, 0, len(catalog))
	for _, f := range catalog {
		condensed = append(condensed, condensedFunction{
			ID:      f.ID,
			App:     f.AppName,
			Func:    f.FunctionName,
			Queries: f.ExampleQueries,
		})
	}
	contextData, _ := json.Marshal(condensed)

	return fmt.Sprintf(`User Query: %q

Existing Functions Database (partial/relevant):
%s

Analyze if the user query is already covered by any of these definitions.`, query, contextData)
}

// parseClassifierResponse validates the payload against the response schema.
// Missing isDefined, matchScore or reasoning is a schema violation; a missing
// matchedFunctionId is accepted even when isDefined is true.
func parseClassifierResponse(responseText string) (classifierResponse, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var parsed classifierResponse
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		truncated := responseText
		if len(truncated) > 512 {
			truncated = truncated[:512] + "..."
		}
		return parsed, &ClassifierError{Reason: fmt.Sprintf("invalid JSON payload (response: %s)", truncated), Err: err}
	}

	var missing []string
	if parsed.IsDefined == nil {
		missing = append(missing, "isDefined")
	}
	if parsed.MatchScore == nil {
		missing = append(missing, "matchScore")
	}
	if parsed.Reasoning == nil {
		missing = append(missing, "reasoning")
	}
	if len(missing) > 0 {
		return parsed, &ClassifierError{Reason: fmt.Sprintf("response missing required fields: %s", strings.Join(missing, ", "))}
	}
	return parsed, nil
}

// buildResult maps a validated response onto the typed result, resolving
// the reported id against the full catalog. An unknown or absent id leaves
// MatchedFunction nil without touching isDefined or matchScore.
func buildResult(parsed classifierResponse, catalog []FunctionEntry) ClassificationResult {
	score := *parsed.MatchScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	result := ClassificationResult{
		IsDefined:            *parsed.IsDefined,
		MatchScore:           score,
		Reasoning:            *parsed.Reasoning,
		SuggestedImprovement: parsed.SuggestedImprovement,
	}
	if result.IsDefined {
		result.MatchedFunction = FindFunctionByID(catalog, strings.TrimSpace(parsed.MatchedFunctionID))
	}
	return result
}

// --- Gemini ---

func classifierResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"isDefined":            {Type: genai.TypeBoolean},
			"matchScore":           {Type: genai.TypeNumber, Description: "0 to 1 for confidence level"},
			"matchedFunctionId":    {Type: genai.TypeString, Description: "The ID of the matched function if isDefined is true"},
			"reasoning":            {Type: genai.TypeString},
			"suggestedImprovement": {Type: genai.TypeString},
		},
		Required: []string{"isDefined", "matchScore", "reasoning"},
	}
}

func callGemini(ctx context.Context, apiKey, model, userPrompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return "", fmt.Errorf("creating Gemini client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(userPrompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(classifierSystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    classifierResponseSchema(),
	})
	if err != nil {
		log.Printf("classify gemini error: %v", err)
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no text content in Gemini response")
	}
	log.Printf("classify gemini response size=%d", len(text))
	return text, nil
}

// --- Anthropic ---

// Anthropic has no structured-output config, so the schema is stated in the
// system prompt and fences are stripped before parsing.
const anthropicSchemaNote = `

Respond with JSON only (no markdown), conforming to:
{"isDefined": boolean, "matchScore": number between 0 and 1, "matchedFunctionId": "id of the matched function if isDefined is true", "reasoning": string, "suggestedImprovement": string}
isDefined, matchScore and reasoning are required.`

func callAnthropic(ctx context.Context, apiKey, model, userPrompt string) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: classifierSystemInstruction + anthropicSchemaNote, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("classify anthropic error: %v", err)
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("classify anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}
