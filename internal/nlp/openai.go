package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/openai/openai-go"
)

// DefaultChatModel is used when no model is configured.
const DefaultChatModel = "gpt-4o-mini"

// DefaultMaxTokens is the maximum grounding payload before truncation (in tokens).
const DefaultMaxTokens = 12000

// OpenAI implements every contract in this package on top of chat completions.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewOpenAI creates the adapter. An empty model selects DefaultChatModel.
func NewOpenAI(client *openai.Client, model string, logger *slog.Logger) *OpenAI {
	if model == "" {
		model = DefaultChatModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		client:    client,
		model:     model,
		maxTokens: DefaultMaxTokens,
		logger:    logger.With("component", "nlp"),
	}
}

const entityPrompt = `Identify concrete film titles, specific people from the film industry, studios, or other distinct named entities in the user's film search query.
Do not extract names that are only part of a thematic, philosophical, literary, mythological or historical reference (for "films that use Franz Kafka's philosophy", Franz Kafka is NOT an entity).
Extract a term only if it unambiguously names a film, a film-industry person, or a distinct entity within the film context. Places that the query uses as a concrete filter (for example a state or city) count as entities.
Respond in JSON format: {"entities": ["Entity1", "Entity2"]}
If there is nothing concrete to extract respond with {"entities": ["Nopeople"]}.`

const intentPrompt = `Extract only the thematic or descriptive information from the user's film search query.
Ignore all names of people, companies and other named entities and never mention them.
Focus on themes, narrative style, genre influences and film characteristics, and expand them into a concise sentence or two that stays aligned with the query's core idea.
Respond in JSON format: {"intent": "..."}
If there is nothing thematic to extract respond with {"intent": "Noinfo"}.`

const classifyPrompt = `Select the categories from the provided list that directly match the central theme or narrative of the content.
Pick only names from the list. Avoid categories such as "controversy" unless the content explicitly calls for them, and prefer story and theme related categories.
Choose at least 1 and at most 3 categories, adding more only when there is clear evidence for them.
Respond in JSON format: {"categories": ["category1"]}`

const structurePrompt = `Identify the core intent of the user's film search query and use it to fill the provided framework.
Leave out framework fields that are not directly relevant to the query. Each filled field holds at most two precise sentences.
Use only information from the query or directly implied by it; do not invent content.
Respond in JSON format with the framework's field names as keys.`

const answerPrompt = `You are a friendly film expert chatting with a user about one film.
Use the recent conversation, the film's basic details and the other film data to answer the latest question.
If the data contains nothing relevant, say that the information is not available.
Keep the answer natural and conversational and do not mention where the information comes from.`

// ExtractEntities implements EntityExtractor.
func (o *OpenAI) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	raw, err := o.complete(ctx, entityPrompt, "Query:\n"+text, true)
	if err != nil {
		return nil, err
	}
	entities, err := ParseEntities(raw)
	if err != nil {
		return nil, fmt.Errorf("entities: %w", err)
	}
	o.logger.Debug("Extracted entities", "count", len(entities))
	return entities, nil
}

// ExtractIntent implements IntentExtractor.
func (o *OpenAI) ExtractIntent(ctx context.Context, text string) (string, bool, error) {
	raw, err := o.complete(ctx, intentPrompt, "Query:\n"+text, true)
	if err != nil {
		return "", false, err
	}
	intent, ok, err := ParseIntent(raw)
	if err != nil {
		return "", false, fmt.Errorf("intent: %w", err)
	}
	return intent, ok, nil
}

// Classify implements CategoryClassifier.
func (o *OpenAI) Classify(ctx context.Context, text string, categories []string) ([]string, error) {
	user := fmt.Sprintf("Content:\n%s\n\nCategory list:\n%s", text, strings.Join(categories, ", "))
	raw, err := o.complete(ctx, classifyPrompt, user, true)
	if err != nil {
		return nil, err
	}
	chosen, err := ParseCategories(raw, categories)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return chosen, nil
}

// Structure implements Structurer.
func (o *OpenAI) Structure(ctx context.Context, text, framework string, slots []string) (string, error) {
	template := make(map[string]string, len(slots))
	for _, s := range slots {
		template[s] = ""
	}
	tmpl, err := json.Marshal(template)
	if err != nil {
		return "", fmt.Errorf("marshal framework: %w", err)
	}

	user := fmt.Sprintf("Query:\n%s\n\nFramework (%s):\n%s", text, framework, tmpl)
	raw, err := o.complete(ctx, structurePrompt, user, true)
	if err != nil {
		return "", err
	}
	out, err := ParseStructured(raw, slots)
	if err != nil {
		return "", fmt.Errorf("structure %s: %w", framework, err)
	}
	return out, nil
}

// Answer implements AnswerGenerator.
func (o *OpenAI) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	var b strings.Builder
	if req.Context != "" {
		fmt.Fprintf(&b, "Recent conversation:\n%s\n\n", req.Context)
	}
	fmt.Fprintf(&b, "Latest question:\n%s\n\n", req.Question)
	if req.Title != "" {
		fmt.Fprintf(&b, "Film: %s\n\n", req.Title)
	}
	b.WriteString("Basic details:\n")
	writeSorted(&b, req.BasicDetails)
	b.WriteString("\nOther film data:\n")
	writeSorted(&b, req.Details)

	raw, err := o.complete(ctx, answerPrompt, o.truncateContent(b.String()), false)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

// complete runs one chat completion and returns the first choice's content.
func (o *OpenAI) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: o.model,
	}
	if jsonMode {
		params.Temperature = openai.Float(0)
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w", ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (o *OpenAI) truncateContent(content string) string {
	maxChars := o.maxTokens * 4
	if len(content) <= maxChars {
		return content
	}
	o.logger.Warn("Truncating grounding payload",
		"from_chars", len(content), "to_chars", maxChars, "max_tokens", o.maxTokens)
	return truncateUTF8(content, maxChars)
}

func writeSorted(b *strings.Builder, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			fmt.Fprintf(b, "- %s: %s\n", k, v)
		}
	}
}
