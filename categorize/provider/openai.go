package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/theimaginaryfoundation/prodcat/categorize"
	"github.com/theimaginaryfoundation/prodcat/categorize/fileutils"
)

// RetryPolicy decides how long to wait before re-sending a request the API rejected as
// rate-limited or failed server-side.
type RetryPolicy struct {
	MaxAttempts          int
	RateLimitWaitTimes   []time.Duration
	ServerErrorWaitTimes []time.Duration

	// Sleep waits for d or until ctx is done; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:          3,
		RateLimitWaitTimes:   []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second},
		ServerErrorWaitTimes: []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
		Sleep:                sleepContext,
	}
}

func (p RetryPolicy) wait(waits []time.Duration, attempt int) time.Duration {
	if len(waits) == 0 {
		return 0
	}
	if attempt >= len(waits) {
		return waits[len(waits)-1]
	}
	return waits[attempt]
}

// CallWithRetry runs call, retrying rate-limit and server errors according to policy.
// Any other error is returned immediately.
func CallWithRetry[T any](ctx context.Context, policy RetryPolicy, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Sleep == nil {
		policy.Sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		resp, err := call(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var wait time.Duration
		switch {
		case isRateLimitError(err):
			wait = policy.wait(policy.RateLimitWaitTimes, attempt)
		case isServerError(err):
			wait = policy.wait(policy.ServerErrorWaitTimes, attempt)
		default:
			return zero, err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}
		if err := policy.Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("failed after %d attempts due to OpenAI API issues: %w", policy.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

// structuredAnswer is the JSON shape requested in structured mode.
type structuredAnswer struct {
	Reasoning    string `json:"reasoning" jsonschema:"description=Step-by-step reasoning about what the product is"`
	CategoryPath string `json:"category_path" jsonschema:"description=The full category path Level1>Level2>Level3"`
}

var structuredAnswerSchema = GenerateSchema[structuredAnswer]()

// OpenAIChat implements categorize.ChatCompleter on the chat completions API.
type OpenAIChat struct {
	client *openai.Client
	model  string

	// Structured requests a JSON {reasoning, category_path} answer instead of free text.
	Structured bool

	// MaxCompletionTokens caps the answer length (0 = API default).
	MaxCompletionTokens int64

	Retry RetryPolicy
}

func NewOpenAIChat(client *openai.Client, model string) *OpenAIChat {
	return &OpenAIChat{
		client: client,
		model:  model,
		Retry:  DefaultRetryPolicy(),
	}
}

func (c *OpenAIChat) Complete(ctx context.Context, req categorize.ChatRequest) (string, error) {
	if c.client == nil {
		return "", errors.New("OpenAIChat: client is nil")
	}
	if c.model == "" {
		return "", errors.New("OpenAIChat: model is empty")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}
	if c.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.MaxCompletionTokens)
	}
	if c.Structured {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "CategoryAnswer",
					Schema:      structuredAnswerSchema,
					Strict:      openai.Bool(true),
					Description: openai.String("Reasoning and final category path"),
				},
			},
		}
	}

	resp, err := CallWithRetry(ctx, c.Retry, func(ctx context.Context) (*openai.ChatCompletion, error) {
		return c.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAIChat: response has no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if !c.Structured {
		return text, nil
	}

	var ans structuredAnswer
	if err := fileutils.DecodeModelJSON(text, &ans); err != nil {
		// Let path extraction judge the raw text; it may still contain a valid path.
		return text, nil
	}
	return strings.TrimSpace(ans.Reasoning) + "\nCategory path: " + strings.TrimSpace(ans.CategoryPath), nil
}

func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureOpenAICompliance applies the strict-mode rules: closed objects and every property required.
func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}
}
