package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/tonalworks/sonata-api/internal/analysis"
	"github.com/tonalworks/sonata-api/internal/metrics"
	"github.com/tonalworks/sonata-api/internal/observability"
)

const (
	providerNameOpenAI = "openai"
	schemaName         = "sonata_enhancement"
	maxPreviewChars    = 200
)

// OpenAIEnhancer enriches analyses through OpenAI's Responses API with a
// JSON schema enforced on the output.
type OpenAIEnhancer struct {
	client *openai.Client
	model  string
	cw     *metrics.Client
}

// NewOpenAIEnhancer creates an OpenAI-backed enhancer. cw may be nil;
// token usage then goes to Sentry and Langfuse only.
func NewOpenAIEnhancer(apiKey, model string, cw *metrics.Client) *OpenAIEnhancer {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIEnhancer{
		client: &client,
		model:  model,
		cw:     cw,
	}
}

// Name returns the provider name.
func (p *OpenAIEnhancer) Name() string {
	return providerNameOpenAI
}

// Enhance sends the core analysis to the model and merges the enriched
// payload back over it. Any failure wraps ErrUnavailable.
func (p *OpenAIEnhancer) Enhance(ctx context.Context, result *analysis.Result) (*EnhancedResult, error) {
	startTime := time.Now()
	log.Printf("🎼 OPENAI ENHANCEMENT REQUEST STARTED (Model: %s)", p.model)

	transaction := sentry.StartTransaction(ctx, "openai.enhance")
	defer transaction.Finish()

	transaction.SetTag("model", p.model)
	transaction.SetTag("provider", providerNameOpenAI)

	input, err := json.Marshal(result)
	if err != nil {
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("%w: encode analysis: %v", ErrUnavailable, err)
	}

	trace := observability.GetClient().StartTrace(ctx, "enhance.openai", map[string]interface{}{
		"provider": providerNameOpenAI,
	})
	defer trace.Finish()

	gen := trace.Generation("enhance_analysis", map[string]interface{}{
		"model": p.model,
	})
	gen.Input(result.Summary)

	params := responses.ResponseNewParams{
		Model: p.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(string(input), responses.EasyInputMessageRoleUser),
			},
		},
		Instructions: openai.String(systemPrompt),
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigParamOfJSONSchema(schemaName, outputSchema()),
		},
	}

	span := transaction.StartChild("openai.api_call")
	resp, err := p.client.Responses.New(ctx, params)
	span.Finish()

	if err != nil {
		log.Printf("❌ OPENAI ENHANCEMENT FAILED after %v: %v", time.Since(startTime), err)
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		gen.SetLevel("ERROR")
		gen.Output(err.Error())
		gen.Finish()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	gen.LogOpenAIResponse(p.model, resp)
	p.recordTokenUsage(ctx, resp)

	textOutput := cleanTextOutput(resp.OutputText())
	log.Printf("📥 OPENAI ENHANCEMENT RESPONSE: output_length=%d, tokens=%d",
		len(textOutput), resp.Usage.TotalTokens)

	if textOutput == "" {
		transaction.SetTag("success", "false")
		gen.SetLevel("ERROR")
		gen.Finish()
		return nil, fmt.Errorf("%w: response contained no output text", ErrUnavailable)
	}

	var payload enhancementPayload
	if err := json.Unmarshal([]byte(textOutput), &payload); err != nil {
		log.Printf("❌ Failed to parse enhancement JSON: %v", err)
		log.Printf("Raw output (first %d chars): %s", maxPreviewChars, truncate(textOutput, maxPreviewChars))
		transaction.SetTag("success", "false")
		gen.SetLevel("ERROR")
		gen.Finish()
		return nil, fmt.Errorf("%w: parse model output: %v", ErrUnavailable, err)
	}

	gen.Finish()
	transaction.SetTag("success", "true")
	log.Printf("✅ OPENAI ENHANCEMENT COMPLETED in %v", time.Since(startTime))
	return merge(result, &payload), nil
}

// recordTokenUsage forwards the response usage to Sentry and, when
// configured, CloudWatch.
func (p *OpenAIEnhancer) recordTokenUsage(ctx context.Context, resp *responses.Response) {
	total := int(resp.Usage.TotalTokens)
	in := int(resp.Usage.InputTokens)
	out := int(resp.Usage.OutputTokens)

	tokenMetrics.RecordTokenUsage(ctx, p.model, total, in, out)
	if p.cw != nil {
		p.cw.RecordTokenUsage(p.model, total, in, out)
	}
}

// cleanTextOutput strips markdown code fences the model occasionally
// wraps JSON output in.
func cleanTextOutput(text string) string {
	cleaned := strings.TrimPrefix(text, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
