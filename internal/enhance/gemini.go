package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"

	"github.com/tonalworks/sonata-api/internal/analysis"
	"github.com/tonalworks/sonata-api/internal/metrics"
	"github.com/tonalworks/sonata-api/internal/observability"
)

const (
	providerNameGemini = "gemini"
	mimeTypeJSON       = "application/json"
)

// GeminiEnhancer enriches analyses through Google's Gemini API with a
// response schema enforcing JSON output.
type GeminiEnhancer struct {
	client *genai.Client
	model  string
	cw     *metrics.Client
}

// NewGeminiEnhancer creates a Gemini-backed enhancer. cw may be nil;
// token usage then goes to Sentry and Langfuse only.
func NewGeminiEnhancer(ctx context.Context, apiKey, model string, cw *metrics.Client) (*GeminiEnhancer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiEnhancer{
		client: client,
		model:  model,
		cw:     cw,
	}, nil
}

// Name returns the provider name.
func (p *GeminiEnhancer) Name() string {
	return providerNameGemini
}

// Enhance sends the core analysis to the model and merges the enriched
// payload back over it. Any failure wraps ErrUnavailable.
func (p *GeminiEnhancer) Enhance(ctx context.Context, result *analysis.Result) (*EnhancedResult, error) {
	startTime := time.Now()
	log.Printf("🎼 GEMINI ENHANCEMENT REQUEST STARTED (Model: %s)", p.model)

	transaction := sentry.StartTransaction(ctx, "gemini.enhance")
	defer transaction.Finish()

	transaction.SetTag("model", p.model)
	transaction.SetTag("provider", providerNameGemini)

	input, err := json.Marshal(result)
	if err != nil {
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("%w: encode analysis: %v", ErrUnavailable, err)
	}

	trace := observability.GetClient().StartTrace(ctx, "enhance.gemini", map[string]interface{}{
		"provider": providerNameGemini,
	})
	defer trace.Finish()

	gen := trace.Generation("enhance_analysis", map[string]interface{}{
		"model": p.model,
	})
	gen.Input(result.Summary)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: string(input)}},
		},
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		ResponseMIMEType: mimeTypeJSON,
		ResponseSchema:   geminiOutputSchema(),
	}

	span := transaction.StartChild("gemini.api_call")
	res, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	span.Finish()

	if err != nil {
		log.Printf("❌ GEMINI ENHANCEMENT FAILED after %v: %v", time.Since(startTime), err)
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		gen.SetLevel("ERROR")
		gen.Output(err.Error())
		gen.Finish()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(res.Candidates) == 0 || len(res.Candidates[0].Content.Parts) == 0 {
		transaction.SetTag("success", "false")
		gen.SetLevel("ERROR")
		gen.Finish()
		return nil, fmt.Errorf("%w: response contained no candidates", ErrUnavailable)
	}

	textOutput := cleanTextOutput(res.Candidates[0].Content.Parts[0].Text)
	log.Printf("📥 GEMINI ENHANCEMENT RESPONSE: output_length=%d", len(textOutput))
	gen.Output(textOutput)
	p.recordTokenUsage(ctx, gen, res)

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
	log.Printf("✅ GEMINI ENHANCEMENT COMPLETED in %v", time.Since(startTime))
	return merge(result, &payload), nil
}

// recordTokenUsage forwards the response usage to Langfuse metadata,
// Sentry and, when configured, CloudWatch.
func (p *GeminiEnhancer) recordTokenUsage(ctx context.Context, gen *observability.Generation, res *genai.GenerateContentResponse) {
	if res.UsageMetadata == nil {
		return
	}

	total := int(res.UsageMetadata.TotalTokenCount)
	in := int(res.UsageMetadata.PromptTokenCount)
	out := int(res.UsageMetadata.CandidatesTokenCount)
	log.Printf("📊 GEMINI USAGE: input=%d, output=%d, total=%d", in, out, total)

	gen.Metadata(map[string]interface{}{
		"input_tokens":  in,
		"output_tokens": out,
		"total_tokens":  total,
	})
	tokenMetrics.RecordTokenUsage(ctx, p.model, total, in, out)
	if p.cw != nil {
		p.cw.RecordTokenUsage(p.model, total, in, out)
	}
}

// geminiOutputSchema mirrors outputSchema in Gemini's schema type.
func geminiOutputSchema() *genai.Schema {
	sectionSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"type":        {Type: genai.TypeString},
			"startTime":   {Type: genai.TypeNumber},
			"endTime":     {Type: genai.TypeNumber},
			"confidence":  {Type: genai.TypeNumber},
			"description": {Type: genai.TypeString},
			"musicalKey":  {Type: genai.TypeString},
		},
		Required: []string{"type", "startTime", "endTime", "confidence", "description"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"sections":          {Type: genai.TypeArray, Items: sectionSchema},
			"summary":           {Type: genai.TypeString},
			"musicalInsights":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"historicalContext": {Type: genai.TypeString},
			"technicalAnalysis": {Type: genai.TypeString},
			"enhancedInsights":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"sections", "summary", "musicalInsights", "historicalContext", "technicalAnalysis", "enhancedInsights"},
	}
}
