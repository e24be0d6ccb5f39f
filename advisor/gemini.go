package advisor

import (
	"context"
	"fmt"
	"strings"

	"road-severity/severity"

	"google.golang.org/genai"
)

const systemPrompt = `You are a road-safety assistant attached to an accident severity predictor.
Given the trip conditions and the predicted severity, give the driver one or two
short, practical precautions. Do not restate or dispute the predicted severity.
Keep the answer under 60 words and use plain text without markdown.`

// Advisor produces a short safety note for a decision.
type Advisor interface {
	Advise(ctx context.Context, d severity.Decision) (string, error)
}

type GeminiAdvisor struct {
	client *genai.Client
	model  string
}

func NewGeminiAdvisor(ctx context.Context, apiKey, model string) (*GeminiAdvisor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiAdvisor{client: client, model: model}, nil
}

func (g *GeminiAdvisor) Advise(ctx context.Context, d severity.Decision) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleModel),
		Temperature:       genai.Ptr(float32(0.4)),
		TopP:              genai.Ptr(float32(0.8)),
		MaxOutputTokens:   int32(120),
	}

	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(Prompt(d), genai.RoleUser)},
		config,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate advice: %w", err)
	}

	return Clean(resp.Text()), nil
}

// Prompt renders the trip and verdict as the user turn.
func Prompt(d severity.Decision) string {
	t := d.Trip
	var b strings.Builder
	fmt.Fprintf(&b, "Vehicles involved: %d\n", t.NumberOfVehicles)
	fmt.Fprintf(&b, "Day of week: %s\n", t.DayOfWeek)
	fmt.Fprintf(&b, "Road type: %s\n", t.RoadType)
	fmt.Fprintf(&b, "Speed limit: %d mph\n", t.SpeedLimit)
	fmt.Fprintf(&b, "Light conditions: %s\n", t.LightConditions)
	fmt.Fprintf(&b, "Weather: %s\n", t.WeatherConditions)
	fmt.Fprintf(&b, "Road surface: %s\n", t.RoadSurfaceConditions)
	fmt.Fprintf(&b, "Predicted severity: %s\n", d.Severity)
	return b.String()
}

// Clean strips markdown emphasis and surrounding whitespace.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "*", "")
	return strings.TrimSpace(text)
}
