package remotestub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"postqueue/internal/observability"

	"github.com/google/generative-ai-go/genai"
	"github.com/openai/openai-go"
	openaiOption "github.com/openai/openai-go/option"
	"google.golang.org/api/option"
)

// Captioner produces the social copy for one post of a batch.
type Captioner interface {
	Caption(ctx context.Context, description string, index, total int) (string, error)
}

// Imager produces a hosted image URL for a post.
type Imager interface {
	ImageURL(ctx context.Context, description string) (string, error)
}

// TemplateCaptioner generates deterministic copy without calling any
// model. It is the default when no Gemini key is configured.
type TemplateCaptioner struct{}

var captionAngles = []string{
	"Meet your new favorite",
	"Why everyone is talking about",
	"The smart way to enjoy",
	"Three reasons to love",
	"Your daily dose of",
}

func (TemplateCaptioner) Caption(_ context.Context, description string, index, total int) (string, error) {
	angle := captionAngles[index%len(captionAngles)]
	return fmt.Sprintf("%s %s. Post %d of %d in our series.", angle, description, index+1, total), nil
}

// GeminiCaptioner generates copy with a Gemini text model.
type GeminiCaptioner struct {
	apiKey string
	model  string
	logger *observability.Logger
}

func NewGeminiCaptioner(apiKey string, logger *observability.Logger) *GeminiCaptioner {
	return &GeminiCaptioner{
		apiKey: apiKey,
		model:  "gemini-2.0-flash",
		logger: logger,
	}
}

func (g *GeminiCaptioner) Caption(ctx context.Context, description string, index, total int) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	prompt := fmt.Sprintf(
		"Write a short social media post (max 2 sentences, no hashtags) promoting: %s. "+
			"This is post %d of %d in a series; take a different angle than the others.",
		description, index+1, total,
	)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate caption: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	caption := strings.TrimSpace(sb.String())
	if caption == "" {
		return "", errors.New("gemini returned empty caption")
	}
	return caption, nil
}

// OpenAIImager generates a product image with the OpenAI images API and
// returns its hosted URL.
type OpenAIImager struct {
	apiKey string
	logger *observability.Logger
}

func NewOpenAIImager(apiKey string, logger *observability.Logger) *OpenAIImager {
	return &OpenAIImager{apiKey: apiKey, logger: logger}
}

func (o *OpenAIImager) ImageURL(ctx context.Context, description string) (string, error) {
	options := []openaiOption.RequestOption{
		openaiOption.WithAPIKey(o.apiKey),
	}
	client := openai.NewClient(options...)

	image, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         "Product marketing photo, clean background: " + description,
		Size:           openai.ImageGenerateParamsSize1024x1024,
		Model:          openai.ImageModelDallE3,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate image: %w", err)
	}
	if len(image.Data) == 0 || image.Data[0].URL == "" {
		return "", errors.New("image generation returned no url")
	}
	return image.Data[0].URL, nil
}
