package insights

import (
	"context"
	"errors"
	"os"
	"time"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for all insight and scan calls.
const DefaultModelName = "gemini-2.5-flash"

// modelCallTimeout bounds one model round trip. Generation over a full
// transaction history routinely takes tens of seconds.
const modelCallTimeout = 60 * time.Second

// ModelClient is the upstream generative model. Implementations must honour
// context cancellation; callers never retry automatically.
type ModelClient interface {
	// GenerateText sends a text prompt and returns the model's raw text.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// GenerateFromImage sends a prompt plus an inline image and returns the
	// model's raw text.
	GenerateFromImage(ctx context.Context, prompt, mimeType string, image []byte) (string, error)
}

// GeminiClient is the concrete ModelClient backed by the Gemini API. The API
// key is read from the environment by the genai SDK; construction is cheap
// enough to do per call, matching how the SDK manages connections.
type GeminiClient struct {
	model string
}

// NewGeminiClient creates a client for the named model, defaulting to
// DefaultModelName when blank.
func NewGeminiClient(model string) *GeminiClient {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiClient{model: model}
}

func hasCredential() bool {
	return os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != ""
}

// GenerateText implements ModelClient.
func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}
	return c.generate(ctx, "GenerateText", contents)
}

// GenerateFromImage implements ModelClient.
func (c *GeminiClient) GenerateFromImage(ctx context.Context, prompt, mimeType string, image []byte) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}
	return c.generate(ctx, "GenerateFromImage", contents)
}

func (c *GeminiClient) generate(ctx context.Context, op string, contents []*genai.Content) (string, error) {
	if !hasCredential() {
		return "", ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(ctx, modelCallTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", &UpstreamError{Op: op, Err: err}
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", &UpstreamError{Op: op, Err: err}
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", &UpstreamError{Op: op, Err: errEmptyResponse}
	}
	return rawText, nil
}

var errEmptyResponse = errors.New("empty response from model")
