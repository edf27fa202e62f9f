package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// captionPrompt instructs the vision model to describe a product photo in
// retrieval-friendly terms. The caption is embedded with the same text
// model used for the catalog, which keeps image and text queries in one
// vector space.
const captionPrompt = `Describe the product shown in this image for a shopping search engine.
Mention the product category, colors, materials, patterns, and any visible brand or style cues.
Answer with one dense sentence, no preamble.`

// VisionConfig holds configuration for the captioning model.
type VisionConfig struct {
	Model   string
	APIKey  string
	BaseURL string
}

// queryEmbedder is the embedding capability the image pipeline needs.
type queryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// ImageEmbeddingService turns a product photo into a query vector by
// captioning it with a vision model and embedding the caption.
type ImageEmbeddingService struct {
	client   *openai.Client
	model    string
	embedder queryEmbedder
}

// NewImageEmbeddingService creates a new image embedding service.
// Parameters:
//   - cfg: vision model configuration.
//   - embedder: text embedder used for the generated caption.
// Returns:
//   - *ImageEmbeddingService: initialized service.
func NewImageEmbeddingService(cfg *VisionConfig, embedder queryEmbedder) *ImageEmbeddingService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &ImageEmbeddingService{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		embedder: embedder,
	}
}

// Caption asks the vision model to describe the image.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageData: raw image bytes.
//   - format: sniffed image format (png, jpeg, ...).
// Returns:
//   - string: one-sentence product description.
//   - error: non-nil if the model call fails or returns nothing usable.
func (s *ImageEmbeddingService) Caption(ctx context.Context, imageData []byte, format string) (string, error) {
	dataURI := fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(imageData))
	return s.caption(ctx, dataURI)
}

// CaptionURL captions an image the model fetches itself. Used by the
// indexer, which has public URLs but not the bytes.
func (s *ImageEmbeddingService) CaptionURL(ctx context.Context, url string) (string, error) {
	return s.caption(ctx, url)
}

func (s *ImageEmbeddingService) caption(ctx context.Context, imageRef string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: 150,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: captionPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageRef,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to caption image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision model returned no choices")
	}

	caption := strings.TrimSpace(resp.Choices[0].Message.Content)
	if caption == "" {
		return "", fmt.Errorf("vision model returned an empty caption")
	}
	return caption, nil
}

// EmbedImage captions the image and embeds the caption.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageData: raw image bytes.
//   - format: sniffed image format.
// Returns:
//   - []float32: query vector for the image.
//   - string: the intermediate caption, useful for logging.
//   - error: non-nil if captioning or embedding fails.
func (s *ImageEmbeddingService) EmbedImage(ctx context.Context, imageData []byte, format string) ([]float32, string, error) {
	caption, err := s.Caption(ctx, imageData, format)
	if err != nil {
		return nil, "", err
	}
	vector, err := s.embedder.EmbedQuery(ctx, caption)
	if err != nil {
		return nil, caption, fmt.Errorf("failed to embed caption: %w", err)
	}
	return vector, caption, nil
}
