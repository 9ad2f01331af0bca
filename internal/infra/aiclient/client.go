package aiclient

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/apperr"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
)

type Config struct {
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Client generates assistant turns through the Gemini API.
type Client struct {
	client *genai.Client
	cfg    Config
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{client: client, cfg: cfg}, nil
}

// Generate answers the dialog whose last turn is the user message being
// replied to. Dialog roles map onto the API's user/model pair; turns with any
// other role or empty content are dropped.
func (c *Client) Generate(ctx context.Context, system string, turns []model.Message) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		var role string
		switch turn.Role {
		case enums.MessageRoleUser:
			role = "user"
		case enums.MessageRoleAssistant:
			role = "model"
		default:
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Content}},
		})
	}
	if len(contents) == 0 {
		return "", apperr.Validation("turns", "dialog has no sendable turns")
	}

	genCfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(system) != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if c.cfg.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(c.cfg.Temperature))
	}
	if c.cfg.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.cfg.MaxOutputTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, genCfg)
	if err != nil {
		return "", apperr.External("gemini", err)
	}

	return strings.TrimSpace(resp.Text()), nil
}
