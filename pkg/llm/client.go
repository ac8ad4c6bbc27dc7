// Package llm prompts an OpenAI compatible chat model for questions about a
// document.
package llm

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

type Config struct {
	APIKey        flagext.Secret `yaml:"api_key"`
	BaseURL       string         `yaml:"base_url"`
	Model         string         `yaml:"model"`
	Temperature   float64        `yaml:"temperature"`
	MaxTokens     int            `yaml:"max_tokens"`
	MaxInputChars int            `yaml:"max_input_chars"`
	MinQuestions  int            `yaml:"min_questions"`
	Timeout       time.Duration  `yaml:"timeout"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.Var(&c.APIKey, flagPrefix+"api-key", `API key of the language model endpoint.`)
	f.StringVar(&c.BaseURL, flagPrefix+"base-url", "", `Override of the API base URL, e.g. for a compatible gateway.`)
	f.StringVar(&c.Model, flagPrefix+"model", "gpt-4o-mini", `Chat model asked for questions.`)
	f.Float64Var(&c.Temperature, flagPrefix+"temperature", 0.3, `Sampling temperature.`)
	f.IntVar(&c.MaxTokens, flagPrefix+"max-tokens", 2048, `Completion token limit.`)
	f.IntVar(&c.MaxInputChars, flagPrefix+"max-input-chars", 60000, `Document text beyond this many characters is cut off.`)
	f.IntVar(&c.MinQuestions, flagPrefix+"min-questions", 5, `Questions asked for per document.`)
	f.DurationVar(&c.Timeout, flagPrefix+"timeout", 2*time.Minute, `Timeout of one completion.`)
}

// Question is one generated question about a document.
type Question struct {
	Site     string `json:"Site"`
	Language string `json:"Language"`
	Query    string `json:"Query"`
}

type Client struct {
	cfg    Config
	client *openai.Client
	log    log.Logger
}

func New(cfg Config, logger log.Logger) (*Client, error) {
	if cfg.APIKey.String() == "" {
		return nil, errors.New("llm api key is required")
	}

	oc := openai.DefaultConfig(cfg.APIKey.String())
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Client{
		cfg:    cfg,
		client: openai.NewClientWithConfig(oc),
		log:    log.With(logger, "component", "llm"),
	}, nil
}

const systemPrompt = `You write evaluation questions for a knowledge base of controlled pharmaceutical documents.
Answer with a JSON object {"questions": [{"Query": "...", "Language": "...", "Site": "..."}]}.
Language is the language of the document; Site is the site the document applies to, or "" when unclear.`

// Questions asks the model for at least Config.MinQuestions questions that
// are answered by text.
func (c *Client) Questions(ctx context.Context, text string) ([]Question, error) {
	if len(text) > c.cfg.MaxInputChars {
		text = text[:c.cfg.MaxInputChars]
	}

	prompt := fmt.Sprintf("Generate a set of questions that are very related with the following document:\n\n%s\n\nI want at least %d related questions.", text, c.cfg.MinQuestions)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    float32(c.cfg.Temperature),
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion has no choices")
	}

	level.Debug(c.log).Log("msg", "completion generated", "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return ParseQuestions(resp.Choices[0].Message.Content)
}

// ParseQuestions decodes a {"questions": [...]} answer. Markdown code
// fences around the object are tolerated and blank questions dropped.
func ParseQuestions(content string) ([]Question, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out struct {
		Questions []Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, errors.Wrap(err, "decode questions")
	}

	qs := make([]Question, 0, len(out.Questions))
	for _, q := range out.Questions {
		q.Query = strings.TrimSpace(q.Query)
		if q.Query != "" {
			qs = append(qs, q)
		}
	}
	return qs, nil
}
