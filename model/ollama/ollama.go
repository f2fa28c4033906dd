// Package ollama provides a model.Client for a local Ollama server through
// the langchaingo Ollama driver.
package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/hupe1980/reportgraph/model"
)

// DefaultServerURL is the address of a locally running Ollama server.
const DefaultServerURL = "http://localhost:11434"

// Options configures the Ollama client adapter.
type Options struct {
	Model     string
	ServerURL string
}

// Client wraps an Ollama model behind model.Client.
type Client struct {
	text llms.Model
	json llms.Model
	opts Options
}

var _ model.Client = (*Client)(nil)

// NewClient creates a client. No connection is made until Generate is called.
func NewClient(optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		Model:     "llama3",
		ServerURL: DefaultServerURL,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	text, err := ollama.New(ollama.WithModel(opts.Model), ollama.WithServerURL(opts.ServerURL))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	jsonLLM, err := ollama.New(ollama.WithModel(opts.Model), ollama.WithServerURL(opts.ServerURL), ollama.WithFormat("json"))
	if err != nil {
		return nil, fmt.Errorf("create ollama json client: %w", err)
	}

	return &Client{text: text, json: jsonLLM, opts: opts}, nil
}

// Generate implements model.Client.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	llm := c.text
	if req.JSONMode {
		llm = c.json
	}

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}

	callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(int(req.MaxTokens)))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt, callOpts...)
	if err != nil {
		return model.Response{}, fmt.Errorf("ollama error: %w", err)
	}

	if strings.TrimSpace(text) == "" {
		return model.Response{}, model.ErrNoResponse
	}

	return model.Response{Text: text, FinishReason: "stop"}, nil
}

// Info returns metadata describing this client.
func (c *Client) Info() model.Info {
	return model.Info{Name: c.opts.Model, Provider: "ollama"}
}
