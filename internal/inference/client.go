// Package inference wraps the go-agents capability calls used by the audit
// pipeline behind a small client interface so graph steps can be exercised
// with fakes.
package inference

import (
	"context"
	"fmt"
	"os"

	"github.com/JaimeStill/document-context/pkg/document"
	"github.com/JaimeStill/document-context/pkg/encoding"
	"github.com/JaimeStill/go-agents/pkg/agent"
	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

// Client issues model calls. Vision sends a prompt plus one page image;
// Chat sends a text-only prompt. Both return the raw response content.
type Client interface {
	Vision(ctx context.Context, prompt, imagePath string) (string, error)
	Chat(ctx context.Context, prompt string) (string, error)
}

// AgentClient implements Client on top of go-agents. A fresh agent is
// created per call so concurrent graph steps never share one.
type AgentClient struct {
	cfg gaconfig.AgentConfig
}

// NewAgentClient returns a client bound to the given agent configuration.
func NewAgentClient(cfg gaconfig.AgentConfig) *AgentClient {
	return &AgentClient{cfg: cfg}
}

func (c *AgentClient) Vision(ctx context.Context, prompt, imagePath string) (string, error) {
	a, err := agent.New(&c.cfg)
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}

	dataURI, err := encodePageImage(imagePath)
	if err != nil {
		return "", err
	}

	resp, err := a.Vision(ctx, prompt, []string{dataURI})
	if err != nil {
		return "", fmt.Errorf("vision call: %w", err)
	}

	return resp.Content(), nil
}

func (c *AgentClient) Chat(ctx context.Context, prompt string) (string, error) {
	a, err := agent.New(&c.cfg)
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}

	resp, err := a.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("chat call: %w", err)
	}

	return resp.Content(), nil
}

func encodePageImage(imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	dataURI, err := encoding.EncodeImageDataURI(data, document.PNG)
	if err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	return dataURI, nil
}
