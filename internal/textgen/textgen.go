// Package textgen adapts the hosted LLM that produces legal document
// text. The rest of the pipeline treats it as a black box returning a
// title and a body.
package textgen

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

type Generator interface {
	Generate(ctx context.Context, prompt string) (title, body string, err error)
}

const systemPrompt = `You are a legal document drafting assistant for residential landlords. Produce a complete, plainly worded document for the request. The first line of your response is the document title; everything after it is the document body in markdown. Do not include commentary before or after the document.`

type VertexGenerator struct {
	model *genai.GenerativeModel
}

func NewVertexGenerator(ctx context.Context, projectID, region string) (*VertexGenerator, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("textgen: projectID and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := client.GenerativeModel("gemini-1.5-pro")
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}
	return &VertexGenerator{model: model}, nil
}

func (g *VertexGenerator) Generate(ctx context.Context, prompt string) (string, string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", "", fmt.Errorf("generate document text: %w", err)
	}
	text := firstCandidateText(resp)
	if strings.TrimSpace(text) == "" {
		return "", "", fmt.Errorf("generate document text: empty response")
	}
	title, body := SplitTitle(text)
	return title, body, nil
}

func firstCandidateText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
		break
	}
	return b.String()
}

// SplitTitle takes the first non-empty line as the title, shorn of
// markdown heading markers, and returns the remainder as the body.
func SplitTitle(text string) (string, string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if trimmed == "" {
			continue
		}
		return trimmed, strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
	}
	return "", ""
}
