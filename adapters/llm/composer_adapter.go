package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"sleuth/domain/evidence"
	"sleuth/domain/investigation"
	"sleuth/ports"
)

// ComposerAdapter implements AnswerComposerPort: it asks the LLM for a
// grounded explanation of the winning hypothesis and renders it to HTML.
// LLM failure degrades to a deterministic summary so answer composition
// never sinks a finished investigation.
type ComposerAdapter struct {
	client *Client
}

// NewComposerAdapter creates an answer composer
func NewComposerAdapter(client *Client) *ComposerAdapter {
	return &ComposerAdapter{client: client}
}

const composerSystemPrompt = `You are an expert SRE writing a root cause explanation.
Ground every claim in the evidence provided; cite evidence by its number.
Be concise: a short diagnosis paragraph, then the supporting evidence, then a suggested next action.
Write in markdown.`

// Compose builds the final explanation for the best-supported hypothesis
func (c *ComposerAdapter) Compose(ctx context.Context, hyp *investigation.Hypothesis, ev []evidence.Evidence, findings []evidence.Finding, conf evidence.ConfidenceResult) (*ports.Composition, error) {
	citations := buildCitations(findings)

	text, err := c.client.ChatCompletion(ctx, composerSystemPrompt, buildComposePrompt(hyp, conf, citations))
	if err != nil {
		log.Printf("[ComposerAdapter] LLM composition failed, using deterministic summary: %v", err)
		text = deterministicExplanation(hyp, conf, citations)
	}

	return &ports.Composition{
		Explanation:     text,
		ExplanationHTML: renderMarkdown(text),
		Citations:       citations,
	}, nil
}

func buildComposePrompt(hyp *investigation.Hypothesis, conf evidence.ConfidenceResult, citations []string) string {
	var sb strings.Builder
	sb.WriteString("Root cause hypothesis: " + hyp.Description + "\n\n")
	sb.WriteString(fmt.Sprintf("Confidence: %.2f (%s): %d supporting item(s) with total weight %.2f, %d refuting with weight %.2f.\n\n",
		conf.Score, conf.Level, conf.SupportingCount, conf.SupportWeight, conf.RefutingCount, conf.RefuteWeight))
	sb.WriteString("Evidence:\n")
	for i, cite := range citations {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, cite))
	}
	if len(citations) == 0 {
		sb.WriteString("(none; state clearly that evidence was insufficient)\n")
	}
	return sb.String()
}

func deterministicExplanation(hyp *investigation.Hypothesis, conf evidence.ConfidenceResult, citations []string) string {
	var sb strings.Builder
	sb.WriteString("## Root cause\n\n")
	sb.WriteString(hyp.Description + "\n\n")
	sb.WriteString(fmt.Sprintf("Confidence **%.2f** (%s): %d supporting finding(s), %d refuting.\n",
		conf.Score, conf.Level, conf.SupportingCount, conf.RefutingCount))
	if len(citations) > 0 {
		sb.WriteString("\n### Evidence\n\n")
		for _, cite := range citations {
			sb.WriteString("- " + cite + "\n")
		}
	} else {
		sb.WriteString("\nInsufficient evidence was gathered to confirm this hypothesis.\n")
	}
	return sb.String()
}

func buildCitations(findings []evidence.Finding) []string {
	citations := make([]string, 0, len(findings))
	for _, f := range findings {
		cite := f.Summary
		if cite == "" && f.Field != "" {
			cite = fmt.Sprintf("%s=%s (count: %d)", f.Field, f.Pattern, f.Count)
		}
		if cite == "" {
			continue
		}
		if f.Service != "" {
			cite = fmt.Sprintf("[%s] %s", f.Service, cite)
		}
		citations = append(citations, cite)
	}
	return citations
}

func renderMarkdown(text string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(text))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return string(markdown.Render(doc, renderer))
}
