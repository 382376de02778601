package prompt

import (
	"errors"
	"fmt"
	"strings"

	"pdf-rag/internal/models"

	"github.com/tmc/langchaingo/prompts"
)

var ErrMissingVariable = errors.New("prompt template is missing a variable")

const (
	VarContext  = "context"
	VarQuestion = "question"
	VarFallback = "fallback"
)

// Assembler renders the question and retrieved context into a fixed
// f-string template ({context}, {question}, optional {fallback}).
type Assembler struct {
	tmpl     prompts.PromptTemplate
	fallback string
}

func New(template, fallback string) (*Assembler, error) {
	a := &Assembler{
		tmpl: prompts.PromptTemplate{
			Template:         template,
			InputVariables:   []string{VarContext, VarQuestion},
			TemplateFormat:   prompts.TemplateFormatFString,
			PartialVariables: map[string]any{VarFallback: fallback},
		},
		fallback: fallback,
	}

	// render once with markers so a template that drops a variable, or
	// references an unknown one, fails at startup
	const ctxMark, qMark = "\x00ctx\x00", "\x00q\x00"
	out, err := a.tmpl.Format(map[string]any{VarContext: ctxMark, VarQuestion: qMark})
	if err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}
	if !strings.Contains(out, ctxMark) {
		return nil, fmt.Errorf("%w: {%s}", ErrMissingVariable, VarContext)
	}
	if !strings.Contains(out, qMark) {
		return nil, fmt.Errorf("%w: {%s}", ErrMissingVariable, VarQuestion)
	}
	return a, nil
}

func (a *Assembler) Fallback() string { return a.fallback }

// Assemble joins the chunk contents and fills the template.
func (a *Assembler) Assemble(question string, chunks []models.Chunk) (string, error) {
	return a.tmpl.Format(map[string]any{
		VarContext:  FormatContext(chunks),
		VarQuestion: question,
	})
}

// FormatContext joins chunk contents in rank order separated by a blank line.
func FormatContext(chunks []models.Chunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Content
	}
	return strings.Join(parts, models.ContextSeparator)
}
