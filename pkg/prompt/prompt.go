package prompt

import (
	"fmt"
	"strings"
)

// TemplateError reports a malformed template or a placeholder that could not
// be resolved during rendering.
type TemplateError struct {
	Placeholder string
	Reason      string
}

func (e *TemplateError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("prompt: template error at placeholder %q: %s", e.Placeholder, e.Reason)
	}
	return fmt.Sprintf("prompt: template error: %s", e.Reason)
}

// Render substitutes {placeholder} tokens in template with the supplied
// values. Literal braces are written as {{ and }}. Substitution is a single
// pass: values are inserted verbatim and never re-scanned, so value content
// cannot inject further placeholders. A placeholder without a value, or a
// stray unescaped brace, fails with a TemplateError.
func Render(template string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		ch := template[i]
		switch ch {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", &TemplateError{Reason: fmt.Sprintf("unterminated placeholder at offset %d", i)}
			}
			name := template[i+1 : i+1+end]
			if name == "" || strings.ContainsAny(name, "{ \t\n") {
				return "", &TemplateError{Placeholder: name, Reason: "invalid placeholder name"}
			}
			value, ok := values[name]
			if !ok {
				return "", &TemplateError{Placeholder: name, Reason: "no value supplied"}
			}
			b.WriteString(value)
			i += end + 2
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", &TemplateError{Reason: fmt.Sprintf("unescaped closing brace at offset %d", i)}
		default:
			b.WriteByte(ch)
			i++
		}
	}

	return b.String(), nil
}

// Builder composes extraction and answer prompts from a rendered schema
// block, optional few-shot examples, and per-call text.
type Builder struct {
	extractionTemplate string
	answerTemplate     string
	schemaBlock        string
	examples           string
}

// BuilderParams configures a prompt Builder. Empty template fields fall back
// to the built-in French maintenance templates.
type BuilderParams struct {
	ExtractionTemplate string
	AnswerTemplate     string
	SchemaBlock        string
	Examples           string
}

// NewBuilder validates the templates against their required placeholders and
// returns a Builder. Template problems are configuration errors and surface
// here, not at extraction time.
func NewBuilder(params BuilderParams) (*Builder, error) {
	b := &Builder{
		extractionTemplate: params.ExtractionTemplate,
		answerTemplate:     params.AnswerTemplate,
		schemaBlock:        params.SchemaBlock,
		examples:           params.Examples,
	}
	if b.extractionTemplate == "" {
		b.extractionTemplate = ExtractionTemplate
	}
	if b.answerTemplate == "" {
		b.answerTemplate = AnswerTemplate
	}

	if _, err := Render(b.extractionTemplate, map[string]string{
		"schema":   b.schemaBlock,
		"examples": b.examples,
		"text":     "",
	}); err != nil {
		return nil, fmt.Errorf("prompt: invalid extraction template: %w", err)
	}
	if _, err := Render(b.answerTemplate, map[string]string{
		"context":  "",
		"question": "",
	}); err != nil {
		return nil, fmt.Errorf("prompt: invalid answer template: %w", err)
	}

	return b, nil
}

// BuildExtraction renders the extraction prompt for one chunk of text.
func (b *Builder) BuildExtraction(chunkText string) (string, error) {
	return Render(b.extractionTemplate, map[string]string{
		"schema":   b.schemaBlock,
		"examples": b.examples,
		"text":     chunkText,
	})
}

// BuildAnswer renders the grounded answer prompt from the retrieved context
// subgraph and the user question.
func (b *Builder) BuildAnswer(context, question string) (string, error) {
	return Render(b.answerTemplate, map[string]string{
		"context":  context,
		"question": question,
	})
}
