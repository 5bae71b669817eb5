// Package query answers questions over the materialized graph. A question
// is embedded, matched against node embeddings, expanded one hop, and the
// resulting subgraph is handed to the model as grounding context.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/maintkg/maintkg/pkg/ai"
	"github.com/maintkg/maintkg/pkg/prompt"
	"github.com/maintkg/maintkg/pkg/store"
)

// Stages of the answer path, reported on both failures and answers so
// callers can see how far a question got.
const (
	StageEmbed   = "embed"
	StageSearch  = "search"
	StageContext = "context"
	StageAnswer  = "answer"
)

const defaultTopK = 5

// Answer is the structured result of one question.
type Answer struct {
	Text     string   `json:"text"`
	Stage    string   `json:"stage"`
	Warnings []string `json:"warnings,omitempty"`
}

type Client struct {
	aiClient ai.GraphAIClient
	store    store.GraphStore
	builder  *prompt.Builder
	topK     int
}

type NewClientParams struct {
	AIClient ai.GraphAIClient
	Store    store.GraphStore
	Builder  *prompt.Builder

	// TopK bounds the similarity search. Defaults to 5.
	TopK int
}

func NewClient(params NewClientParams) (*Client, error) {
	if params.AIClient == nil {
		return nil, fmt.Errorf("query: AI client is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("query: store is required")
	}
	if params.Builder == nil {
		return nil, fmt.Errorf("query: prompt builder is required")
	}
	topK := params.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Client{
		aiClient: params.AIClient,
		store:    params.Store,
		builder:  params.Builder,
		topK:     topK,
	}, nil
}

// Ask answers one question. Errors carry the stage they occurred in; an
// empty graph match is not an error but a no-data answer.
func (c *Client) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("query: empty question")
	}

	embedding, err := c.aiClient.GenerateEmbedding(ctx, []byte(question))
	if err != nil {
		return nil, fmt.Errorf("query stage %s: %w", StageEmbed, err)
	}

	seeds, err := c.store.SimilarNodes(ctx, embedding, c.topK)
	if err != nil {
		return nil, fmt.Errorf("query stage %s: %w", StageSearch, err)
	}
	if len(seeds) == 0 {
		return &Answer{
			Text:     "Aucune donnée pertinente trouvée dans le graphe pour cette question.",
			Stage:    StageSearch,
			Warnings: []string{"no graph nodes matched the question"},
		}, nil
	}

	keys := make([]string, 0, len(seeds))
	for _, n := range seeds {
		keys = append(keys, n.Key)
	}
	sub, err := c.store.Neighborhood(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("query stage %s: %w", StageContext, err)
	}

	p, err := c.builder.BuildAnswer(renderContext(sub), question)
	if err != nil {
		return nil, fmt.Errorf("query stage %s: %w", StageContext, err)
	}

	text, err := c.aiClient.GenerateCompletion(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("query stage %s: %w", StageAnswer, err)
	}

	return &Answer{Text: strings.TrimSpace(text), Stage: StageAnswer}, nil
}

// renderContext lays the subgraph out as indented text, nodes first, then
// edges by name. The layout is deterministic so identical graphs produce
// identical prompts.
func renderContext(sub *store.Subgraph) string {
	nameByKey := make(map[string]string, len(sub.Nodes))
	for _, n := range sub.Nodes {
		nameByKey[n.Key] = n.Name
	}

	var b strings.Builder
	b.WriteString("Entités:\n")
	for _, n := range sub.Nodes {
		b.WriteString("- (")
		b.WriteString(n.Label)
		b.WriteString(") ")
		b.WriteString(n.Name)

		props := renderProps(n.Properties)
		if props != "" {
			b.WriteString(" [")
			b.WriteString(props)
			b.WriteString("]")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nRelations:\n")
	if len(sub.Relationships) == 0 {
		b.WriteString("- aucune\n")
		return b.String()
	}
	for _, r := range sub.Relationships {
		start := nameByKey[r.StartKey]
		end := nameByKey[r.EndKey]
		if start == "" || end == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s -[%s]-> %s\n", start, r.Type, end)
	}
	return b.String()
}

func renderProps(props map[string]*string) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		if k == "name" || props[k] == nil {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+*props[k])
	}
	return strings.Join(parts, ", ")
}
