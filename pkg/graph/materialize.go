// Package graph turns validated extractions into the persistent property
// graph and drives the ingestion pipeline end to end.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maintkg/maintkg/internal/util"
	"github.com/maintkg/maintkg/pkg/ai"
	"github.com/maintkg/maintkg/pkg/extract"
	"github.com/maintkg/maintkg/pkg/logger"
	"github.com/maintkg/maintkg/pkg/store"
)

// Materializer merges validated extractions into the graph store. Node
// identity is the (label, normalized name) key: mentions of the same name
// under the same label across chunks and runs land on one node.
type Materializer struct {
	store    store.GraphStore
	aiClient ai.GraphAIClient

	maxRetries  int
	backoffBase int

	locks *keyedMutex
}

type NewMaterializerParams struct {
	Store store.GraphStore

	// AIClient embeds node names for similarity search. Optional:
	// without it nodes are stored unembedded.
	AIClient ai.GraphAIClient

	// MaxRetries bounds persistence retries per write.
	MaxRetries int
}

func NewMaterializer(params NewMaterializerParams) (*Materializer, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("graph: store is required")
	}
	retries := params.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Materializer{
		store:      params.Store,
		aiClient:   params.AIClient,
		maxRetries: retries,
		locks:      newKeyedMutex(),
	}, nil
}

// Report summarizes one materialization.
type Report struct {
	NodesCreated         int
	NodesMerged          int
	RelationshipsWritten int
	Warnings             []string
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Materialize writes one extraction into the store. Local node IDs resolve
// to store keys first; relationships whose endpoints did not materialize
// are dropped with a warning. The operation is idempotent: running the
// same extraction twice leaves the graph unchanged.
func (m *Materializer) Materialize(ctx context.Context, ext *extract.Extraction, sourceID string) (*Report, error) {
	report := &Report{}
	keyByLocalID := make(map[string]string, len(ext.Nodes))
	embeds := m.batchEmbed(ctx, ext.Nodes)

	for _, node := range ext.Nodes {
		key := store.NodeKey(node.Label, node.Name())
		created, err := m.upsertNode(ctx, node, key, sourceID, embeds[key])
		if err != nil {
			return report, fmt.Errorf("materializing node %q: %w", node.Name(), err)
		}
		keyByLocalID[node.LocalID] = key
		if created {
			report.NodesCreated++
		} else {
			report.NodesMerged++
		}
	}

	for _, rel := range ext.Relationships {
		startKey, okStart := keyByLocalID[rel.StartLocalID]
		endKey, okEnd := keyByLocalID[rel.EndLocalID]
		if !okStart || !okEnd {
			report.warn("relationship %s references a node that did not materialize, dropped", rel.Type)
			continue
		}

		err := util.RetryErrWithContext(ctx, m.maxRetries, func(ctx context.Context) error {
			return m.store.PutRelationship(ctx, &store.Relationship{
				Type:       rel.Type,
				StartKey:   startKey,
				EndKey:     endKey,
				Properties: rel.Properties,
			})
		})
		if err != nil {
			return report, fmt.Errorf("materializing relationship %s: %w", rel.Type, err)
		}
		report.RelationshipsWritten++
	}

	return report, nil
}

// upsertNode resolves one extracted node against the store under a per-key
// lock, so concurrent chunks mentioning the same entity serialize on it.
func (m *Materializer) upsertNode(ctx context.Context, node extract.Node, key, sourceID string, embedding []float32) (created bool, err error) {
	unlock := m.locks.lock(key)
	defer unlock()

	existing, err := m.store.GetNodeByKey(ctx, key)
	switch {
	case errors.Is(err, store.ErrNodeNotFound):
		id, err := gonanoid.New()
		if err != nil {
			return false, fmt.Errorf("generating node id: %w", err)
		}
		props := cloneProps(node.Properties)
		if sourceID != "" {
			if _, ok := props["source"]; !ok {
				src := sourceID
				props["source"] = &src
			}
		}
		fresh := &store.Node{
			ID:         id,
			Label:      node.Label,
			Key:        key,
			Name:       node.Name(),
			Properties: props,
			Embedding:  m.embedNode(ctx, node, embedding),
		}
		if err := m.putNode(ctx, fresh); err != nil {
			return false, err
		}
		return true, nil

	case err != nil:
		return false, err
	}

	// Merge: existing values win, incoming non-nil values fill the gaps.
	changed := false
	if existing.Properties == nil {
		existing.Properties = make(map[string]*string, len(node.Properties))
	}
	for k, v := range node.Properties {
		if v == nil {
			continue
		}
		if cur, ok := existing.Properties[k]; !ok || cur == nil {
			val := *v
			existing.Properties[k] = &val
			changed = true
		}
	}
	if len(existing.Embedding) == 0 {
		if emb := m.embedNode(ctx, node, embedding); len(emb) > 0 {
			existing.Embedding = emb
			changed = true
		}
	}

	if changed {
		if err := m.putNode(ctx, existing); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (m *Materializer) putNode(ctx context.Context, node *store.Node) error {
	return util.RetryErrWithContext(ctx, m.maxRetries, func(ctx context.Context) error {
		return m.store.PutNode(ctx, node)
	})
}

const embedBatchSize = 64

// batchEmbed embeds every distinct node mention of the extraction up front,
// batched per provider call. Best effort: on failure the per-node fallback
// in embedNode still runs. Existing embeddings are never overwritten, so
// over-embedding an already-known node costs a provider call, nothing more.
func (m *Materializer) batchEmbed(ctx context.Context, nodes []extract.Node) map[string][]float32 {
	if m.aiClient == nil || len(nodes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(nodes))
	inputs := make([][]byte, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		key := store.NodeKey(n.Label, n.Name())
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		inputs = append(inputs, []byte(embedInput(n)))
	}

	out := make(map[string][]float32, len(keys))
	err := store.ChunkRange(len(keys), embedBatchSize, func(start, end int) error {
		vecs, err := store.GenerateEmbeddings(ctx, m.aiClient, inputs[start:end])
		if err != nil {
			return err
		}
		for i, v := range vecs {
			out[keys[start+i]] = v
		}
		return nil
	})
	if err != nil {
		logger.Warn("[Graph] Batch embedding failed, falling back to per-node embedding", "err", err)
	}
	return out
}

// embedNode is best effort: an embedding failure degrades similarity search
// for this node but never fails the ingest.
func (m *Materializer) embedNode(ctx context.Context, node extract.Node, precomputed []float32) []float32 {
	if len(precomputed) > 0 {
		return precomputed
	}
	if m.aiClient == nil {
		return nil
	}
	emb, err := m.aiClient.GenerateEmbedding(ctx, []byte(embedInput(node)))
	if err != nil {
		logger.Warn("[Graph] Failed to embed node, storing without embedding",
			"node", node.Name(), "err", err)
		return nil
	}
	return emb
}

func embedInput(node extract.Node) string {
	return node.Label + ": " + node.Name()
}

func cloneProps(props map[string]*string) map[string]*string {
	out := make(map[string]*string, len(props))
	for k, v := range props {
		if v == nil {
			out[k] = nil
			continue
		}
		val := *v
		out[k] = &val
	}
	return out
}

// keyedMutex serializes access per node key while letting distinct keys
// proceed in parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
