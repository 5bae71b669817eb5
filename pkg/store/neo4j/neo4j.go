// Package neo4j implements the GraphStore on a Neo4j database. Nodes carry
// their schema label as the Neo4j label plus a unique key property; edges
// use the relationship type directly, so the stored graph is browsable with
// plain Cypher.
package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/maintkg/maintkg/pkg/store"
)

// Config holds Neo4j connection configuration.
type Config struct {
	URI      string
	Username string
	Password string
	Database string

	// VectorIndex is the name of the vector index over node embeddings.
	// Empty disables similarity search.
	VectorIndex string
}

// Store wraps a Neo4j driver behind the GraphStore interface.
type Store struct {
	driver      neo4j.DriverWithContext
	database    string
	vectorIndex string
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	db := cfg.Database
	if db == "" {
		db = "neo4j"
	}
	return &Store{driver: driver, database: db, vectorIndex: cfg.VectorIndex}, nil
}

// EnsureSchema creates the key uniqueness constraint and, when configured,
// the vector index. Safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context, labels []string, embedDim int) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, label := range labels {
			if err := validIdentifier(label); err != nil {
				return nil, err
			}
			q := fmt.Sprintf(
				"CREATE CONSTRAINT IF NOT EXISTS FOR (n:`%s`) REQUIRE n.key IS UNIQUE", label)
			if _, err := tx.Run(ctx, q, nil); err != nil {
				return nil, err
			}
		}
		if s.vectorIndex != "" && embedDim > 0 {
			if err := validIdentifier(s.vectorIndex); err != nil {
				return nil, err
			}
			q := fmt.Sprintf(`
				CREATE VECTOR INDEX %s IF NOT EXISTS
				FOR (n:Entity) ON (n.embedding)
				OPTIONS {indexConfig: {
					`+"`vector.dimensions`"+`: $dim,
					`+"`vector.similarity_function`"+`: 'cosine'
				}}`, s.vectorIndex)
			if _, err := tx.Run(ctx, q, map[string]any{"dim": embedDim}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) GetNodeByKey(ctx context.Context, key string) (*store.Node, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (n:Entity {key: $key}) RETURN n", map[string]any{"key": key})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, store.ErrNodeNotFound
		}
		value, _ := res.Record().Get("n")
		return nodeFromProps(value.(neo4j.Node).Props), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*store.Node), nil
}

// PutNode MERGEs on the key so re-writing a node updates it in place. Every
// node additionally carries the Entity label to give constraints and the
// vector index a single anchor.
func (s *Store) PutNode(ctx context.Context, node *store.Node) error {
	if err := validIdentifier(node.Label); err != nil {
		return err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MERGE (n:Entity {key: $key})
			SET n:`+"`%s`"+`,
				n.id = $id,
				n.label = $label,
				n.name = $name,
				n.embedding = $embedding
			SET n += $props
		`, node.Label)

		params := map[string]any{
			"key":       node.Key,
			"id":        node.ID,
			"label":     node.Label,
			"name":      node.Name,
			"embedding": embeddingParam(node.Embedding),
			"props":     propsParam(node.Properties),
		}
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

// PutRelationship MERGEs the edge so the same (type, start, end) triple is
// stored once; incoming properties overlay the stored ones.
func (s *Store) PutRelationship(ctx context.Context, rel *store.Relationship) error {
	if err := validIdentifier(rel.Type); err != nil {
		return err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (a:Entity {key: $start_key})
			MATCH (b:Entity {key: $end_key})
			MERGE (a)-[r:`+"`%s`"+`]->(b)
			SET r += $props
		`, rel.Type)

		params := map[string]any{
			"start_key": rel.StartKey,
			"end_key":   rel.EndKey,
			"props":     propsParam(rel.Properties),
		}
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

func (s *Store) SimilarNodes(ctx context.Context, embedding []float32, topK int) ([]store.Node, error) {
	if s.vectorIndex == "" {
		return nil, fmt.Errorf("neo4j: no vector index configured")
	}
	if topK <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			CALL db.index.vector.queryNodes($index, $topK, $embedding)
			YIELD node
			RETURN node
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"index":     s.vectorIndex,
			"topK":      topK,
			"embedding": embeddingParam(embedding),
		})
		if err != nil {
			return nil, err
		}

		var nodes []store.Node
		for res.Next(ctx) {
			value, _ := res.Record().Get("node")
			nodes = append(nodes, *nodeFromProps(value.(neo4j.Node).Props))
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]store.Node), nil
}

func (s *Store) Neighborhood(ctx context.Context, keys []string) (*store.Subgraph, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (n:Entity) WHERE n.key IN $keys
			OPTIONAL MATCH (n)-[r]-(m:Entity)
			RETURN n, r, m, startNode(r).key AS start_key, endNode(r).key AS end_key
		`
		res, err := tx.Run(ctx, query, map[string]any{"keys": keys})
		if err != nil {
			return nil, err
		}

		sub := &store.Subgraph{}
		seenNodes := make(map[string]struct{})
		type edgeID struct {
			typ, start, end string
		}
		seenEdges := make(map[edgeID]struct{})

		collect := func(value any) {
			n, ok := value.(neo4j.Node)
			if !ok {
				return
			}
			node := nodeFromProps(n.Props)
			if _, dup := seenNodes[node.Key]; dup {
				return
			}
			seenNodes[node.Key] = struct{}{}
			sub.Nodes = append(sub.Nodes, *node)
		}

		for res.Next(ctx) {
			record := res.Record()
			nVal, _ := record.Get("n")
			collect(nVal)
			mVal, _ := record.Get("m")
			collect(mVal)

			rVal, _ := record.Get("r")
			r, ok := rVal.(neo4j.Relationship)
			if !ok {
				continue
			}
			startKey, _ := record.Get("start_key")
			endKey, _ := record.Get("end_key")
			sk, _ := startKey.(string)
			ek, _ := endKey.(string)

			id := edgeID{typ: r.Type, start: sk, end: ek}
			if _, dup := seenEdges[id]; dup {
				continue
			}
			seenEdges[id] = struct{}{}
			sub.Relationships = append(sub.Relationships, store.Relationship{
				Type:       r.Type,
				StartKey:   sk,
				EndKey:     ek,
				Properties: propsFromNeo4j(r.Props),
			})
		}
		return sub, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.(*store.Subgraph), nil
}

func nodeFromProps(props map[string]any) *store.Node {
	node := &store.Node{Properties: make(map[string]*string)}
	for k, v := range props {
		switch k {
		case "id":
			node.ID, _ = v.(string)
		case "key":
			node.Key, _ = v.(string)
		case "label":
			node.Label, _ = v.(string)
		case "name":
			node.Name, _ = v.(string)
		case "embedding":
			node.Embedding = toFloat32s(v)
		default:
			if v == nil {
				node.Properties[k] = nil
				continue
			}
			s := fmt.Sprintf("%v", v)
			node.Properties[k] = &s
		}
	}
	if node.Name != "" {
		name := node.Name
		node.Properties["name"] = &name
	}
	return node
}

// propsParam flattens string-pointer properties for Cypher. Nil values are
// skipped: Neo4j treats a null SET as property removal, which would undo
// merges.
func propsParam(props map[string]*string) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		out[k] = *v
	}
	return out
}

func propsFromNeo4j(props map[string]any) map[string]*string {
	out := make(map[string]*string, len(props))
	for k, v := range props {
		if v == nil {
			out[k] = nil
			continue
		}
		s := fmt.Sprintf("%v", v)
		out[k] = &s
	}
	return out
}

func embeddingParam(embedding []float32) []any {
	if len(embedding) == 0 {
		return nil
	}
	out := make([]any, len(embedding))
	for i, v := range embedding {
		out[i] = float64(v)
	}
	return out
}

func toFloat32s(v any) []float32 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, item := range list {
		f, ok := item.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}

// validIdentifier guards values interpolated into Cypher as labels and
// relationship types. They come from the schema registry, never from model
// output, but the check keeps that assumption local.
func validIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("neo4j: empty identifier")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("neo4j: invalid identifier %q", s)
		}
	}
	if strings.ContainsAny(s[:1], "0123456789") {
		return fmt.Errorf("neo4j: identifier %q starts with a digit", s)
	}
	return nil
}
