// Package setup builds the pipeline components from the environment. The
// binaries share the same wiring: pick an AI adapter, pick a graph store,
// load a schema preset, then assemble the extraction pipeline or the query
// client on top.
package setup

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/maintkg/maintkg/internal/util"
	"github.com/maintkg/maintkg/pkg/ai"
	oai "github.com/maintkg/maintkg/pkg/ai/ollama"
	gai "github.com/maintkg/maintkg/pkg/ai/openai"
	"github.com/maintkg/maintkg/pkg/chunk"
	"github.com/maintkg/maintkg/pkg/extract"
	"github.com/maintkg/maintkg/pkg/graph"
	"github.com/maintkg/maintkg/pkg/logger"
	"github.com/maintkg/maintkg/pkg/prompt"
	"github.com/maintkg/maintkg/pkg/query"
	"github.com/maintkg/maintkg/pkg/schema"
	"github.com/maintkg/maintkg/pkg/store"
	memstore "github.com/maintkg/maintkg/pkg/store/memory"
	neostore "github.com/maintkg/maintkg/pkg/store/neo4j"
	pgstore "github.com/maintkg/maintkg/pkg/store/pgx"
)

// AIClient builds the model client selected by AI_ADAPTER. Anything other
// than "ollama" gets the OpenAI-compatible adapter.
func AIClient() ai.GraphAIClient {
	adapter := util.GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			AnswerModel:     util.GetEnv("AI_CHAT_ANSWER_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			AnswerModel:     util.GetEnv("AI_CHAT_ANSWER_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
		})
	}
}

// GraphStore opens the store selected by STORE_ADAPTER: "pgx" (default),
// "neo4j", or "memory" for throwaway runs.
func GraphStore(ctx context.Context) store.GraphStore {
	adapter := util.GetEnvString("STORE_ADAPTER", "pgx")

	switch adapter {
	case "memory":
		return memstore.New()
	case "neo4j":
		s, err := neostore.New(ctx, neostore.Config{
			URI:         util.RequireEnv("NEO4J_URI"),
			Username:    util.GetEnv("NEO4J_USERNAME"),
			Password:    util.GetEnv("NEO4J_PASSWORD"),
			Database:    util.GetEnvString("NEO4J_DATABASE", "neo4j"),
			VectorIndex: util.GetEnvString("NEO4J_VECTOR_INDEX", "entity_embeddings"),
		})
		if err != nil {
			logger.Fatal("Unable to connect to Neo4j", "err", err)
		}

		registry := Registry()
		labels := make([]string, 0, len(registry.NodeTypes()))
		for _, nt := range registry.NodeTypes() {
			labels = append(labels, nt.Label)
		}
		embedDim := int(util.GetEnvNumeric("AI_EMBED_DIM", 1536))
		if err := s.EnsureSchema(ctx, labels, embedDim); err != nil {
			logger.Fatal("Unable to prepare Neo4j schema", "err", err)
		}
		return s
	default:
		s, err := pgstore.New(ctx, util.RequireEnv("DATABASE_URL"))
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		return s
	}
}

// Registry loads the schema preset named by SCHEMA_PRESET.
func Registry() *schema.Registry {
	preset := util.GetEnvString("SCHEMA_PRESET", "maintenance")

	var registry *schema.Registry
	var err error
	switch preset {
	case "medical":
		registry, err = schema.MedicalRegistry()
	default:
		registry, err = schema.MaintenanceRegistry()
	}
	if err != nil {
		logger.Fatal("Invalid schema preset", "preset", preset, "err", err)
	}
	return registry
}

// Builder renders the registry into the extraction and answer prompts.
func Builder(registry *schema.Registry) *prompt.Builder {
	builder, err := prompt.NewBuilder(prompt.BuilderParams{
		SchemaBlock: registry.Render(),
	})
	if err != nil {
		logger.Fatal("Could not build prompt templates", "err", err)
	}
	return builder
}

// Runner assembles the full ingestion pipeline on top of the given AI
// client and store.
func Runner(aiClient ai.GraphAIClient, graphStore store.GraphStore) *graph.Runner {
	registry := Registry()
	builder := Builder(registry)

	chunkSize := int(util.GetEnvNumeric("CHUNK_SIZE", 1000))
	chunkOverlap := int(util.GetEnvNumeric("CHUNK_OVERLAP", 100))

	var splitter *chunk.Splitter
	var err error
	if encoding := util.GetEnv("CHUNK_ENCODING"); encoding != "" {
		splitter, err = chunk.NewTokenSplitter(chunkSize, chunkOverlap, encoding)
	} else {
		splitter, err = chunk.NewSplitter(chunkSize, chunkOverlap)
	}
	if err != nil {
		logger.Fatal("Invalid chunking configuration", "err", err)
	}

	extractor, err := extract.NewClient(extract.NewClientParams{
		AIClient:      aiClient,
		Builder:       builder,
		Timeout:       time.Duration(util.GetEnvNumeric("AI_TIMEOUT_SECONDS", 60)) * time.Second,
		MaxRetries:    int(util.GetEnvNumeric("EXTRACT_MAX_RETRIES", 3)),
		EnforceFormat: util.GetEnvBool("AI_ENFORCE_FORMAT", false),
	})
	if err != nil {
		logger.Fatal("Could not create extraction client", "err", err)
	}

	materializer, err := graph.NewMaterializer(graph.NewMaterializerParams{
		Store:    graphStore,
		AIClient: aiClient,
	})
	if err != nil {
		logger.Fatal("Could not create materializer", "err", err)
	}

	var limiter *rate.Limiter
	if rps := util.GetEnvNumeric("AI_RATE_LIMIT", 0); rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	runner, err := graph.NewRunner(graph.NewRunnerParams{
		Splitter:     splitter,
		Extractor:    extractor,
		Registry:     registry,
		Materializer: materializer,
		Parallel:     int(util.GetEnvNumeric("WORKER_PARALLEL", 4)),
		Limiter:      limiter,
		Strict:       util.GetEnvBool("INGEST_STRICT", false),
	})
	if err != nil {
		logger.Fatal("Could not create pipeline runner", "err", err)
	}
	return runner
}

// QueryClient assembles the retrieval side on top of the given AI client
// and store.
func QueryClient(aiClient ai.GraphAIClient, graphStore store.GraphStore) *query.Client {
	client, err := query.NewClient(query.NewClientParams{
		AIClient: aiClient,
		Store:    graphStore,
		Builder:  Builder(Registry()),
		TopK:     int(util.GetEnvNumeric("QUERY_TOP_K", 5)),
	})
	if err != nil {
		logger.Fatal("Could not create query client", "err", err)
	}
	return client
}
