package ollama

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// GraphOllamaClient serves the extraction, answer, and embedding calls of
// the graph pipeline from locally-hosted Ollama models.
type GraphOllamaClient struct {
	embeddingModel  string
	extractionModel string
	answerModel     string

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a
// new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	EmbeddingModel  string
	ExtractionModel string
	AnswerModel     string

	BaseURL string
	ApiKey  string
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	rt := t.rt
	if rt == nil {
		rt = http.DefaultTransport
	}
	return rt.RoundTrip(req)
}

// NewGraphOllamaClient creates a client for the given Ollama endpoint. An
// optional API key is attached as a bearer token for proxied deployments.
func NewGraphOllamaClient(params NewGraphOllamaClientParams) (*GraphOllamaClient, error) {
	base, err := url.Parse(params.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid base URL %q: %w", params.BaseURL, err)
	}

	httpClient := &http.Client{}
	if params.ApiKey != "" {
		httpClient.Transport = &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
		}
	}

	return &GraphOllamaClient{
		embeddingModel:  params.EmbeddingModel,
		extractionModel: params.ExtractionModel,
		answerModel:     params.AnswerModel,

		baseURL:    base,
		apiKey:     params.ApiKey,
		httpClient: httpClient,

		Client: api.NewClient(base, httpClient),
	}, nil
}
