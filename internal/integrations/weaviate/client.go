package weaviate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"profile-agent/internal/domain"
)

const defaultClassName = "ProfileChunk"

// UnavailableError marks the retrieval backend as unreachable, as opposed
// to a valid empty result. The pipeline converts it into a degraded-mode
// answer instead of aborting the turn.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("weaviate: backend unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) RetrievalUnavailable() bool { return true }

// Client retrieves profile chunks by semantic similarity.
type Client struct {
	api       *weaviate.Client
	className string
}

type Option func(*Client)

// WithClassName overrides the Weaviate class queried for chunks.
func WithClassName(name string) Option {
	return func(c *Client) {
		c.className = strings.TrimSpace(name)
	}
}

// New creates a retrieval client over an initialized Weaviate connection.
func New(api *weaviate.Client, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("weaviate: api must not be nil")
	}
	c := &Client{api: api, className: defaultClassName}
	for _, opt := range opts {
		opt(c)
	}
	if c.className == "" {
		return nil, errors.New("weaviate: class name must not be empty")
	}
	return c, nil
}

// Retrieve runs a nearText search and returns up to k chunks ranked by
// certainty. No results is a valid empty slice; a transport failure is
// wrapped in UnavailableError.
func (c *Client) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("weaviate: query must not be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("weaviate: top-k must be positive, got %d", k)
	}

	nearText := c.api.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "sourceId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	result, err := c.api.GraphQL().Get().
		WithClassName(c.className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate: query error: %s", result.Errors[0].Message)
	}

	return parseChunks(result.Data, c.className)
}

// parseChunks walks the GraphQL response shape {Get: {<class>: [...]}}.
func parseChunks(data map[string]models.JSONObject, className string) ([]domain.RetrievedChunk, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rows, ok := get[className].([]interface{})
	if !ok {
		return nil, nil
	}

	chunks := make([]domain.RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		chunk := domain.RetrievedChunk{
			Content:  stringField(obj, "content"),
			SourceID: stringField(obj, "sourceId"),
		}
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if certainty, ok := add["certainty"].(float64); ok {
				chunk.Score = certainty
			}
		}
		if chunk.Content == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}
