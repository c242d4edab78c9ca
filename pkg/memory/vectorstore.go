package memory

// VectorStore is the system of record for saved memories (spec.md §4.2): a
// Weaviate class per collection, one object per memory with its embedding
// vector and JSON payload as Weaviate properties. No repository in the
// retrieved corpus calls weaviate-go-client directly (it appears only in
// go.mod requires and CLI help-text tests), so this wiring is written
// straight against the real client API rather than adapted from an
// existing call site; the collection-per-class layout and metadata-filter
// compilation follow spec.md §4.2/§6 exactly.

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

// Match is one search result: a saved memory and its similarity score.
type Match struct {
	ID       string
	Score    float64
	Payload  map[string]any
	Distance float64
}

// VectorStore wraps a Weaviate client scoped to the collections declared
// in configuration.
type VectorStore struct {
	client      *weaviate.Client
	collections map[string]config.CollectionConfig
}

// NewVectorStore dials the Weaviate instance described by cfg. apiKey may
// be empty for an unauthenticated instance.
func NewVectorStore(cfg *config.VectorStoreConfig, apiKey string, collections map[string]config.CollectionConfig) (*VectorStore, error) {
	wcfg := weaviate.Config{
		Scheme: cfg.Scheme,
		Host:   cfg.Host,
	}
	if apiKey != "" {
		wcfg.Headers = map[string]string{"Authorization": "Bearer " + apiKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.Internal, "memory.vectorstore.dial", err)
	}
	return &VectorStore{client: client, collections: collections}, nil
}

// className maps a collection name to its Weaviate class name. Weaviate
// class names must start with an uppercase letter; collection names are
// lowercase_with_underscores, so this prefixes them with "Memory_".
func className(collection string) string {
	if collection == "" {
		return collection
	}
	return "Memory_" + collection
}

// EnsureSchema creates the Weaviate class for every configured collection
// if it does not already exist. Called once at startup.
func (vs *VectorStore) EnsureSchema(ctx context.Context) error {
	for name, cc := range vs.collections {
		exists, err := vs.client.Schema().ClassExistenceChecker().WithClassName(className(name)).Do(ctx)
		if err != nil {
			return taxonomy.Wrap(taxonomy.Transient, "memory.vectorstore.ensure_schema", err)
		}
		if exists {
			continue
		}
		class := &models.Class{
			Class:      className(name),
			Vectorizer: "none", // vectors are supplied by pkg/embedding, not computed by Weaviate
			VectorIndexConfig: map[string]any{
				"distance":       "cosine",
				"maxConnections": vs.hnswM(),
				"efConstruction": vs.hnswEfConstruct(),
			},
			Properties: propertiesFor(cc),
		}
		if err := vs.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return taxonomy.Wrap(taxonomy.Internal, "memory.vectorstore.ensure_schema", fmt.Errorf("create class %s: %w", className(name), err))
		}
	}
	return nil
}

func (vs *VectorStore) hnswM() int            { return 16 }
func (vs *VectorStore) hnswEfConstruct() int   { return 100 }

func propertiesFor(cc config.CollectionConfig) []*models.Property {
	props := make([]*models.Property, 0, len(cc.Schema))
	for field, ft := range cc.Schema {
		props = append(props, &models.Property{
			Name:     field,
			DataType: weaviateDataType(ft),
		})
	}
	return props
}

func weaviateDataType(ft config.FieldType) []string {
	switch ft {
	case config.FieldInt:
		return []string{"int"}
	case config.FieldFloat:
		return []string{"number"}
	case config.FieldBool:
		return []string{"boolean"}
	case config.FieldDate:
		return []string{"date"}
	default:
		return []string{"text"}
	}
}

// Save writes (or overwrites, if id already exists) one memory object.
func (vs *VectorStore) Save(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error {
	_, err := vs.client.Data().Creator().
		WithClassName(className(collection)).
		WithID(id).
		WithVector(vector).
		WithProperties(payload).
		Do(ctx)
	if err != nil {
		return taxonomy.Wrap(taxonomy.Transient, "memory.vectorstore.save", err)
	}
	return nil
}

// Search runs a k-nearest-neighbor query, ANDing the supplied filters.
func (vs *VectorStore) Search(ctx context.Context, collection string, vector []float32, k int, filters []Filter, fields []string) ([]Match, error) {
	nearVector := vs.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	gqlFields := make([]graphql.Field, 0, len(fields)+1)
	for _, f := range fields {
		gqlFields = append(gqlFields, graphql.Field{Name: f})
	}
	gqlFields = append(gqlFields, graphql.Field{
		Name: "_additional",
		Fields: []graphql.Field{
			{Name: "id"},
			{Name: "distance"},
		},
	})

	where, err := compileWhere(filters)
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.SchemaViolation, "memory.vectorstore.search", err)
	}

	builder := vs.client.GraphQL().Get().
		WithClassName(className(collection)).
		WithFields(gqlFields...).
		WithNearVector(nearVector).
		WithLimit(k)
	if where != nil {
		builder = builder.WithWhere(where)
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.Transient, "memory.vectorstore.search", err)
	}
	if len(resp.Errors) > 0 {
		return nil, taxonomy.New(taxonomy.Internal, "memory.vectorstore.search", resp.Errors[0].Message)
	}

	return parseGetResponse(resp, className(collection))
}

// Delete removes one memory object by id.
func (vs *VectorStore) Delete(ctx context.Context, collection, id string) error {
	err := vs.client.Data().Deleter().
		WithClassName(className(collection)).
		WithID(id).
		Do(ctx)
	if err != nil {
		return taxonomy.Wrap(taxonomy.Transient, "memory.vectorstore.delete", err)
	}
	return nil
}

// UpdateMetadata merges new property values into an existing object
// without changing its vector.
func (vs *VectorStore) UpdateMetadata(ctx context.Context, collection, id string, payload map[string]any) error {
	err := vs.client.Data().Updater().
		WithClassName(className(collection)).
		WithID(id).
		WithProperties(payload).
		WithMerge().
		Do(ctx)
	if err != nil {
		return taxonomy.Wrap(taxonomy.Transient, "memory.vectorstore.update_metadata", err)
	}
	return nil
}

// CollectionCount returns the number of objects stored in a collection,
// used by stats().
func (vs *VectorStore) CollectionCount(ctx context.Context, collection string) (int64, error) {
	resp, err := vs.client.GraphQL().Aggregate().
		WithClassName(className(collection)).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, taxonomy.Wrap(taxonomy.Transient, "memory.vectorstore.count", err)
	}
	if len(resp.Errors) > 0 {
		return 0, taxonomy.New(taxonomy.Internal, "memory.vectorstore.count", resp.Errors[0].Message)
	}
	return extractAggregateCount(resp, className(collection)), nil
}

func parseGetResponse(resp *models.GraphQLResponse, class string) ([]Match, error) {
	data, ok := resp.Data["Get"].(map[string]any)
	if !ok {
		return nil, nil
	}
	rows, ok := data[class].([]any)
	if !ok {
		return nil, nil
	}
	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		var id string
		var distance float64
		if add, ok := row["_additional"].(map[string]any); ok {
			if s, ok := add["id"].(string); ok {
				id = s
			}
			if d, ok := add["distance"].(float64); ok {
				distance = d
			}
		}
		payload := make(map[string]any, len(row))
		for k, v := range row {
			if k == "_additional" {
				continue
			}
			payload[k] = v
		}
		matches = append(matches, Match{
			ID:       id,
			Score:    1 - distance, // cosine distance -> similarity
			Distance: distance,
			Payload:  payload,
		})
	}
	return matches, nil
}

func extractAggregateCount(resp *models.GraphQLResponse, class string) int64 {
	data, ok := resp.Data["Aggregate"].(map[string]any)
	if !ok {
		return 0
	}
	rows, ok := data[class].([]any)
	if !ok || len(rows) == 0 {
		return 0
	}
	row, ok := rows[0].(map[string]any)
	if !ok {
		return 0
	}
	meta, ok := row["meta"].(map[string]any)
	if !ok {
		return 0
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0
	}
	return int64(count)
}
