package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/citeright/citeright/internal/corpus"
)

// Payload keys with dedicated slots on corpus.Metadata. Anything else in a
// point's payload round-trips through Metadata.Extra.
const (
	payloadContent = "content"
	payloadSource  = "source"
	payloadOrigin  = "origin"
	payloadLicense = "license"
	payloadURL     = "url"
	payloadTitle   = "title"
	payloadSummary = "summary"
)

// QdrantStore implements VectorStore using a single Qdrant collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore creates a new Qdrant vector store client.
// url should be in format "host:port" (e.g., "localhost:6334").
func NewQdrantStore(ctx context.Context, url, collection string, dimension int) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client, collection: collection, dimension: dimension}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the collection if it does not already exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// Upsert inserts or updates chunks with their embedding vectors.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []corpus.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d != %d", len(chunks), len(vectors))
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]*qdrant.Value{
			payloadContent: qdrant.NewValueString(chunk.Content),
			payloadSource:  qdrant.NewValueString(chunk.Metadata.Source),
			payloadOrigin:  qdrant.NewValueString(chunk.Metadata.Origin),
			payloadLicense: qdrant.NewValueString(chunk.Metadata.License),
			payloadURL:     qdrant.NewValueString(chunk.Metadata.URL),
			payloadTitle:   qdrant.NewValueString(chunk.Metadata.Title),
			payloadSummary: qdrant.NewValueString(chunk.Metadata.Summary),
		}
		for k, v := range chunk.Metadata.Extra {
			if !isReservedPayloadKey(k) {
				payload[k] = qdrant.NewValueString(v)
			}
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Payload: payload,
			Vectors: qdrant.NewVectors(vectors[i]...),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// Search performs similarity search, best-match first.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]corpus.Chunk, error) {
	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	chunks := make([]corpus.Chunk, 0, len(response))
	for _, point := range response {
		chunks = append(chunks, chunkFromPayload(point.Id.GetUuid(), point.Payload))
	}

	return chunks, nil
}

// All returns a snapshot of every stored chunk.
func (s *QdrantStore) All(ctx context.Context) ([]corpus.Chunk, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint32(total)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll collection: %w", err)
	}

	chunks := make([]corpus.Chunk, 0, len(points))
	for _, point := range points {
		chunks = append(chunks, chunkFromPayload(point.Id.GetUuid(), point.Payload))
	}

	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return count, nil
}

// Clear removes the entire collection and recreates it empty.
func (s *QdrantStore) Clear(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}
	return s.EnsureCollection(ctx)
}

func isReservedPayloadKey(k string) bool {
	switch k {
	case payloadContent, payloadSource, payloadOrigin, payloadLicense, payloadURL, payloadTitle, payloadSummary:
		return true
	}
	return false
}

// chunkFromPayload rebuilds a corpus.Chunk from a point's payload, routing
// unknown keys into Metadata.Extra.
func chunkFromPayload(id string, payload map[string]*qdrant.Value) corpus.Chunk {
	chunk := corpus.Chunk{ID: id}
	if payload == nil {
		return chunk
	}

	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}

	chunk.Content = get(payloadContent)
	chunk.Metadata = corpus.Metadata{
		Source:  get(payloadSource),
		Origin:  get(payloadOrigin),
		License: get(payloadLicense),
		URL:     get(payloadURL),
		Title:   get(payloadTitle),
		Summary: get(payloadSummary),
	}

	for k, v := range payload {
		if !isReservedPayloadKey(k) {
			if chunk.Metadata.Extra == nil {
				chunk.Metadata.Extra = make(map[string]string)
			}
			chunk.Metadata.Extra[k] = v.GetStringValue()
		}
	}

	return chunk
}

// Ensure QdrantStore implements VectorStore
var _ VectorStore = (*QdrantStore)(nil)
