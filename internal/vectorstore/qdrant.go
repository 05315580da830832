package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// Vector field names for hybrid search.
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// QdrantStore implements VectorStore using Qdrant. Unlike the multi-tenant
// original, it targets one fixed, configured collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a new Qdrant vector store client.
// url should be in format "host:port" (e.g., "localhost:6334").
func NewQdrantStore(ctx context.Context, url, collection string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
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

	return &QdrantStore{client: client, collection: collection}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointID derives a deterministic Qdrant point UUID from a chunk ID, since
// Qdrant point IDs must be an unsigned int or a UUID, but chunk IDs are
// sha256 hex strings derived from a document's content hash and chunk
// index.
func pointID(chunkID string) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(chunkID))
}

// EnsureCollection creates the collection (dense vectors only) if absent.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection existence: %v", ErrTransient, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// EnsureHybridCollection creates a collection with both dense and sparse
// vector support, if absent.
func (s *QdrantStore) EnsureHybridCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection existence: %v", ErrTransient, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create hybrid collection: %w", err)
	}
	return nil
}

// Upsert inserts or updates records. Supports both dense-only and hybrid
// (dense + sparse) collections depending on whether a record carries a
// SparseVector.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		payload := map[string]*qdrant.Value{
			"chunk_id": qdrant.NewValueString(rec.ID),
			"content":  qdrant.NewValueString(rec.Content),
		}
		for k, v := range rec.Metadata {
			payload[k] = qdrant.NewValueString(v)
		}

		point := &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(rec.ID).String()),
			Payload: payload,
		}

		if rec.SparseVector != nil {
			point.Vectors = &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vectors{
					Vectors: &qdrant.NamedVectors{
						Vectors: map[string]*qdrant.Vector{
							denseVectorName: {
								Data: rec.Vector,
							},
							sparseVectorName: {
								Indices: &qdrant.SparseIndices{Data: rec.SparseVector.Indices},
								Data:    rec.SparseVector.Values,
							},
						},
					},
				},
			}
		} else {
			point.Vectors = qdrant.NewVectors(rec.Vector...)
		}

		points[i] = point
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

func buildQdrantFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: conditions}
}

func resultFromPayload(id string, score float32, payload map[string]*qdrant.Value) SearchResult {
	result := SearchResult{
		ID:       id,
		Score:    score,
		Metadata: make(map[string]string),
	}
	if content, ok := payload["content"]; ok {
		result.Content = content.GetStringValue()
	}
	for k, v := range payload {
		if k != "content" {
			result.Metadata[k] = v.GetStringValue()
		}
	}
	return result
}

// Search performs similarity search, optionally constrained by filter.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error) {
	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	results := make([]SearchResult, 0, len(response))
	for _, point := range response {
		chunkID := point.Id.GetUuid()
		if payload := point.Payload; payload != nil {
			if cid, ok := payload["chunk_id"]; ok {
				chunkID = cid.GetStringValue()
			}
		}
		results = append(results, resultFromPayload(chunkID, point.Score, point.Payload))
	}

	return results, nil
}

// HybridSearch performs hybrid search combining dense and sparse vectors
// with RRF fusion.
func (s *QdrantStore) HybridSearch(ctx context.Context, denseVector []float32, sparseVector *SparseVector, topK int, filter Filter) ([]SearchResult, error) {
	prefetchLimit := uint64(topK * 2)

	prefetch := []*qdrant.PrefetchQuery{
		{
			Query: qdrant.NewQueryDense(denseVector),
			Using: qdrant.PtrOf(denseVectorName),
			Limit: qdrant.PtrOf(prefetchLimit),
		},
	}

	if sparseVector != nil && len(sparseVector.Indices) > 0 {
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query: qdrant.NewQuerySparse(sparseVector.Indices, sparseVector.Values),
			Using: qdrant.PtrOf(sparseVectorName),
			Limit: qdrant.PtrOf(prefetchLimit),
		})
	}

	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Filter:         buildQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	results := make([]SearchResult, 0, len(response))
	for _, point := range response {
		chunkID := point.Id.GetUuid()
		if payload := point.Payload; payload != nil {
			if cid, ok := payload["chunk_id"]; ok {
				chunkID = cid.GetStringValue()
			}
		}
		results = append(results, resultFromPayload(chunkID, point.Score, point.Payload))
	}

	return results, nil
}

// Delete removes records matching filter.
func (s *QdrantStore) Delete(ctx context.Context, filter Filter) error {
	f := buildQdrantFilter(filter)
	if f == nil {
		return fmt.Errorf("%w: empty filter", ErrInvalidFilter)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: f},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return nil
}

// DeleteByIDs removes specific records by their chunk IDs.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(pointID(id).String())
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete by IDs: %w", err)
	}
	return nil
}

// Ensure QdrantStore implements VectorStore.
var _ VectorStore = (*QdrantStore)(nil)
