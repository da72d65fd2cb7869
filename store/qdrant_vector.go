package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantVectorStore implements VectorStore against a Qdrant server over
// gRPC, selected via Config.VectorBackend == "qdrant".
type QdrantVectorStore struct {
	client *qdrant.Client
}

// NewQdrantVectorStore dials a Qdrant server. Host/port default to
// localhost:6334, Qdrant's gRPC port.
func NewQdrantVectorStore(host string, port int, apiKey string, useTLS bool) (*QdrantVectorStore, error) {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s:%d: %w", host, port, err)
	}
	return &QdrantVectorStore{client: client}, nil
}

func (q *QdrantVectorStore) Close() error { return q.client.Close() }

func (q *QdrantVectorStore) EnsureCollection(ctx context.Context, name string, dim int, metric string) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	dist := qdrant.Distance_Cosine // only distance the core requires
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: dist,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

func (q *QdrantVectorStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	pts := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]*qdrant.Value, len(p.Payload))
		for k, v := range p.Payload {
			val, err := qdrant.NewValue(v)
			if err != nil {
				return fmt.Errorf("converting payload field %s for point %s: %w", k, p.ID, err)
			}
			payload[k] = val
		}
		pts = append(pts, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points into %s: %w", len(pts), collection, err)
	}
	return nil
}

func (q *QdrantVectorStore) Search(ctx context.Context, collection string, queryVector []float32, limit int, scoreThreshold float64, filter Filter) ([]SearchResult, error) {
	limitU64 := uint64(limit)
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limitU64,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if scoreThreshold > 0 {
		threshold := float32(scoreThreshold)
		req.ScoreThreshold = &threshold
	}
	if len(filter) > 0 {
		req.Filter = buildQdrantFilter(filter)
	}

	resp, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(resp))
	for _, point := range resp {
		id := pointIDString(point.Id)
		payload := payloadToMap(point.Payload)
		docID, _ := payload["document_id"].(string)
		content, _ := payload["content"].(string)
		results = append(results, SearchResult{
			ChunkID:    id,
			DocumentID: docID,
			Content:    content,
			Score:      float64(point.Score),
			Payload:    payload,
		})
	}
	return results, nil
}

func (q *QdrantVectorStore) DeleteByDocumentID(ctx context.Context, collection string, docID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: buildQdrantFilter(Filter{"document_id": docID}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points for document %s: %w", docID, err)
	}
	return nil
}

func (q *QdrantVectorStore) CollectionInfo(ctx context.Context, collection string) (CollectionInfo, error) {
	info, err := q.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("getting collection info for %s: %w", collection, err)
	}
	status := "green"
	if info.GetStatus() != qdrant.CollectionStatus_Green {
		status = "yellow"
	}
	return CollectionInfo{
		VectorCount: int64(info.GetPointsCount()),
		Status:      status,
	}, nil
}

func buildQdrantFilter(filter Filter) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			out[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			out[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			out[key] = v.BoolValue
		}
	}
	return out
}

// Ensure QdrantVectorStore implements VectorStore.
var _ VectorStore = (*QdrantVectorStore)(nil)
var _ VectorStore = (*SQLiteVectorStore)(nil)
