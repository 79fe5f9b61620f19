package databases

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"taskmesh/internal/model"
)

// Qdrant only allows UUIDs and positive integers as point IDs, so we derive
// a deterministic UUID from the KnowledgeNode ID and carry the original ID
// in the payload — grounded on the teacher's qdrant_vector.go.
const payloadIDField = "_original_id"

type qdrantKnowledge struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantKnowledge is the alt vector backend selected by
// RAGConfig.VectorBackend == "qdrant". The Go client speaks Qdrant's gRPC
// API (port 6334 by default); an API key can ride along as a DSN query
// param: "http://localhost:6334?api_key=...".
func NewQdrantKnowledge(dsn, collection string) (KnowledgeStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	q := &qdrantKnowledge{client: client, collection: collection}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return q, nil
}

func (q *qdrantKnowledge) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(model.EmbeddingDimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointIDFor(id string) (*qdrant.PointId, string) {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id), id
	}
	derived := uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
	return qdrant.NewIDUUID(derived), derived
}

func (q *qdrantKnowledge) Upsert(ctx context.Context, n model.KnowledgeNode) error {
	if err := model.ValidateEmbedding(n.Embedding); err != nil {
		return err
	}
	pointID, uuidStr := pointIDFor(n.ID)
	payload := map[string]any{
		"content":      n.Content,
		"domain":       n.Metadata.Domain,
		"source":       n.Metadata.Source,
		"is_standard":  n.Metadata.IsStandard,
		"confidence":   n.Confidence,
		"verified":     n.Verified,
		"usage_count":  n.UsageCount,
		"created_at":   nonZeroTime(n.CreatedAt).Format(time.RFC3339),
	}
	if uuidStr != n.ID {
		payload[payloadIDField] = n.ID
	}
	vec := make([]float32, len(n.Embedding))
	copy(vec, n.Embedding)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      pointID,
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (q *qdrantKnowledge) Search(ctx context.Context, embedding []float32, k int, domain string) ([]ScoredNode, error) {
	if k <= 0 {
		k = 5
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	var filter *qdrant.Filter
	if domain != "" {
		filter = &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("domain", domain)}}
	}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]ScoredNode, 0, len(hits))
	for _, hit := range hits {
		out = append(out, ScoredNode{Node: nodeFromPayload(hit.Id, hit.Payload), Similarity: float64(hit.Score)})
	}
	return out, nil
}

// SearchByKeywords scrolls the collection with a should-match text filter,
// since Qdrant has no ILIKE equivalent; this is acceptable for the small
// fallback-only volume spec.md §4.4 step 4 describes (rows without
// embeddings, limited to a handful of keywords).
func (q *qdrantKnowledge) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]ScoredNode, error) {
	if limit <= 0 || len(keywords) == 0 {
		return nil, nil
	}
	conds := make([]*qdrant.Condition, 0, len(keywords))
	for _, kw := range keywords {
		conds = append(conds, qdrant.NewMatchText("content", kw))
	}
	lim := uint32(limit)
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         &qdrant.Filter{Should: conds},
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]ScoredNode, 0, len(points))
	for _, p := range points {
		out = append(out, ScoredNode{Node: nodeFromPayload(p.Id, p.Payload)})
	}
	return out, nil
}

func nodeFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value) model.KnowledgeNode {
	var n model.KnowledgeNode
	n.ID = id.GetUuid()
	if n.ID == "" {
		n.ID = id.String()
	}
	for k, v := range payload {
		switch k {
		case payloadIDField:
			n.ID = v.GetStringValue()
		case "content":
			n.Content = v.GetStringValue()
		case "domain":
			n.Metadata.Domain = v.GetStringValue()
		case "source":
			n.Metadata.Source = v.GetStringValue()
		case "is_standard":
			n.Metadata.IsStandard = v.GetBoolValue()
		case "confidence":
			n.Confidence = v.GetDoubleValue()
		case "verified":
			n.Verified = v.GetBoolValue()
		case "usage_count":
			n.UsageCount = int(v.GetIntegerValue())
		case "created_at":
			if t, err := time.Parse(time.RFC3339, v.GetStringValue()); err == nil {
				n.CreatedAt = t
			}
		}
	}
	return n
}

func (q *qdrantKnowledge) Get(ctx context.Context, id string) (model.KnowledgeNode, bool, error) {
	pointID, _ := pointIDFor(id)
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{pointID},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return model.KnowledgeNode{}, false, err
	}
	if len(points) == 0 {
		return model.KnowledgeNode{}, false, nil
	}
	return nodeFromPayload(points[0].Id, points[0].Payload), true, nil
}

func (q *qdrantKnowledge) IncrementUsage(ctx context.Context, id string) error {
	n, ok, err := q.Get(ctx, id)
	if err != nil || !ok {
		return err
	}
	n.UsageCount++
	pointID, _ := pointIDFor(id)
	_, err = q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: q.collection,
		Payload:        qdrant.NewValueMap(map[string]any{"usage_count": n.UsageCount}),
		PointsSelector: qdrant.NewPointsSelector(pointID),
	})
	return err
}

func (q *qdrantKnowledge) Close() { q.client.Close() }
