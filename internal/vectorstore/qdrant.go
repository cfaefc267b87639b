package vectorstore

import (
	"context"
	"fmt"
	"math"
	"net"
	"strconv"

	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// positionField is the optional payload key holding an image's index position
// for collections whose point ids are UUIDs.
const positionField = "position"

// pointQuerier is the subset of the Qdrant client used for search.
type pointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
}

// QdrantStore implements VectorSearcher using Qdrant
type QdrantStore struct {
	client pointQuerier
	closer func() error
}

// NewQdrantStore creates a new Qdrant client.
// url should be in format "host:port" (e.g., "localhost:6334")
func NewQdrantStore(ctx context.Context, url, apiKey string) (*QdrantStore, error) {
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
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client, closer: client.Close}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// EnsureCollection returns a configuration error if the collection is missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return evalerr.Configf("qdrant collection %q does not exist", collection)
	}
	return nil
}

// SearchVector performs similarity search and returns positions best first.
func (s *QdrantStore) SearchVector(ctx context.Context, collection string, vector []float32, k int) ([]Neighbor, error) {
	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayloadInclude(positionField),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, evalerr.Configf("qdrant collection %q not found", collection)
		}
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(response))
	for _, point := range response {
		pos, err := pointPosition(point)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, Neighbor{Position: pos, Score: point.Score})
	}

	return neighbors, nil
}

// pointPosition reads the index position from the payload when present and
// falls back to the numeric point id.
func pointPosition(point *qdrant.ScoredPoint) (int64, error) {
	if v, ok := point.GetPayload()[positionField]; ok {
		return payloadPosition(v)
	}
	id := point.GetId()
	if id == nil || id.GetUuid() != "" {
		return 0, evalerr.Lookupf("point %v has neither a numeric id nor a %q payload", id, positionField)
	}
	return int64(id.GetNum()), nil
}

// payloadPosition accepts integers, integral doubles and decimal strings.
func payloadPosition(v *qdrant.Value) (int64, error) {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue, nil
	case *qdrant.Value_DoubleValue:
		d := k.DoubleValue
		if d == math.Trunc(d) && !math.IsInf(d, 0) && math.Abs(d) < 1<<53 {
			return int64(d), nil
		}
	case *qdrant.Value_StringValue:
		if pos, err := strconv.ParseInt(k.StringValue, 10, 64); err == nil {
			return pos, nil
		}
	}
	return 0, evalerr.Lookupf("%q payload %v is not an index position", positionField, v)
}

// Ensure QdrantStore implements VectorSearcher
var _ VectorSearcher = (*QdrantStore)(nil)
