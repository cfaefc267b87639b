package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeQuerier struct {
	points  []*qdrant.ScoredPoint
	err     error
	exists  bool
	lastReq *qdrant.QueryPoints
}

func (f *fakeQuerier) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.lastReq = req
	return f.points, f.err
}

func (f *fakeQuerier) CollectionExists(ctx context.Context, name string) (bool, error) {
	return f.exists, nil
}

type fakeEmbedder struct {
	calls []string
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	return []float32{0.1, 0.2}, f.err
}

func (f *fakeEmbedder) Dimension() int    { return 2 }
func (f *fakeEmbedder) ModelName() string { return "fake" }

func TestQdrantStore_SearchVector(t *testing.T) {
	q := &fakeQuerier{points: []*qdrant.ScoredPoint{
		{Id: qdrant.NewIDNum(7), Score: 0.91},
		{Id: qdrant.NewIDUUID("5f0c6a2e-8d3b-4c1e-9a57-3f2b1d0e4c6a"), Score: 0.88,
			Payload: map[string]*qdrant.Value{positionField: qdrant.NewValueInt(12)}},
		{Id: qdrant.NewIDNum(0), Score: 0.5},
	}}
	s := &QdrantStore{client: q}

	got, err := s.SearchVector(context.Background(), "WebQA_val_image_large", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []Neighbor{{Position: 7, Score: 0.91}, {Position: 12, Score: 0.88}, {Position: 0, Score: 0.5}}, got)
	assert.Equal(t, "WebQA_val_image_large", q.lastReq.CollectionName)
	assert.Equal(t, uint64(3), q.lastReq.GetLimit())
}

func TestQdrantStore_UUIDWithoutPosition(t *testing.T) {
	q := &fakeQuerier{points: []*qdrant.ScoredPoint{
		{Id: qdrant.NewIDUUID("5f0c6a2e-8d3b-4c1e-9a57-3f2b1d0e4c6a"), Score: 0.88},
	}}
	s := &QdrantStore{client: q}

	_, err := s.SearchVector(context.Background(), "c", []float32{1}, 1)
	assert.ErrorIs(t, err, evalerr.ErrLookup)
}

func TestQdrantStore_PositionPayloadKinds(t *testing.T) {
	tests := []struct {
		name    string
		value   *qdrant.Value
		want    int64
		wantErr bool
	}{
		{"integer", qdrant.NewValueInt(12), 12, false},
		{"integral double", qdrant.NewValueDouble(13), 13, false},
		{"decimal string", qdrant.NewValueString("14"), 14, false},
		{"fractional double", qdrant.NewValueDouble(13.5), 0, true},
		{"non-numeric string", qdrant.NewValueString("img-14"), 0, true},
		{"bool", qdrant.NewValueBool(true), 0, true},
		{"null", qdrant.NewValueNull(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{points: []*qdrant.ScoredPoint{
				{Id: qdrant.NewIDUUID("5f0c6a2e-8d3b-4c1e-9a57-3f2b1d0e4c6a"), Score: 0.9,
					Payload: map[string]*qdrant.Value{positionField: tt.value}},
			}}
			s := &QdrantStore{client: q}

			got, err := s.SearchVector(context.Background(), "c", []float32{1}, 1)
			if tt.wantErr {
				assert.ErrorIs(t, err, evalerr.ErrLookup)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []Neighbor{{Position: tt.want, Score: 0.9}}, got)
		})
	}
}

func TestQdrantStore_MissingCollection(t *testing.T) {
	s := &QdrantStore{client: &fakeQuerier{err: status.Error(codes.NotFound, "Collection `x` doesn't exist")}}

	_, err := s.SearchVector(context.Background(), "x", []float32{1}, 1)
	assert.ErrorIs(t, err, evalerr.ErrConfiguration)

	err = s.EnsureCollection(context.Background(), "x")
	assert.ErrorIs(t, err, evalerr.ErrConfiguration)
}

func TestTextToImage_Search(t *testing.T) {
	e := &fakeEmbedder{}
	q := &fakeQuerier{points: []*qdrant.ScoredPoint{{Id: qdrant.NewIDNum(3), Score: 0.7}}}
	idx := NewTextToImage(e, &QdrantStore{client: q}, "images")

	got, err := idx.Search(context.Background(), "Is the sky blue?", 20)
	require.NoError(t, err)
	assert.Equal(t, []Neighbor{{Position: 3, Score: 0.7}}, got)
	assert.Equal(t, []string{"Is the sky blue?"}, e.calls)

	got, err = idx.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTextToImage_EmbedError(t *testing.T) {
	idx := NewTextToImage(&fakeEmbedder{err: errors.New("down")}, &QdrantStore{client: &fakeQuerier{}}, "images")

	_, err := idx.Search(context.Background(), "q", 5)
	assert.ErrorContains(t, err, "embed query")
}
