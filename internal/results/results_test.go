package results

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrievedImages_MarshalScoredKeepsOrder(t *testing.T) {
	r := ScoredImages([]string{"imgB", "imgA"}, []float64{0.95, 0.9})
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"imgB":0.95,"imgA":0.9}`, string(data))

	var back RetrievedImages
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}

func TestRetrievedImages_MarshalPlain(t *testing.T) {
	data, err := json.Marshal(PlainImages([]string{"imgA", "imgB", "imgC"}))
	require.NoError(t, err)
	assert.Equal(t, `["imgA","imgB","imgC"]`, string(data))

	data, err = json.Marshal(PlainImages(nil))
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	data, err = json.Marshal(ScoredImages(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	var back RetrievedImages
	require.NoError(t, json.Unmarshal([]byte(`["x"]`), &back))
	assert.Equal(t, PlainImages([]string{"x"}), back)
}

func TestRetrievedImages_MismatchedScores(t *testing.T) {
	_, err := json.Marshal(ScoredImages([]string{"a", "b"}, []float64{1}))
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "answer_set_base_sft.jsonl", OutputName("base_sft", 0, 20))
	assert.Equal(t, "answer_set_base_sft_5.jsonl", OutputName("base_sft", 0.5, 20))
	assert.Equal(t, "answer_set_long_sft_25_clip_top5.jsonl", OutputName("long_sft", 0.25, 5))
	assert.Equal(t, "answer_set_base_0.jsonl", OutputName("base", 1, 20))
	assert.Equal(t, "answer_set_base_-05.jsonl", OutputName("base", 1e-05, 20))
	assert.Equal(t, "answer_set_base_5e-07.jsonl", OutputName("base", 2.5e-07, 20))
	assert.Equal(t, "answer_set_base_0001.jsonl", OutputName("base", 0.0001, 20))
}

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "answers.jsonl")
	sink, err := CreateJSONL(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, OutputRecord{GUID: "g1", Question: "q1 <b>", GTImages: []string{"1"}, RetrievedImages: PlainImages([]string{"1", "2"})}))

	// the first record is on disk before the sink is closed
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"guid":"g1"`)
	assert.Contains(t, string(data), `q1 <b>`)

	require.NoError(t, sink.Write(ctx, OutputRecord{GUID: "g2", Error: "lookup error"}))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Error(t, sink.Write(ctx, OutputRecord{GUID: "g3"}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var guids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec OutputRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		guids = append(guids, rec.GUID)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"g1", "g2"}, guids)
}

type memSink struct {
	recs   []OutputRecord
	err    error
	closed bool
}

func (m *memSink) Write(ctx context.Context, rec OutputRecord) error {
	m.recs = append(m.recs, rec)
	return m.err
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestMultiSink(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("disk full")}
	m := MultiSink{a, b}

	err := m.Write(context.Background(), OutputRecord{GUID: "g"})
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, a.recs, 1)
	assert.Len(t, b.recs, 1)

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

type memStore struct {
	seqs  []int
	guids []string
}

func (m *memStore) AppendRecord(ctx context.Context, runID uuid.UUID, seq int, guid string, body json.RawMessage) error {
	m.seqs = append(m.seqs, seq)
	m.guids = append(m.guids, guid)
	return nil
}

func TestRepoSink(t *testing.T) {
	store := &memStore{}
	s := NewRepoSink(store, uuid.New())
	require.NoError(t, s.Write(context.Background(), OutputRecord{GUID: "a"}))
	require.NoError(t, s.Write(context.Background(), OutputRecord{GUID: "b"}))
	assert.Equal(t, []int{0, 1}, store.seqs)
	assert.Equal(t, []string{"a", "b"}, store.guids)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hard.json")
	require.NoError(t, WriteJSON(path, map[string]int{"a": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
