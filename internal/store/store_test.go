package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/katakuxiko/finqa/internal/model"
)

// fakeEmbedder отдаёт заданные векторы для известных текстов, остальные хэширует.
type fakeEmbedder struct {
	vecs  map[string][]float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vecs[t]; ok {
			out[i] = v
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(t))
		x := float64(h.Sum32()%1000) / 1000 * math.Pi
		out[i] = []float32{float32(math.Cos(x)), float32(math.Sin(x))}
	}
	return out, nil
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestIndex(t *testing.T, emb Embedder, uploadDir string) *VectorIndex {
	t.Helper()
	b, err := NewSQLiteBackend(openTestDB(t))
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	return NewVectorIndex(b, emb, uploadDir)
}

func chunk(text, source string, page int) model.Chunk {
	return model.Chunk{
		ID:       fmt.Sprintf("%s-%d-%s", source, page, text),
		Text:     text,
		SourceID: source,
		Page:     page,
		Metadata: map[string]any{"source": source, "page": page},
	}
}

// unit — единичный 2D вектор под углом deg градусов.
func unit(deg float64) []float32 {
	r := deg * math.Pi / 180
	return []float32{float32(math.Cos(r)), float32(math.Sin(r))}
}

func TestSearch_FiltersByDistanceAndSortsAscending(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"query":     unit(0),
		"revenue":   unit(10),
		"ebitda":    unit(30),
		"same-as-q": unit(0),
		"weather":   unit(90),
		"tie-a":     unit(30),
	}}
	ix := newTestIndex(t, emb, "")
	ctx := context.Background()

	if err := ix.Add(ctx, []model.Chunk{
		chunk("weather", "a.pdf", 1),
		chunk("ebitda", "a.pdf", 2),
		chunk("revenue", "a.pdf", 3),
		chunk("tie-a", "b.pdf", 1),
		chunk("same-as-q", "b.pdf", 2),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	maxDist := 1 - math.Cos(45*math.Pi/180)
	res, err := ix.Search(ctx, "query", 10, maxDist)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var got []string
	for i, r := range res {
		got = append(got, r.Chunk.Text)
		if r.Distance > maxDist {
			t.Errorf("result %d distance %v above threshold", i, r.Distance)
		}
		if i > 0 && r.Distance < res[i-1].Distance {
			t.Errorf("results not ascending at %d", i)
		}
	}
	want := []string{"same-as-q", "revenue", "ebitda", "tie-a"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	res, err = ix.Search(ctx, "query", 2, maxDist)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 || res[0].Chunk.Text != "same-as-q" {
		t.Fatalf("k=2: %v", res)
	}
}

func TestSearch_NoResultsIsNotAnError(t *testing.T) {
	ix := newTestIndex(t, &fakeEmbedder{}, "")
	res, err := ix.Search(context.Background(), "anything", 5, 0.7)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("expected empty result, got %d", len(res))
	}
}

func TestWithinDistance_DropsWithoutReordering(t *testing.T) {
	in := []model.ScoredChunk{
		{Chunk: model.Chunk{ID: "a"}, Distance: 0.1},
		{Chunk: model.Chunk{ID: "b"}, Distance: 0.9},
		{Chunk: model.Chunk{ID: "c"}, Distance: 0.3},
		{Chunk: model.Chunk{ID: "d"}, Distance: 0.5},
	}
	got := WithinDistance(in, 0.5)
	if len(got) != 3 || got[0].Chunk.ID != "a" || got[1].Chunk.ID != "c" || got[2].Chunk.ID != "d" {
		t.Fatalf("unexpected: %v", got)
	}
}

func TestAdd_EmbeddingFailure(t *testing.T) {
	ix := newTestIndex(t, &fakeEmbedder{err: errors.New("quota exceeded")}, "")
	err := ix.Add(context.Background(), []model.Chunk{chunk("x", "a.pdf", 1)})
	if !errors.Is(err, model.ErrEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if _, err := ix.Search(context.Background(), "q", 3, 1); !errors.Is(err, model.ErrEmbedding) {
		t.Fatalf("expected embedding error from search, got %v", err)
	}
}

func TestIndex_UnavailableBackend(t *testing.T) {
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "gone.db"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewSQLiteBackend(db)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()
	ix := NewVectorIndex(b, &fakeEmbedder{}, "")

	ctx := context.Background()
	if _, err := ix.Search(ctx, "q", 3, 1); !errors.Is(err, model.ErrIndexUnavailable) {
		t.Errorf("search: %v", err)
	}
	if err := ix.Add(ctx, []model.Chunk{chunk("x", "a.pdf", 1)}); !errors.Is(err, model.ErrIndexUnavailable) {
		t.Errorf("add: %v", err)
	}
	if _, _, err := ix.ListAllPaginated(ctx, 0, 10); !errors.Is(err, model.ErrIndexUnavailable) {
		t.Errorf("list: %v", err)
	}
}

func TestListAllPaginated_RoundTrip(t *testing.T) {
	ix := newTestIndex(t, &fakeEmbedder{}, "")
	ctx := context.Background()

	var added []model.Chunk
	for i := 0; i < 150; i++ {
		added = append(added, chunk(fmt.Sprintf("text %d", i), fmt.Sprintf("doc%d.pdf", i%3), i/3+1))
	}
	if err := ix.Add(ctx, added); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var seen []string
	for offset := 0; ; offset += 40 {
		page, total, err := ix.ListAllPaginated(ctx, offset, 40)
		if err != nil {
			t.Fatalf("page at %d: %v", offset, err)
		}
		if total != len(added) {
			t.Fatalf("total %d, want %d", total, len(added))
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			seen = append(seen, c.ID)
		}
	}

	var want []string
	for _, c := range added {
		want = append(want, c.ID)
	}
	sort.Strings(seen)
	sort.Strings(want)
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("paginated set differs from added set (%d vs %d)", len(seen), len(want))
	}

	all, n, err := ix.ListAllPaginated(ctx, 0, len(added))
	if err != nil || len(all) != len(added) || n != len(added) {
		t.Fatalf("single page: %d/%d, %v", len(all), n, err)
	}
	for i := 1; i < len(all); i++ {
		if all[i].Seq <= all[i-1].Seq {
			t.Fatalf("enumeration not ordered by seq at %d", i)
		}
	}
	if all[0].Metadata["source"] != "doc0.pdf" {
		t.Errorf("metadata lost: %v", all[0].Metadata)
	}

	listed, err := ix.ListAll(ctx)
	if err != nil || len(listed) != len(added) {
		t.Fatalf("ListAll: %d, %v", len(listed), err)
	}
}

func TestListAllPaginated_InvalidArgs(t *testing.T) {
	ix := newTestIndex(t, &fakeEmbedder{}, "")
	if _, _, err := ix.ListAllPaginated(context.Background(), -1, 10); !errors.Is(err, model.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestGroupBySource(t *testing.T) {
	ix := newTestIndex(t, &fakeEmbedder{}, "")
	ctx := context.Background()
	if err := ix.Add(ctx, []model.Chunk{
		chunk("a1", "a.pdf", 1), chunk("a2", "a.pdf", 1), chunk("a3", "a.pdf", 2),
		chunk("b1", "b.pdf", 1),
	}); err != nil {
		t.Fatal(err)
	}
	docs, err := ix.GroupBySource(ctx)
	if err != nil {
		t.Fatalf("GroupBySource: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Filename != "a.pdf" || docs[0].ChunkCount != 3 || docs[1].ChunkCount != 1 {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if docs[0].Status != StatusProcessed || docs[0].UploadDate.IsZero() {
		t.Fatalf("status/date: %+v", docs[0])
	}
}

func TestClear_RemovesChunksAndUploads(t *testing.T) {
	uploads := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if err := os.WriteFile(filepath.Join(uploads, name), []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(uploads, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	ix := newTestIndex(t, &fakeEmbedder{}, uploads)
	ctx := context.Background()

	var chunks []model.Chunk
	for i := 0; i < 10; i++ {
		src := "a.pdf"
		if i >= 6 {
			src = "b.pdf"
		}
		chunks = append(chunks, chunk(fmt.Sprintf("c%d", i), src, i+1))
	}
	if err := ix.Add(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	res, err := ix.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if res.DeletedFiles != 2 || !res.ClearedChunks {
		t.Fatalf("unexpected result: %+v", res)
	}
	page, n, err := ix.ListAllPaginated(ctx, 0, 100)
	if err != nil || n != 0 || len(page) != 0 {
		t.Fatalf("after clear: %d/%d, %v", len(page), n, err)
	}
	if _, err := os.Stat(filepath.Join(uploads, "nested")); err != nil {
		t.Errorf("directories must be kept: %v", err)
	}
}

func TestClear_MissingUploadDir(t *testing.T) {
	ix := newTestIndex(t, &fakeEmbedder{}, filepath.Join(t.TempDir(), "nope"))
	res, err := ix.Clear(context.Background())
	if err != nil || res.DeletedFiles != 0 {
		t.Fatalf("got %+v, %v", res, err)
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float32{1, 0}, []float32{1, 0}); math.Abs(d) > 1e-9 {
		t.Errorf("identical: %v", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{0, 1}); math.Abs(d-1) > 1e-9 {
		t.Errorf("orthogonal: %v", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{-1, 0}); math.Abs(d-2) > 1e-9 {
		t.Errorf("opposite: %v", d)
	}
	if d := CosineDistance([]float32{1}, []float32{1, 2}); d != 1 {
		t.Errorf("mismatched: %v", d)
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = $1 AND b = $2 OR c = $10 AND d = '$x'`
	if got := rebind(DriverSQLite, q); got != `SELECT * FROM t WHERE a = ? AND b = ? OR c = ? AND d = '$x'` {
		t.Errorf("sqlite: %s", got)
	}
	if got := rebind(DriverPostgres, q); got != q {
		t.Errorf("postgres must be untouched: %s", got)
	}
}

func TestLimitClause(t *testing.T) {
	cases := []struct {
		driver        string
		offset, limit int
		want          string
	}{
		{DriverSQLite, 0, -1, ""},
		{DriverSQLite, 5, -1, " LIMIT -1 OFFSET 5"},
		{DriverPostgres, 5, -1, " OFFSET 5"},
		{DriverPostgres, 5, 10, " LIMIT 10 OFFSET 5"},
	}
	for _, c := range cases {
		if got := limitClause(c.driver, c.offset, c.limit); got != c.want {
			t.Errorf("%s %d %d: %q", c.driver, c.offset, c.limit, got)
		}
	}
}

// flakyEmbedder отвечает на первые ok вызовов, дальше возвращает ошибку.
type flakyEmbedder struct {
	fakeEmbedder
	ok int
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.calls >= f.ok {
		f.calls++
		return nil, errors.New("embedding service down")
	}
	return f.fakeEmbedder.Embed(ctx, texts)
}

func TestAdd_FailureLeavesNothing(t *testing.T) {
	emb := &flakyEmbedder{ok: 1}
	ix := newTestIndex(t, emb, "")
	ctx := context.Background()

	var chunks []model.Chunk
	for i := 0; i < embedBatch+6; i++ {
		chunks = append(chunks, chunk(fmt.Sprintf("t%d", i), "big.pdf", i/10+1))
	}
	err := ix.Add(ctx, chunks)
	if !errors.Is(err, model.ErrEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if emb.calls != 2 {
		t.Fatalf("expected two embed calls, got %d", emb.calls)
	}
	_, n, err := ix.ListAllPaginated(ctx, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("failed add left %d of %d chunks in index", n, len(chunks))
	}
	docs, _ := ix.GroupBySource(ctx)
	if len(docs) != 0 {
		t.Fatalf("failed add left documents: %+v", docs)
	}
}

func TestAdd_ManyBatchesAllStored(t *testing.T) {
	ix := newTestIndex(t, &fakeEmbedder{}, "")
	var chunks []model.Chunk
	for i := 0; i < 2*embedBatch+1; i++ {
		chunks = append(chunks, chunk(fmt.Sprintf("t%d", i), "big.pdf", 1))
	}
	if err := ix.Add(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
	all, err := ix.ListAll(context.Background())
	if err != nil || len(all) != len(chunks) {
		t.Fatalf("stored %d of %d, %v", len(all), len(chunks), err)
	}
	if all[0].ID != chunks[0].ID || all[len(all)-1].ID != chunks[len(chunks)-1].ID {
		t.Fatal("insertion order lost")
	}
}
