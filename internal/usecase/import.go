package usecase

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/port"
	"docqa/internal/retry"
)

// ChunkRecord is one line of a JSONL import file, as produced by an
// external ingestion pipeline.
type ChunkRecord struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	SourcePath   string `json:"source_path"`
	Folder       string `json:"folder"`
	ChunkIndex   int    `json:"chunk_index"`
	TotalChunks  int    `json:"total_chunks"`
	MimeType     string `json:"mime_type"`
	ModifiedTime string `json:"modified_time"`
}

// BatchEmbedder embeds several documents per provider call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ImportUseCase embeds pre-chunked records and upserts them into the
// vector store.
type ImportUseCase struct {
	store     port.VectorStore
	embedder  port.Embedder
	retry     *retry.Retryer
	batchSize int
	logger    *zap.Logger
}

func NewImportUseCase(store port.VectorStore, embedder port.Embedder, retryer *retry.Retryer, batchSize int, logger *zap.Logger) *ImportUseCase {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &ImportUseCase{
		store:     store,
		embedder:  embedder,
		retry:     retryer,
		batchSize: batchSize,
		logger:    logging.OrNop(logger).With(zap.String("component", "import")),
	}
}

// ImportResult contains the results of an import.
type ImportResult struct {
	Records        int
	ChunksImported int
	Skipped        int
	Sources        []string
	Errors         []string
}

// Import reads JSONL chunk records from r. Malformed lines are reported in
// the result and skipped; provider and store failures abort the import.
func (u *ImportUseCase) Import(ctx context.Context, r io.Reader, progress func(done, total int)) (*ImportResult, error) {
	result := &ImportResult{}
	chunks, err := u.read(r, result)
	if err != nil {
		return nil, err
	}

	sources := make(map[string]struct{})
	for start := 0; start < len(chunks); start += u.batchSize {
		end := min(start+u.batchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := u.embed(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}

		items := make([]port.VectorItem, len(batch))
		for i, c := range batch {
			items[i] = port.VectorItem{ID: c.ID, Vector: vectors[i], Text: c.Text, Metadata: c.Metadata()}
			sources[c.SourcePath] = struct{}{}
		}
		if _, err := retry.Do(ctx, u.retry, "vector_upsert", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, u.store.Upsert(ctx, items)
		}); err != nil {
			return result, fmt.Errorf("storing chunks %d-%d: %w", start, end-1, err)
		}

		result.ChunksImported += len(batch)
		if progress != nil {
			progress(result.ChunksImported, len(chunks))
		}
	}

	for s := range sources {
		result.Sources = append(result.Sources, s)
	}
	sort.Strings(result.Sources)

	u.logger.Info("import finished",
		zap.Int("records", result.Records),
		zap.Int("imported", result.ChunksImported),
		zap.Int("skipped", result.Skipped),
		zap.Int("sources", len(result.Sources)),
	)
	return result, nil
}

func (u *ImportUseCase) read(r io.Reader, result *ImportResult) ([]domain.Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var chunks []domain.Chunk
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		result.Records++

		var rec ChunkRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		chunk, err := rec.Chunk()
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	return chunks, nil
}

func (u *ImportUseCase) embed(ctx context.Context, batch []domain.Chunk) ([][]float32, error) {
	if be, ok := u.embedder.(BatchEmbedder); ok {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		return retry.Do(ctx, u.retry, "embed_batch", func(ctx context.Context) ([][]float32, error) {
			return be.EmbedBatch(ctx, texts)
		})
	}

	vectors := make([][]float32, len(batch))
	for i, c := range batch {
		vec, err := retry.Do(ctx, u.retry, "embed_document", func(ctx context.Context) ([]float32, error) {
			return u.embedder.EmbedDocument(ctx, c.Text)
		})
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Chunk validates the record and converts it. Records without an id get
// one derived from their source path, position and text.
func (rec ChunkRecord) Chunk() (domain.Chunk, error) {
	if strings.TrimSpace(rec.Text) == "" {
		return domain.Chunk{}, fmt.Errorf("chunk has no text")
	}
	if strings.TrimSpace(rec.SourcePath) == "" {
		return domain.Chunk{}, fmt.Errorf("chunk has no source_path")
	}
	c := domain.Chunk{
		ID:          rec.ID,
		Text:        rec.Text,
		SourcePath:  rec.SourcePath,
		Folder:      rec.Folder,
		ChunkIndex:  rec.ChunkIndex,
		TotalChunks: rec.TotalChunks,
		MimeType:    rec.MimeType,
	}
	if rec.ModifiedTime != "" {
		t, err := time.Parse(time.RFC3339, rec.ModifiedTime)
		if err != nil {
			return domain.Chunk{}, fmt.Errorf("invalid modified_time: %w", err)
		}
		c.ModifiedTime = t
	}
	if c.ID == "" {
		c.ID = generateChunkID(rec.SourcePath, rec.ChunkIndex, rec.Text)
	}
	return c, nil
}

func generateChunkID(source string, index int, text string) string {
	hash := sha256.Sum256([]byte(source + "\x00" + strconv.Itoa(index) + "\x00" + text))
	return hex.EncodeToString(hash[:8])
}
