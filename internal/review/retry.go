package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/pool"
)

// ChunkMemo remembers the largest chunk count a document needed, so later
// runs start from it instead of rediscovering it through retries.
type ChunkMemo interface {
	GetMaxTotalChunksForDocument(ctx context.Context, fileID, purpose string) (int, error)
	RecordTotalChunksForDocument(ctx context.Context, fileID, purpose string, total int) error
}

// RetryRecorder observes chunk-retry iterations.
type RetryRecorder interface {
	RecordChunkRetry(ctx context.Context, pipeline string)
}

// ChunkPolicy configures one chunk-retry call site.
type ChunkPolicy struct {
	// Purpose keys the chunk-count memo and labels retry metrics.
	Purpose      string
	MaxRetries   int
	TextOverlap  int
	ImageOverlap int
	Concurrency  int
}

var (
	// ReviewPolicy is used for every review-side split.
	ReviewPolicy = ChunkPolicy{Purpose: "review", MaxRetries: 5, TextOverlap: 300, ImageOverlap: 3, Concurrency: pool.DefaultLimit}
	// ChatPolicy is used for chat research.
	ChatPolicy = ChunkPolicy{Purpose: "research", MaxRetries: 10, Concurrency: pool.DefaultLimit}
)

// WithPurpose returns a copy of p with a different memo key.
func (p ChunkPolicy) WithPurpose(purpose string) ChunkPolicy {
	p.Purpose = purpose
	return p
}

// RetryReason is the finish reason of one chunk-retry iteration.
type RetryReason string

const (
	RetrySuccess       RetryReason = "success"
	RetryError         RetryReason = "error"
	RetryContentLength RetryReason = "content_length"
)

// ChunkFunc processes one chunk.
type ChunkFunc[T any] func(ctx context.Context, c Chunk) (T, error)

// ChunkEnv carries the collaborators of the chunk-retry controller.
type ChunkEnv struct {
	Memo     ChunkMemo
	Recorder RetryRecorder
	Logger   *slog.Logger
}

// ChunkOutcome is the terminal state of RunChunked. Parts are in chunk
// order and only set on success.
type ChunkOutcome[T any] struct {
	Parts        []T
	Chunks       []Chunk
	TotalChunks  int
	RetryCount   int
	FinishReason RetryReason
	Err          error
}

// ErrCannotSplit is wrapped by the terminal error of a document that still
// overflowed the context window after all retries.
var ErrCannotSplit = errors.New("document could not be split small enough")

// RunChunked splits doc into chunks, calls fn once per chunk with bounded
// concurrency and, when any chunk overflows the context window, retries
// the whole document with one more chunk. Any other failure is terminal.
// Iterations are sequential.
func RunChunked[T any](ctx context.Context, env ChunkEnv, doc Document, policy ChunkPolicy, fn ChunkFunc[T]) ChunkOutcome[T] {
	logger := env.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	total := 1
	if env.Memo != nil && doc.FileID != "" {
		n, err := env.Memo.GetMaxTotalChunksForDocument(ctx, doc.FileID, policy.Purpose)
		if err != nil {
			logger.WarnContext(ctx, "reading chunk memo", "document", doc.Name, "error", err)
		} else if n > total {
			total = n
		}
	}

	retry := 0
	for {
		if err := ctx.Err(); err != nil {
			return ChunkOutcome[T]{TotalChunks: total, RetryCount: retry, FinishReason: RetryError, Err: err}
		}

		chunks := doc.Split(total, policy.TextOverlap, policy.ImageOverlap)
		total = len(chunks)
		parts, errs := pool.Collect(ctx, chunks, policy.Concurrency, fn)

		overflow := false
		var firstErr error
		for i, err := range errs {
			switch {
			case err == nil:
			case agent.IsContentLength(err):
				overflow = true
			case firstErr == nil:
				firstErr = fmt.Errorf("%s: %w", chunks[i].Document().Name, err)
			}
		}

		if firstErr != nil {
			return ChunkOutcome[T]{TotalChunks: total, RetryCount: retry, FinishReason: RetryError, Err: firstErr}
		}

		if !overflow {
			if env.Memo != nil && doc.FileID != "" {
				if err := env.Memo.RecordTotalChunksForDocument(ctx, doc.FileID, policy.Purpose, total); err != nil {
					logger.WarnContext(ctx, "recording chunk memo", "document", doc.Name, "error", err)
				}
			}
			return ChunkOutcome[T]{Parts: parts, Chunks: chunks, TotalChunks: total, RetryCount: retry, FinishReason: RetrySuccess}
		}

		retry++
		if retry >= policy.MaxRetries || total >= doc.Units() {
			return ChunkOutcome[T]{
				TotalChunks:  total,
				RetryCount:   retry,
				FinishReason: RetryContentLength,
				Err:          fmt.Errorf("%s: %w (%d chunks, %d retries)", doc.Name, ErrCannotSplit, total, retry),
			}
		}
		total++

		if env.Recorder != nil {
			env.Recorder.RecordChunkRetry(ctx, policy.Purpose)
		}
		logger.InfoContext(ctx, "content length exceeded, re-chunking",
			"document", doc.Name,
			"purpose", policy.Purpose,
			"retry", retry,
			"total_chunks", total,
		)
	}
}

// JoinChunkText concatenates chunk outputs in order. When there is more
// than one, each is preceded by a name and position header.
func JoinChunkText(name string, parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "【%s (%d/%d)】\n%s", name, i+1, len(parts), p)
	}
	return b.String()
}

// chunkError maps a structured-output failure caused by truncated output to
// a content-length error, so the controller retries with smaller chunks.
func chunkError(err error) error {
	var noObj *agent.NoObjectError
	if errors.As(err, &noObj) && noObj.FinishReason == agent.FinishLength {
		return &agent.ContentLengthError{Agent: noObj.Agent, Err: err}
	}
	return err
}
