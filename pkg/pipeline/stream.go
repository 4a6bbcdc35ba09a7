package pipeline

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/ccollicutt/logsniff/pkg/parser"
	"github.com/ccollicutt/logsniff/pkg/reader"
	"github.com/ccollicutt/logsniff/pkg/record"
)

// batch is the parsed output of one chunk.
type batch struct {
	index   int
	records []*record.Record
	stats   parser.Stats

	// forced is the reader's forced split count after the chunk was cut.
	forced int
}

// chunkStream yields batches in chunk-index order.
type chunkStream interface {
	next(ctx context.Context) (*batch, error)
	close()
}

func parseChunk(p parser.Parser, chunk *parser.RawChunk) (*batch, error) {
	recs := p.Parse(chunk)
	b := &batch{index: chunk.Index}
	for {
		rec, err := recs.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		b.records = append(b.records, rec)
	}
	b.stats = recs.Stats()
	b.stats.Lines += chunk.Oversized
	b.stats.Skipped += chunk.Oversized
	return b, nil
}

// sequentialStream parses chunks one at a time on the caller's goroutine.
type sequentialStream struct {
	chunks *reader.ChunkReader
	parser parser.Parser
}

func (s *sequentialStream) next(ctx context.Context) (*batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunk, err := s.chunks.Next()
	if err != nil {
		return nil, err
	}
	b, err := parseChunk(s.parser, chunk)
	if err != nil {
		return nil, err
	}
	b.forced = s.chunks.ForcedSplits()
	return b, nil
}

func (s *sequentialStream) close() {}

// slot carries the result of one chunk. Slots are queued in chunk order and
// filled by workers in any order.
type slot chan slotResult

type slotResult struct {
	batch *batch
	err   error
}

// parallelStream fans chunks out to a bounded worker pool and hands batches
// back in chunk order. At most 2*workers chunks are in flight.
type parallelStream struct {
	ctx    context.Context
	slots  chan slot
	cancel context.CancelFunc
	done   chan struct{}
}

func newParallelStream(ctx context.Context, chunks *reader.ChunkReader, p parser.Parser, workers int) *parallelStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &parallelStream{
		ctx:    ctx,
		slots:  make(chan slot, workers),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.dispatch(ctx, chunks, p, workers)
	return s
}

func (s *parallelStream) dispatch(ctx context.Context, chunks *reader.ChunkReader, p parser.Parser, workers int) {
	defer close(s.done)
	defer close(s.slots)

	g := new(errgroup.Group)
	g.SetLimit(workers)
	defer func() { _ = g.Wait() }()

	for ctx.Err() == nil {
		chunk, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			return
		}

		sl := make(slot, 1)
		select {
		case s.slots <- sl:
		case <-ctx.Done():
			return
		}
		if err != nil {
			sl <- slotResult{err: err}
			return
		}

		forced := chunks.ForcedSplits()
		g.Go(func() error {
			b, err := parseChunk(p, chunk)
			if b != nil {
				b.forced = forced
			}
			sl <- slotResult{batch: b, err: err}
			return nil
		})
	}
}

func (s *parallelStream) next(ctx context.Context) (*batch, error) {
	var sl slot
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case next, ok := <-s.slots:
		if !ok {
			// A cancelled dispatcher stops early; that is not the end of the source.
			if err := s.ctx.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		sl = next
	}

	// The chunk is already in flight; let it finish.
	res := <-sl
	return res.batch, res.err
}

func (s *parallelStream) close() {
	s.cancel()
	<-s.done
}
