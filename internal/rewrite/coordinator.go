// Package rewrite edits selected text fragments of a rendered invoice with an
// AI text-rewrite service.
package rewrite

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"

	"invoicechat/internal/logger"
)

// contextNodes is how many neighbouring nodes on each side are sent along.
const contextNodes = 2

// Change is one applied rewrite.
type Change struct {
	ID     string
	Type   ContentType
	Before string
	After  string
}

// ProgressFunc is called after each finished request. Calls are serialized.
type ProgressFunc func(done, total int)

// Coordinator fans an instruction out over selected text nodes.
type Coordinator struct {
	rewriter    Rewriter
	concurrency int
	progress    ProgressFunc
	log         zerolog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithConcurrency limits in-flight requests. Zero means one per node.
func WithConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) { c.concurrency = n }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) CoordinatorOption {
	return func(c *Coordinator) { c.progress = fn }
}

// NewCoordinator creates a coordinator backed by rewriter.
func NewCoordinator(rewriter Rewriter, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		rewriter: rewriter,
		log:      logger.WithComponent("rewrite-coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply rewrites the nodes ids of doc following instruction. Either every
// request succeeds and the changed nodes are applied, or doc is left as is
// and the first error is returned. Rewrites equal to the original text are
// dropped from the result.
func (c *Coordinator) Apply(ctx context.Context, doc *Document, ids []string, instruction string) (*Document, []Change, error) {
	const op = "Apply"

	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return nil, nil, NewRewriteError(op, ErrEmptySelection, "")
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, nil, NewRewriteError(op, ErrEmptyInstruction, "")
	}

	requests := make([]Request, len(ids))
	for i, id := range ids {
		node, ok := doc.Node(id)
		if !ok {
			return nil, nil, NewRewriteError(op, ErrUnknownNode, id)
		}
		before, after := doc.Neighbours(id, contextNodes)
		requests[i] = Request{
			SelectedText: node.Text,
			ElementType:  ClassifyContent(node.Text),
			Prompt:       instruction,
			Context:      strings.Join(append(append(before, node.Text), after...), " | "),
		}
	}

	c.log.Info().
		Int("nodes", len(ids)).
		Str("instruction", instruction).
		Msg("Starting rewrite batch")

	results := make([]string, len(ids))
	var (
		mu   sync.Mutex
		done int
	)

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	if c.concurrency > 0 {
		p = p.WithMaxGoroutines(c.concurrency)
	}
	for i := range requests {
		p.Go(func(ctx context.Context) error {
			text, err := c.rewriter.Rewrite(ctx, requests[i])
			if err != nil {
				return NewRewriteError(op, err, ids[i])
			}
			if strings.TrimSpace(text) == "" {
				return NewRewriteError(op, ErrEmptyRewrite, ids[i])
			}
			results[i] = text

			if c.progress != nil {
				mu.Lock()
				done++
				c.progress(done, len(ids))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		c.log.Warn().Err(err).Msg("Rewrite batch aborted")
		return nil, nil, err
	}

	replacements := map[string]string{}
	var changes []Change
	for i, id := range ids {
		before := requests[i].SelectedText
		after := strings.TrimSpace(results[i])
		if after == before {
			continue
		}
		replacements[id] = after
		changes = append(changes, Change{
			ID:     id,
			Type:   requests[i].ElementType,
			Before: before,
			After:  after,
		})
	}

	next, err := doc.WithText(replacements)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	c.log.Info().
		Int("requested", len(ids)).
		Int("applied", len(changes)).
		Msg("Rewrite batch applied")
	return next, changes, nil
}
