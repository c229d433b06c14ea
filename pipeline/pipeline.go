// Package pipeline runs the recognition engine over a batch of
// validated images under a fixed concurrency ceiling. Items are fully
// isolated: one item's failure never cancels or affects its siblings,
// and every submitted item resolves to exactly one result or error.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/wudi/ocrkit/images"
	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"
	"github.com/wudi/ocrkit/textproc"
)

// Result is the successful outcome for one image.
type Result struct {
	Name       string
	Text       string
	Confidence float64
}

// ItemError records one image's failure at any stage.
type ItemError struct {
	Name    string
	Message string
}

// Outcome aggregates one batch run.
type Outcome struct {
	Total   int
	Results []Result
	Errors  []ItemError
	Elapsed time.Duration
}

// Options configures a batch run.
type Options struct {
	// Concurrency caps how many recognition calls are admitted at
	// once; values below 1 are treated as 1.
	Concurrency int
	// Timeout bounds a single item's recognition call; zero means no
	// per-item deadline.
	Timeout time.Duration
	// MaxImageWidth downscales wider images proportionally before
	// recognition; zero disables resizing.
	MaxImageWidth int
	Languages     []string
	Text          textproc.Options
}

// Orchestrator dispatches items to a recognition engine. The engine is
// shared across requests and must tolerate Concurrency parallel calls.
type Orchestrator struct {
	engine ocr.Engine
	opts   Options
	log    observability.Logger
}

func New(engine ocr.Engine, opts Options, log observability.Logger) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Orchestrator{engine: engine, opts: opts, log: log}
}

// Process runs the batch. root is the directory display names are
// computed relative to. Both output lists preserve submission order.
func (o *Orchestrator) Process(ctx context.Context, items []images.Item, root string) Outcome {
	start := time.Now()

	type slot struct {
		res *Result
		err *ItemError
	}
	slots := make([]slot, len(items))

	o.log.Info("processing batch",
		observability.Int("images", len(items)),
		observability.Int("concurrency", o.opts.Concurrency))

	// Buffered channel as the admission gate. A task's token is not
	// freed when the task resolves but when its engine call actually
	// returns, so a timed-out recognition keeps its slot occupied and
	// the ceiling holds even while abandoned calls drain.
	sem := make(chan struct{}, o.opts.Concurrency)
	var wg sync.WaitGroup
	for i, it := range items {
		wg.Add(1)
		go func(i int, it images.Item) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slots[i].err = &ItemError{Name: "unknown", Message: fmt.Sprintf("unexpected failure: %v", r)}
				}
			}()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				slots[i].err = &ItemError{Name: displayName(it.Path, root), Message: ctx.Err().Error()}
				return
			}

			res, ierr := o.processOne(ctx, it, root, sem)
			slots[i].res, slots[i].err = res, ierr
		}(i, it)
	}
	wg.Wait()

	out := Outcome{Total: len(items)}
	for _, s := range slots {
		if s.err != nil {
			out.Errors = append(out.Errors, *s.err)
			continue
		}
		out.Results = append(out.Results, *s.res)
	}
	out.Elapsed = time.Since(start)

	o.log.Info("batch done",
		observability.Int("succeeded", len(out.Results)),
		observability.Int("failed", len(out.Errors)),
		observability.Float64("elapsed_seconds", out.Elapsed.Seconds()))
	return out
}

// processOne carries the admission token acquired by its caller. The
// token is handed to the engine-call goroutine inside recognize; on
// paths that never reach the engine it is freed here.
func (o *Orchestrator) processOne(ctx context.Context, it images.Item, root string, sem chan struct{}) (*Result, *ItemError) {
	name := displayName(it.Path, root)

	img, err := imaging.Open(it.Path)
	if err != nil {
		<-sem
		o.log.Error("image decode failed",
			observability.String("image", name), observability.Error("err", err))
		return nil, &ItemError{Name: name, Message: fmt.Sprintf("decode image: %v", err)}
	}

	if o.opts.MaxImageWidth > 0 && img.Bounds().Dx() > o.opts.MaxImageWidth {
		// Box filter averages source pixels per destination pixel,
		// preserving area; height 0 keeps the aspect ratio.
		img = imaging.Resize(img, o.opts.MaxImageWidth, 0, imaging.Box)
	}

	dets, err := o.recognize(ctx, name, img, sem)
	if err != nil {
		o.log.Error("recognition failed",
			observability.String("image", name), observability.Error("err", err))
		return nil, &ItemError{Name: name, Message: err.Error()}
	}

	assembled := textproc.Assemble(dets, o.opts.Text)
	return &Result{Name: name, Text: assembled.Text, Confidence: assembled.Confidence}, nil
}

// recognize invokes the blocking engine call off this goroutine so a
// per-item deadline can be enforced even when the engine cannot be
// interrupted. On timeout the call's eventual outcome is discarded,
// but the admission token stays with the spawned goroutine until the
// engine actually returns.
func (o *Orchestrator) recognize(ctx context.Context, name string, img image.Image, sem chan struct{}) ([]ocr.Detection, error) {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	type reply struct {
		dets []ocr.Detection
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() { <-sem }()
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("recognition panic: %v", r)}
			}
		}()
		dets, err := o.engine.Recognize(ctx, ocr.NewInput(img,
			ocr.WithID(name), ocr.WithLanguages(o.opts.Languages...)))
		ch <- reply{dets: dets, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("recognize: %w", r.err)
		}
		return r.dets, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("recognize: %w", ctx.Err())
	}
}

// displayName expresses path relative to the batch root, falling back
// to the base name when the item is not under the root.
func displayName(path, root string) string {
	if root == "" {
		return filepath.Base(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return rel
}
