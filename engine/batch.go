package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hollowaylabs/dcp/journal"
	"github.com/hollowaylabs/dcp/provider"
)

// DefaultConcurrency is the worker count used when the caller asks for none.
const DefaultConcurrency = 8

// Report is the aggregate outcome of one batch.
type Report struct {
	Direction Direction
	Succeeded int64
	Bytes     int64
	Failed    *ItemError
}

// Event describes one completed transfer, for progress consumers.
type Event struct {
	Source    string
	Target    string
	Direction Direction
	Bytes     int64
}

// Runner drives one batch: classify the direction once, clamp the worker
// count, feed the bounded queue from a single producer, let workers resolve
// and execute each transfer, and report after every worker has joined.
type Runner struct {
	Local  provider.Provider
	Remote provider.Provider

	// Concurrency is the requested worker count; the live count is clamped
	// to the number of sources. Zero or negative selects DefaultConcurrency.
	Concurrency int

	// Journal, when set, receives one entry per attempted item.
	Journal journal.Journal

	// Out receives the per-success progress lines and the summary line.
	// Defaults to os.Stdout.
	Out io.Writer

	// OnProgress, when set, is invoked once per completed transfer.
	OnProgress func(Event)

	mu sync.Mutex
}

// Run transfers every source against dest and blocks until all workers have
// terminated. The first transfer failure aborts the batch: no new work is
// issued, in-flight items drain, and the failure comes back in the report
// and as the returned error. An empty source list returns immediately
// without spawning a producer or any worker.
func (r *Runner) Run(ctx context.Context, sources []string, dest string) (Report, error) {
	dir := ClassifyDestination(dest)
	report := Report{Direction: dir}

	// An explicit file:// destination is local; the scheme is not part of
	// the filesystem path.
	if dir == Download {
		if scheme, rest, ok := provider.SplitURI(dest); ok && scheme == "file" {
			dest = rest
		}
	}

	if len(sources) == 0 {
		r.printf("Finished %s 0 file(s)\n", dir.participle())
		return report, nil
	}

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	workers := concurrency
	if len(sources) < workers {
		workers = len(sources)
	}

	items := make(ItemChannel, concurrency)
	tracker := &Tracker{}
	buffers := NewBufferPool(0)

	var handler Handler
	if dir == Upload {
		handler = func(ctx context.Context, item Item) error {
			return r.upload(ctx, item, dest, tracker, buffers)
		}
	} else {
		handler = func(ctx context.Context, item Item) error {
			return r.download(ctx, item, dest, tracker, buffers)
		}
	}

	pool := NewWorkerPool(ctx, items, handler)
	pool.Start(workers)

	// Single producer; closing the queue is the workers' termination signal.
	go func() {
		defer close(items)
		for _, src := range sources {
			select {
			case <-pool.Done():
				return
			case items <- Item{Source: src}:
			}
		}
	}()

	failed := pool.Wait()
	report.Succeeded = tracker.Files()
	report.Bytes = tracker.Bytes()

	if failed != nil {
		report.Failed = failed
		return report, failed
	}

	r.printf("Finished %s %d file(s)\n", dir.participle(), report.Succeeded)
	return report, nil
}

func (r *Runner) upload(ctx context.Context, item Item, dest string, tracker *Tracker, buffers *BufferPool) error {
	target, mode := ResolveUpload(ctx, r.Remote, dest, item.Source)

	info, err := r.Local.Stat(ctx, item.Source)
	if err != nil {
		return r.fail(item, target, mode.String(), Upload, fmt.Errorf("error opening %s: %w", item.Source, err))
	}

	src, err := r.Local.OpenRead(ctx, item.Source)
	if err != nil {
		return r.fail(item, target, mode.String(), Upload, fmt.Errorf("error opening %s: %w", item.Source, err))
	}
	defer src.Close()

	dst, err := r.Remote.OpenWrite(ctx, target, info)
	if err != nil {
		return r.fail(item, target, mode.String(), Upload, fmt.Errorf("error uploading %s: %w", item.Source, err))
	}

	cr := NewChecksumReader(src)
	buf := buffers.Get()
	_, err = io.CopyBuffer(dst, cr, *buf)
	buffers.Put(buf)
	if err != nil {
		dst.Close()
		return r.fail(item, target, mode.String(), Upload, fmt.Errorf("error uploading %s: %w", item.Source, err))
	}
	if err := dst.Close(); err != nil {
		return r.fail(item, target, mode.String(), Upload, fmt.Errorf("error uploading %s: %w", item.Source, err))
	}

	tracker.Add(cr.BytesRead())
	r.record(item, target, mode.String(), Upload, cr.BytesRead(), cr.Checksum(), nil)
	r.printf("Uploaded %s\n", target)
	r.progress(Event{Source: item.Source, Target: target, Direction: Upload, Bytes: cr.BytesRead()})
	return nil
}

func (r *Runner) download(ctx context.Context, item Item, dest string, tracker *Tracker, buffers *BufferPool) error {
	target := ResolveDownload(ctx, r.Local, dest, item.Source)

	src, err := r.Remote.OpenRead(ctx, item.Source)
	if err != nil {
		return r.fail(item, target, "", Download, fmt.Errorf("error downloading %s: %w", item.Source, err))
	}
	defer src.Close()

	// Source metadata is best-effort; the write proceeds without it.
	meta, _ := r.Remote.Stat(ctx, item.Source)

	dst, err := r.Local.OpenWrite(ctx, target, meta)
	if err != nil {
		return r.fail(item, target, "", Download, fmt.Errorf("error creating %s: %w", target, err))
	}

	cw := NewChecksumWriter(dst)
	buf := buffers.Get()
	_, err = io.CopyBuffer(cw, src, *buf)
	buffers.Put(buf)
	if err != nil {
		dst.Close()
		return r.fail(item, target, "", Download, fmt.Errorf("error downloading %s: %w", item.Source, err))
	}
	if err := dst.Close(); err != nil {
		return r.fail(item, target, "", Download, fmt.Errorf("error writing %s: %w", target, err))
	}

	tracker.Add(cw.BytesWritten())
	r.record(item, target, "", Download, cw.BytesWritten(), cw.Checksum(), nil)
	r.printf("Downloaded %s (%sB)\n", item.Source, sizeWithSuffix(cw.BytesWritten()))
	r.progress(Event{Source: item.Source, Target: target, Direction: Download, Bytes: cw.BytesWritten()})
	return nil
}

// fail journals the failed attempt and passes the error through.
func (r *Runner) fail(item Item, target, mode string, dir Direction, err error) error {
	r.record(item, target, mode, dir, 0, 0, err)
	return err
}

func (r *Runner) record(item Item, target, mode string, dir Direction, bytes int64, checksum uint64, err error) {
	if r.Journal == nil {
		return
	}
	entry := &journal.Entry{
		Source:    item.Source,
		Target:    target,
		Direction: dir.String(),
		Mode:      mode,
		Bytes:     bytes,
		Checksum:  checksum,
		State:     journal.StateCompleted,
	}
	if err != nil {
		entry.State = journal.StateFailed
		entry.Error = err.Error()
	}
	// Journal writes are advisory; a failed record must not abort a transfer.
	_ = r.Journal.Record(entry)
}

func (r *Runner) printf(format string, args ...any) {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	r.mu.Lock()
	fmt.Fprintf(out, format, args...)
	r.mu.Unlock()
}

func (r *Runner) progress(ev Event) {
	if r.OnProgress != nil {
		r.OnProgress(ev)
	}
}

// sizeWithSuffix renders a byte count with a K/M/G suffix for progress lines.
func sizeWithSuffix(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1fG", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.1fM", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.1fK", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d", n)
	}
}
