// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package download drains the work queue: it claims batches, walks the
// adapter chain for each item, places verified PDFs in the canonical
// store, and finishes the item. Items whose adapters only failed
// transiently stay claimed until the lease sweeper returns them.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pdiddy/chondro/internal/acquire"
	"github.com/pdiddy/chondro/internal/queue"
	"github.com/pdiddy/chondro/pkg/types"
)

// Queue is the subset of the work queue the downloader uses.
type Queue interface {
	ResetExpired(ctx context.Context, lease time.Duration) (int, error)
	ClaimNextBatch(ctx context.Context, n int) ([]types.QueueItem, error)
	Finish(ctx context.Context, id int64, status types.QueueStatus, pdfPath string, kind types.ErrorKind) error
	HunterDone(ctx context.Context) (bool, error)
	Log(ctx context.Context, process, action, details string) error
}

// Fetcher returns PDF bytes for a record. *acquire.Chain implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rec types.Record) (acquire.Result, []acquire.Attempt)
}

// DefaultLease applies when Options.Lease is unset.
const DefaultLease = 10 * time.Minute

// Options controls one downloader run.
type Options struct {
	// Root is the canonical PDF store.
	Root string

	BatchSize int
	Lease     time.Duration
	ItemDelay time.Duration
	IdleSleep time.Duration

	// Once processes at most one batch and returns.
	Once bool
}

// Summary holds the outcome of a downloader run.
type Summary struct {
	Downloaded int
	Reused     int
	Missed     int
	Blocked    int
	WriteFail  int
	Deferred   int
	Collisions int
	Requeued   int
}

// Total returns the number of items processed.
func (s Summary) Total() int {
	return s.Downloaded + s.Reused + s.Missed + s.Blocked + s.WriteFail + s.Deferred
}

// HasFailures reports whether any item ended failed.
func (s Summary) HasFailures() bool {
	return s.Missed+s.Blocked+s.WriteFail > 0
}

// Downloader is the queue consumer.
type Downloader struct {
	Queue   Queue
	Fetcher Fetcher
	Options Options
	Out     io.Writer
}

// Run loops until the queue is drained and the hunter has finished, or
// after one batch with Options.Once. Cancellation returns ctx.Err();
// claimed but unfinished items are left for the lease sweeper.
func (d *Downloader) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	out := d.outWriter()
	batchSize := d.Options.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	lease := d.Options.Lease
	if lease <= 0 {
		lease = DefaultLease
	}

	for {
		n, err := d.Queue.ResetExpired(ctx, lease)
		if err != nil {
			return summary, err
		}
		if n > 0 {
			summary.Requeued += n
			slog.Info("returned expired leases to pending", "count", n)
		}

		batch, err := d.Queue.ClaimNextBatch(ctx, batchSize)
		if err != nil {
			return summary, err
		}

		if len(batch) == 0 {
			if d.Options.Once {
				break
			}
			done, err := d.Queue.HunterDone(ctx)
			if err != nil {
				return summary, err
			}
			if done {
				break
			}
			fmt.Fprintf(out, "queue empty, waiting for hunter (%v)\n", d.Options.IdleSleep)
			if err := sleep(ctx, d.Options.IdleSleep); err != nil {
				return summary, err
			}
			continue
		}

		for i, item := range batch {
			if i > 0 {
				if err := sleep(ctx, d.Options.ItemDelay); err != nil {
					return summary, err
				}
			}
			if err := d.process(ctx, item, &summary); err != nil {
				return summary, err
			}
		}

		if d.Options.Once {
			break
		}
	}

	fmt.Fprintf(out, "\nDownload summary: %d downloaded, %d reused, %d missed, %d blocked, %d deferred (total: %d)\n",
		summary.Downloaded, summary.Reused, summary.Missed, summary.Blocked, summary.Deferred, summary.Total())
	return summary, nil
}

// process fetches one item and records its outcome. Only queue errors
// and cancellation are returned.
func (d *Downloader) process(ctx context.Context, item types.QueueItem, summary *Summary) error {
	rec := item.Record
	res, attempts := d.Fetcher.Fetch(ctx, rec)
	if err := ctx.Err(); err != nil {
		return err
	}

	switch res.Outcome {
	case acquire.OK:
		p, err := Place(d.Options.Root, rec, res.Data)
		if err != nil {
			slog.Error("placing pdf", "literature_id", rec.LiteratureID, "error", err)
			summary.WriteFail++
			return d.finish(ctx, item, types.StatusFailed, "", types.ErrWriteFail, err.Error())
		}
		summary.Collisions += p.Collisions
		if p.Collisions > 0 {
			d.log(ctx, string(types.ErrFilesystemCollision), fmt.Sprintf("id=%d path=%s collisions=%d", item.ID, p.Path, p.Collisions))
		}
		if p.Reused {
			summary.Reused++
		} else {
			summary.Downloaded++
		}
		fmt.Fprintf(d.outWriter(), "downloaded: %s -> %s (%s)\n", rec.LiteratureID, p.Path, res.Adapter)
		return d.finish(ctx, item, types.StatusSuccess, p.Path, types.ErrNone,
			fmt.Sprintf("adapter=%s url=%s", res.Adapter, res.SourceURL))

	case acquire.Blocked:
		summary.Blocked++
		fmt.Fprintf(d.outWriter(), "blocked:    %s (%s)\n", rec.LiteratureID, res.Detail)
		return d.finish(ctx, item, types.StatusFailed, "", types.ErrAdapterBlocked, describe(attempts))

	case acquire.Transient:
		summary.Deferred++
		fmt.Fprintf(d.outWriter(), "deferred:   %s (%s)\n", rec.LiteratureID, res.Detail)
		d.log(ctx, "deferred", fmt.Sprintf("id=%d %s", item.ID, describe(attempts)))
		return nil

	default:
		summary.Missed++
		fmt.Fprintf(d.outWriter(), "missed:     %s (%s)\n", rec.LiteratureID, res.Detail)
		return d.finish(ctx, item, types.StatusFailed, "", types.ErrAdapterMiss, describe(attempts))
	}
}

func (d *Downloader) finish(ctx context.Context, item types.QueueItem, status types.QueueStatus, path string, kind types.ErrorKind, details string) error {
	err := d.Queue.Finish(ctx, item.ID, status, path, kind)
	if errors.Is(err, queue.ErrNotInFlight) {
		// The lease expired and the item was reclaimed elsewhere.
		slog.Warn("item no longer claimed", "id", item.ID, "literature_id", item.Record.LiteratureID)
		return nil
	}
	if err != nil {
		return err
	}
	d.log(ctx, string(status), fmt.Sprintf("id=%d literature_id=%s %s", item.ID, item.Record.LiteratureID, details))
	return nil
}

func (d *Downloader) log(ctx context.Context, action, details string) {
	if err := d.Queue.Log(ctx, queue.ProcessDownloader, action, details); err != nil {
		slog.Warn("writing activity log", "action", action, "error", err)
	}
}

func (d *Downloader) outWriter() io.Writer {
	if d.Out == nil {
		return io.Discard
	}
	return d.Out
}

// describe renders attempts as "adapter=outcome(detail)" pairs.
func describe(attempts []acquire.Attempt) string {
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = fmt.Sprintf("%s=%s", a.Adapter, a.Outcome)
		if a.Detail != "" {
			parts[i] += "(" + a.Detail + ")"
		}
	}
	return strings.Join(parts, " ")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
