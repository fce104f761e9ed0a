package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/mboxvault/internal/mbox"
	"github.com/wesm/mboxvault/internal/store"
)

// ErrSourceNotFound is returned when the import path is missing or is not a
// regular file. No transaction has been opened when it is returned.
var ErrSourceNotFound = errors.New("mbox file not found")

// TransactionError reports an import that was rolled back as a whole. Op
// names the step that failed.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("import rolled back: %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ProgressFunc receives the number of messages read so far and the number of
// messages in the file. It runs on the importing goroutine.
type ProgressFunc func(processed, total int)

type MboxImportOptions struct {
	// Workers bounds how many messages are normalized concurrently.
	// Inserts always happen one at a time in file order. Default 1.
	Workers int

	// ProgressInterval is how often, in messages read, Progress is called.
	// Default 100.
	ProgressInterval int

	// Progress is optional. A panic inside it is logged and ignored.
	Progress ProgressFunc

	// MaxMessageBytes limits the size of a single message. Larger messages
	// are skipped and counted as failed. Default 128 MiB.
	MaxMessageBytes int64

	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

// Summary describes a committed import.
type Summary struct {
	Path       string
	Total      int // separators counted before the import
	Processed  int // messages read
	Imported   int
	Duplicates int // UID already present
	Failed     int
	Duration   time.Duration
}

const (
	defaultMaxMboxMessageBytes int64 = 128 << 20 // 128 MiB
	defaultProgressInterval          = 100
	validateWindow             int64 = 8 << 20

	// batchPerWorker sizes the slice of messages normalized together
	// before their inserts run.
	batchPerWorker = 16
)

// Outcome reduces the result of ImportMbox to a success flag, the number of
// stored messages and a message for display.
func Outcome(sum *Summary, err error) (ok bool, imported int, message string) {
	if err != nil {
		return false, 0, err.Error()
	}
	return true, sum.Imported, fmt.Sprintf("Imported %d emails.", sum.Imported)
}

// ImportMbox imports every message of an mbox file in a single transaction.
//
// A message that cannot be read, normalized or inserted is logged, counted in
// Summary.Failed and skipped. Any other failure, including cancellation of
// ctx, rolls the whole import back and is returned as a *TransactionError.
// Messages whose UID is already stored are left untouched, so importing the
// same file twice is harmless.
func ImportMbox(ctx context.Context, st *store.Store, mboxPath string, opts MboxImportOptions) (*Summary, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMboxMessageBytes
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	start := time.Now()
	fi, err := os.Stat(mboxPath)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, mboxPath)
	}

	f, err := os.Open(mboxPath)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer f.Close()

	if fi.Size() > 0 {
		if err := mbox.Validate(f, validateWindow); err != nil {
			return nil, fmt.Errorf("%s: %w", mboxPath, err)
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek mbox: %w", err)
	}
	total, err := mbox.Count(f)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek mbox: %w", err)
	}

	summary := &Summary{Path: mboxPath, Total: total}
	log.Info("importing mbox", "file", mboxPath, "messages", total, "workers", opts.Workers)

	tx, err := st.BeginImport(ctx)
	if err != nil {
		return nil, &TransactionError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	r := mbox.NewReaderWithMaxMessageBytes(f, opts.MaxMessageBytes)
	batchSize := opts.Workers * batchPerWorker
	if opts.Workers == 1 {
		batchSize = 1
	}
	pending := make([]*mbox.Message, 0, batchSize)
	lastReport := 0

	flushPending := func() error {
		if len(pending) == 0 {
			return nil
		}
		for _, n := range normalizeBatch(ctx, pending, opts.Workers) {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary.Processed++
			if n.err != nil {
				summary.Failed++
				log.Warn("skipping message", "index", n.msg.Index, "error", n.err)
			} else if added, err := tx.InsertEmail(ctx, n.email); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				summary.Failed++
				log.Warn("failed to insert message", "index", n.msg.Index, "uid", n.email.UID, "error", err)
			} else if added {
				summary.Imported++
			} else {
				summary.Duplicates++
			}
			if summary.Processed-lastReport >= opts.ProgressInterval {
				lastReport = summary.Processed
				reportProgress(log, opts.Progress, summary.Processed, total)
			}
		}
		clear(pending)
		pending = pending[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, &TransactionError{Op: "import", Err: err}
		}
		msg, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, mbox.ErrMessageTooLarge) {
			// Keep file order: earlier messages are inserted before the
			// oversized one is counted.
			if err := flushPending(); err != nil {
				return nil, &TransactionError{Op: "import", Err: err}
			}
			summary.Processed++
			summary.Failed++
			log.Warn("skipping oversized message", "index", msg.Index, "error", err)
			continue
		}
		if err != nil {
			return nil, &TransactionError{Op: "read", Err: err}
		}
		pending = append(pending, msg)
		if len(pending) >= batchSize {
			if err := flushPending(); err != nil {
				return nil, &TransactionError{Op: "import", Err: err}
			}
		}
	}
	if err := flushPending(); err != nil {
		return nil, &TransactionError{Op: "import", Err: err}
	}

	if err := tx.RebuildIndex(ctx); err != nil {
		return nil, &TransactionError{Op: "rebuild index", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &TransactionError{Op: "commit", Err: err}
	}
	if summary.Processed != lastReport {
		reportProgress(log, opts.Progress, summary.Processed, total)
	}

	summary.Duration = time.Since(start)
	log.Info("mbox import complete",
		"file", mboxPath,
		"imported", summary.Imported,
		"duplicates", summary.Duplicates,
		"failed", summary.Failed,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary, nil
}

type normalized struct {
	msg   *mbox.Message
	email *store.Email
	err   error
}

// normalizeBatch normalizes msgs with up to workers goroutines and returns
// the results in input order.
func normalizeBatch(ctx context.Context, msgs []*mbox.Message, workers int) []normalized {
	out := make([]normalized, len(msgs))
	if workers <= 1 || len(msgs) == 1 {
		for i, m := range msgs {
			e, err := safeNormalize(m)
			out[i] = normalized{msg: m, email: e, err: err}
		}
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, m := range msgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				out[i] = normalized{msg: m, err: err}
				return nil
			}
			e, err := safeNormalize(m)
			out[i] = normalized{msg: m, email: e, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// normalizeMessage is swapped out by tests.
var normalizeMessage = NormalizeMessage

// safeNormalize turns a panic in the MIME stack into that message's error.
func safeNormalize(m *mbox.Message) (e *store.Email, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, fmt.Errorf("message %d: normalize panic: %v", m.Index+1, r)
		}
	}()
	return normalizeMessage(m)
}

func reportProgress(log *slog.Logger, fn ProgressFunc, processed, total int) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("progress callback panicked", "panic", r)
		}
	}()
	fn(processed, total)
}
