package batch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zing22845/go-wxcrypt/cryptoerr"
	"github.com/zing22845/go-wxcrypt/datcrypt"
	"github.com/zing22845/go-wxcrypt/dbcrypt"
	"github.com/zing22845/go-wxcrypt/sink"
	"golang.org/x/time/rate"
)

// Runner executes tasks on a bounded pool. The zero value is usable.
type Runner struct {
	// Workers defaults to the number of CPUs, capped at MaxWorkers.
	Workers    int
	MaxWorkers int
	// TaskTimeout bounds a single task, 0 disables it.
	TaskTimeout time.Duration
	// BytesPerSecond throttles output writes across all workers, 0 disables it.
	BytesPerSecond uint64
	// Verify opens every decrypted container with sqlite afterwards.
	Verify   bool
	ZeroPage dbcrypt.ZeroPagePolicy
	Padding  dbcrypt.Padding
	// Uploader receives successful outputs, keyed by their path below UploadRoot.
	Uploader   sink.Uploader
	UploadRoot string
	Ledger     *Ledger
	Logger     *log.Entry
}

func (r *Runner) workers() int {
	limit := r.MaxWorkers
	if limit <= 0 {
		limit = DefaultMaxWorkers
	}
	n := r.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > limit {
		n = limit
	}
	return n
}

func (r *Runner) logger() *log.Entry {
	if r.Logger != nil {
		return r.Logger
	}
	return log.NewEntry(log.StandardLogger())
}

// Run executes every task and returns one result per task, in completion
// order. A failing task never stops the others. Tasks that could not start
// before ctx was done are reported as canceled. A repeated task runs once
// and its copies report the outcome of that run, skipped when it succeeded.
func (r *Runner) Run(ctx context.Context, tasks []Task) []Result {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]Result, 0, len(tasks))
		started sync.Map
		dups    []Task
		sem     = make(chan struct{}, r.workers())
		limiter = newLimiter(r.BytesPerSecond)
	)
	collect := func(res Result) {
		if r.Ledger != nil {
			r.Ledger.Record(&res)
		}
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}
	r.logger().WithFields(log.Fields{"tasks": len(tasks), "workers": cap(sem)}).Info("batch started")

	for i := range tasks {
		task := tasks[i]
		first := &Result{}
		if _, loaded := started.LoadOrStore(task.id(), first); loaded {
			dups = append(dups, task)
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			*first = Result{Task: task, Kind: cryptoerr.KindCanceled, Err: ctx.Err()}
			collect(*first)
			continue
		}
		wg.Add(1)
		go func(task Task, first *Result) {
			defer wg.Done()
			defer func() { <-sem }()
			*first = r.runOne(ctx, task, limiter)
			collect(*first)
		}(task, first)
	}
	wg.Wait()

	// first is only written by its own goroutine, which wg.Wait has joined
	for _, task := range dups {
		v, _ := started.Load(task.id())
		first := v.(*Result)
		collect(Result{
			Task:    task,
			Kind:    first.Kind,
			Output:  first.Output,
			Err:     first.Err,
			Skipped: first.Kind == cryptoerr.KindOK,
		})
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, task Task, limiter *rate.Limiter) (res Result) {
	start := time.Now()
	logger := r.logger().WithFields(log.Fields{"task": task.Kind, "path": task.Source})
	res = Result{Task: task}
	defer func() {
		if p := recover(); p != nil {
			res.Err = errors.Errorf("panic: %v", p)
			res.Kind = cryptoerr.KindIO
		}
		res.Elapsed = time.Since(start)
		if res.Err != nil {
			logger.WithError(res.Err).WithField("kind", res.Kind).Warn("task failed")
		} else {
			logger.WithFields(log.Fields{"output": res.Output, "skipped": res.Skipped}).Debug("task done")
		}
	}()

	taskCtx := ctx
	if r.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, r.TaskTimeout)
		defer cancel()
	}
	wrap := func(w io.Writer) io.Writer {
		return newRateLimitedWriter(taskCtx, w, limiter)
	}

	switch task.Kind {
	case TaskContainer:
		res.Err = r.runContainer(taskCtx, &task, &res, wrap, logger)
	case TaskBlob:
		res.Err = r.runBlob(taskCtx, &task, &res, wrap, logger)
	default:
		res.Err = errors.Errorf("unknown task kind %d", task.Kind)
	}
	if res.Err == nil && !res.Skipped && r.Uploader != nil {
		res.Err = r.upload(taskCtx, res.Output)
	}
	res.Kind = cryptoerr.KindOf(res.Err)
	// a task running out of its own time budget is a failure, not a shutdown
	if res.Kind == cryptoerr.KindCanceled && ctx.Err() == nil {
		res.Err = errors.Wrapf(res.Err, "task exceeded %s", r.TaskTimeout)
		res.Kind = cryptoerr.KindIO
	}
	return res
}

func (r *Runner) runContainer(ctx context.Context, task *Task, res *Result, wrap func(io.Writer) io.Writer, logger *log.Entry) error {
	if _, err := os.Stat(task.Destination); err == nil {
		res.Output = task.Destination
		res.Skipped = true
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(task.Destination), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", task.Destination)
	}
	fr, err := dbcrypt.DecryptFile(ctx, task.Profile, task.Key, task.Source, task.Destination,
		dbcrypt.WithZeroPagePolicy(r.ZeroPage),
		dbcrypt.WithPadding(r.Padding),
		dbcrypt.WithLogger(logger),
		dbcrypt.WithWriterMiddleware(wrap),
	)
	if err != nil {
		return err
	}
	res.Output = task.Destination
	res.Pages = fr.Pages
	res.Written = fr.Written
	if !r.Verify {
		return nil
	}
	info, err := dbcrypt.CheckDatabase(task.Destination)
	if err != nil {
		return errors.Wrapf(cryptoerr.ErrUnrecognizedFormat, "verify %s: %v", task.Destination, err)
	}
	if !info.OK() {
		return errors.Wrapf(cryptoerr.ErrUnrecognizedFormat, "verify %s: quick_check %q", task.Destination, info.QuickCheck)
	}
	logger.WithField("tables", len(info.Tables)).Debug("container verified")
	return nil
}

func (r *Runner) runBlob(ctx context.Context, task *Task, res *Result, wrap func(io.Writer) io.Writer, logger *log.Entry) error {
	dr, err := datcrypt.DecodeFile(ctx, task.XorKey, task.Source, task.Destination, task.DstName,
		datcrypt.WithLogger(logger),
		datcrypt.WithWriterMiddleware(wrap),
	)
	if err != nil {
		return err
	}
	res.Output = dr.Output
	res.Skipped = dr.Skipped
	res.Written = dr.Written
	return nil
}

func (r *Runner) upload(ctx context.Context, output string) error {
	key := filepath.Base(output)
	if r.UploadRoot != "" {
		if rel, err := filepath.Rel(r.UploadRoot, output); err == nil {
			key = rel
		}
	}
	return errors.Wrap(r.Uploader.Upload(ctx, filepath.ToSlash(key), output), "upload")
}
