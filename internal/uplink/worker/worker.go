// Package worker runs file transfers off the orchestrator's critical path.
// The orchestrator talks to a Worker exclusively through messages: Commands
// go in over Send, Events come back on a channel. A closed event channel
// means the worker died and a replacement must be started.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/lyceum-cloud/uplink/internal/common"
	"github.com/lyceum-cloud/uplink/internal/logging"
	"github.com/lyceum-cloud/uplink/internal/uplink/models"
	"github.com/lyceum-cloud/uplink/internal/uplink/storage"
	"github.com/lyceum-cloud/uplink/internal/uplink/token"
)

// Worker executes transfers. Implementations must close the Events channel
// when they stop for any reason.
type Worker interface {
	// Send enqueues a command. It returns common.ErrWorkerClosed once the
	// worker has shut down.
	Send(cmd Command) error

	// Events returns the stream of transfer events. It is closed when the
	// worker stops.
	Events() <-chan Event

	Close() error
}

// ChunkSource buffers chunk payloads durably so a chunked transfer can be
// replayed after a restart without rereading the source file.
type ChunkSource interface {
	LoadChunk(ctx context.Context, taskID string, index int) (*models.Chunk, error)
	SaveChunk(ctx context.Context, c *models.Chunk) error
}

// Stop causes. Transfers stopped with either end silently; everything else
// surfaces as a Failed event.
var (
	errPaused   = errors.New("transfer paused")
	errCanceled = errors.New("transfer canceled")
)

const progressInterval = 500 * time.Millisecond

// InProcess is a Worker backed by goroutines in the same process. One
// goroutine owns the command loop; each transfer runs on its own goroutine
// with a per-transfer cancel cause distinguishing pause from cancel.
type InProcess struct {
	objects storage.ObjectStore
	chunks  ChunkSource
	tokens  *token.Source
	log     logging.Logger

	cmds     chan Command
	events   chan Event
	done     chan struct{}
	loopDone chan struct{}
	closing  sync.Once

	mu        sync.Mutex
	transfers map[string]context.CancelCauseFunc
	wg        sync.WaitGroup
}

// NewInProcess starts an in-process worker. chunks may be nil, in which case
// chunked transfers always read from the source file.
func NewInProcess(objects storage.ObjectStore, chunks ChunkSource, tokens *token.Source, log logging.Logger) *InProcess {
	if log == nil {
		log = logging.Nop()
	}
	w := &InProcess{
		objects:   objects,
		chunks:    chunks,
		tokens:    tokens,
		log:       log.With("component", "worker"),
		cmds:      make(chan Command),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		transfers: make(map[string]context.CancelCauseFunc),
	}
	go w.run()
	return w
}

func (w *InProcess) Send(cmd Command) error {
	select {
	case w.cmds <- cmd:
		return nil
	case <-w.done:
		return common.ErrWorkerClosed
	}
}

func (w *InProcess) Events() <-chan Event {
	return w.events
}

// Close stops the command loop and interrupts in-flight transfers as if they
// were paused, so they stay resumable. It blocks until all transfer
// goroutines have exited.
func (w *InProcess) Close() error {
	w.closing.Do(func() { close(w.done) })
	<-w.loopDone
	return nil
}

func (w *InProcess) run() {
	defer close(w.loopDone)
	for {
		select {
		case <-w.done:
			w.stopAll(errPaused)
			w.wg.Wait()
			close(w.events)
			return
		case cmd := <-w.cmds:
			w.handle(cmd)
		}
	}
}

func (w *InProcess) handle(cmd Command) {
	switch c := cmd.(type) {
	case AddUpload:
		w.start(c.Task, false)
	case AddLargeUpload:
		w.start(c.Task, true)
	case ResumeUpload:
		w.start(c.Task, c.Task.Chunked)
	case PauseUpload:
		w.stop(c.TaskID, errPaused)
	case CancelUpload:
		w.stop(c.TaskID, errCanceled)
	case SetToken:
		w.tokens.Set(c.Token)
	}
}

func (w *InProcess) start(task models.UploadTask, chunked bool) {
	w.mu.Lock()
	if _, running := w.transfers[task.ID]; running {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	w.transfers[task.ID] = cancel
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer w.forget(task.ID)
		defer cancel(nil)

		var err error
		if chunked {
			err = w.uploadChunked(ctx, task)
		} else {
			err = w.uploadWhole(ctx, task)
		}
		if err != nil {
			cause := context.Cause(ctx)
			if errors.Is(cause, errPaused) || errors.Is(cause, errCanceled) {
				w.log.Debug(ctx, "transfer interrupted", "task_id", task.ID, "cause", cause)
				return
			}
			w.log.Warn(ctx, "transfer failed", "task_id", task.ID, "error", err)
			w.emit(Failed{TaskID: task.ID, Err: err.Error()})
			return
		}
		w.emit(Completed{TaskID: task.ID})
	}()
}

func (w *InProcess) stop(id string, cause error) {
	w.mu.Lock()
	cancel, ok := w.transfers[id]
	w.mu.Unlock()
	if ok {
		cancel(cause)
	}
}

func (w *InProcess) stopAll(cause error) {
	w.mu.Lock()
	for _, cancel := range w.transfers {
		cancel(cause)
	}
	w.mu.Unlock()
}

func (w *InProcess) forget(id string) {
	w.mu.Lock()
	delete(w.transfers, id)
	w.mu.Unlock()
}

// emit delivers an event unless the worker is shutting down. Events are
// buffered; a reader that stops draining stalls transfers rather than
// growing memory without bound.
func (w *InProcess) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// uploadWhole sends the file as one request.
func (w *InProcess) uploadWhole(ctx context.Context, task models.UploadTask) error {
	if err := w.tokens.Validate(time.Now()); err != nil {
		return err
	}

	f, err := openSource(task.LocalPath, task.FileSize)
	if err != nil {
		return err
	}
	defer f.Close()

	pr := &progressReader{
		r:     f,
		total: task.FileSize,
		start: time.Now(),
		onUpdate: func(transferred int64, speed float64) {
			w.emit(Progress{TaskID: task.ID, Transferred: transferred, Total: task.FileSize, Speed: speed})
		},
	}
	if err := w.objects.Put(ctx, task.Key(), pr, task.FileSize); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// uploadChunked sends the file in ChunkSize slices starting at
// task.ChunksDone. Each slice is taken from the chunk source when buffered
// there, falling back to the source file.
func (w *InProcess) uploadChunked(ctx context.Context, task models.UploadTask) error {
	if err := w.tokens.Validate(time.Now()); err != nil {
		return err
	}
	if task.ChunkSize <= 0 {
		return fmt.Errorf("task %s: invalid chunk size %d", task.ID, task.ChunkSize)
	}
	count := task.ChunkCount
	if count == 0 {
		count = models.ChunkCountFor(task.FileSize, task.ChunkSize)
	}

	cu, err := w.objects.StartChunked(ctx, task.Key(), task.FileSize, task.ChunkSize)
	if err != nil {
		return fmt.Errorf("start chunked upload: %w", err)
	}

	var src *os.File
	defer func() {
		if src != nil {
			src.Close()
		}
	}()

	start := time.Now()
	var sent int64
	for idx := task.ChunksDone; idx < count; idx++ {
		data, err := w.chunkData(ctx, &src, task, idx)
		if err != nil {
			return err
		}
		if err := cu.PutChunk(ctx, idx, data); err != nil {
			if errors.Is(context.Cause(ctx), errCanceled) {
				if aerr := cu.Abort(context.WithoutCancel(ctx)); aerr != nil {
					w.log.Warn(ctx, "abort after cancel failed", "task_id", task.ID, "error", aerr)
				}
			}
			return fmt.Errorf("put chunk %d: %w", idx, err)
		}

		w.emit(ChunkDone{TaskID: task.ID, Index: idx})
		sent += int64(len(data))
		transferred := int64(idx+1) * task.ChunkSize
		if transferred > task.FileSize {
			transferred = task.FileSize
		}
		var speed float64
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			speed = float64(sent) / elapsed
		}
		w.emit(Progress{TaskID: task.ID, Transferred: transferred, Total: task.FileSize, Speed: speed})
	}

	if err := cu.Complete(ctx); err != nil {
		return fmt.Errorf("complete chunked upload: %w", err)
	}
	return nil
}

// chunkData returns the payload for one chunk index: from the durable chunk
// source when present, otherwise read from the file and buffered back so a
// later replay does not need the file.
func (w *InProcess) chunkData(ctx context.Context, src **os.File, task models.UploadTask, idx int) ([]byte, error) {
	if w.chunks != nil {
		c, err := w.chunks.LoadChunk(ctx, task.ID, idx)
		if err == nil {
			return c.Data, nil
		}
		if !errors.Is(err, common.ErrChunkNotFound) {
			return nil, fmt.Errorf("load chunk %d: %w", idx, err)
		}
	}

	if *src == nil {
		f, err := openSource(task.LocalPath, task.FileSize)
		if err != nil {
			return nil, err
		}
		*src = f
	}

	offset := int64(idx) * task.ChunkSize
	n := task.ChunkSize
	if rest := task.FileSize - offset; rest < n {
		n = rest
	}
	buf := make([]byte, n)
	if _, err := (*src).ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read chunk %d: %w", idx, err)
	}

	if w.chunks != nil {
		if err := w.chunks.SaveChunk(ctx, &models.Chunk{TaskID: task.ID, Index: idx, Data: buf}); err != nil {
			w.log.Warn(ctx, "chunk not buffered, replay will need the source file",
				"task_id", task.ID, "index", idx, "error", err)
		}
	}
	return buf, nil
}

// openSource opens the task's source file, mapping the two recoverable
// failure modes onto sentinel errors the caller can match.
func openSource(path string, wantSize int64) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrFileMissing, path)
		}
		return nil, fmt.Errorf("open source: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if fi.Size() != wantSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s is now %d bytes, had %d", common.ErrFileChanged, path, fi.Size(), wantSize)
	}
	return f, nil
}

// progressReader counts bytes flowing through it, reporting at most every
// progressInterval plus once at the end.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	start    time.Time
	last     time.Time
	onUpdate func(transferred int64, speed float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	now := time.Now()
	if p.read >= p.total || err == io.EOF || now.Sub(p.last) >= progressInterval {
		p.last = now
		var speed float64
		if elapsed := now.Sub(p.start).Seconds(); elapsed > 0 {
			speed = float64(p.read) / elapsed
		}
		p.onUpdate(p.read, speed)
	}
	return n, err
}
