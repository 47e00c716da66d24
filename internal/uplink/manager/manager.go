// Package manager orchestrates upload tasks: admission with a concurrency
// cap, lifecycle transitions (pause, resume, cancel, retry), durable state
// mirroring, observer fan-out and worker supervision. All dependencies are
// injected; the composition root decides which store, worker and remote to
// plug in.
package manager

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyceum-cloud/uplink/internal/common"
	"github.com/lyceum-cloud/uplink/internal/filex"
	"github.com/lyceum-cloud/uplink/internal/logging"
	"github.com/lyceum-cloud/uplink/internal/uplink/conflict"
	"github.com/lyceum-cloud/uplink/internal/uplink/models"
	"github.com/lyceum-cloud/uplink/internal/uplink/store"
	"github.com/lyceum-cloud/uplink/internal/uplink/token"
	"github.com/lyceum-cloud/uplink/internal/uplink/worker"
)

// WorkerFactory builds a transfer worker. The manager calls it once at
// startup and again whenever the previous worker's event channel closes
// unexpectedly.
type WorkerFactory func() worker.Worker

// Listener receives the full task list, in creation order, after every
// observable change. The slice and its elements are private copies.
type Listener func(tasks []models.UploadTask)

// Request describes one file to upload. FileName overrides the name taken
// from LocalPath, which is how a conflict rename is applied.
type Request struct {
	LocalPath  string
	DestPrefix string
	FileName   string
}

// Options tune the engine. Zero values fall back to the package defaults.
type Options struct {
	// MaxConcurrent caps simultaneously transferring tasks. The cap is
	// applied at dispatch time; tasks beyond it wait in FIFO order.
	MaxConcurrent int

	// LargeFileThreshold is the size at and above which a file is
	// transferred in chunks.
	LargeFileThreshold int64

	// ChunkSize is the slice size for chunked transfers.
	ChunkSize int64

	// RetryDelay is how long a failed task waits before its single
	// automatic retry.
	RetryDelay time.Duration

	// SaveInterval is the period of the background sweep that persists
	// progress of active tasks.
	SaveInterval time.Duration

	// Resolver checks a batch's names against the remote listing before
	// admission. Nil skips the built-in check; the caller may still run
	// its own.
	Resolver *conflict.Resolver

	// OnConflict answers a conflict check that found collisions (or ran
	// degraded). Its decision applies to the whole batch. Nil behaves
	// like ResolutionReplace.
	OnConflict func(res conflict.CheckResult) Resolution
}

// Resolution is the caller's decision for a batch with name collisions.
type Resolution string

const (
	// ResolutionReplace uploads under the original names, overwriting
	// the remote objects.
	ResolutionReplace Resolution = "replace"
	// ResolutionKeep renames each colliding file to a free "name (n).ext"
	// variant; non-colliding files upload unchanged.
	ResolutionKeep Resolution = "keep"
	// ResolutionCancel aborts the whole batch; no tasks are created.
	ResolutionCancel Resolution = "cancel"
)

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = common.DefaultMaxConcurrentUploads
	}
	if o.LargeFileThreshold <= 0 {
		o.LargeFileThreshold = common.DefaultLargeFileThreshold
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = common.DefaultChunkSize
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = common.DefaultRetryDelay
	}
	if o.SaveInterval <= 0 {
		o.SaveInterval = common.DefaultSaveInterval
	}
	return o
}

// Manager owns the authoritative task table. The durable store mirrors it,
// the worker executes it, listeners observe it.
type Manager struct {
	store     store.Store
	newWorker WorkerFactory
	tokens    *token.Source
	opts      Options
	log       logging.Logger

	bg       context.Context
	cancelBg context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	w         worker.Worker
	tasks     map[string]*models.UploadTask
	order     []string
	queue     []string
	running   map[string]struct{}
	retried   map[string]bool
	listeners map[int]Listener
	nextSub   int
}

// New wires a manager and starts its worker, event pump and persistence
// sweep. Call Restore afterwards to rehydrate tasks from a previous run.
func New(st store.Store, factory WorkerFactory, tokens *token.Source, opts Options, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	bg, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:     st,
		newWorker: factory,
		tokens:    tokens,
		opts:      opts.withDefaults(),
		log:       log.With("component", "manager"),
		bg:        bg,
		cancelBg:  cancel,
		tasks:     make(map[string]*models.UploadTask),
		running:   make(map[string]struct{}),
		retried:   make(map[string]bool),
		listeners: make(map[int]Listener),
	}

	m.w = factory()
	m.wg.Add(2)
	go m.pump(m.w)
	go m.sweep()
	return m
}

// Close stops the engine. In-flight transfers are interrupted but stay
// resumable: their tasks are persisted as paused.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	w := m.w
	m.mu.Unlock()

	m.cancelBg()
	if err := w.Close(); err != nil {
		m.log.Warn(context.Background(), "worker close failed", "error", err)
	}
	m.wg.Wait()

	// Final snapshot so nothing observed since the last sweep is lost.
	ctx := context.Background()
	m.mu.Lock()
	for _, t := range m.tasks {
		if !t.Active() {
			continue
		}
		if t.Status == models.StatusUploading {
			t.Status = models.StatusPaused
		}
		if err := m.store.SaveTask(ctx, t); err != nil {
			m.log.Error(ctx, "final task save failed", "task_id", t.ID, "error", err)
		}
	}
	m.mu.Unlock()
	return nil
}

// Restore loads unfinished tasks from the store. Tasks that were pending or
// transferring when the previous process died come back paused; the caller
// decides when to resume them.
func (m *Manager) Restore(ctx context.Context) error {
	loaded, err := m.store.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("load active tasks: %w", err)
	}

	m.mu.Lock()
	for _, t := range loaded {
		if _, ok := m.tasks[t.ID]; ok {
			continue
		}
		if t.Status == models.StatusPending || t.Status == models.StatusUploading {
			t.Status = models.StatusPaused
			m.saveLocked(t)
		}
		m.tasks[t.ID] = t
		m.order = append(m.order, t.ID)
	}
	n := len(loaded)
	m.mu.Unlock()

	if n > 0 {
		m.log.Info(ctx, "restored unfinished tasks", "count", n)
		m.notify()
	}
	return nil
}

// UploadFile queues one file and returns its task id. Files at or above the
// large-file threshold go through the chunked path. An empty id with a nil
// error means the conflict callback canceled the upload.
func (m *Manager) UploadFile(ctx context.Context, req Request) (string, error) {
	ids, err := m.UploadFiles(ctx, []Request{req})
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

// UploadFiles queues a batch. When a Resolver is configured, each destination
// prefix is checked for name collisions first and the OnConflict callback
// decides replace/keep/cancel for the batch; a cancel returns no ids and no
// error. The batch is then admitted atomically: if any file fails validation,
// nothing is queued.
func (m *Manager) UploadFiles(ctx context.Context, reqs []Request) ([]string, error) {
	if m.opts.Resolver != nil {
		resolved, proceed := m.resolveConflicts(ctx, reqs)
		if !proceed {
			return nil, nil
		}
		reqs = resolved
	}

	tasks := make([]*models.UploadTask, 0, len(reqs))
	for _, req := range reqs {
		t, err := m.buildTask(req)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, common.ErrManagerClosed
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		// A failed save degrades crash recovery, never admission.
		if err := m.store.SaveTask(ctx, t); err != nil {
			m.log.Warn(ctx, "task save failed, continuing in memory", "task_id", t.ID, "error", err)
		}
		m.tasks[t.ID] = t
		m.order = append(m.order, t.ID)
		m.queue = append(m.queue, t.ID)
		ids = append(ids, t.ID)
	}
	m.dispatchLocked()
	m.mu.Unlock()

	m.notify()
	return ids, nil
}

// UploadDir walks root and queues every regular file underneath it,
// recreating the directory structure below destPrefix.
func (m *Manager) UploadDir(ctx context.Context, root, destPrefix string) ([]string, error) {
	files, err := filex.Walk(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	reqs := make([]Request, 0, len(files))
	for _, f := range files {
		dir, name := path.Split(f.RelPath)
		reqs = append(reqs, Request{
			LocalPath:  f.Path,
			DestPrefix: destPrefix + dir,
			FileName:   name,
		})
	}
	return m.UploadFiles(ctx, reqs)
}

// resolveConflicts runs the configured conflict check once per destination
// prefix, so sibling directories never cross-contaminate each other's
// collisions. It returns the (possibly renamed) requests, or proceed=false
// when the callback canceled the batch.
func (m *Manager) resolveConflicts(ctx context.Context, reqs []Request) (out []Request, proceed bool) {
	out = make([]Request, len(reqs))
	copy(out, reqs)

	var prefixes []string
	seen := make(map[string]bool)
	for _, r := range out {
		if !seen[r.DestPrefix] {
			seen[r.DestPrefix] = true
			prefixes = append(prefixes, r.DestPrefix)
		}
	}

	for _, prefix := range prefixes {
		var names []string
		for _, r := range out {
			if r.DestPrefix == prefix {
				names = append(names, requestName(r))
			}
		}

		res := m.opts.Resolver.Check(ctx, names, prefix)
		if res.Degraded {
			m.log.Warn(ctx, "conflict check degraded, uploading anyway", "prefix", prefix)
		}
		if !res.Degraded && len(res.Conflicts) == 0 {
			continue
		}

		choice := ResolutionReplace
		if m.opts.OnConflict != nil {
			choice = m.opts.OnConflict(res)
		}
		switch choice {
		case ResolutionCancel:
			return nil, false
		case ResolutionKeep:
			colliding := make(map[string]bool, len(res.Conflicts))
			for _, c := range res.Conflicts {
				colliding[c.Name] = true
			}
			for i := range out {
				if out[i].DestPrefix != prefix || !colliding[requestName(out[i])] {
					continue
				}
				name, err := m.opts.Resolver.UniqueName(ctx, requestName(out[i]), prefix)
				if err != nil {
					m.log.Warn(ctx, "rename failed, keeping original name",
						"name", requestName(out[i]), "error", err)
					continue
				}
				out[i].FileName = name
			}
		}
	}
	return out, true
}

func requestName(r Request) string {
	if r.FileName != "" {
		return r.FileName
	}
	return filepath.Base(r.LocalPath)
}

func (m *Manager) buildTask(req Request) (*models.UploadTask, error) {
	info, err := filex.Stat(req.LocalPath)
	if err != nil {
		return nil, err
	}
	name := req.FileName
	if name == "" {
		name = info.Name
	}

	t := &models.UploadTask{
		ID:         uuid.NewString(),
		FileName:   name,
		FileSize:   info.Size,
		LocalPath:  info.Path,
		DestPrefix: req.DestPrefix,
		Status:     models.StatusPending,
		CreatedAt:  nowMillis(),
	}
	if info.Size >= m.opts.LargeFileThreshold {
		t.Chunked = true
		t.ChunkSize = m.opts.ChunkSize
		t.ChunkCount = models.ChunkCountFor(info.Size, m.opts.ChunkSize)
	}
	return t, nil
}

// Pause takes a pending or transferring task out of play. Uploaded chunks of
// a chunked task keep counting; a plain transfer restarts from the beginning
// on resume.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	t, err := m.taskLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	switch t.Status {
	case models.StatusPending:
		m.unqueueLocked(id)
	case models.StatusUploading:
		m.sendLocked(worker.PauseUpload{TaskID: id})
		delete(m.running, id)
	default:
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot pause %s task", common.ErrInvalidTransition, t.Status)
	}
	t.Status = models.StatusPaused
	t.UploadSpeed = 0
	m.saveLocked(t)
	m.dispatchLocked()
	m.mu.Unlock()

	m.notify()
	return nil
}

// Resume puts a paused task back in the queue.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	t, err := m.taskLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if t.Status != models.StatusPaused {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot resume %s task", common.ErrInvalidTransition, t.Status)
	}
	m.enqueueLocked(t)
	m.mu.Unlock()

	m.notify()
	return nil
}

// ResumeAll resumes every paused task, typically right after Restore.
func (m *Manager) ResumeAll() {
	m.mu.Lock()
	var changed bool
	for _, id := range m.order {
		if t := m.tasks[id]; t != nil && t.Status == models.StatusPaused {
			m.enqueueLocked(t)
			changed = true
		}
	}
	m.mu.Unlock()

	if changed {
		m.notify()
	}
}

// Cancel discards a task in any active state, aborting its transfer and
// deleting its durable record and chunks.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	t, err := m.taskLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if !t.Active() {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel %s task", common.ErrInvalidTransition, t.Status)
	}
	if t.Status == models.StatusUploading {
		m.sendLocked(worker.CancelUpload{TaskID: id})
		delete(m.running, id)
	}
	m.unqueueLocked(id)
	m.removeLocked(id)
	if err := m.store.RemoveTask(m.bg, id); err != nil {
		m.log.Error(m.bg, "task removal failed", "task_id", id, "error", err)
	}
	m.dispatchLocked()
	m.mu.Unlock()

	m.notify()
	return nil
}

// Retry requeues a failed task, re-arming its single automatic retry.
func (m *Manager) Retry(id string) error {
	m.mu.Lock()
	t, err := m.taskLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if t.Status != models.StatusFailed {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot retry %s task", common.ErrInvalidTransition, t.Status)
	}
	delete(m.retried, id)
	t.Error = ""
	t.EndTime = 0
	t.Progress = 0
	m.enqueueLocked(t)
	m.mu.Unlock()

	m.notify()
	return nil
}

// ClearCompleted drops successfully finished tasks from the table and the
// store.
func (m *Manager) ClearCompleted() {
	m.clearWhere(func(t *models.UploadTask) bool {
		return t.Status == models.StatusCompleted
	})
}

// ClearAll cancels every active task and then drops the whole table,
// terminal tasks included.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	for _, id := range m.order {
		t := m.tasks[id]
		if t != nil && t.Status == models.StatusUploading {
			m.sendLocked(worker.CancelUpload{TaskID: id})
		}
	}
	m.running = make(map[string]struct{})
	m.queue = nil
	removed := append([]string(nil), m.order...)
	for _, id := range removed {
		m.removeLocked(id)
		if err := m.store.RemoveTask(m.bg, id); err != nil {
			m.log.Error(m.bg, "task removal failed", "task_id", id, "error", err)
		}
	}
	m.mu.Unlock()

	if len(removed) > 0 {
		m.notify()
	}
}

func (m *Manager) clearWhere(match func(*models.UploadTask) bool) {
	m.mu.Lock()
	var removed []string
	for _, id := range m.order {
		if t := m.tasks[id]; t != nil && match(t) {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		m.removeLocked(id)
		if err := m.store.RemoveTask(m.bg, id); err != nil {
			m.log.Error(m.bg, "task removal failed", "task_id", id, "error", err)
		}
	}
	m.mu.Unlock()

	if len(removed) > 0 {
		m.notify()
	}
}

// SetAccessToken installs a fresh token for all subsequent requests, both in
// this process and in the worker.
func (m *Manager) SetAccessToken(tok string) {
	m.tokens.Set(tok)
	m.mu.Lock()
	if !m.closed {
		m.sendLocked(worker.SetToken{Token: tok})
	}
	m.mu.Unlock()
}

// GetTask returns a copy of one task.
func (m *Manager) GetTask(id string) (models.UploadTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.taskLocked(id)
	if err != nil {
		return models.UploadTask{}, err
	}
	return t.Clone(), nil
}

// GetTasks returns copies of all tasks in creation order.
func (m *Manager) GetTasks() []models.UploadTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers a listener and immediately sends it the current state.
// The returned function unsubscribes.
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	fn(snapshot)
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) taskLocked(id string) (*models.UploadTask, error) {
	if m.closed {
		return nil, common.ErrManagerClosed
	}
	t, ok := m.tasks[id]
	if !ok {
		return nil, common.ErrTaskNotFound
	}
	return t, nil
}

func (m *Manager) enqueueLocked(t *models.UploadTask) {
	t.Status = models.StatusPending
	m.queue = append(m.queue, t.ID)
	m.saveLocked(t)
	m.dispatchLocked()
}

func (m *Manager) unqueueLocked(id string) {
	for i, qid := range m.queue {
		if qid == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Manager) removeLocked(id string) {
	delete(m.tasks, id)
	delete(m.retried, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// dispatchLocked starts queued tasks until the concurrency cap is reached.
// The cap applies only here: pausing or failing a running task frees a slot
// for the next queued one.
func (m *Manager) dispatchLocked() {
	for len(m.running) < m.opts.MaxConcurrent && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		t := m.tasks[id]
		if t == nil || t.Status != models.StatusPending {
			continue
		}

		// Auth failures never reach the worker.
		if err := m.tokens.Validate(time.Now()); err != nil {
			t.Status = models.StatusFailed
			t.Error = err.Error()
			t.EndTime = nowMillis()
			m.saveLocked(t)
			continue
		}

		t.Status = models.StatusUploading
		t.StartTime = nowMillis()
		t.Error = ""
		if err := m.w.Send(commandFor(t)); err != nil {
			// Worker is down; requeue and let the restart pick it up.
			t.Status = models.StatusPending
			m.queue = append([]string{id}, m.queue...)
			m.log.Warn(m.bg, "dispatch failed, task requeued", "task_id", id, "error", err)
			return
		}
		m.running[id] = struct{}{}
		m.saveLocked(t)
	}
}

func commandFor(t *models.UploadTask) worker.Command {
	snap := t.Clone()
	switch {
	case t.Chunked && t.ChunksDone > 0:
		return worker.ResumeUpload{Task: snap}
	case t.Chunked:
		return worker.AddLargeUpload{Task: snap}
	default:
		return worker.AddUpload{Task: snap}
	}
}

func (m *Manager) sendLocked(cmd worker.Command) {
	if err := m.w.Send(cmd); err != nil {
		m.log.Warn(m.bg, "worker command dropped", "error", err)
	}
}

func (m *Manager) saveLocked(t *models.UploadTask) {
	if err := m.store.SaveTask(m.bg, t); err != nil {
		m.log.Error(m.bg, "task save failed", "task_id", t.ID, "error", err)
	}
}

func (m *Manager) snapshotLocked() []models.UploadTask {
	out := make([]models.UploadTask, 0, len(m.order))
	for _, id := range m.order {
		if t := m.tasks[id]; t != nil {
			out = append(out, t.Clone())
		}
	}
	return out
}

// notify fans the current state out to all listeners, outside the lock so a
// listener may call back into the manager.
func (m *Manager) notify() {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

// pump consumes worker events until the channel closes, then either exits
// (manager closing) or replaces the dead worker. Commands sent while the
// worker was down are gone; their tasks are already requeued or paused.
func (m *Manager) pump(w worker.Worker) {
	defer m.wg.Done()
	for ev := range w.Events() {
		m.handleEvent(ev)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.log.Warn(m.bg, "worker stopped unexpectedly, starting a replacement")
	for id := range m.running {
		if t := m.tasks[id]; t != nil && t.Status == models.StatusUploading {
			t.Status = models.StatusPaused
			t.UploadSpeed = 0
			m.saveLocked(t)
		}
	}
	m.running = make(map[string]struct{})

	nw := m.newWorker()
	m.w = nw
	m.wg.Add(1)
	go m.pump(nw)
	if tok := m.tokens.Token(); tok != "" {
		m.sendLocked(worker.SetToken{Token: tok})
	}
	m.dispatchLocked()
	m.mu.Unlock()

	m.notify()
}

func (m *Manager) handleEvent(ev worker.Event) {
	switch e := ev.(type) {
	case worker.Progress:
		m.onProgress(e)
	case worker.ChunkDone:
		m.onChunkDone(e)
	case worker.Completed:
		m.onCompleted(e)
	case worker.Failed:
		m.onFailed(e)
	}
}

func (m *Manager) onProgress(e worker.Progress) {
	m.mu.Lock()
	t := m.tasks[e.TaskID]
	if t == nil || t.Status != models.StatusUploading {
		m.mu.Unlock()
		return
	}
	if e.Total > 0 {
		p := int(e.Transferred * 100 / e.Total)
		// 100 is reserved for completion.
		if p > 99 {
			p = 99
		}
		t.Progress = p
	}
	t.UploadSpeed = e.Speed
	m.mu.Unlock()

	m.notify()
}

func (m *Manager) onChunkDone(e worker.ChunkDone) {
	m.mu.Lock()
	t := m.tasks[e.TaskID]
	if t == nil {
		m.mu.Unlock()
		return
	}
	if done := e.Index + 1; done > t.ChunksDone {
		t.ChunksDone = done
		m.saveLocked(t)
	}
	m.mu.Unlock()
}

func (m *Manager) onCompleted(e worker.Completed) {
	m.mu.Lock()
	t := m.tasks[e.TaskID]
	if t == nil {
		m.mu.Unlock()
		return
	}
	delete(m.running, e.TaskID)
	t.Status = models.StatusCompleted
	t.Progress = 100
	t.UploadSpeed = 0
	t.EndTime = nowMillis()
	m.saveLocked(t)
	if t.Chunked {
		if err := m.store.DeleteChunks(m.bg, t.ID); err != nil {
			m.log.Warn(m.bg, "chunk cleanup failed", "task_id", t.ID, "error", err)
		}
	}
	m.dispatchLocked()
	m.mu.Unlock()

	m.notify()
}

// onFailed marks the task failed and arms its one automatic retry; the
// second failure is final until the user retries by hand. The task stays
// failed (with its error) for the whole retry delay.
func (m *Manager) onFailed(e worker.Failed) {
	m.mu.Lock()
	t := m.tasks[e.TaskID]
	if t == nil {
		m.mu.Unlock()
		return
	}
	delete(m.running, e.TaskID)
	t.Status = models.StatusFailed
	t.Error = e.Err
	t.UploadSpeed = 0
	t.EndTime = nowMillis()
	if !m.retried[e.TaskID] {
		m.retried[e.TaskID] = true
		m.wg.Add(1)
		go m.scheduleRetry(e.TaskID)
	}
	m.saveLocked(t)
	m.dispatchLocked()
	m.mu.Unlock()

	m.notify()
}

// scheduleRetry flips a failed task back to pending after the retry delay,
// unless it changed state in the meantime (canceled, cleared, retried by
// hand).
func (m *Manager) scheduleRetry(id string) {
	defer m.wg.Done()

	timer := time.NewTimer(m.opts.RetryDelay)
	defer timer.Stop()
	select {
	case <-m.bg.Done():
		return
	case <-timer.C:
	}

	m.mu.Lock()
	t := m.tasks[id]
	if m.closed || t == nil || t.Status != models.StatusFailed || m.queuedLocked(id) {
		m.mu.Unlock()
		return
	}
	m.log.Info(m.bg, "retrying failed task", "task_id", id)
	t.Error = ""
	t.EndTime = 0
	t.Progress = 0
	m.enqueueLocked(t)
	m.mu.Unlock()

	m.notify()
}

func (m *Manager) queuedLocked(id string) bool {
	for _, qid := range m.queue {
		if qid == id {
			return true
		}
	}
	return false
}

// sweep periodically persists active tasks so progress survives a crash
// between event-driven saves.
func (m *Manager) sweep() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.SaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.bg.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			for _, id := range m.order {
				if t := m.tasks[id]; t != nil && t.Active() {
					m.saveLocked(t)
				}
			}
			m.mu.Unlock()
		}
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
