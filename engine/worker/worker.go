// Package worker implements the background resource worker: a single
// goroutine that drains a FIFO of trim/destroy commands off the render
// thread, so cleanup of already-fenced-out GPU resources never stalls a
// frame.
package worker

import (
	"sync"
	"time"
)

// Kind tags a Command so callers and logs can identify what ran without
// inspecting the closure.
type Kind int

const (
	TrimMaterials Kind = iota
	TrimMeshes
	TrimTextures
	TrimPipelines
	ProcessDestroys
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case TrimMaterials:
		return "TrimMaterials"
	case TrimMeshes:
		return "TrimMeshes"
	case TrimTextures:
		return "TrimTextures"
	case TrimPipelines:
		return "TrimPipelines"
	case ProcessDestroys:
		return "ProcessDestroys"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Command is a single queued unit of work. Action is the callable the worker
// invokes; it must be safe to run concurrently with the render thread —
// it may only touch objects already dissociated from the
// render graph and fenced out (already-freed descriptor sets, staged
// destroy-buffers, evicted cache entries). Action may be nil for Shutdown.
type Command struct {
	Kind   Kind
	Action func()
}

// Worker owns a background thread and a mutex-protected FIFO of Commands.
// Enqueue is safe from any goroutine; the queue is only ever drained by the
// worker's own Run loop, so commands execute strictly in order.
type Worker struct {
	mu      sync.Mutex
	queue   []Command
	wg      sync.WaitGroup
	started bool
}

// New creates an idle Worker. Call Run to start the background goroutine.
func New() *Worker {
	return &Worker{}
}

// Enqueue appends cmd to the FIFO. Safe to call from any thread, including
// concurrently with the worker draining the queue.
func (w *Worker) Enqueue(cmd Command) {
	w.mu.Lock()
	w.queue = append(w.queue, cmd)
	w.mu.Unlock()
}

// pop removes and returns the oldest queued command, or ok=false if empty.
func (w *Worker) pop() (Command, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return Command{}, false
	}
	cmd := w.queue[0]
	w.queue = w.queue[1:]
	return cmd, true
}

// Run starts the worker loop in its own goroutine and returns immediately.
// The loop pops a command when one is queued; when the queue is empty it
// sleeps 10ms before polling again. On Shutdown it drains any
// remaining non-Shutdown commands before exiting, then returns.
func (w *Worker) Run() {
	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			cmd, ok := w.pop()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			if cmd.Kind == Shutdown {
				w.drain()
				return
			}
			if cmd.Action != nil {
				cmd.Action()
			}
		}
	}()
}

// drain executes every remaining queued command (skipping any further
// Shutdown markers) without re-sleeping between them, then returns.
func (w *Worker) drain() {
	for {
		cmd, ok := w.pop()
		if !ok {
			return
		}
		if cmd.Kind == Shutdown {
			continue
		}
		if cmd.Action != nil {
			cmd.Action()
		}
	}
}

// Shutdown enqueues a Shutdown command and blocks until the worker goroutine
// has drained the remaining queue and exited.
func (w *Worker) Shutdown() {
	w.Enqueue(Command{Kind: Shutdown})
	w.wg.Wait()
}

// Pending reports the number of commands currently queued (diagnostic only).
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
