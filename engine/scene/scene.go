// Package scene defines the interface the rendering core expects from a
// scene provider, plus List, a basic provider backed by plain record
// lists. Drawables are data records tagged with an update-cadence tier —
// there is no node hierarchy and no virtual dispatch; the render system
// consumes the records directly.
package scene

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	taskpool "github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/vertexforge/engine/engine/camera"
	"github.com/vertexforge/engine/engine/renderer/batch"
	"github.com/vertexforge/engine/engine/rendersystem"
)

// Tier classifies a drawable by how often its transform changes: never
// (Static), sporadically via UpdateTransform (SemiStatic), or every frame
// (Dynamic, resubmitted per frame through an Emitter).
type Tier uint8

const (
	TierStatic Tier = iota
	TierSemiStatic
	TierDynamic
)

// Drawable is one renderable instance as a plain data record: mesh and
// material indices into the render system's registrations, a column-major
// model transform, and the bounding sphere the culler tests.
type Drawable struct {
	Tier      Tier
	Mesh      uint32
	Material  uint32
	Transform [16]float32
	Center    [3]float32
	Radius    float32
}

// Emitter produces one dynamic-tier drawable per frame. At receives the
// scene's elapsed time and returns the frame's model transform.
type Emitter struct {
	Mesh     uint32
	Material uint32
	At       func(elapsed float32) [16]float32
}

// Provider is what the frame loop asks of a scene: a camera for the
// frustum, one-time static-tier registration, a per-tick update, and the
// frame's dynamic submissions.
type Provider interface {
	// Camera returns the camera whose view-projection drives culling.
	Camera() *camera.Camera

	// Setup registers the provider's static and semi-static drawables into
	// the render system's batch tier, finalizes and uploads it, and builds
	// the cull pipeline. Called once, before the first frame.
	Setup(rs *rendersystem.RenderSystem) error

	// Update advances scene time. Called from the tick loop, concurrently
	// with the render loop's Dynamic calls.
	Update(dt float32)

	// Dynamic returns this frame's dynamic-tier drawables. The returned
	// slice is valid until the next call.
	Dynamic() []Drawable
}

// List is a Provider over plain record lists. Per-frame emitter transforms
// are evaluated on a bounded worker pool so scenes with many dynamic
// drawables don't serialize matrix building on the render thread.
type List struct {
	cam *camera.Camera

	mu       sync.Mutex
	statics  []Drawable
	ids      []uint32 // dense batch ids, parallel to statics, set by Setup
	emitters []Emitter
	elapsed  float32
	set      bool

	pool taskpool.DynamicWorkerPool
	out  []Drawable
}

// NewList creates an empty provider around cam.
func NewList(cam *camera.Camera) *List {
	return &List{
		cam:  cam,
		pool: taskpool.NewDynamicWorkerPool(max(runtime.NumCPU()-1, 1), 256, time.Second),
	}
}

// Camera returns the provider's camera.
func (l *List) Camera() *camera.Camera { return l.cam }

// AddStatic appends a static or semi-static drawable. Must be called
// before Setup; the returned index addresses later UpdateTransform calls.
func (l *List) AddStatic(d Drawable) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statics = append(l.statics, d)
	return len(l.statics) - 1
}

// AddEmitter appends a per-frame dynamic drawable source.
func (l *List) AddEmitter(e Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emitters = append(l.emitters, e)
}

// Setup registers every static drawable with the render system's batch
// manager, finalizes the tier, uploads it, and builds the cull pipeline
// over the uploaded records.
func (l *List) Setup(rs *rendersystem.RenderSystem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.set {
		return fmt.Errorf("scene: setup already ran")
	}

	l.ids = make([]uint32, len(l.statics))
	for i, d := range l.statics {
		tier := batch.Static
		if d.Tier == TierSemiStatic {
			tier = batch.SemiStatic
		}
		id, err := rs.Static.AddInstance(tier, d.Transform, d.Mesh, d.Material, d.Center, d.Radius)
		if err != nil {
			return fmt.Errorf("scene: register static drawable %d: %w", i, err)
		}
		l.ids[i] = id
	}

	rs.Static.FinalizeStatic()
	if len(l.statics) > 0 {
		if err := rs.Static.UploadToGPU(); err != nil {
			return fmt.Errorf("scene: upload static tier: %w", err)
		}
		if err := rs.InitCullPipeline(); err != nil {
			return fmt.Errorf("scene: build cull pipeline: %w", err)
		}
	}
	l.set = true
	return nil
}

// UpdateTransform rewrites the model transform of the static-tier drawable
// registered at index. Static-tier entries are demoted to semi-static by
// the batch manager; the rewrite reaches the GPU on the next dirty flush.
func (l *List) UpdateTransform(rs *rendersystem.RenderSystem, index int, m [16]float32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set || index < 0 || index >= len(l.ids) {
		return fmt.Errorf("scene: no registered drawable at index %d", index)
	}
	return rs.Static.UpdateTransform(l.ids[index], m)
}

// Update advances the scene clock.
func (l *List) Update(dt float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.elapsed += dt
}

// Dynamic evaluates every emitter at the current scene time, fanning the
// transform builds out across the worker pool, and returns the resulting
// drawables in emitter order.
func (l *List) Dynamic() []Drawable {
	l.mu.Lock()
	emitters := l.emitters
	elapsed := l.elapsed
	l.mu.Unlock()

	if len(emitters) == 0 {
		return nil
	}
	if cap(l.out) < len(emitters) {
		l.out = make([]Drawable, len(emitters))
	}
	out := l.out[:len(emitters)]

	var wg sync.WaitGroup
	for i, e := range emitters {
		wg.Add(1)
		i, e := i, e
		l.pool.SubmitTask(taskpool.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				out[i] = Drawable{
					Tier:      TierDynamic,
					Mesh:      e.Mesh,
					Material:  e.Material,
					Transform: e.At(elapsed),
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	return out
}
