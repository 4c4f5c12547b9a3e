// Package rendersystem coordinates the static batch manager, the GPU
// culler, and a dynamic-tier ring buffer into the single per-frame
// sequence the frame loop drives: begin, camera update, dynamic
// submission, culling dispatch, static/dynamic draw issuance, end.
package rendersystem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/vertexforge/engine/common"
	"github.com/vertexforge/engine/engine/renderer/batch"
	"github.com/vertexforge/engine/engine/renderer/buffer"
	"github.com/vertexforge/engine/engine/renderer/cull"
	"github.com/vertexforge/engine/engine/renderer/ring"
)

// ErrCapacityExceeded is returned by AddDynamic once the current frame's
// dynamic slot budget is exhausted.
var ErrCapacityExceeded = errors.New("rendersystem: capacity exceeded")

// Config bounds a RenderSystem's fixed capacities, all validated against
// device limits by the caller (config.Config.ReclampToDeviceLimits) before
// construction.
type Config struct {
	StaticCapacity     uint32
	FramesInFlight     int
	MaxDynamicPerFrame int
	BatchCount         int
	MaxObjectsPerBatch uint32
}

// MeshDraw is the non-indexed draw geometry for one mesh index: the
// vertex buffer bound at slot 0 when the mesh draws, and the values the
// CPU writes into each batch's indirect command before the cull dispatch
// fills in the instance count. Vertex may be nil in tests that never
// record a pass.
type MeshDraw struct {
	VertexCount uint32
	FirstVertex uint32
	Vertex      *wgpu.Buffer
}

// materialPipeline pairs the graphics pipeline a material draws with and
// its bind groups, bound in group order (camera uniform first, then the
// instance/visible-index SSBO group).
type materialPipeline struct {
	pipeline   *wgpu.RenderPipeline
	bindGroups []*wgpu.BindGroup
}

type dynamicEntry struct {
	mesh     uint32
	material uint32
}

// RenderSystem is the frame-level coordinator: it owns the static batch table, the
// per-frame dynamic ring, and the GPU-side resources the cull compute pass
// reads and writes.
type RenderSystem struct {
	device *wgpu.Device
	queue  *wgpu.Queue

	Static      *batch.Manager
	dynamicRing *ring.Ring

	meshDraws        map[uint32]MeshDraw
	batchPipelines   map[uint32]materialPipeline
	dynamicPipelines map[uint32]materialPipeline

	batchCount         int
	maxObjectsPerBatch uint32

	cameraBuf          *buffer.Buffer
	frustumUniformBuf  *buffer.Buffer
	globalCounterBuf   *buffer.Buffer
	perBatchCounterBuf *buffer.Buffer
	visibleIndicesBuf  *buffer.Buffer
	indirectBuf        *buffer.Buffer

	cullPipeline  *wgpu.ComputePipeline
	cullBindGroup *wgpu.BindGroup

	currentFrame   int
	dynamicCount   int
	dynamicEntries []dynamicEntry
	frustum        [6]cull.FrustumPlane
}

// New allocates a RenderSystem's fixed-size GPU resources: the static
// batch manager, the dynamic ring, and the cull pass's uniform/counter/
// visible-index/indirect buffers. The cull compute pipeline itself is
// built separately — InitCullPipeline once the static tier is uploaded, or
// RegisterCullPipeline for callers with their own shader cache.
func New(device *wgpu.Device, queue *wgpu.Queue, cfg Config) (*RenderSystem, error) {
	static := batch.New(device, queue, cfg.StaticCapacity)

	dynRing, err := ring.New(device, queue, "dynamic-instance-ring", cfg.FramesInFlight, cfg.MaxDynamicPerFrame, batch.InstanceDataSize, wgpu.BufferUsageStorage)
	if err != nil {
		return nil, fmt.Errorf("rendersystem: create dynamic ring: %w", err)
	}

	// Tear down everything already allocated if a later buffer fails, so a
	// construction error never leaks GPU objects.
	created := []*buffer.Buffer{}
	fail := func(what string, err error) (*RenderSystem, error) {
		for _, b := range created {
			b.Release()
		}
		dynRing.Release()
		return nil, fmt.Errorf("rendersystem: create %s: %w", what, err)
	}

	frustumBuf, err := buffer.New(device, queue, "cull-frustum-uniform", cull.FrustumUniformSize, wgpu.BufferUsageUniform, true)
	if err != nil {
		return fail("frustum uniform", err)
	}
	created = append(created, frustumBuf)

	globalCounterBuf, err := buffer.New(device, queue, "cull-global-counter", 4, wgpu.BufferUsageStorage, true)
	if err != nil {
		return fail("global counter", err)
	}
	created = append(created, globalCounterBuf)

	perBatchBuf, err := buffer.New(device, queue, "cull-per-batch-counters", uint64(cfg.BatchCount)*4, wgpu.BufferUsageStorage, true)
	if err != nil {
		return fail("per-batch counters", err)
	}
	created = append(created, perBatchBuf)

	visibleBuf, err := buffer.New(device, queue, "cull-visible-indices", uint64(cfg.BatchCount)*uint64(cfg.MaxObjectsPerBatch)*4, wgpu.BufferUsageStorage, true)
	if err != nil {
		return fail("visible indices", err)
	}
	created = append(created, visibleBuf)

	indirectBuf, err := buffer.New(device, queue, "cull-indirect-commands", uint64(cfg.BatchCount)*cull.IndirectCommandSize, wgpu.BufferUsageIndirect|wgpu.BufferUsageStorage, true)
	if err != nil {
		return fail("indirect commands", err)
	}
	created = append(created, indirectBuf)

	// The camera uniform UpdateCamera publishes alongside the frustum; the
	// graphics pipelines' camera bind group is built over this buffer.
	cameraBuf, err := buffer.New(device, queue, "camera-uniform", 64, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, false)
	if err != nil {
		return fail("camera uniform", err)
	}

	return &RenderSystem{
		device:             device,
		queue:              queue,
		Static:             static,
		dynamicRing:        dynRing,
		meshDraws:          make(map[uint32]MeshDraw),
		batchPipelines:     make(map[uint32]materialPipeline),
		dynamicPipelines:   make(map[uint32]materialPipeline),
		batchCount:         cfg.BatchCount,
		maxObjectsPerBatch: cfg.MaxObjectsPerBatch,
		cameraBuf:          cameraBuf,
		frustumUniformBuf:  frustumBuf,
		globalCounterBuf:   globalCounterBuf,
		perBatchCounterBuf: perBatchBuf,
		visibleIndicesBuf:  visibleBuf,
		indirectBuf:        indirectBuf,
	}, nil
}

// RegisterCullPipeline wires the compiled cull compute pipeline and its
// bind group in once, after shader module / bind group layout setup.
func (r *RenderSystem) RegisterCullPipeline(pipeline *wgpu.ComputePipeline, bindGroup *wgpu.BindGroup) {
	r.cullPipeline = pipeline
	r.cullBindGroup = bindGroup
}

// InitCullPipeline compiles the embedded culling shader and builds its
// pipeline and bind group against this system's cull buffers. The static
// tier must be uploaded first — the records binding is its cull-data
// buffer. Callers that build the pipeline through other means (e.g. a
// shader cache) can use RegisterCullPipeline directly instead.
func (r *RenderSystem) InitCullPipeline() error {
	records := r.Static.CullBuffer()
	if records == nil {
		return errors.New("rendersystem: static tier not uploaded, cull records buffer missing")
	}

	module, err := r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "cull_compute",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: cull.ShaderSource,
		},
	})
	if err != nil {
		return fmt.Errorf("rendersystem: create cull shader module: %w", err)
	}

	bgl, err := r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "cull_compute_layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
			{Binding: 4, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
			{Binding: 5, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("rendersystem: create cull bind group layout: %w", err)
	}

	layout, err := r.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "cull_compute",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return fmt.Errorf("rendersystem: create cull pipeline layout: %w", err)
	}

	pipeline, err := r.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "cull_compute Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("rendersystem: create cull compute pipeline: %w", err)
	}

	bindGroup, err := r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "cull_compute",
		Layout: bgl,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: r.frustumUniformBuf.Raw(), Size: wgpu.WholeSize},
			{Binding: 1, Buffer: records.Raw(), Size: wgpu.WholeSize},
			{Binding: 2, Buffer: r.visibleIndicesBuf.Raw(), Size: wgpu.WholeSize},
			{Binding: 3, Buffer: r.globalCounterBuf.Raw(), Size: wgpu.WholeSize},
			{Binding: 4, Buffer: r.indirectBuf.Raw(), Size: wgpu.WholeSize},
			{Binding: 5, Buffer: r.perBatchCounterBuf.Raw(), Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("rendersystem: create cull bind group: %w", err)
	}

	r.RegisterCullPipeline(pipeline, bindGroup)
	return nil
}

// RegisterMeshDraw records the draw geometry for a mesh index. The values
// are written into each batch's indirect command ahead of the cull
// dispatch and drive the dynamic tier's direct draws.
func (r *RenderSystem) RegisterMeshDraw(mesh uint32, d MeshDraw) {
	r.meshDraws[mesh] = d
}

// RegisterBatchPipeline binds a graphics pipeline and its bind groups (in
// group order) to a material index for the static tier's indirect draws.
// Batches whose material has no registered pipeline are skipped at draw
// time.
func (r *RenderSystem) RegisterBatchPipeline(material uint32, pipeline *wgpu.RenderPipeline, bindGroups ...*wgpu.BindGroup) {
	r.batchPipelines[material] = materialPipeline{pipeline: pipeline, bindGroups: bindGroups}
}

// RegisterDynamicPipeline binds a graphics pipeline and its bind groups to
// a material index for the dynamic tier's direct draws. The dynamic
// pipeline's instance group reads the whole ring buffer; each draw's
// first-instance selects the frame's slot.
func (r *RenderSystem) RegisterDynamicPipeline(material uint32, pipeline *wgpu.RenderPipeline, bindGroups ...*wgpu.BindGroup) {
	r.dynamicPipelines[material] = materialPipeline{pipeline: pipeline, bindGroups: bindGroups}
}

// CameraBuffer returns the 64-byte view-projection uniform UpdateCamera
// writes, for building the pipelines' camera bind group.
func (r *RenderSystem) CameraBuffer() *buffer.Buffer { return r.cameraBuf }

// VisibleIndicesBuffer returns the per-batch visible-index SSBO the cull
// pass writes, for building the static tier's instance bind group.
func (r *RenderSystem) VisibleIndicesBuffer() *buffer.Buffer { return r.visibleIndicesBuf }

// DynamicRing returns the frame-partitioned dynamic instance ring, for
// building the dynamic tier's instance bind group.
func (r *RenderSystem) DynamicRing() *ring.Ring { return r.dynamicRing }

// BeginFrame sets the current frame slot, clears the dynamic submission
// list, and flushes any static-tier dirty instances.
func (r *RenderSystem) BeginFrame(frame int) error {
	r.currentFrame = frame
	r.dynamicCount = 0
	r.dynamicEntries = r.dynamicEntries[:0]
	if r.Static.Len() > 0 {
		if _, err := r.Static.FlushDirty(); err != nil {
			return fmt.Errorf("rendersystem: begin frame flush: %w", err)
		}
	}
	return nil
}

// UpdateCamera extracts the six frustum planes from viewProj (Gribb/
// Hartmann method, common.ExtractFrustumFromMatrix), publishes them for
// the next DispatchCulling call, and writes the matrix into the camera
// uniform buffer the graphics pipelines bind.
func (r *RenderSystem) UpdateCamera(viewProj [16]float32) {
	frustum := common.ExtractFrustumFromMatrix(viewProj[:])
	for i, p := range frustum.Planes {
		r.frustum[i] = cull.FrustumPlane{Normal: p.Normal, Distance: p.Distance}
	}
	if r.cameraBuf != nil {
		data := make([]byte, 64)
		for i, v := range viewProj {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
		}
		if err := r.cameraBuf.Write(0, data); err != nil {
			log.Printf("rendersystem: write camera uniform: %v", err)
		}
	}
}

// AddDynamic appends a dynamic-tier instance to the current frame's ring
// slot, returning its index or ErrCapacityExceeded once the frame's
// dynamic budget is exhausted.
func (r *RenderSystem) AddDynamic(model [16]float32, mesh, material uint32) (int, error) {
	if r.dynamicCount >= r.dynamicRing.ElementsPerFrame() {
		return 0, ErrCapacityExceeded
	}
	idx := r.dynamicCount
	data := batch.InstanceData{Model: model}
	if err := r.dynamicRing.Write(r.currentFrame, idx, data.Marshal()); err != nil {
		return 0, fmt.Errorf("rendersystem: write dynamic instance %d: %w", idx, err)
	}
	r.dynamicEntries = append(r.dynamicEntries, dynamicEntry{mesh: mesh, material: material})
	r.dynamicCount++
	return idx, nil
}

// DispatchCulling zeroes the cull pass's counters and indirect instance
// counts, writes the current frustum into the uniform buffer, and records
// the compute dispatch into encoder, provided the static tier has at least
// one instance, has been finalized, and a cull pipeline has been
// registered. An unfinalized tier is skipped: its table may still grow,
// which would race the cull records already uploaded.
func (r *RenderSystem) DispatchCulling(encoder *wgpu.CommandEncoder) error {
	if r.Static.Len() == 0 || !r.Static.Finalized() || r.cullPipeline == nil {
		return nil
	}

	order := r.Static.BatchOrder()
	if len(order) > r.batchCount {
		return fmt.Errorf("rendersystem: %d batches registered, culler sized for %d", len(order), r.batchCount)
	}

	if err := r.globalCounterBuf.Write(0, make([]byte, 4)); err != nil {
		return fmt.Errorf("rendersystem: reset global counter: %w", err)
	}
	if err := r.perBatchCounterBuf.Write(0, make([]byte, r.perBatchCounterBuf.Size())); err != nil {
		return fmt.Errorf("rendersystem: reset per-batch counters: %w", err)
	}

	// Seed each batch's indirect command with its CPU-known draw geometry
	// and a zero instance count; the compute pass fills the count in.
	// FirstInstance addresses the batch's partition of the visible-index
	// buffer.
	cmds := make([]byte, 0, r.batchCount*cull.IndirectCommandSize)
	for i, key := range order {
		d := r.meshDraws[key.MeshIndex]
		cmd := cull.IndirectCommand{
			VertexCount:   d.VertexCount,
			InstanceCount: 0,
			FirstVertex:   d.FirstVertex,
			FirstInstance: uint32(i) * r.maxObjectsPerBatch,
		}
		cmds = append(cmds, cmd.Marshal()...)
	}
	for i := len(order); i < r.batchCount; i++ {
		cmds = append(cmds, make([]byte, cull.IndirectCommandSize)...)
	}
	if err := r.indirectBuf.Write(0, cmds); err != nil {
		return fmt.Errorf("rendersystem: write indirect commands: %w", err)
	}

	uniform := cull.FrustumUniform{
		Planes:      r.frustum,
		ObjectCount: r.Static.Len(),
		BatchCount:  uint32(r.batchCount),
		MaxPerBatch: r.maxObjectsPerBatch,
	}
	if err := r.frustumUniformBuf.Write(0, uniform.Marshal()); err != nil {
		return fmt.Errorf("rendersystem: write frustum uniform: %w", err)
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(r.cullPipeline)
	pass.SetBindGroup(0, r.cullBindGroup, nil)
	workgroups := (r.Static.Len() + 255) / 256
	pass.DispatchWorkgroups(workgroups, 1, 1)
	pass.End()
	return nil
}

// InsertPostCullBarrier is a documentation-only hook: WebGPU's command
// encoder automatically inserts the compute-write -> indirect-read /
// vertex-read hazard barrier an explicit API like Vulkan would have the
// caller record by hand. No call is required on this backend; the method
// exists so the frame loop's step sequence reads the same either way.
func (r *RenderSystem) InsertPostCullBarrier(_ *wgpu.CommandEncoder) {}

// DrawStatic issues one indirect draw per static batch, in registration
// order, against the bound render pass. Each batch binds its mesh's
// vertex buffer and its material's registered pipeline and bind groups;
// batches missing either registration are skipped. The draw parameters
// come straight from the GPU-written indirect buffer — no counter is read
// back. Each command's first-instance addresses the batch's partition of
// the visible-index buffer, so the instance index the vertex shader sees
// indexes visible slots directly.
func (r *RenderSystem) DrawStatic(pass *wgpu.RenderPassEncoder) {
	if r.Static.InstanceBuffer() == nil {
		return
	}
	for i, key := range r.Static.BatchOrder() {
		mp, ok := r.batchPipelines[key.MaterialIndex]
		if !ok {
			continue
		}
		d, ok := r.meshDraws[key.MeshIndex]
		if !ok || d.Vertex == nil {
			continue
		}
		pass.SetPipeline(mp.pipeline)
		for g, bg := range mp.bindGroups {
			pass.SetBindGroup(uint32(g), bg, nil)
		}
		pass.SetVertexBuffer(0, d.Vertex, 0, wgpu.WholeSize)
		pass.DrawIndirect(r.indirectBuf.Raw(), uint64(i)*cull.IndirectCommandSize)
	}
}

// DrawDynamic issues one draw per dynamic-tier entry submitted this frame.
// The dynamic pipelines bind the whole instance ring; each draw's
// first-instance is the entry's slot within the current frame's region,
// so the instance index the vertex shader sees addresses the ring
// directly and frames never alias. Entries whose material or mesh has no
// registration are skipped.
func (r *RenderSystem) DrawDynamic(pass *wgpu.RenderPassEncoder) {
	if r.dynamicCount == 0 {
		return
	}
	base := uint32(r.currentFrame * r.dynamicRing.ElementsPerFrame())
	for i, ent := range r.dynamicEntries {
		mp, ok := r.dynamicPipelines[ent.material]
		if !ok {
			continue
		}
		d, ok := r.meshDraws[ent.mesh]
		if !ok || d.Vertex == nil {
			continue
		}
		pass.SetPipeline(mp.pipeline)
		for g, bg := range mp.bindGroups {
			pass.SetBindGroup(uint32(g), bg, nil)
		}
		pass.SetVertexBuffer(0, d.Vertex, 0, wgpu.WholeSize)
		pass.Draw(d.VertexCount, 1, d.FirstVertex, base+uint32(i))
	}
}

// EndFrame is a no-op hook, kept so every BeginFrame has a matching
// bracket in the frame loop.
func (r *RenderSystem) EndFrame() {}

// Release tears down the GPU resources this RenderSystem owns. The static
// manager's buffers are released through its own Clear.
func (r *RenderSystem) Release() {
	r.Static.Clear()
	r.dynamicRing.Release()
	r.cameraBuf.Release()
	r.frustumUniformBuf.Release()
	r.globalCounterBuf.Release()
	r.perBatchCounterBuf.Release()
	r.visibleIndicesBuf.Release()
	r.indirectBuf.Release()
	if r.cullBindGroup != nil {
		r.cullBindGroup.Release()
	}
	if r.cullPipeline != nil {
		r.cullPipeline.Release()
	}
}
