package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel/gpucore"
	"honnef.co/go/safeish"
)

// drawContext is everything one draw's programs read and write.
type drawContext struct {
	program    gpucore.ProgramKind
	targets    []*texture
	blends     []*gpucore.BlendState
	frame      gpucore.FrameUniforms
	instances  []mgl32.Mat4
	material   gpucore.MaterialUniforms
	source     *texture
	counter    *uint64
	halfBounds bool
	fragments  int
}

// execute runs a submitted command buffer. Must be called with d.mu held.
func (d *Device) execute(cb *commandBuffer) error {
	for _, c := range cb.cmds {
		switch c := c.(type) {
		case *passCmd:
			if err := d.executePass(c); err != nil {
				return fmt.Errorf("pass %q: %w", c.desc.Label, err)
			}
		case *resolveCmd:
			if err := d.executeResolve(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Device) executePass(p *passCmd) error {
	targets := make([]*texture, len(p.desc.ColorAttachments))
	for i, a := range p.desc.ColorAttachments {
		t, ok := d.textures.Get(uint64(a.Texture))
		if !ok {
			return fmt.Errorf("attachment %d: %w", i, gpucore.ErrUnknownResource)
		}
		targets[i] = t
		if a.LoadOp == gpucore.LoadOpClear {
			c := quantize(t.desc.Format, rgba{float32(a.Clear.R), float32(a.Clear.G), float32(a.Clear.B), float32(a.Clear.A)})
			for j := 0; j < len(t.texels); j += 4 {
				copy(t.texels[j:j+4], c[:])
			}
		}
	}

	var qs *querySet
	if p.desc.OcclusionQuerySet != gpucore.InvalidID {
		var ok bool
		if qs, ok = d.querySets.Get(uint64(p.desc.OcclusionQuerySet)); !ok {
			return fmt.Errorf("occlusion query set: %w", gpucore.ErrUnknownResource)
		}
		for _, q := range p.queries {
			qs.counts[q] = 0
		}
	}

	for i := range p.draws {
		if err := d.executeDraw(&p.draws[i], targets, qs); err != nil {
			return fmt.Errorf("draw %d: %w", i, err)
		}
	}
	d.stats.RenderPasses++
	return nil
}

func findEntry(bg *bindGroup, binding uint32) (gpucore.BindGroupEntry, bool) {
	for _, e := range bg.desc.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return gpucore.BindGroupEntry{}, false
}

func (d *Device) bufferBinding(bg *bindGroup, binding uint32, minSize uint64) ([]byte, error) {
	e, ok := findEntry(bg, binding)
	if !ok {
		return nil, fmt.Errorf("bind group %q binding %d missing: %w", bg.desc.Label, binding, gpucore.ErrInvalidDescriptor)
	}
	b, ok := d.buffers.Get(uint64(e.Buffer))
	if !ok {
		return nil, fmt.Errorf("bind group %q binding %d: %w", bg.desc.Label, binding, gpucore.ErrUnknownResource)
	}
	end := b.desc.Size
	if e.Size != 0 {
		end = min(end, e.Offset+e.Size)
	}
	if e.Offset > end || end-e.Offset < minSize {
		return nil, fmt.Errorf("bind group %q binding %d: range too small: %w", bg.desc.Label, binding, gpucore.ErrInvalidDescriptor)
	}
	return b.data[e.Offset:end], nil
}

func (d *Device) textureBinding(bg *bindGroup, binding uint32) (*texture, error) {
	e, ok := findEntry(bg, binding)
	if !ok {
		return nil, fmt.Errorf("bind group %q binding %d missing: %w", bg.desc.Label, binding, gpucore.ErrInvalidDescriptor)
	}
	t, ok := d.textures.Get(uint64(e.Texture))
	if !ok {
		return nil, fmt.Errorf("bind group %q binding %d: %w", bg.desc.Label, binding, gpucore.ErrUnknownResource)
	}
	return t, nil
}

func (d *Device) bindFrame(ctx *drawContext, bg *bindGroup, withInstances bool) error {
	fb, err := d.bufferBinding(bg, 0, gpucore.FrameUniformsSize)
	if err != nil {
		return err
	}
	ctx.frame = safeish.SliceCast[[]gpucore.FrameUniforms](fb[:gpucore.FrameUniformsSize])[0]
	ctx.halfBounds = ctx.frame.Params[3] != 0
	if !withInstances {
		return nil
	}
	ib, err := d.bufferBinding(bg, 1, gpucore.InstanceSize)
	if err != nil {
		return err
	}
	n := len(ib) / gpucore.InstanceSize
	ctx.instances = safeish.SliceCast[[]mgl32.Mat4](ib[:n*gpucore.InstanceSize])
	return nil
}

func (d *Device) executeDraw(dc *drawCmd, targets []*texture, qs *querySet) error {
	pl, ok := d.pipelines.Get(uint64(dc.pipeline))
	if !ok {
		return fmt.Errorf("pipeline: %w", gpucore.ErrUnknownResource)
	}
	ctx := &drawContext{program: pl.desc.Program, targets: targets}
	ctx.blends = make([]*gpucore.BlendState, len(pl.desc.Targets))
	for i, t := range pl.desc.Targets {
		ctx.blends[i] = t.Blend
	}
	if dc.query >= 0 && qs != nil {
		ctx.counter = &qs.counts[dc.query]
	}

	var groups [maxBindGroups]*bindGroup
	for g := 0; g < pl.desc.Program.BindGroupCount(); g++ {
		bg, ok := d.bindGroups.Get(uint64(dc.groups[g]))
		if !ok {
			return fmt.Errorf("bind group %d: %w", g, gpucore.ErrUnknownResource)
		}
		groups[g] = bg
	}

	var err error
	switch pl.desc.Program {
	case gpucore.ProgramDepthInit:
		err = d.bindFrame(ctx, groups[0], true)
	case gpucore.ProgramPeel:
		if err = d.bindFrame(ctx, groups[0], true); err != nil {
			break
		}
		var mb []byte
		if mb, err = d.bufferBinding(groups[1], 0, gpucore.MaterialUniformsSize); err != nil {
			break
		}
		ctx.material = safeish.SliceCast[[]gpucore.MaterialUniforms](mb[:gpucore.MaterialUniformsSize])[0]
		ctx.source, err = d.textureBinding(groups[2], 0)
	case gpucore.ProgramBlit:
		ctx.source, err = d.textureBinding(groups[0], 0)
	case gpucore.ProgramSky:
		err = d.bindFrame(ctx, groups[0], false)
	}
	if err != nil {
		return err
	}
	if ctx.source != nil {
		w, h := targets[0].desc.Width, targets[0].desc.Height
		if ctx.source.desc.Width != w || ctx.source.desc.Height != h {
			return fmt.Errorf("source %q is %dx%d, target is %dx%d: %w", ctx.source.desc.Label,
				ctx.source.desc.Width, ctx.source.desc.Height, w, h, gpucore.ErrInvalidDescriptor)
		}
	}

	if pl.desc.Program.UsesVertexBuffer() {
		err = d.drawGeometry(ctx, dc)
	} else if dc.vertexCount >= 3 && dc.instanceCount > 0 {
		d.drawFullscreen(ctx)
	}
	d.stats.Draws++
	d.stats.Fragments += ctx.fragments
	return err
}

func (d *Device) drawGeometry(ctx *drawContext, dc *drawCmd) error {
	vb, ok := d.buffers.Get(uint64(dc.vertexBuffer))
	if !ok {
		return fmt.Errorf("vertex buffer: %w", gpucore.ErrUnknownResource)
	}
	if dc.vertexOffset > vb.desc.Size {
		return fmt.Errorf("vertex offset %d: %w", dc.vertexOffset, gpucore.ErrInvalidDescriptor)
	}
	data := vb.data[dc.vertexOffset:]
	n := len(data) / gpucore.VertexStride
	verts := safeish.SliceCast[[]gpucore.Vertex](data[:n*gpucore.VertexStride])

	lastVertex := uint64(dc.firstVertex) + uint64(dc.vertexCount)
	if lastVertex > uint64(len(verts)) {
		return fmt.Errorf("vertices %d..%d outside buffer of %d: %w",
			dc.firstVertex, lastVertex, len(verts), gpucore.ErrInvalidDescriptor)
	}
	lastInstance := uint64(dc.firstInstance) + uint64(dc.instanceCount)
	if lastInstance > uint64(len(ctx.instances)) {
		return fmt.Errorf("instances %d..%d outside storage of %d: %w",
			dc.firstInstance, lastInstance, len(ctx.instances), gpucore.ErrInvalidDescriptor)
	}

	width, height := ctx.targets[0].desc.Width, ctx.targets[0].desc.Height
	viewProj := mgl32.Mat4(ctx.frame.ViewProj)
	emit := func(f fragment) { ctx.shadeGeometry(f) }
	for inst := uint64(dc.firstInstance); inst < lastInstance; inst++ {
		mvp := viewProj.Mul4(ctx.instances[inst])
		for v := uint64(dc.firstVertex); v+3 <= lastVertex; v += 3 {
			var tri [3]clipVertex
			for k := range tri {
				vx := verts[v+uint64(k)]
				tri[k] = clipVertex{
					pos: mvp.Mul4x1(mgl32.Vec3(vx.Position).Vec4(1)),
					uv:  mgl32.Vec2(vx.UV),
				}
			}
			rasterTriangle(tri, width, height, emit)
		}
	}
	return nil
}

func (d *Device) drawFullscreen(ctx *drawContext) {
	t := ctx.targets[0]
	for y := 0; y < t.desc.Height; y++ {
		for x := 0; x < t.desc.Width; x++ {
			ctx.fragments++
			switch ctx.program {
			case gpucore.ProgramBlit:
				i := ctx.source.index(x, y)
				ctx.write(0, x, y, rgba(ctx.source.texels[i:i+4]))
			case gpucore.ProgramSky:
				ctx.write(0, x, y, skyColor(&ctx.frame, x, y))
			}
		}
	}
}

// write blends v into target i at (x, y).
func (ctx *drawContext) write(i, x, y int, v rgba) {
	t := ctx.targets[i]
	j := t.index(x, y)
	dst := rgba(t.texels[j : j+4])
	out := quantize(t.desc.Format, applyBlend(ctx.blends[i], v, dst))
	copy(t.texels[j:j+4], out[:])
}

// shadeGeometry runs the fragment stage of the depth init and peel programs.
func (ctx *drawContext) shadeGeometry(f fragment) {
	if f.depth < 0 || f.depth > gpucore.MaxDepth {
		return
	}
	ctx.fragments++
	d := f.depth
	if ctx.halfBounds {
		d = quantizeHalf(d)
	}

	if ctx.program == gpucore.ProgramDepthInit {
		ctx.write(0, f.x, f.y, rgba{-d, d, 0, 0})
		return
	}

	i := ctx.source.index(f.x, f.y)
	near := -ctx.source.texels[i]
	far := ctx.source.texels[i+1]
	if d < near || d > far {
		return
	}

	var zero rgba
	if d > near && d < far {
		ctx.write(0, f.x, f.y, rgba{-d, d, 0, 0})
		ctx.write(1, f.x, f.y, zero)
		ctx.write(2, f.x, f.y, zero)
		if ctx.counter != nil {
			*ctx.counter++
		}
		return
	}

	color := shadeMaterial(&ctx.material, f.uv)
	ctx.write(0, f.x, f.y, rgba{-gpucore.MaxDepth, -gpucore.MaxDepth, 0, 0})
	if d == near {
		ctx.write(1, f.x, f.y, color)
		ctx.write(2, f.x, f.y, zero)
	} else {
		ctx.write(1, f.x, f.y, zero)
		ctx.write(2, f.x, f.y, color)
	}
}

func shadeMaterial(m *gpucore.MaterialUniforms, uv mgl32.Vec2) rgba {
	c := m.BaseColor
	if s := m.Params[0]; s > 0 {
		cx := int(math.Floor(float64(uv.X() * s)))
		cy := int(math.Floor(float64(uv.Y() * s)))
		if (cx+cy)&1 != 0 {
			c = m.CheckerColor
		}
	}
	return premultiply(c)
}

func skyColor(f *gpucore.FrameUniforms, x, y int) rgba {
	if f.Params[2] != gpucore.BackgroundSky {
		return premultiply(f.Horizon)
	}
	ndcX := (float32(x)+0.5)/f.Params[0]*2 - 1
	ndcY := 1 - (float32(y)+0.5)/f.Params[1]*2
	dir := mgl32.Vec4(f.Forward).Vec3().
		Add(mgl32.Vec4(f.Right).Vec3().Mul(ndcX)).
		Add(mgl32.Vec4(f.Up).Vec3().Mul(ndcY)).
		Normalize()
	t := min(max(dir.Y(), 0), 1)
	var c rgba
	for i := range c {
		c[i] = f.Horizon[i] + (f.Zenith[i]-f.Horizon[i])*t
	}
	return premultiply(c)
}

func (d *Device) executeResolve(r *resolveCmd) error {
	qs, ok := d.querySets.Get(uint64(r.set))
	if !ok {
		return fmt.Errorf("resolve: query set %d: %w", r.set, gpucore.ErrUnknownResource)
	}
	b, ok := d.buffers.Get(uint64(r.dst))
	if !ok {
		return fmt.Errorf("resolve: buffer %d: %w", r.dst, gpucore.ErrUnknownResource)
	}
	if b.mapped {
		return fmt.Errorf("resolve into %q: %w", b.desc.Label, gpucore.ErrBufferMapped)
	}
	if b.desc.Usage&gpucore.BufferUsageQueryResolve == 0 {
		return fmt.Errorf("resolve into %q without QueryResolve usage: %w", b.desc.Label, gpucore.ErrInvalidDescriptor)
	}
	end := uint64(r.first) + uint64(r.count)
	if end > uint64(len(qs.counts)) || r.dstOffset+uint64(r.count)*gpucore.QueryResultSize > b.desc.Size {
		return fmt.Errorf("resolve range out of bounds: %w", gpucore.ErrInvalidDescriptor)
	}
	for i := uint64(r.first); i < end; i++ {
		off := r.dstOffset + (i-uint64(r.first))*gpucore.QueryResultSize
		binary.LittleEndian.PutUint64(b.data[off:], qs.counts[i])
	}
	return nil
}
