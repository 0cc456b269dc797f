package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/codec"
	"github.com/Faultbox/assetforge/pkg/mesh"
	"github.com/Faultbox/assetforge/pkg/scene"
	"github.com/Faultbox/assetforge/pkg/shader"
	"github.com/Faultbox/assetforge/pkg/source"
)

// task is one unit of pool work. run executes on a worker; store runs on the
// driver goroutine, so it may write the shared inputs without locking.
type task struct {
	resource asset.ResourceKind
	index    int
	name     string
	label    string
	run      func(ctx context.Context) (any, error)
	store    func(v any)
}

type result struct {
	task  *task
	value any
	err   error
}

func (t *task) fail(err error) error {
	return &asset.ResourceError{Resource: t.resource, Index: t.index, Name: t.name, Err: err}
}

// plan builds one task per triangle primitive, per (texture, role) pair
// referenced by a material and per distinct shader permutation.
func (im *Importer) plan(doc *source.Document, in *scene.Inputs) ([]*task, error) {
	var tasks []*task
	meshOpts := im.opts.meshOptions()

	for mi := range doc.Meshes {
		m := &doc.Meshes[mi]
		for pi, prim := range m.Primitives {
			if !prim.Mode.Triangles() {
				im.logger.Debug("Skipping non-triangle primitive",
					zap.Int("mesh", mi), zap.Int("primitive", pi), zap.Int("mode", int(prim.Mode)))
				continue
			}
			key := scene.PrimitiveKey{Mesh: mi, Primitive: pi}
			tasks = append(tasks, &task{
				resource: asset.ResourceMesh,
				index:    mi,
				name:     m.Name,
				label:    fmt.Sprintf("mesh %d.%d", mi, pi),
				run: func(ctx context.Context) (any, error) {
					g, err := im.codecs.Decode(ctx, doc, prim)
					if err != nil {
						return nil, fmt.Errorf("primitive %d: %w", pi, err)
					}
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					p, err := mesh.Process(g, meshOpts)
					if err != nil {
						return nil, fmt.Errorf("primitive %d: %w", pi, err)
					}
					return p, nil
				},
				store: func(v any) { in.Meshes[key] = v.(*asset.Primitive) },
			})
		}
	}

	seen := make(map[scene.TextureKey]bool)
	for mi := range doc.Materials {
		mat := &doc.Materials[mi]
		for role := range asset.RoleCount {
			ti := mat.Textures[role].Texture
			key := scene.TextureKey{Texture: ti, Role: role}
			if ti < 0 || seen[key] {
				continue
			}
			seen[key] = true
			tex := doc.Textures[ti]
			if tex.Source < 0 {
				return nil, &asset.ResourceError{Resource: asset.ResourceTexture, Index: ti, Name: tex.Name,
					Err: fmt.Errorf("%w: texture %d has no image source", asset.ErrUnsupportedFormat, ti)}
			}
			img := doc.Images[tex.Source]
			name := tex.Name
			if name == "" {
				name = img.Name
			}
			if name == "" {
				name = img.URI
			}
			req := codec.TextureRequest{Role: role, Formats: im.opts.TargetTextureFormats}
			tasks = append(tasks, &task{
				resource: asset.ResourceTexture,
				index:    ti,
				name:     name,
				label:    fmt.Sprintf("texture %d %s", ti, role),
				run: func(ctx context.Context) (any, error) {
					data, err := doc.ImageData(tex.Source)
					if err != nil {
						return nil, err
					}
					t, err := im.textures.Decode(ctx, img, data, req)
					if err != nil {
						return nil, err
					}
					if t.Name == "" {
						t.Name = name
					}
					return t, nil
				},
				store: func(v any) { in.Textures[key] = v.(*asset.Texture) },
			})
		}
	}

	profile := im.profile
	planned := make(map[string]bool)
	for mi := range doc.Materials {
		ref := doc.Materials[mi].Shader
		if ref == nil {
			continue
		}
		src := doc.Shaders[ref.Shader]
		code, err := doc.ShaderCode(ref.Shader)
		if err != nil {
			return nil, &asset.ResourceError{Resource: asset.ResourceShader, Index: ref.Shader, Name: src.Name, Err: err}
		}
		key := shader.Key(code, profile, ref.Defines)
		in.MaterialShaders[mi] = key
		if planned[key] {
			continue
		}
		planned[key] = true
		unit := asset.ShaderSource{Name: src.Name, Code: code}
		defines := ref.Defines
		tasks = append(tasks, &task{
			resource: asset.ResourceShader,
			index:    ref.Shader,
			name:     src.Name,
			label:    fmt.Sprintf("shader %d %v", ref.Shader, shader.SortedDefines(defines)),
			run: func(ctx context.Context) (any, error) {
				return im.compiler.Compile(ctx, unit, profile.Name, defines)
			},
			store: func(v any) { in.Shaders[key] = v.(*asset.Shader) },
		})
	}
	return tasks, nil
}

// execute runs tasks on the pool. The calling goroutine submits tasks over an
// unbuffered channel and collects results in one select loop; it stops
// submitting after the first failure or on cancellation, then lets every
// submitted task run to completion. The first failure wins.
func (im *Importer) execute(ctx context.Context, req *request, tasks []*task) error {
	workers := min(im.opts.WorkerCount.Resolve(), max(1, len(tasks)))
	queue := make(chan *task)
	results := make(chan result, workers)

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				results <- im.runTask(ctx, req, t, w+1)
			}
		}()
	}

	var first error
	pending := 0
	handle := func(r result) {
		pending--
		if first != nil {
			return
		}
		if r.err != nil {
			first = r.task.fail(r.err)
			return
		}
		r.task.store(r.value)
	}

	next := 0
submit:
	for next < len(tasks) && first == nil {
		select {
		case queue <- tasks[next]:
			next++
			pending++
		case r := <-results:
			handle(r)
		case <-ctx.Done():
			break submit
		}
	}
	close(queue)

	req.to(Joining)
	for pending > 0 {
		handle(<-results)
	}
	wg.Wait()

	req.log.Debug("Joined tasks",
		zap.Int("submitted", next),
		zap.Int("planned", len(tasks)),
		zap.Int("workers", workers))
	if first != nil {
		return first
	}
	return ctx.Err()
}

// runTask runs t under its own context and span.
func (im *Importer) runTask(ctx context.Context, req *request, t *task, track int) result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	span := im.tracer.Start(t.label, "task", req.resource(), track)
	v, err := t.run(ctx)
	span.End(err)
	return result{task: t, value: v, err: err}
}
