package shader

import (
	"fmt"
	"sort"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// Profile names.
const (
	ProfileWebGPU       = "webgpu"
	ProfileWebGPUCompat = "webgpu-compat"
)

// Profile holds the per-shader resource limits of a target.
type Profile struct {
	Name string

	MaxBindGroups           int
	MaxSampledTextures      int
	MaxSamplers             int
	MaxUniformBuffers       int
	MaxStorageBuffers       int
	MaxStorageTextures      int
	MaxWorkgroupInvocations uint32
	MaxWorkgroupSize        [3]uint32
}

var profiles = map[string]Profile{
	ProfileWebGPU: {
		Name:                    ProfileWebGPU,
		MaxBindGroups:           4,
		MaxSampledTextures:      16,
		MaxSamplers:             16,
		MaxUniformBuffers:       12,
		MaxStorageBuffers:       8,
		MaxStorageTextures:      4,
		MaxWorkgroupInvocations: 256,
		MaxWorkgroupSize:        [3]uint32{256, 256, 64},
	},
	ProfileWebGPUCompat: {
		Name:                    ProfileWebGPUCompat,
		MaxBindGroups:           4,
		MaxSampledTextures:      16,
		MaxSamplers:             16,
		MaxUniformBuffers:       12,
		MaxStorageBuffers:       4,
		MaxStorageTextures:      4,
		MaxWorkgroupInvocations: 128,
		MaxWorkgroupSize:        [3]uint32{128, 128, 64},
	},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", asset.ErrUnsupportedProfile, name)
	}
	return p, nil
}

// Profiles returns the known profile names, sorted.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports the first limit the reflected interface exceeds.
func (p Profile) Check(r *asset.Reflection) error {
	counts := make(map[asset.BindingKind]int)
	groups := 0
	for _, b := range r.Bindings {
		counts[b.Kind]++
		groups = max(groups, b.Group+1)
	}
	if groups > p.MaxBindGroups {
		return p.exceeded("bind groups", groups, p.MaxBindGroups)
	}
	limits := []struct {
		kind  asset.BindingKind
		label string
		limit int
	}{
		{asset.BindingTexture, "sampled textures", p.MaxSampledTextures},
		{asset.BindingSampler, "samplers", p.MaxSamplers},
		{asset.BindingUniform, "uniform buffers", p.MaxUniformBuffers},
		{asset.BindingStorage, "storage buffers", p.MaxStorageBuffers},
		{asset.BindingStorageTexture, "storage textures", p.MaxStorageTextures},
	}
	for _, l := range limits {
		if counts[l.kind] > l.limit {
			return p.exceeded(l.label, counts[l.kind], l.limit)
		}
	}

	for _, ep := range r.EntryPoints {
		if ep.Stage != asset.StageCompute {
			continue
		}
		size := ep.WorkgroupSize
		for i := range size {
			if size[i] > p.MaxWorkgroupSize[i] {
				return fmt.Errorf("%w: %s workgroup size %v, profile %s allows %v",
					asset.ErrResourceLimitExceeded, ep.Name, size, p.Name, p.MaxWorkgroupSize)
			}
		}
		if n := size[0] * size[1] * size[2]; n > p.MaxWorkgroupInvocations {
			return fmt.Errorf("%w: %s has %d workgroup invocations, profile %s allows %d",
				asset.ErrResourceLimitExceeded, ep.Name, n, p.Name, p.MaxWorkgroupInvocations)
		}
	}
	return nil
}

func (p Profile) exceeded(what string, n, limit int) error {
	return fmt.Errorf("%w: %d %s, profile %s allows %d", asset.ErrResourceLimitExceeded, n, what, p.Name, limit)
}
