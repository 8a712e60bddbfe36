// Package shaders embeds the engine's WGSL modules as source strings,
// with no build step of ours — wgpu-native compiles WGSL source itself
// at CreateShaderModule time.
package shaders

import (
	_ "embed"
)

//go:embed frustum_cull.wgsl
var FrustumCullWGSL string

//go:embed shadow_map.wgsl
var ShadowMapWGSL string

//go:embed main_forward.wgsl
var MainForwardWGSL string

//go:embed particles_simulate.wgsl
var ParticlesSimulateWGSL string

//go:embed particles_billboard.wgsl
var ParticlesBillboardWGSL string

//go:embed postprocess.wgsl
var PostprocessWGSL string
