// Package volume rasterizes particle snapshots into a density/temperature voxel grid
// for volumetric renderers.
package volume

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/steam/components"
	"github.com/pthm-cable/steam/config"
)

// Channels is the number of interleaved values per voxel in Data.
const Channels = 2

// Voxels whose accumulated splat weight is at or below this keep their raw temperature sum.
const minWeightSum = 0.001

// Options controls splat shape and channel scaling.
type Options struct {
	Sigma            float64 // Gaussian falloff in voxel units
	DensityWeight    float64 // Density deposited per unit weight
	TemperatureScale float64 // Particle temperature mapped to 1.0
}

// Volume is a w*h*d grid with a density and a mean-temperature channel.
// Voxel (x, y, z) is stored at index z*w*h + y*w + x.
type Volume struct {
	width, height, depth int
	bounds               r3.Box
	cell                 r3.Vec // world size of one voxel
	opts                 Options

	density     []float64
	temperature []float64
	weights     []float64

	// Voxel centre coordinates per axis
	centersX, centersY, centersZ []float64

	interleaved []float32
}

// New creates an empty volume covering bounds.
func New(width, height, depth int, bounds r3.Box, opts Options) *Volume {
	n := width * height * depth
	size := r3.Sub(bounds.Max, bounds.Min)
	cell := r3.Vec{
		X: size.X / float64(width),
		Y: size.Y / float64(height),
		Z: size.Z / float64(depth),
	}
	if opts.Sigma <= 0 {
		opts.Sigma = 1
	}
	if opts.TemperatureScale <= 0 {
		opts.TemperatureScale = 1
	}

	return &Volume{
		width:       width,
		height:      height,
		depth:       depth,
		bounds:      bounds,
		cell:        cell,
		opts:        opts,
		density:     make([]float64, n),
		temperature: make([]float64, n),
		weights:     make([]float64, n),
		centersX:    axisCenters(width, bounds.Min.X, cell.X),
		centersY:    axisCenters(height, bounds.Min.Y, cell.Y),
		centersZ:    axisCenters(depth, bounds.Min.Z, cell.Z),
		interleaved: make([]float32, n*Channels),
	}
}

// NewFromConfig creates a volume from config.
func NewFromConfig(cfg config.VolumeConfig) *Volume {
	return New(cfg.Width, cfg.Height, cfg.Depth,
		r3.Box{Min: cfg.Min.R3(), Max: cfg.Max.R3()},
		Options{
			Sigma:            cfg.Sigma,
			DensityWeight:    cfg.DensityWeight,
			TemperatureScale: cfg.TemperatureScale,
		})
}

func axisCenters(n int, min, cell float64) []float64 {
	out := make([]float64, n)
	switch {
	case n == 1:
		out[0] = min + cell/2
	case n > 1:
		floats.Span(out, min+cell/2, min+cell*(float64(n)-0.5))
	}
	return out
}

// Dims returns the grid dimensions.
func (v *Volume) Dims() (width, height, depth int) {
	return v.width, v.height, v.depth
}

// Bounds returns the world-space box covered by the grid.
func (v *Volume) Bounds() r3.Box {
	return v.bounds
}

// Clear zeroes every voxel.
func (v *Volume) Clear() {
	for i := range v.density {
		v.density[i] = 0
		v.temperature[i] = 0
		v.weights[i] = 0
	}
}

// Build clears the grid and splats every active particle into the 3x3x3 voxels around
// its nearest voxel. Temperature ends up as the splat-weighted mean, normalized to [0, 1].
func (v *Volume) Build(particles []components.Particle) {
	v.Clear()

	inv2s2 := 1 / (2 * v.opts.Sigma * v.opts.Sigma)

	for i := range particles {
		p := &particles[i]
		if !p.Active {
			continue
		}

		temp := math.Max(0, math.Min(p.Temperature/v.opts.TemperatureScale, 1))

		// Continuous grid coordinates, voxel centres at integers
		fx := (p.Position.X-v.bounds.Min.X)/v.cell.X - 0.5
		fy := (p.Position.Y-v.bounds.Min.Y)/v.cell.Y - 0.5
		fz := (p.Position.Z-v.bounds.Min.Z)/v.cell.Z - 0.5

		cx := int(math.Floor(fx + 0.5))
		cy := int(math.Floor(fy + 0.5))
		cz := int(math.Floor(fz + 0.5))

		for z := cz - 1; z <= cz+1; z++ {
			if z < 0 || z >= v.depth {
				continue
			}
			for y := cy - 1; y <= cy+1; y++ {
				if y < 0 || y >= v.height {
					continue
				}
				for x := cx - 1; x <= cx+1; x++ {
					if x < 0 || x >= v.width {
						continue
					}

					dx, dy, dz := float64(x)-fx, float64(y)-fy, float64(z)-fz
					w := math.Exp(-(dx*dx + dy*dy + dz*dz) * inv2s2)

					idx := v.index(x, y, z)
					v.density[idx] += v.opts.DensityWeight * w
					v.temperature[idx] += temp * w
					v.weights[idx] += w
				}
			}
		}
	}

	for i, w := range v.weights {
		if w > minWeightSum {
			v.temperature[i] /= w
		}
	}
}

func (v *Volume) index(x, y, z int) int {
	return z*v.width*v.height + y*v.width + x
}

// At returns the density and temperature of voxel (x, y, z).
// Out-of-range coordinates return zeros.
func (v *Volume) At(x, y, z int) (density, temperature float64) {
	if x < 0 || x >= v.width || y < 0 || y >= v.height || z < 0 || z >= v.depth {
		return 0, 0
	}
	idx := v.index(x, y, z)
	return v.density[idx], v.temperature[idx]
}

// Center returns the world-space centre of voxel (x, y, z).
func (v *Volume) Center(x, y, z int) r3.Vec {
	return r3.Vec{X: v.centersX[x], Y: v.centersY[y], Z: v.centersZ[z]}
}

// TotalDensity returns the summed density channel.
func (v *Volume) TotalDensity() float64 {
	return floats.Sum(v.density)
}

// Data returns the grid as interleaved float32 (density, temperature) pairs,
// ready for upload as a two-channel 3D texture. The slice is reused by later calls.
func (v *Volume) Data() []float32 {
	for i := range v.density {
		v.interleaved[i*Channels] = float32(v.density[i])
		v.interleaved[i*Channels+1] = float32(v.temperature[i])
	}
	return v.interleaved
}
