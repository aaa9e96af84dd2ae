package spatial

import (
	"errors"
	"fmt"
	"math"
)

type ProviderID uint8

const (
	ProviderUniform ProviderID = iota
	ProviderHashed
)

// MaxCellCount bounds the addressable cell space. Ranges are stored sparsely,
// so this only limits id arithmetic, not memory.
const MaxCellCount = 1 << 30

var ErrInvalidConfig = errors.New("invalid spatial grid config")

type Config struct {
	WorldMin   Vec3
	WorldMax   Vec3
	CellSize   float64
	CellCounts [3]int
	HashSeed   uint32
	ProviderID ProviderID
}

// NewConfig derives cell counts that cover [min, max] at the given cell size.
func NewConfig(min, max Vec3, cellSize float64) Config {
	c := Config{WorldMin: min, WorldMax: max, CellSize: cellSize}
	if cellSize > 0 {
		ext := max.Sub(min)
		for i, e := range [3]float64{ext.X, ext.Y, ext.Z} {
			n := int(math.Ceil(e / cellSize))
			if n < 1 {
				n = 1
			}
			c.CellCounts[i] = n
		}
	}
	return c
}

func (c Config) CellCount() int {
	return c.CellCounts[0] * c.CellCounts[1] * c.CellCounts[2]
}

func (c Config) Validate() error {
	if !(c.CellSize > 0) || math.IsInf(c.CellSize, 0) {
		return fmt.Errorf("%w: cell size %v", ErrInvalidConfig, c.CellSize)
	}
	if !c.WorldMin.IsFinite() || !c.WorldMax.IsFinite() {
		return fmt.Errorf("%w: non-finite bounds", ErrInvalidConfig)
	}
	if !(c.WorldMax.X > c.WorldMin.X && c.WorldMax.Y > c.WorldMin.Y && c.WorldMax.Z > c.WorldMin.Z) {
		return fmt.Errorf("%w: degenerate bounds %v..%v", ErrInvalidConfig, c.WorldMin, c.WorldMax)
	}
	total := 1
	for _, n := range c.CellCounts {
		if n < 1 {
			return fmt.Errorf("%w: cell counts %v", ErrInvalidConfig, c.CellCounts)
		}
		if total > MaxCellCount/n {
			return fmt.Errorf("%w: too many cells %v", ErrInvalidConfig, c.CellCounts)
		}
		total *= n
	}
	switch c.ProviderID {
	case ProviderUniform, ProviderHashed:
	default:
		return fmt.Errorf("%w: provider %d", ErrInvalidConfig, c.ProviderID)
	}
	return nil
}

// Coord quantizes p to a cell coordinate, clamped into the grid.
func (c Config) Coord(p Vec3) [3]int {
	rel := p.Sub(c.WorldMin)
	var out [3]int
	for i, v := range [3]float64{rel.X, rel.Y, rel.Z} {
		n := int(math.Floor(v / c.CellSize))
		if math.IsNaN(v) || n < 0 {
			n = 0
		}
		if n >= c.CellCounts[i] {
			n = c.CellCounts[i] - 1
		}
		out[i] = n
	}
	return out
}

func (c Config) CellID(coord [3]int) int {
	if c.ProviderID == ProviderHashed {
		return int(hashCoord(coord, c.HashSeed) % uint64(c.CellCount()))
	}
	return coord[0] + coord[1]*c.CellCounts[0] + coord[2]*c.CellCounts[0]*c.CellCounts[1]
}

func (c Config) CellOf(p Vec3) int { return c.CellID(c.Coord(p)) }

func (c Config) inside(coord [3]int) bool {
	for i := range coord {
		if coord[i] < 0 || coord[i] >= c.CellCounts[i] {
			return false
		}
	}
	return true
}

// hashCoord is a splitmix64 finalizer over the packed coordinate.
func hashCoord(coord [3]int, seed uint32) uint64 {
	h := uint64(seed) ^ 0x9e3779b97f4a7c15
	for _, v := range coord {
		h ^= uint64(uint32(v))
		h += 0x9e3779b97f4a7c15
		h = (h ^ (h >> 30)) * 0xbf58476d1ce4e5b9
		h = (h ^ (h >> 27)) * 0x94d049bb133111eb
		h ^= h >> 31
	}
	return h
}
