package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/ai"
	"github.com/MoniVibe/PureDOTS-sub002/internal/sim/commands"
)

var ErrUnknownResource = errors.New("unknown resource type")
var ErrUnknownArchetype = errors.New("unknown archetype")

//go:embed schemas/*.json
var schemaFS embed.FS

type Catalogs struct {
	Resources  ResourceCatalog
	Archetypes ArchetypeCatalog
}

type ResourceCatalog struct {
	Palette []string
	Index   map[string]int
	Defs    map[string]ResourceDef
	Digest  string
}

type ResourceDef struct {
	ID            string  `json:"id"`
	Units         float64 `json:"units"`
	MaxConcurrent int     `json:"max_concurrent,omitempty"`
	Edible        bool    `json:"edible,omitempty"`
}

// Lookup resolves a resource id to its palette index.
func (c ResourceCatalog) Lookup(id string) (int, ResourceDef, error) {
	i, ok := c.Index[id]
	if !ok {
		return -1, ResourceDef{}, fmt.Errorf("%w: %q", ErrUnknownResource, id)
	}
	return i, c.Defs[id], nil
}

type ArchetypeCatalog struct {
	Names  []string
	ByName map[string]*ai.Archetype
	Digest string
}

func (c ArchetypeCatalog) Lookup(name string) (*ai.Archetype, error) {
	a, ok := c.ByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArchetype, name)
	}
	return a, nil
}

type archetypeDef struct {
	Name        string    `json:"name"`
	Aggregation string    `json:"aggregation"`
	Sensor      sensorDef `json:"sensor"`
	Actions     []struct {
		Name           string      `json:"name"`
		Kind           string      `json:"kind"`
		TargetCategory string      `json:"target_category"`
		Factors        []factorDef `json:"factors"`
	} `json:"actions"`
}

type sensorDef struct {
	Range         float64  `json:"range"`
	MaxResults    int      `json:"max_results"`
	Primary       []string `json:"primary"`
	Secondary     []string `json:"secondary"`
	Deterministic bool     `json:"deterministic"`
}

type factorDef struct {
	Input     string  `json:"input"`
	Weight    float64 `json:"weight"`
	Curve     string  `json:"curve"`
	Power     float64 `json:"power"`
	Threshold float64 `json:"threshold"`
	Max       float64 `json:"max"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadResources(filepath.Join(configDir, "resources.json"), &c.Resources); err != nil {
		return nil, err
	}
	if err := loadArchetypes(filepath.Join(configDir, "archetypes"), &c.Archetypes); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString(name, string(raw))
}

// validate checks raw against the named schema before it is decoded into
// typed structs.
func validate(schema, label string, raw []byte) error {
	s, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("%s: compile schema: %w", label, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}

func loadResources(path string, out *ResourceCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate("resources.schema.json", "resources.json", raw); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ResourceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("resources.json: %w", err)
	}
	out.Defs = map[string]ResourceDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("resources.json: duplicate id %q", d.ID)
		}
		out.Defs[d.ID] = d
	}
	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]int, len(ids))
	for i, id := range ids {
		out.Index[id] = i
	}
	return nil
}

func loadArchetypes(dir string, out *ArchetypeCatalog) error {
	out.ByName = map[string]*ai.Archetype{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')
		label := "archetype " + filepath.Base(p)
		if err := validate("archetype.schema.json", label, b); err != nil {
			return err
		}
		var def archetypeDef
		if err := json.Unmarshal(b, &def); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		a, err := def.build()
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		if _, dup := out.ByName[a.Name]; dup {
			return fmt.Errorf("%s: duplicate name %q", label, a.Name)
		}
		out.ByName[a.Name] = a
		out.Names = append(out.Names, a.Name)
	}
	if len(out.ByName) == 0 {
		return fmt.Errorf("archetypes: none in %s", dir)
	}
	sort.Strings(out.Names)
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func (d archetypeDef) build() (*ai.Archetype, error) {
	a := &ai.Archetype{Name: d.Name}
	if d.Aggregation != "" {
		agg, ok := ai.ParseAggregation(d.Aggregation)
		if !ok {
			return nil, fmt.Errorf("aggregation %q", d.Aggregation)
		}
		a.Aggregation = agg
	}
	a.Sensor = ai.SensorConfig{
		Range:                       d.Sensor.Range,
		MaxResults:                  d.Sensor.MaxResults,
		RequireDeterministicSorting: d.Sensor.Deterministic,
	}
	var err error
	if a.Sensor.PrimaryMask, err = parseMask(d.Sensor.Primary); err != nil {
		return nil, err
	}
	if a.Sensor.SecondaryMask, err = parseMask(d.Sensor.Secondary); err != nil {
		return nil, err
	}
	for _, act := range d.Actions {
		kind, ok := commands.ParseKind(act.Kind)
		if !ok {
			return nil, fmt.Errorf("action %s: kind %q", act.Name, act.Kind)
		}
		def := ai.ActionDef{Name: act.Name, Kind: kind}
		if act.TargetCategory != "" {
			cat, ok := ai.ParseCategory(act.TargetCategory)
			if !ok {
				return nil, fmt.Errorf("action %s: category %q", act.Name, act.TargetCategory)
			}
			def.TargetCategory = cat
		}
		for _, f := range act.Factors {
			in, ok := ai.ParseInput(f.Input)
			if !ok {
				return nil, fmt.Errorf("action %s: input %q", act.Name, f.Input)
			}
			curve := ai.CurveLinear
			if f.Curve != "" {
				if curve, ok = ai.ParseCurve(f.Curve); !ok {
					return nil, fmt.Errorf("action %s: curve %q", act.Name, f.Curve)
				}
			}
			def.Factors = append(def.Factors, ai.Factor{
				Input:         in,
				Weight:        f.Weight,
				Curve:         curve,
				ResponsePower: f.Power,
				Threshold:     f.Threshold,
				MaxValue:      f.Max,
			})
		}
		a.Actions = append(a.Actions, def)
	}
	return a, nil
}

func parseMask(names []string) (ai.CategoryMask, error) {
	var m ai.CategoryMask
	for _, n := range names {
		c, ok := ai.ParseCategory(n)
		if !ok || c == ai.CategoryNone || c == ai.CategoryNeed {
			return 0, fmt.Errorf("sensor category %q", n)
		}
		m |= c.Mask()
	}
	return m, nil
}
