package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/codeaudit/corda/internal/ledger"
)

// Catalogue is a compiled set of kinds, sorted by name.
type Catalogue struct {
	Kinds []KindDef
}

// Lookup returns the definition of kind.
func (c *Catalogue) Lookup(kind ledger.Kind) (KindDef, bool) {
	i, ok := slices.BinarySearchFunc(c.Kinds, kind, func(d KindDef, k ledger.Kind) int {
		return strings.Compare(string(d.Name), string(k))
	})
	if !ok {
		return KindDef{}, false
	}
	return c.Kinds[i], true
}

// LoadDir loads every .cue file of the package in dir and compiles its
// kinds.
func LoadDir(dir string) (*Catalogue, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("kinds directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(value)
}

// CompileString compiles a catalogue from CUE source.
func CompileString(src, filename string) (*Catalogue, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(value)
}

// Compile compiles the kinds under the "kind" field of v and checks that
// super-kinds within the catalogue form no cycle.
func Compile(v cue.Value) (*Catalogue, error) {
	kindsVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindsVal.Exists() {
		return nil, &CompileError{Field: "kind", Message: "no kinds declared", Pos: v.Pos()}
	}
	iter, err := kindsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	cat := &Catalogue{}
	for iter.Next() {
		def, err := CompileKind(iter.Value())
		if err != nil {
			return nil, err
		}
		cat.Kinds = append(cat.Kinds, *def)
	}
	slices.SortFunc(cat.Kinds, func(a, b KindDef) int {
		return strings.Compare(string(a.Name), string(b.Name))
	})

	if cycle := superCycle(cat); cycle != nil {
		return nil, &CompileError{
			Field:   "supers",
			Message: "super-kind cycle: " + strings.Join(cycle, " -> "),
		}
	}
	return cat, nil
}

// Register adds every catalogue kind to r, supers before subkinds. Supers
// outside the catalogue must already be registered.
func (c *Catalogue) Register(r *ledger.Registry) error {
	for _, def := range c.order() {
		if err := r.Register(def.ObjectKind().Spec()); err != nil {
			return fmt.Errorf("register kind %s: %w", def.Name, err)
		}
	}
	return nil
}

// order returns the kinds in dependency order. Compile has ruled out
// cycles.
func (c *Catalogue) order() []KindDef {
	done := make(map[ledger.Kind]bool, len(c.Kinds))
	out := make([]KindDef, 0, len(c.Kinds))

	var visit func(d KindDef)
	visit = func(d KindDef) {
		if done[d.Name] {
			return
		}
		done[d.Name] = true
		for _, s := range d.Supers {
			if sd, ok := c.Lookup(s); ok {
				visit(sd)
			}
		}
		out = append(out, d)
	}
	for _, d := range c.Kinds {
		visit(d)
	}
	return out
}
