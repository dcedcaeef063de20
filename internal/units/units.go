// Package units normalizes unit spellings and derives conversions between
// units of the same dimension.
//
// Every unit is defined by its dimension and an affine mapping to the
// dimension's base unit: base = value*Factor + Offset. A conversion between
// two units of one dimension is therefore always affine as well.
package units

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/harmonize/pkg/core"
)

// Unit is one canonical unit.
type Unit struct {
	Name      string   `yaml:"name"`
	Dimension string   `yaml:"dimension"`
	Factor    float64  `yaml:"factor"`
	Offset    float64  `yaml:"offset"`
	Aliases   []string `yaml:"aliases"`
}

// Table resolves unit spellings and conversions. A Table is read-only after
// construction and safe for concurrent use.
type Table struct {
	units   map[string]Unit   // canonical name -> unit
	aliases map[string]string // folded spelling -> canonical name
}

var builtin = []Unit{
	// length, base metre
	{Name: "m", Dimension: "length", Factor: 1, Aliases: []string{"meter", "meters", "metre", "metres"}},
	{Name: "cm", Dimension: "length", Factor: 0.01, Aliases: []string{"centimeter", "centimeters", "centimetre", "centimetres"}},
	{Name: "mm", Dimension: "length", Factor: 0.001, Aliases: []string{"millimeter", "millimeters", "millimetre", "millimetres"}},
	{Name: "km", Dimension: "length", Factor: 1000, Aliases: []string{"kilometer", "kilometers", "kilometre", "kilometres"}},
	{Name: "in", Dimension: "length", Factor: 0.0254, Aliases: []string{"inch", "inches", `"`}},
	{Name: "ft", Dimension: "length", Factor: 0.3048, Aliases: []string{"foot", "feet", "'"}},

	// mass, base kilogram
	{Name: "kg", Dimension: "mass", Factor: 1, Aliases: []string{"kilogram", "kilograms", "kgs"}},
	{Name: "g", Dimension: "mass", Factor: 0.001, Aliases: []string{"gram", "grams"}},
	{Name: "mg", Dimension: "mass", Factor: 1e-6, Aliases: []string{"milligram", "milligrams"}},
	{Name: "lb", Dimension: "mass", Factor: 0.45359237, Aliases: []string{"lbs", "pound", "pounds"}},
	{Name: "oz", Dimension: "mass", Factor: 0.028349523125, Aliases: []string{"ounce", "ounces"}},

	// temperature, base kelvin
	{Name: "K", Dimension: "temperature", Factor: 1, Aliases: []string{"kelvin"}},
	{Name: "degC", Dimension: "temperature", Factor: 1, Offset: 273.15, Aliases: []string{"c", "°c", "celsius", "deg c", "degrees celsius"}},
	{Name: "degF", Dimension: "temperature", Factor: 5.0 / 9.0, Offset: 273.15 - 32*5.0/9.0, Aliases: []string{"f", "°f", "fahrenheit", "deg f", "degrees fahrenheit"}},

	// time, base second
	{Name: "s", Dimension: "time", Factor: 1, Aliases: []string{"sec", "secs", "second", "seconds"}},
	{Name: "min", Dimension: "time", Factor: 60, Aliases: []string{"mins", "minute", "minutes"}},
	{Name: "h", Dimension: "time", Factor: 3600, Aliases: []string{"hr", "hrs", "hour", "hours"}},
	{Name: "d", Dimension: "time", Factor: 86400, Aliases: []string{"day", "days"}},
	{Name: "wk", Dimension: "time", Factor: 604800, Aliases: []string{"week", "weeks", "wks"}},
	// mean Gregorian month and year so that 12 mo == 1 yr exactly
	{Name: "mo", Dimension: "time", Factor: 2629746, Aliases: []string{"month", "months", "mos"}},
	{Name: "yr", Dimension: "time", Factor: 31556952, Aliases: []string{"y", "year", "years", "yrs"}},

	// volume, base litre
	{Name: "L", Dimension: "volume", Factor: 1, Aliases: []string{"l", "liter", "liters", "litre", "litres"}},
	{Name: "dL", Dimension: "volume", Factor: 0.1, Aliases: []string{"deciliter", "deciliters"}},
	{Name: "mL", Dimension: "volume", Factor: 0.001, Aliases: []string{"milliliter", "milliliters", "millilitre", "cc"}},

	// pressure, base pascal
	{Name: "Pa", Dimension: "pressure", Factor: 1, Aliases: []string{"pascal"}},
	{Name: "kPa", Dimension: "pressure", Factor: 1000},
	{Name: "mmHg", Dimension: "pressure", Factor: 133.322387415},

	{Name: "%", Dimension: "ratio", Factor: 0.01, Aliases: []string{"percent", "pct"}},
	{Name: "bpm", Dimension: "frequency", Factor: 1.0 / 60, Aliases: []string{"beats/min", "beats per minute", "/min"}},
}

// Default returns a table with the built-in units.
func Default() *Table {
	t := &Table{units: make(map[string]Unit), aliases: make(map[string]string)}
	for _, u := range builtin {
		// built-ins are known to be valid
		_ = t.add(u)
	}
	return t
}

// File is the YAML layout of a unit override file.
type File struct {
	Units []Unit `yaml:"units"`
}

// LoadFile returns the default table extended with the units in a YAML
// file. A unit with an existing name replaces the built-in definition.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing unit file %s: %w", path, err)
	}
	t := Default()
	for i, u := range f.Units {
		if err := t.add(u); err != nil {
			return nil, fmt.Errorf("unit file %s: entry %d: %w", path, i+1, err)
		}
	}
	return t, nil
}

func (t *Table) add(u Unit) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("unit name is required")
	}
	if u.Dimension == "" {
		return fmt.Errorf("unit %q: dimension is required", u.Name)
	}
	if u.Factor == 0 {
		return fmt.Errorf("unit %q: factor must be non-zero", u.Name)
	}
	t.units[u.Name] = u
	t.aliases[fold(u.Name)] = u.Name
	for _, a := range u.Aliases {
		t.aliases[fold(a)] = u.Name
	}
	return nil
}

// Normalize returns the canonical name of a unit spelling. Unknown units are
// returned trimmed with ok false.
func (t *Table) Normalize(unit string) (string, bool) {
	if name, ok := t.aliases[fold(unit)]; ok {
		return name, true
	}
	return strings.TrimSpace(unit), false
}

// Same reports whether two spellings name the same unit. Unknown spellings
// are compared case-insensitively.
func (t *Table) Same(a, b string) bool {
	na, _ := t.Normalize(a)
	nb, _ := t.Normalize(b)
	return fold(na) == fold(nb)
}

// Conversion returns the conversion from one unit to another. ok is false
// when either unit is unknown or their dimensions differ.
func (t *Table) Conversion(from, to string) (core.UnitConversion, bool) {
	fn, fok := t.Normalize(from)
	tn, tok := t.Normalize(to)
	if !fok || !tok {
		return core.UnitConversion{}, false
	}
	uf, ut := t.units[fn], t.units[tn]
	if uf.Dimension != ut.Dimension {
		return core.UnitConversion{}, false
	}
	return core.UnitConversion{
		From:   fn,
		To:     tn,
		Scale:  uf.Factor / ut.Factor,
		Offset: (uf.Offset - ut.Offset) / ut.Factor,
	}, true
}

func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
