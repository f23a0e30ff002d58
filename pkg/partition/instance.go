package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/partbench/pkg/errors"
)

// Instance is an ordered list of item lengths to split into two sides.
type Instance struct {
	Name    string    `json:"name,omitempty" yaml:"name,omitempty"`
	Source  string    `json:"source,omitempty" yaml:"source,omitempty"`
	Lengths []float64 `json:"lengths" yaml:"lengths"`
}

// Total returns the sum of all lengths.
func (in Instance) Total() float64 {
	var total float64
	for _, v := range in.Lengths {
		total += v
	}
	return total
}

// Built-in instance names.
const (
	BP20First15 = "bp20_first_15"
	Figure21    = "figure_21"
)

// DefaultFigure21Path is where the figure_21 instance file is expected.
const DefaultFigure21Path = "datasets/disponibilizada/figure_2_1.json"

var bp20First15 = []float64{
	1.1, 4.3, 3.9, 1.6, 2.7,
	2.5, 3.4, 4.0, 0.9, 0.6,
	4.3, 2.4, 3.9, 0.5, 2.5,
}

// instanceFile mirrors the on-disk layout. Lengths stay untyped so that
// non-numeric entries are reported instead of silently failing to decode.
type instanceFile struct {
	Name    string `yaml:"name"`
	Source  string `yaml:"source"`
	Lengths []any  `yaml:"lengths"`
}

// ParseInstance decodes a JSON or YAML instance document.
func ParseInstance(data []byte, fallbackName string) (Instance, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Instance{}, errors.NewError(errors.CodeInvalidInput, "invalid instance document", err)
	}
	if _, ok := doc["lengths"]; !ok {
		return Instance{}, errors.InvalidInput("instance document has no lengths field")
	}

	var file instanceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Instance{}, errors.NewError(errors.CodeInvalidInput, "invalid instance document", err)
	}

	lengths, err := ValidateValues(file.Lengths, 0)
	if err != nil {
		return Instance{}, err
	}

	name := file.Name
	if name == "" {
		name = fallbackName
	}
	return Instance{Name: name, Source: file.Source, Lengths: lengths}, nil
}

// LoadInstance reads an instance file from disk.
func LoadInstance(path string) (Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Instance{}, errors.NewError(errors.CodeInvalidInput, fmt.Sprintf("cannot read instance file %s", path), err)
	}
	return ParseInstance(data, stem(path))
}

// BuiltinInstance resolves one of the named instances shipped with partbench.
func BuiltinInstance(name string) (Instance, error) {
	switch name {
	case BP20First15:
		lengths := make([]float64, len(bp20First15))
		copy(lengths, bp20First15)
		return Instance{Name: BP20First15, Source: "bp20 (first 15 items)", Lengths: lengths}, nil
	case Figure21:
		if _, err := os.Stat(DefaultFigure21Path); err != nil {
			return Instance{}, errors.NewError(errors.CodeInvalidInput,
				fmt.Sprintf("figure 2.1 instance file not found, expected %s", DefaultFigure21Path), err)
		}
		in, err := LoadInstance(DefaultFigure21Path)
		if err != nil {
			return Instance{}, err
		}
		in.Name = Figure21
		return in, nil
	default:
		return Instance{}, errors.InvalidInput("unknown instance: %s", name)
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
