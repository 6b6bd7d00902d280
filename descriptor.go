package yolods

// The dataset descriptor (data.yaml) read by YOLO training frameworks.

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DescriptorFile is the file name of the dataset descriptor.
const DescriptorFile = "data.yaml"

// ClassNames is the ordered class list. In YAML it is either a sequence of names or a mapping
// from class id to name.
type ClassNames []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *ClassNames) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*c = names
		return nil
	case yaml.MappingNode:
		var m map[int]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		ids := make([]int, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		names := make([]string, len(ids))
		for i, id := range ids {
			if id != i {
				return fmt.Errorf("class ids must be contiguous from 0, missing %d", i)
			}
			names[i] = m[id]
		}
		*c = names
		return nil
	}
	return fmt.Errorf("line %d: names must be a sequence or a mapping", node.Line)
}

// Descriptor describes a dataset: where the split images live and the class names.
type Descriptor struct {
	Path  string     `yaml:"path,omitempty"` // Dataset root; the split dirs are relative to it.
	Train string     `yaml:"train"`
	Val   string     `yaml:"val"`
	Test  string     `yaml:"test,omitempty"`
	NC    int        `yaml:"nc"`
	Names ClassNames `yaml:"names"`
}

// ReadDescriptor reads and checks the descriptor at path.
func ReadDescriptor(path string) (*Descriptor, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(enc, &d); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %q: %v", ErrConfig, path, err)
	}
	if d.NC == 0 {
		d.NC = len(d.Names)
	}
	if d.NC != len(d.Names) {
		return nil, fmt.Errorf("%w: %q declares nc=%d but lists %d names", ErrConfig, path, d.NC,
			len(d.Names))
	}

	return &d, nil
}

// WriteDescriptor writes d to path.
func WriteDescriptor(path string, d *Descriptor) error {
	enc, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("%w: cannot write file %q: %v", ErrIO, path, err)
	}
	return nil
}

// LoadClassNames reads the class names from either a descriptor (.yaml or .yml) or a plain text
// class list with one name per line, as written by labelImg.
func LoadClassNames(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		d, err := ReadDescriptor(path)
		if err != nil {
			return nil, err
		}
		return d.Names, nil
	}

	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			names = append(names, l)
		}
	}
	return names, nil
}

// classNamesOrIDs returns names if it covers numClasses classes, otherwise the ids as names.
func classNamesOrIDs(names []string, numClasses int) []string {
	if len(names) >= numClasses {
		return names
	}
	out := make([]string, numClasses)
	for i := range out {
		if i < len(names) {
			out[i] = names[i]
		} else {
			out[i] = strconv.Itoa(i)
		}
	}
	return out
}
