package yolods

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// ClassBalance summarises how evenly the records are spread across classes.
type ClassBalance struct {
	Classes  int     `yaml:"classes"`
	Mean     float64 `yaml:"mean"`
	StdDev   float64 `yaml:"stddev"`
	MinClass int     `yaml:"min_class"`
	MinCount int     `yaml:"min_count"`
	MaxClass int     `yaml:"max_class"`
	MaxCount int     `yaml:"max_count"`
	Ratio    float64 `yaml:"ratio"` // MaxCount/MinCount, +Inf if a class has no records.
}

// ClassIDs returns the class ids to report on: 0..numClasses-1 if numClasses > 0, otherwise the
// ids seen during the scan, in ascending order.
func (r *Report) ClassIDs(numClasses int) []int {
	if numClasses > 0 {
		ids := make([]int, numClasses)
		for i := range ids {
			ids[i] = i
		}
		return ids
	}

	ids := make([]int, 0, len(r.ClassCounts))
	for id := range r.ClassCounts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Balance computes the class distribution statistics over ClassIDs(numClasses). Declared classes
// without any record count as zero.
func (r *Report) Balance(numClasses int) ClassBalance {
	ids := r.ClassIDs(numClasses)
	if len(ids) == 0 {
		return ClassBalance{}
	}

	counts := make([]float64, len(ids))
	b := ClassBalance{
		Classes:  len(ids),
		MinClass: ids[0],
		MinCount: r.ClassCounts[ids[0]],
		MaxClass: ids[0],
		MaxCount: r.ClassCounts[ids[0]],
	}
	for i, id := range ids {
		n := r.ClassCounts[id]
		counts[i] = float64(n)
		if n < b.MinCount {
			b.MinClass, b.MinCount = id, n
		}
		if n > b.MaxCount {
			b.MaxClass, b.MaxCount = id, n
		}
	}

	if len(counts) > 1 {
		b.Mean, b.StdDev = stat.MeanStdDev(counts, nil)
	} else {
		b.Mean = counts[0]
	}
	switch {
	case b.MinCount > 0:
		b.Ratio = float64(b.MaxCount) / float64(b.MinCount)
	case b.MaxCount > 0:
		b.Ratio = math.Inf(1)
	}

	return b
}

// reportSummary is the serialised form of a Report.
type reportSummary struct {
	Report  `yaml:",inline"`
	Balance ClassBalance   `yaml:"balance"`
	Names   map[int]string `yaml:"class_names,omitempty"`
}

// WriteYAML writes the report, its class balance and the optional class names to w.
func (r *Report) WriteYAML(w io.Writer, numClasses int, names []string) error {
	s := reportSummary{Report: *r, Balance: r.Balance(numClasses)}
	if len(names) > 0 {
		s.Names = make(map[int]string, len(names))
		for i, n := range names {
			s.Names[i] = n
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("%w: failed to write the report: %v", ErrIO, err)
	}
	return enc.Close()
}
