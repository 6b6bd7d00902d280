package yolods

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBalance(t *testing.T) {
	r := &Report{ClassCounts: map[int]int{0: 10, 1: 5}}

	b := r.Balance(3)
	assert.Equal(t, 3, b.Classes)
	assert.InDelta(t, 5, b.Mean, 1e-9)
	assert.InDelta(t, 5, b.StdDev, 1e-9)
	assert.Equal(t, 0, b.MaxClass)
	assert.Equal(t, 10, b.MaxCount)
	assert.Equal(t, 2, b.MinClass)
	assert.Equal(t, 0, b.MinCount)
	assert.True(t, math.IsInf(b.Ratio, 1))

	// Without a declared class count only the seen classes are considered.
	b = r.Balance(0)
	assert.Equal(t, 2, b.Classes)
	assert.InDelta(t, 7.5, b.Mean, 1e-9)
	assert.Equal(t, 1, b.MinClass)
	assert.InDelta(t, 2, b.Ratio, 1e-9)

	assert.Equal(t, ClassBalance{}, (&Report{}).Balance(0))
}

func TestWriteYAML(t *testing.T) {
	r := &Report{
		TotalImages:  3,
		TotalLabels:  2,
		TotalRecords: 4,
		Counts:       map[FindingKind]int{MissingLabel: 1},
		ClassCounts:  map[int]int{0: 3, 1: 1},
		Findings:     []Finding{{Kind: MissingLabel, File: "images/c.jpg", Reason: "no c.txt"}},
	}

	var buf bytes.Buffer
	require.NoError(t, r.WriteYAML(&buf, 2, []string{"car", "truck"}))
	out := buf.String()
	assert.Contains(t, out, "total_images: 3")
	assert.Contains(t, out, "MissingLabel: 1")
	assert.Contains(t, out, "kind: MissingLabel")
	assert.Contains(t, out, "1: truck")

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	balance, ok := decoded["balance"].(map[string]interface{})
	require.True(t, ok, "balance section in %s", out)
	assert.Equal(t, 3, balance["max_count"])
}

func TestWriteClassChart(t *testing.T) {
	r := &Report{TotalImages: 2, TotalLabels: 2, TotalRecords: 3,
		ClassCounts: map[int]int{0: 2, 1: 1}}

	var buf bytes.Buffer
	require.NoError(t, WriteClassChart(&buf, r, 3, []string{"car", "truck"}))
	out := buf.String()
	assert.Contains(t, out, "Class distribution")
	assert.Contains(t, out, "truck")
}
