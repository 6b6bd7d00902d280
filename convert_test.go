package yolods

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeLabelledDataset writes n 40x20 PNGs with one label each (class i%3) under root, plus one
// unlabelled image and one orphan label.
func makeLabelledDataset(t *testing.T, root string, n int) {
	t.Helper()
	imagesDir, labelsDir := makeDataset(t, root)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("frame%02d", i)
		writePNG(t, filepath.Join(imagesDir, name+".png"), 40, 20)
		writeText(t, filepath.Join(labelsDir, name+".txt"),
			fmt.Sprintf("%d 0.50000 0.50000 0.25000 0.50000", i%3))
	}
	writePNG(t, filepath.Join(imagesDir, "unlabelled.png"), 40, 20)
	writeText(t, filepath.Join(labelsDir, "orphan.txt"), "0 0.5 0.5 0.1 0.1")
}

func readManifest(t *testing.T, path string) []string {
	t.Helper()
	lines, err := readLines(path)
	require.NoError(t, err)
	return lines
}

func TestConvert(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in")
	out := filepath.Join(t.TempDir(), "out")
	makeLabelledDataset(t, in, 20)

	o := NewOrganizer(Proportions{Train: 0.5, Val: 0.25, Test: 0.25}, 3)
	o.ClassNames = []string{"car", "truck", "bus"}
	res, err := o.Convert(in, out)
	require.NoError(t, err)

	assert.Len(t, res.Splits[SplitTrain], 10)
	assert.Len(t, res.Splits[SplitVal], 5)
	assert.Len(t, res.Splits[SplitTest], 5)
	assert.Equal(t, []string{filepath.Join(in, ImagesDirName, "unlabelled.png")}, res.Unlabelled)
	assert.Equal(t, []string{filepath.Join(in, LabelsDirName, "orphan.txt")}, res.Orphans)

	seen := make(map[string]bool)
	for _, split := range SplitNames {
		manifest := readManifest(t, filepath.Join(out, split+".txt"))
		assert.Len(t, manifest, len(res.Splits[split]))
		for _, line := range manifest {
			assert.True(t, strings.HasPrefix(line, "./images/"+split+"/"), line)
		}

		for _, p := range res.Splits[split] {
			assert.False(t, seen[p.Name], "%s in two splits", p.Name)
			seen[p.Name] = true
			assert.FileExists(t, p.ImagePath)
			assert.FileExists(t, p.LabelPath)
			assert.Equal(t, filepath.Join(out, LabelsDirName, split, p.Name+".txt"), p.LabelPath)
		}
	}
	assert.Len(t, seen, 20)

	d, err := ReadDescriptor(filepath.Join(out, DescriptorFile))
	require.NoError(t, err)
	assert.Equal(t, "images/train", d.Train)
	assert.Equal(t, "images/val", d.Val)
	assert.Equal(t, "images/test", d.Test)
	assert.Equal(t, 3, d.NC)
	assert.Equal(t, ClassNames{"car", "truck", "bus"}, d.Names)
	assert.True(t, filepath.IsAbs(d.Path))

	// The validator agrees with the output.
	for _, split := range SplitNames {
		report, err := (&Validator{NumClasses: 3}).Scan(filepath.Join(out, ImagesDirName, split),
			filepath.Join(out, LabelsDirName, split))
		require.NoError(t, err)
		assert.Empty(t, report.Findings, "split %s", split)
	}
}

func TestConvertDeterministic(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in")
	makeLabelledDataset(t, in, 12)
	p := Proportions{Train: 0.5, Val: 0.25, Test: 0.25}

	first := filepath.Join(t.TempDir(), "a")
	second := filepath.Join(t.TempDir(), "b")
	_, err := NewOrganizer(p, 9).Convert(in, first)
	require.NoError(t, err)
	_, err = NewOrganizer(p, 9).Convert(in, second)
	require.NoError(t, err)

	for _, split := range SplitNames {
		assert.Equal(t, readManifest(t, filepath.Join(first, split+".txt")),
			readManifest(t, filepath.Join(second, split+".txt")), "split %s", split)
	}
}

func TestConvertDerivedClassNames(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in")
	out := filepath.Join(t.TempDir(), "out")
	makeLabelledDataset(t, in, 4)

	res, err := NewOrganizer(Proportions{Train: 1}, 0).Convert(in, out)
	require.NoError(t, err)
	assert.Equal(t, ClassNames{"0", "1", "2"}, res.Descriptor.Names)
	assert.Empty(t, res.Splits[SplitVal])

	// Empty splits still get a manifest and directories.
	assert.FileExists(t, filepath.Join(out, SplitTest+".txt"))
	assert.DirExists(t, filepath.Join(out, ImagesDirName, SplitTest))
}

func TestConvertResize(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in")
	out := filepath.Join(t.TempDir(), "out")
	makeLabelledDataset(t, in, 2)

	o := NewOrganizer(Proportions{Train: 1}, 0)
	o.ResizeLonger = 20
	res, err := o.Convert(in, out)
	require.NoError(t, err)

	for _, p := range res.Splits[SplitTrain] {
		cfg, format, err := decodeImageConfig(p.ImagePath)
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, 20, cfg.Width)
		assert.Equal(t, 10, cfg.Height)

		// Normalised labels do not change.
		records, _, err := ReadLabelFile(p.LabelPath)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 0.25, records[0].Width)
	}
}

func TestConvertTFRecord(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in")
	out := filepath.Join(t.TempDir(), "out")
	makeLabelledDataset(t, in, 4)

	o := NewOrganizer(Proportions{Train: 0.5, Val: 0.5}, 0)
	o.ClassNames = []string{"car", "truck", "bus"}
	o.TFRecord = true
	_, err := o.Convert(in, out)
	require.NoError(t, err)

	for _, split := range SplitNames {
		assert.FileExists(t, filepath.Join(out, split+".tfrecord"))
	}
	info, err := os.Stat(filepath.Join(out, SplitTrain+".tfrecord"))
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
	info, err = os.Stat(filepath.Join(out, SplitTest+".tfrecord"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	labelMap, err := os.ReadFile(filepath.Join(out, TFRecordLabelMapFile))
	require.NoError(t, err)
	assert.Equal(t, "item {\n  name: \"car\"\n  id: 1\n}\n"+
		"item {\n  name: \"truck\"\n  id: 2\n}\n"+
		"item {\n  name: \"bus\"\n  id: 3\n}\n", string(labelMap))
}

func TestConvertErrors(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in")
	makeLabelledDataset(t, in, 2)

	_, err := NewOrganizer(Proportions{Train: 0.5, Val: 0.25, Test: 0.2}, 0).
		Convert(in, t.TempDir())
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewOrganizer(Proportions{Train: 1}, 0).Convert(in, in+string(filepath.Separator))
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewOrganizer(Proportions{Train: 1}, 0).
		Convert(filepath.Join(t.TempDir(), "missing"), t.TempDir())
	assert.ErrorIs(t, err, ErrIO)
}

func TestOutputImageName(t *testing.T) {
	o := NewOrganizer(Proportions{Train: 1}, 0)
	assert.Equal(t, "a.bmp", o.outputImageName("/in/a.bmp"))

	o.ResizeShorter = 100
	assert.Equal(t, "a.jpg", o.outputImageName("/in/a.bmp"))
	assert.Equal(t, "b.PNG", o.outputImageName("/in/b.PNG"))
	assert.Equal(t, "c.jpeg", o.outputImageName("/in/c.jpeg"))
}
