package yolods

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMissingLabel(t *testing.T) {
	imagesDir, labelsDir := makeDataset(t, t.TempDir())
	for _, name := range []string{"a.jpg", "b.png", "c.jpeg"} {
		writeText(t, filepath.Join(imagesDir, name), "not decoded")
	}
	writeText(t, filepath.Join(labelsDir, "a.txt"), "0 0.5 0.5 0.2 0.2")
	writeText(t, filepath.Join(labelsDir, "b.txt"), "1 0.5 0.5 0.2 0.2", "1 0.3 0.3 0.1 0.1")

	v := Validator{NumClasses: 2}
	report, err := v.Scan(imagesDir, labelsDir)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalImages)
	assert.Equal(t, 2, report.TotalLabels)
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, 1, report.Count(MissingLabel))
	assert.Equal(t, 0, report.Count(OrphanLabel))
	assert.Equal(t, 0, report.Count(InvalidLine))
	require.Len(t, report.Findings, 1)
	assert.Equal(t, filepath.Join(imagesDir, "c.jpeg"), report.Findings[0].File)
	assert.Equal(t, map[int]int{0: 1, 1: 2}, report.ClassCounts)
}

func TestScanFindings(t *testing.T) {
	imagesDir, labelsDir := makeDataset(t, t.TempDir())
	for _, name := range []string{"a.jpg", "b.jpg", "empty.JPG", "notes.md"} {
		writeText(t, filepath.Join(imagesDir, name), "x")
	}
	writeText(t, filepath.Join(labelsDir, "a.txt"),
		"0 0.5 0.5 0.2 0.2",
		"0 1.5 0.5 0.2 0.2", // Range.
		"7 0.5 0.5 0.2 0.2", // Unknown class.
		"1 0.5 0.5",         // Format.
		"2 0.02 0.5 0.1 0.1",
	)
	writeText(t, filepath.Join(labelsDir, "b.txt"), "car 0.5 0.5 0.2 0.2")
	writeText(t, filepath.Join(labelsDir, "empty.txt"))
	writeText(t, filepath.Join(labelsDir, "orphan.txt"), "0 0.5 0.5 0.2 0.2")
	writeText(t, filepath.Join(labelsDir, classListFile), "car", "truck", "bus")

	v := Validator{NumClasses: 3, Workers: 2}
	report, err := v.Scan(imagesDir, labelsDir)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalImages, "notes.md is not an image")
	assert.Equal(t, 4, report.TotalLabels, "classes.txt is not a label file")
	assert.Equal(t, 0, report.Count(MissingLabel))
	assert.Equal(t, 1, report.Count(OrphanLabel))
	assert.Equal(t, 4, report.Count(InvalidLine))
	assert.Equal(t, 1, report.Count(OutOfBounds))
	assert.Equal(t, 1, report.EmptyLabels)
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, map[int]int{0: 2, 2: 1}, report.ClassCounts)

	// Findings are sorted by file and line.
	aPath := filepath.Join(labelsDir, "a.txt")
	var aFindings []Finding
	for _, f := range report.Findings {
		if f.File == aPath {
			aFindings = append(aFindings, f)
		}
	}
	require.Len(t, aFindings, 4)
	assert.Equal(t, []int{2, 3, 4, 5}, []int{aFindings[0].Line, aFindings[1].Line,
		aFindings[2].Line, aFindings[3].Line})
	assert.Equal(t, []FindingKind{InvalidLine, InvalidLine, InvalidLine, OutOfBounds},
		[]FindingKind{aFindings[0].Kind, aFindings[1].Kind, aFindings[2].Kind, aFindings[3].Kind})
	assert.Contains(t, aFindings[1].Reason, "class id 7")
}

func TestScanWithoutClassCount(t *testing.T) {
	imagesDir, labelsDir := makeDataset(t, t.TempDir())
	writeText(t, filepath.Join(imagesDir, "a.png"), "x")
	writeText(t, filepath.Join(labelsDir, "a.txt"), "42 0.5 0.5 0.2 0.2")

	report, err := (&Validator{}).Scan(imagesDir, labelsDir)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Count(InvalidLine))
	assert.Equal(t, map[int]int{42: 1}, report.ClassCounts)
}

func TestScanDeterministic(t *testing.T) {
	imagesDir, labelsDir := makeDataset(t, t.TempDir())
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		writeText(t, filepath.Join(imagesDir, name+".jpg"), "x")
		writeText(t, filepath.Join(labelsDir, name+".txt"), "0 0.5 0.5 0.2 0.2", "9 0.5 0.5 0.2 0.2")
	}

	v := Validator{NumClasses: 1, Workers: 4}
	first, err := v.Scan(imagesDir, labelsDir)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := v.Scan(imagesDir, labelsDir)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScanUnreadableLabel(t *testing.T) {
	root := t.TempDir()
	imagesDir, labelsDir := makeDataset(t, root)
	for _, name := range []string{"broken.jpg", "ok.jpg"} {
		writeText(t, filepath.Join(imagesDir, name), "x")
	}
	writeText(t, filepath.Join(labelsDir, "ok.txt"), "0 0.5 0.5 0.2 0.2")
	// A dangling symlink is listed but cannot be opened.
	require.NoError(t, os.Symlink(filepath.Join(root, "gone.txt"),
		filepath.Join(labelsDir, "broken.txt")))

	report, err := (&Validator{NumClasses: 1}).Scan(imagesDir, labelsDir)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalLabels)
	assert.Equal(t, 1, report.Count(UnreadableLabel))
	assert.Equal(t, 0, report.Count(OrphanLabel))
	assert.Equal(t, 0, report.Count(MissingLabel))
	assert.Equal(t, 0, report.EmptyLabels)
	assert.Equal(t, 1, report.TotalRecords)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, filepath.Join(labelsDir, "broken.txt"), report.Findings[0].File)
	assert.Equal(t, UnreadableLabel, report.Findings[0].Kind)
}

func TestScanLongLines(t *testing.T) {
	imagesDir, labelsDir := makeDataset(t, t.TempDir())
	writeText(t, filepath.Join(imagesDir, "a.jpg"), "x")
	writeText(t, filepath.Join(labelsDir, "a.txt"),
		"0 0.5 0.5 0.2 0.2",
		"0 0.5 0.5 0.2 0.2 "+strings.Repeat("4", 70000),
		"1 0.5 0.5 "+strings.Repeat("9", 70000)+" 0.2",
		"1 0.5 0.5 0.2 0.2",
	)

	report, err := (&Validator{NumClasses: 2}).Scan(imagesDir, labelsDir)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Count(UnreadableLabel))
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, map[int]int{0: 2, 1: 1}, report.ClassCounts)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, InvalidLine, report.Findings[0].Kind)
	assert.Equal(t, 3, report.Findings[0].Line)
}

func TestScanMissingDirectory(t *testing.T) {
	root := t.TempDir()
	imagesDir, labelsDir := makeDataset(t, root)

	_, err := (&Validator{}).Scan(filepath.Join(root, "nope"), labelsDir)
	assert.ErrorIs(t, err, ErrIO)

	_, err = (&Validator{}).Scan(imagesDir, filepath.Join(root, "nope"))
	assert.ErrorIs(t, err, ErrIO)

	// A file is not a directory.
	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = (&Validator{}).Scan(file, labelsDir)
	assert.ErrorIs(t, err, ErrIO)
}

func TestFindingKindString(t *testing.T) {
	assert.Equal(t, "MissingLabel", MissingLabel.String())
	assert.Equal(t, "UnreadableLabel", UnreadableLabel.String())
	assert.Equal(t, "FindingKind(42)", FindingKind(42).String())
}
