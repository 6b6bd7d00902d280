package yolods

// Dataset consistency checks over an images directory and a labels directory.

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/sensorable/yolods/logger"
)

// FindingKind classifies a data quality problem.
type FindingKind int

// The finding kinds. None of them aborts a scan.
const (
	MissingLabel    FindingKind = iota // Image without a label file.
	OrphanLabel                        // Label file without an image.
	InvalidLine                        // Label line that failed to parse or has an unknown class.
	OutOfBounds                        // Valid box extending past the image edge (informational).
	UnreadableLabel                    // Label file that could not be read.
)

var findingKindNames = [...]string{
	MissingLabel:    "MissingLabel",
	OrphanLabel:     "OrphanLabel",
	InvalidLine:     "InvalidLine",
	OutOfBounds:     "OutOfBounds",
	UnreadableLabel: "UnreadableLabel",
}

func (k FindingKind) String() string {
	if k < 0 || int(k) >= len(findingKindNames) {
		return fmt.Sprintf("FindingKind(%d)", int(k))
	}
	return findingKindNames[k]
}

// MarshalText implements encoding.TextMarshaler, so kinds serialise by name.
func (k FindingKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Finding is a single data quality problem.
type Finding struct {
	Kind   FindingKind `yaml:"kind"`
	File   string      `yaml:"file"`
	Line   int         `yaml:"line,omitempty"` // 1-based, zero for file level findings.
	Reason string      `yaml:"reason,omitempty"`
}

// Report is the outcome of a dataset scan.
type Report struct {
	TotalImages  int                 `yaml:"total_images"`
	TotalLabels  int                 `yaml:"total_labels"`
	TotalRecords int                 `yaml:"total_records"` // Valid records.
	EmptyLabels  int                 `yaml:"empty_labels"`  // Label files without records.
	Counts       map[FindingKind]int `yaml:"finding_counts"`
	ClassCounts  map[int]int         `yaml:"class_counts"`
	Findings     []Finding           `yaml:"findings"`
}

// Count returns the number of findings of kind k.
func (r *Report) Count(k FindingKind) int {
	return r.Counts[k]
}

func (r *Report) add(f Finding) {
	r.Findings = append(r.Findings, f)
	r.Counts[f.Kind]++
}

// Validator checks that images and labels pair up and that every label line is well formed.
type Validator struct {
	NumClasses int // Declared class count; class ids must be below it. Zero disables the check.
	Workers    int // Concurrent label file parsers. Defaults to 2*runtime.NumCPU().
}

// labelResult is the outcome of checking one label file.
type labelResult struct {
	findings []Finding
	classes  map[int]int
	records  int
}

// Scan pairs the images in imagesDir with the label files in labelsDir by base name and parses
// every label file.
//
// Data quality problems are recorded in the returned Report. The error is non-nil (ErrIO) only if
// one of the directories cannot be read.
func (v *Validator) Scan(imagesDir, labelsDir string) (*Report, error) {
	imageFiles, err := filesByExtInDir(imagesDir, imageFileExts...)
	if err != nil {
		return nil, err
	}
	labelFiles, err := filesByExtInDir(labelsDir, LabelFileExt)
	if err != nil {
		return nil, err
	}
	labelFiles = withoutClassList(labelFiles)

	report := &Report{
		TotalImages: len(imageFiles),
		TotalLabels: len(labelFiles),
		Counts:      make(map[FindingKind]int),
		ClassCounts: make(map[int]int),
	}
	logger.S().Infof("Scanning %d images and %d label files", len(imageFiles), len(labelFiles))

	// Pair by base name.
	imagesByName := mapBaseNamesToPaths(imageFiles, func(kept, dropped string) {
		logger.S().Warnf("Images %q and %q share a base name, pairing %q", kept, dropped, kept)
	})
	labelsByName := mapBaseNamesToPaths(labelFiles, nil)
	for name, path := range imagesByName {
		if _, ok := labelsByName[name]; !ok {
			report.add(Finding{Kind: MissingLabel, File: path, Reason: "no " + name + LabelFileExt})
		}
	}
	for name, path := range labelsByName {
		if _, ok := imagesByName[name]; !ok {
			report.add(Finding{Kind: OrphanLabel, File: path, Reason: "no image named " + name})
		}
	}

	// Parse all label files concurrently, merging the results as they arrive.
	for res := range v.checkLabelFiles(labelFiles) {
		for _, f := range res.findings {
			report.add(f)
		}
		for id, n := range res.classes {
			report.ClassCounts[id] += n
		}
		report.TotalRecords += res.records
		if res.records == 0 && len(res.findings) == 0 {
			report.EmptyLabels++
		}
	}

	sortFindings(report.Findings)
	return report, nil
}

// checkLabelFiles fans the label files out to a bounded number of workers. The returned channel
// is closed once every file has been checked.
func (v *Validator) checkLabelFiles(paths []string) <-chan labelResult {
	numTasks := v.Workers
	if numTasks <= 0 {
		numTasks = 2 * runtime.NumCPU()
	}
	if len(paths) < numTasks {
		numTasks = len(paths)
	}

	workQueue := make(chan string, 2*numTasks+1)
	results := make(chan labelResult, 2*numTasks+1)

	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for path := range workQueue {
				results <- v.checkLabelFile(path)
			}
		}()
	}

	go func() {
		for _, p := range paths {
			workQueue <- p
		}
		close(workQueue)
		wg.Wait()
		close(results)
	}()

	return results
}

// checkLabelFile parses the label file at path and validates its records.
func (v *Validator) checkLabelFile(path string) labelResult {
	res := labelResult{classes: make(map[int]int)}

	records, bad, err := readLabelFileLines(path)
	if err != nil {
		res.findings = append(res.findings, Finding{Kind: UnreadableLabel, File: path,
			Reason: err.Error()})
		return res
	}

	for _, le := range bad {
		res.findings = append(res.findings, Finding{Kind: InvalidLine, File: path, Line: le.Line,
			Reason: le.Err.Error()})
	}
	for _, nr := range records {
		r := nr.record
		if v.NumClasses > 0 && r.ClassID >= v.NumClasses {
			res.findings = append(res.findings, Finding{Kind: InvalidLine, File: path, Line: nr.line,
				Reason: fmt.Sprintf("%v: class id %d, declared classes %d", ErrRange, r.ClassID,
					v.NumClasses)})
			continue
		}
		if !r.InBounds() {
			res.findings = append(res.findings, Finding{Kind: OutOfBounds, File: path, Line: nr.line,
				Reason: "box extends past the image edge"})
		}
		res.classes[r.ClassID]++
		res.records++
	}

	return res
}

// withoutClassList drops labelImg's classes.txt from a list of label file paths.
func withoutClassList(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if filepath.Base(p) == classListFile {
			continue
		}
		out = append(out, p)
	}
	return out
}

// sortFindings orders findings by file, line and kind.
func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Kind < b.Kind
	})
}
