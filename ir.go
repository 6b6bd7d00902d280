package yolods

// The intermediate pixel-space representation shared by the importers.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensorable/yolods/logger"
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Box   PixelBox // Absolute pixel coordinates.
	Label string   // Class name, resolved to a class id on output.
}

// AnnotatedFile is the intermediate representation of file metadata.
type AnnotatedFile struct {
	Annotations []Annotation
	FilePath    string // The annotated image.
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// MapLabels replaces label (sub-)strings with substitution values, as specified in mappings.
//
// The format of mappings is old=new.
func (data AnnotatedFiles) MapLabels(mappings []string) error {
	if len(mappings) == 0 {
		return nil
	}

	// Extract the individual old and new strings to map between.
	replacements := make([]struct{ old, new string }, len(mappings))
	for i, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return fmt.Errorf("%w: invalid label mapping %q", ErrConfig, v)
		}

		replacements[i].old = a[0]
		replacements[i].new = a[1]
	}

	// Apply the replacements, in order, to all labels.
	count := 0
	for _, f := range data {
		for i := range f.Annotations {
			a := &f.Annotations[i]

			oldLabel := a.Label
			for _, r := range replacements {
				a.Label = strings.ReplaceAll(a.Label, r.old, r.new)
			}

			if a.Label != oldLabel {
				count++
			}
		}
	}

	logger.S().Infof("The label mappings changed %d labels", count)
	return nil
}

// Filter drops annotations whose label is not in labelNames (an empty list keeps all labels) or
// whose box is narrower than minWidth or lower than minHeight pixels.
func (data AnnotatedFiles) Filter(labelNames []string, minWidth, minHeight float64) {
	keep := make(map[string]bool, len(labelNames))
	for _, l := range labelNames {
		keep[l] = true
	}

	var before, after int
	for i := range data {
		d := &data[i]
		before += len(d.Annotations)

		kept := d.Annotations[:0]
		for _, a := range d.Annotations {
			if len(keep) > 0 && !keep[a.Label] {
				continue
			}
			if a.Box.Width() < minWidth || a.Box.Height() < minHeight {
				continue
			}
			kept = append(kept, a)
		}
		d.Annotations = kept

		after += len(d.Annotations)
	}

	logger.S().Infof("Filtered out %d of %d labels", before-after, before)
}

// WriteYOLO converts data to normalised records and writes one label file per image to dirPath,
// named after the image. Label names are resolved against classNames; annotations with unknown
// labels or boxes outside the image are logged and skipped.
//
// Returns the number of label files written.
func WriteYOLO(dirPath string, data []AnnotatedFile, classNames []string) (int, error) {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return 0, fmt.Errorf("%w: cannot create directory %q: %v", ErrIO, dirPath, err)
	}

	classIDs := make(map[string]int, len(classNames))
	for i, name := range classNames {
		classIDs[name] = i
	}

	unknown := make(map[string]int)
	written := 0
	for _, fileData := range data {
		_, baseNoExt, _, err := splitPath(fileData.FilePath)
		if err != nil {
			logger.S().Warnf("Skipping %q: %v", fileData.FilePath, err)
			continue
		}

		// The normalisation needs the image size.
		img, _, err := decodeImageConfig(fileData.FilePath)
		if err != nil {
			logger.S().Warnf("Failed to decode the image metadata, skipping %q: %v",
				fileData.FilePath, err)
			continue
		}

		records := make([]Record, 0, len(fileData.Annotations))
		for _, a := range fileData.Annotations {
			id, ok := classIDs[a.Label]
			if !ok {
				unknown[a.Label]++
				continue
			}
			r, err := PixelToNormalized(id, a.Box, img.Width, img.Height)
			if err != nil {
				logger.S().Warnf("Skipping a %q box in %q: %v", a.Label, fileData.FilePath, err)
				continue
			}
			records = append(records, r)
		}

		if err := WriteLabelFile(filepath.Join(dirPath, baseNoExt+LabelFileExt), records); err != nil {
			return written, err
		}
		written++
	}

	for label, n := range unknown {
		logger.S().Warnf("Skipped %d annotations with label %q, which is not in the class list", n,
			label)
	}

	return written, nil
}
