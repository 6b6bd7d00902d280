package yolods

// VGG Image Annotator (VIA) specific functionality.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sensorable/yolods/logger"
)

// VIAShape describes the shape of an annotation.
type VIAShape struct {
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// VIARegionAnnotation is a single region annotation for a particular image in a VIA file.
type VIARegionAnnotation struct {
	Attributes map[string]string `json:"region_attributes"`
	Shape      VIAShape          `json:"shape_attributes"`
}

// VIAAnnotatedFile defines the VIA annotation structure for a single file.
type VIAAnnotatedFile struct {
	Annotations []VIARegionAnnotation `json:"regions"`
	FilePath    string                `json:"filename"`
	Size        int64                 `json:"size"`
}

// VIAProject defines the parts of the VIA project structure that are read.
type VIAProject struct {
	ImageMetadata map[string]VIAAnnotatedFile `json:"_via_img_metadata"`
}

// VIALabelAttribute is the region attribute holding the class name.
const VIALabelAttribute = "Label"

// FromVIA reads and parses a VIA project file at path. Image file names in the project are
// resolved relative to imageDir. Regions other than rectangles are skipped.
func FromVIA(path, imageDir string) ([]AnnotatedFile, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	var viaData VIAProject
	if err := json.Unmarshal(enc, &viaData); err != nil {
		return nil, fmt.Errorf("%w: failed to parse VIA input from %q: %v", ErrFormat, path, err)
	}

	// Map iteration order is random, sort the keys for reproducible output.
	keys := make([]string, 0, len(viaData.ImageMetadata))
	for k := range viaData.ImageMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make([]AnnotatedFile, 0, len(keys))
	skipped := 0
	for _, k := range keys {
		viaFile := viaData.ImageMetadata[k]
		fileData := AnnotatedFile{
			Annotations: make([]Annotation, 0, len(viaFile.Annotations)),
			FilePath:    filepath.Join(imageDir, viaFile.FilePath),
		}
		for _, a := range viaFile.Annotations {
			if a.Shape.Name != "rect" {
				skipped++
				continue
			}
			fileData.Annotations = append(fileData.Annotations, Annotation{
				Box: PixelBox{
					X1: a.Shape.X,
					Y1: a.Shape.Y,
					X2: a.Shape.X + a.Shape.Width,
					Y2: a.Shape.Y + a.Shape.Height,
				},
				Label: a.Attributes[VIALabelAttribute],
			})
		}
		data = append(data, fileData)
	}
	if skipped > 0 {
		logger.S().Warnf("Skipped %d non-rectangular VIA regions", skipped)
	}

	return data, nil
}
