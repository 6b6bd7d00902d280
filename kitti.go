package yolods

// KITTI specific functionality.

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sensorable/yolods/logger"
)

// FromKitti reads and parses KITTI annotations from labelDir and matches them to the images in
// imageDir, with identical base name except for the file extension.
func FromKitti(labelDir, imageDir string) ([]AnnotatedFile, error) {
	return parseLabelsWithOneToOneImages(labelDir, LabelFileExt, imageDir, parseKittiFile)
}

// parseKittiFile parses the KITTI label file at labelPath. Malformed lines are logged and
// skipped.
func parseKittiFile(labelPath, imagePath string) (AnnotatedFile, error) {
	lines, err := readLines(labelPath)
	if err != nil {
		return AnnotatedFile{}, err
	}

	annotations := make([]Annotation, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		a, err := parseKittiAnnotation(line)
		if err != nil {
			logger.S().Warnf("Error while parsing %q line %d, skipping: %v", labelPath, i+1, err)
			continue
		}
		annotations = append(annotations, a)
	}

	return AnnotatedFile{Annotations: annotations, FilePath: imagePath}, nil
}

// parseKittiAnnotation parses the line of values for a single annotation. Only the type and the
// 2D bounding box (fields 5-8) are used.
func parseKittiAnnotation(line string) (Annotation, error) {
	a := Annotation{}

	tokens := strings.Fields(line)
	if len(tokens) < 8 {
		return a, fmt.Errorf("%w: insufficient tokens in %q", ErrFormat, line)
	}

	a.Label = tokens[0]
	var coords [4]float64
	var err error
	for i := 4; i < 8 && err == nil; i++ {
		coords[i-4], err = strconv.ParseFloat(tokens[i], 64)
	}
	if err != nil {
		return a, fmt.Errorf("%w: unexpected values in %q: %v", ErrFormat, line, err)
	}
	a.Box = PixelBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}

	return a, nil
}
