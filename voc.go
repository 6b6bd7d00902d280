package yolods

// Pascal VOC XML specific functionality, as written by labelImg.

import (
	"encoding/xml"
	"fmt"
	"os"
)

// vocAnnotation mirrors the parts of a Pascal VOC annotation file that are used.
type vocAnnotation struct {
	XMLName  xml.Name `xml:"annotation"`
	Filename string   `xml:"filename"`
	Objects  []struct {
		Name   string `xml:"name"`
		BndBox struct {
			XMin float64 `xml:"xmin"`
			YMin float64 `xml:"ymin"`
			XMax float64 `xml:"xmax"`
			YMax float64 `xml:"ymax"`
		} `xml:"bndbox"`
	} `xml:"object"`
}

// FromVOC reads Pascal VOC annotations (<image>.xml) from annotationDir and matches them to the
// images in imageDir.
func FromVOC(annotationDir, imageDir string) ([]AnnotatedFile, error) {
	return parseLabelsWithOneToOneImages(annotationDir, ".xml", imageDir, parseVOCFile)
}

// parseVOCFile parses the annotation file at labelPath.
func parseVOCFile(labelPath, imagePath string) (fileData AnnotatedFile, err error) {
	file, err := os.Open(labelPath)
	if err != nil {
		return AnnotatedFile{}, err
	}
	defer closeWithErrCheck(file, &err)

	var data vocAnnotation
	if err := xml.NewDecoder(file).Decode(&data); err != nil {
		return AnnotatedFile{}, fmt.Errorf("%w: failed to parse VOC input from %q: %v", ErrFormat,
			labelPath, err)
	}

	fileData = AnnotatedFile{
		Annotations: make([]Annotation, len(data.Objects)),
		FilePath:    imagePath,
	}
	for i, obj := range data.Objects {
		box := obj.BndBox
		fileData.Annotations[i] = Annotation{
			Box:   PixelBox{X1: box.XMin, Y1: box.YMin, X2: box.XMax, Y2: box.YMax},
			Label: obj.Name,
		}
	}

	return fileData, nil
}
