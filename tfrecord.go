package yolods

// TFRecord object detection specific functionality.

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow

	"github.com/sensorable/yolods/logger"
)

// TFRecordLabelMapFile is the file name of the label map written next to the TFRecord files.
const TFRecordLabelMapFile = "label_map.pbtxt"

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatureMap builds the object detection features for one image and its label file. Label
// map ids are the class ids plus one, as id 0 is reserved for the background.
func toTFFeatureMap(p Pair, classNames []string) (TFFeatureMap, error) {
	img, format, err := decodeImageConfig(p.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}
	imgData, err := os.ReadFile(p.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}
	records, bad, err := ReadLabelFile(p.LabelPath)
	if err != nil {
		return nil, err
	}
	if len(bad) > 0 {
		logger.S().Warnf("Skipping %d invalid lines in %q, first: %v", len(bad), p.LabelPath, bad[0])
	}

	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = p.ImagePath
	f["image/source_id"] = p.Name
	f["image/encoded"] = imgData
	f["image/format"] = format

	n := len(records)
	xmins := make([]float32, n)
	ymins := make([]float32, n)
	xmaxs := make([]float32, n)
	ymaxs := make([]float32, n)
	classes := make([]string, n)
	classIDs := make([]int64, n)
	clamp := func(v float64) float32 {
		return float32(math.Max(0, math.Min(1, v)))
	}
	for i, r := range records {
		xmins[i] = clamp(r.XCenter - r.Width/2)
		ymins[i] = clamp(r.YCenter - r.Height/2)
		xmaxs[i] = clamp(r.XCenter + r.Width/2)
		ymaxs[i] = clamp(r.YCenter + r.Height/2)
		classes[i] = className(classNames, r.ClassID)
		classIDs[i] = int64(r.ClassID + 1)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord converts the pairs to tensorflow.Example records and writes them to one or more
// TFRecord files at recordFilePath, with a "-xxxxx-of-yyyyy" suffix when numShards > 1.
//
// Pairs that fail to convert are logged and skipped.
func WriteTFRecord(recordFilePath string, pairs []Pair, classNames []string, numShards int) (
	err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("%w: conversion to TensorFlow Example failed: %v", ErrFormat, e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}
	shardSize := int(math.Ceil(float64(len(pairs)) / float64(numShards)))
	if shardSize == 0 {
		shardSize = 1
	}

	var shardFile *os.File
	closeShard := func() error {
		if shardFile == nil {
			return nil
		}
		err := shardFile.Close()
		shardFile = nil
		return err
	}
	defer func() {
		if cerr := closeShard(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrIO, cerr)
		}
	}()

	// An empty split still gets an (empty) record file.
	if len(pairs) == 0 {
		shardFile, err = os.Create(recordFilePath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		return nil
	}

	shardIdx := -1
	for i, p := range pairs {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++
			if err := closeShard(); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmt.Sprintf("-%05d-of-%05d", shardIdx, numShards)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("%w: failed to create shard at %q: %v", ErrIO, shardPath, err)
			}
			shardFile = f
		}

		features, err := toTFFeatureMap(p, classNames)
		if err != nil {
			logger.S().Warnf("Failed to convert %q: %v", p.ImagePath, err)
			continue
		}

		if err := writeTFRecordExample(shardFile, example.New(features)); err != nil {
			return fmt.Errorf("%w: failed to write example: %v", ErrIO, err)
		}
	}

	return nil
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// WriteTFRecordLabelMap writes the class names as a StringIntLabelMap in prototxt format, with
// ids starting at 1.
func WriteTFRecordLabelMap(path string, classNames []string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: failed to create the label map file %q: %v", ErrIO, path, err)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for i, name := range classNames {
		_, err := fmt.Fprintf(w, "item {\n  name: %s\n  id: %d\n}\n", strconv.Quote(name), i+1)
		if err != nil {
			return fmt.Errorf("%w: failed to write the label map %q: %v", ErrIO, path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: failed to write the label map %q: %v", ErrIO, path, err)
	}
	return nil
}
