package yolods

// Materialises a train/val/test split of a dataset on disk.

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/sensorable/yolods/logger"
)

// Input and output dataset layout: <root>/images/... and <root>/labels/...
const (
	ImagesDirName = "images"
	LabelsDirName = "labels"
)

// Organizer splits a dataset and writes it in the layout expected by YOLO training frameworks:
//
//	<out>/images/{train,val,test}/
//	<out>/labels/{train,val,test}/
//	<out>/{train,val,test}.txt   split manifests, one image path per line
//	<out>/data.yaml              dataset descriptor
type Organizer struct {
	Proportions Proportions
	Seed        int64
	ClassNames  []string // Empty to derive numeric names from the largest class id seen.

	// Image resizing, disabled if both are zero. See resizeImage.
	ResizeLonger, ResizeShorter int
	DownsampleFilter            imaging.ResampleFilter
	UpsampleFilter              imaging.ResampleFilter
	JPEGQuality                 int

	TFRecord  bool // Also write <out>/<split>.tfrecord and <out>/label_map.pbtxt.
	NumShards int  // TFRecord shards per split.
	Workers   int  // Concurrent file copies. Defaults to 2*runtime.NumCPU().
}

// NewOrganizer returns an Organizer with the default filters and JPEG quality.
func NewOrganizer(p Proportions, seed int64) *Organizer {
	return &Organizer{
		Proportions:      p,
		Seed:             seed,
		DownsampleFilter: imaging.Box,
		UpsampleFilter:   imaging.Linear,
		JPEGQuality:      90,
		NumShards:        1,
	}
}

// ConvertResult summarises a Convert run.
type ConvertResult struct {
	Splits     map[string][]Pair // The output pairs per split.
	Unlabelled []string          // Input images skipped for lack of a label file.
	Orphans    []string          // Input label files skipped for lack of an image.
	Descriptor *Descriptor
}

func (o *Organizer) resizing() bool {
	return o.ResizeLonger > 0 || o.ResizeShorter > 0
}

// Convert splits the dataset under inputDir and writes it to outputDir. Incomplete pairs are
// logged and skipped. Any failure to write the output is fatal.
func (o *Organizer) Convert(inputDir, outputDir string) (*ConvertResult, error) {
	if err := o.Proportions.Validate(); err != nil {
		return nil, err
	}
	if filepath.Clean(inputDir) == filepath.Clean(outputDir) {
		return nil, fmt.Errorf("%w: the input and output directories cannot be identical", ErrConfig)
	}

	pairs, unlabelled, orphans, err := PairFiles(filepath.Join(inputDir, ImagesDirName),
		filepath.Join(inputDir, LabelsDirName))
	if err != nil {
		return nil, err
	}
	if len(unlabelled) > 0 || len(orphans) > 0 {
		logger.S().Warnf("Skipping %d images without labels and %d labels without images",
			len(unlabelled), len(orphans))
	}

	splits, err := Assign(pairs, o.Proportions, o.Seed)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]Pair, len(splits))
	for _, name := range SplitNames {
		written, err := o.writeSplit(outputDir, name, splits[name])
		if err != nil {
			return nil, err
		}
		out[name] = written
		logger.S().Infof("Wrote %d pairs to the %s split", len(written), name)
	}

	names, err := o.classNames(pairs)
	if err != nil {
		return nil, err
	}
	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		absOut = outputDir
	}
	d := &Descriptor{
		Path:  absOut,
		Train: ImagesDirName + "/" + SplitTrain,
		Val:   ImagesDirName + "/" + SplitVal,
		Test:  ImagesDirName + "/" + SplitTest,
		NC:    len(names),
		Names: names,
	}
	if err := WriteDescriptor(filepath.Join(outputDir, DescriptorFile), d); err != nil {
		return nil, err
	}

	if o.TFRecord {
		for _, name := range SplitNames {
			recordPath := filepath.Join(outputDir, name+".tfrecord")
			if err := WriteTFRecord(recordPath, out[name], names, o.NumShards); err != nil {
				return nil, err
			}
		}
		if err := WriteTFRecordLabelMap(filepath.Join(outputDir, TFRecordLabelMapFile), names); err != nil {
			return nil, err
		}
	}

	return &ConvertResult{Splits: out, Unlabelled: unlabelled, Orphans: orphans, Descriptor: d}, nil
}

// classNames returns o.ClassNames, or numeric names covering the largest class id in pairs.
func (o *Organizer) classNames(pairs []Pair) ([]string, error) {
	maxID := -1
	for _, p := range pairs {
		records, _, err := ReadLabelFile(p.LabelPath)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if r.ClassID > maxID {
				maxID = r.ClassID
			}
		}
	}
	if len(o.ClassNames) > maxID {
		return o.ClassNames, nil
	}
	if len(o.ClassNames) > 0 {
		logger.S().Warnf("The labels use class id %d but only %d class names are known", maxID,
			len(o.ClassNames))
	}
	return classNamesOrIDs(o.ClassNames, maxID+1), nil
}

// writeSplit copies (and optionally resizes) the pairs of one split into outputDir and writes
// the split manifest. Returns the pairs with their output paths.
func (o *Organizer) writeSplit(outputDir, split string, pairs []Pair) ([]Pair, error) {
	imageDir := filepath.Join(outputDir, ImagesDirName, split)
	labelDir := filepath.Join(outputDir, LabelsDirName, split)
	for _, dir := range []string{imageDir, labelDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: cannot create directory %q: %v", ErrIO, dir, err)
		}
	}

	written := make([]Pair, len(pairs))
	for i, p := range pairs {
		written[i] = Pair{
			Name:      p.Name,
			ImagePath: filepath.Join(imageDir, o.outputImageName(p.ImagePath)),
			LabelPath: filepath.Join(labelDir, filepath.Base(p.LabelPath)),
		}
	}

	if err := o.copyPairs(pairs, written); err != nil {
		return nil, err
	}
	if err := writeManifest(filepath.Join(outputDir, split+".txt"), outputDir, written); err != nil {
		return nil, err
	}

	return written, nil
}

// outputImageName returns the file name of the image at path in the output. Resized images are
// re-encoded as PNG if they were PNG and as JPEG otherwise.
func (o *Organizer) outputImageName(path string) string {
	name := filepath.Base(path)
	if !o.resizing() {
		return name
	}
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg":
		return name
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}

// copyPairs copies src[i] to dst[i] for all i using a bounded number of goroutines. Returns the
// first error encountered.
func (o *Organizer) copyPairs(src, dst []Pair) error {
	numTasks := o.Workers
	if numTasks <= 0 {
		numTasks = 2 * runtime.NumCPU()
	}
	if len(src) < numTasks {
		numTasks = len(src)
	}
	workQueue := make(chan int, 2*numTasks+1)

	errors := make(chan error, 1)
	trySendError := func(err error) {
		select {
		case errors <- err:
		default:
		}
	}

	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for idx := range workQueue {
				if err := o.copyPair(src[idx], dst[idx]); err != nil {
					trySendError(err)
				}
			}
		}()
	}

	for i := range src {
		workQueue <- i
	}
	close(workQueue)
	wg.Wait()

	close(errors)
	if err, ok := <-errors; ok {
		return err
	}
	return nil
}

// copyPair copies one pair. Labels are copied verbatim since normalised coordinates are
// independent of the image size.
func (o *Organizer) copyPair(src, dst Pair) error {
	if err := copyFile(dst.LabelPath, src.LabelPath); err != nil {
		return fmt.Errorf("%w: failed to copy %q: %v", ErrIO, src.LabelPath, err)
	}

	if !o.resizing() {
		if err := copyFile(dst.ImagePath, src.ImagePath); err != nil {
			return fmt.Errorf("%w: failed to copy %q: %v", ErrIO, src.ImagePath, err)
		}
		return nil
	}

	img, _, err := loadImage(src.ImagePath)
	if err != nil {
		return fmt.Errorf("%w: failed to decode %q: %v", ErrIO, src.ImagePath, err)
	}
	img = resizeImage(img, o.ResizeLonger, o.ResizeShorter, o.DownsampleFilter, o.UpsampleFilter)
	if err := saveImage(dst.ImagePath, img, o.JPEGQuality); err != nil {
		return fmt.Errorf("%w: failed to write %q: %v", ErrIO, dst.ImagePath, err)
	}
	return nil
}

// writeManifest writes the image paths of pairs, relative to root, one per line.
func writeManifest(path, root string, pairs []Pair) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, p := range pairs {
		rel, err := filepath.Rel(root, p.ImagePath)
		if err != nil {
			rel = p.ImagePath
		}
		if _, err := fmt.Fprintln(w, "./"+filepath.ToSlash(rel)); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
