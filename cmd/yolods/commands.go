package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sensorable/yolods"
	"github.com/sensorable/yolods/logger"
)

// parseFlags parses args into fs, turning parse failures into usage errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return usagef("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

func runValidate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	imagesDir := fs.String("images", "", "The `path` to the image directory")
	labelsDir := fs.String("labels", "", "The `path` to the label directory")
	numClasses := fs.Int("classes", 0,
		"The declared number of classes; class ids must be below it (zero: number of -names)")
	namesPath := fs.String("names", "", "The class names `file` (data.yaml or one name per line)")
	workers := fs.Int("workers", 0, "The number of concurrent label parsers (zero: 2*CPUs)")
	htmlPath := fs.String("html", "", "Write a class distribution chart to this HTML `file`")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *imagesDir == "" || *labelsDir == "" {
		return usagef("validate: -images and -labels are required")
	}
	if *numClasses < 0 {
		return usagef("validate: -classes must not be negative")
	}
	names, err := loadNames(*namesPath)
	if err != nil {
		return err
	}
	if *numClasses == 0 {
		*numClasses = len(names)
	}

	v := yolods.Validator{NumClasses: *numClasses, Workers: *workers}
	report, err := v.Scan(filepath.Clean(*imagesDir), filepath.Clean(*labelsDir))
	if err != nil {
		return err
	}

	logger.S().Infow("Scan complete",
		"images", report.TotalImages,
		"labels", report.TotalLabels,
		"records", report.TotalRecords,
		"missing_labels", report.Count(yolods.MissingLabel),
		"orphan_labels", report.Count(yolods.OrphanLabel),
		"invalid_lines", report.Count(yolods.InvalidLine),
	)
	if err := report.WriteYAML(stdout, *numClasses, names); err != nil {
		return err
	}

	if *htmlPath != "" {
		f, err := os.Create(*htmlPath)
		if err != nil {
			return fmt.Errorf("%w: %v", yolods.ErrIO, err)
		}
		err = yolods.WriteClassChart(f, report, *numClasses, names)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("%w: %v", yolods.ErrIO, cerr)
		}
		if err != nil {
			return err
		}
		logger.S().Infof("Wrote the class chart to %s", *htmlPath)
	}

	return nil
}

// expandSplitArgs rewrites "-split A B C" into "-split=A,B,C" so that the three values can be
// given as separate arguments.
func expandSplitArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a != "-split" && a != "--split" {
			out = append(out, a)
			continue
		}

		// Collect up to three values that are numbers or do not look like flags.
		j := i + 1
		for j < len(args) && j-i <= 3 && isSplitValue(args[j]) {
			j++
		}
		if j-i-1 < 2 {
			out = append(out, a)
			continue
		}
		out = append(out, "-split="+strings.Join(args[i+1:j], ","))
		i = j - 1
	}
	return out
}

// isSplitValue reports whether a follows -split as one of its values. Negative numbers are
// values, so that they are rejected as proportions rather than as unknown flags.
func isSplitValue(a string) bool {
	if !strings.HasPrefix(a, "-") {
		return true
	}
	_, err := strconv.ParseFloat(a, 64)
	return err == nil
}

// parseProportions parses three comma-separated split values, either fractions (0.8,0.15,0.05)
// or percentages (80,15,5).
func parseProportions(s string) (yolods.Proportions, error) {
	parts := splitList(s)
	if len(parts) != 3 {
		return yolods.Proportions{}, usagef("-split needs three values (train val test), got %q", s)
	}
	var v [3]float64
	sum := 0.0
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return yolods.Proportions{}, usagef("invalid value in -split: %q", p)
		}
		v[i] = f
		sum += f
	}
	if math.Abs(sum-100) < 1e-6 {
		for i := range v {
			v[i] /= 100
		}
	}
	return yolods.Proportions{Train: v[0], Val: v[1], Test: v[2]}, nil
}

func runConvert(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	inputDir := fs.String("input", "", "The dataset `path` containing images/ and labels/")
	outputDir := fs.String("output", "", "The output dataset `path`")
	split := fs.String("split", "0.8,0.15,0.05",
		"The train, val and test `proportions`, as fractions or percentages")
	seed := fs.Int64("seed", 0, "The shuffle seed")
	namesPath := fs.String("names", "", "The class names `file` (data.yaml or one name per line)")
	resizeLonger := fs.Int("resize-longer", 0,
		"The target `length` for the longer side of the images (zero to keep aspect ratio)")
	resizeShorter := fs.Int("resize-shorter", 0,
		"The target `length` for the shorter side of the images (zero to keep aspect ratio)")
	downFilter := fs.String("downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	upFilter := fs.String("upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	jpegQuality := fs.Int("jpeg-quality", 90, "The quality to use when encoding JPEGs [1, 100]")
	tfRecord := fs.Bool("tfrecord", false, "Also write TFRecord files and a label map")
	numShards := fs.Int("num-shards", 1, "The number of TFRecord shard files per split")
	workers := fs.Int("workers", 0, "The number of concurrent file copies (zero: 2*CPUs)")
	if err := parseFlags(fs, expandSplitArgs(args)); err != nil {
		return err
	}

	if *inputDir == "" || *outputDir == "" {
		return usagef("convert: -input and -output are required")
	}
	if *resizeLonger < 0 || *resizeShorter < 0 {
		return usagef("convert: resize lengths must not be negative")
	}
	if *jpegQuality < 1 || *jpegQuality > 100 {
		return usagef("convert: -jpeg-quality must be in [1, 100]")
	}
	proportions, err := parseProportions(*split)
	if err != nil {
		return err
	}
	names, err := loadNames(*namesPath)
	if err != nil {
		return err
	}

	o := yolods.NewOrganizer(proportions, *seed)
	o.ClassNames = names
	o.ResizeLonger, o.ResizeShorter = *resizeLonger, *resizeShorter
	o.JPEGQuality = *jpegQuality
	o.TFRecord = *tfRecord
	o.NumShards = *numShards
	o.Workers = *workers
	var ok bool
	if o.DownsampleFilter, ok = yolods.ResampleFilter(*downFilter); !ok {
		return usagef("convert: unknown resampling filter %q", *downFilter)
	}
	if o.UpsampleFilter, ok = yolods.ResampleFilter(*upFilter); !ok {
		return usagef("convert: unknown resampling filter %q", *upFilter)
	}

	res, err := o.Convert(filepath.Clean(*inputDir), filepath.Clean(*outputDir))
	if err != nil {
		return err
	}

	for _, name := range yolods.SplitNames {
		_, _ = fmt.Fprintf(stdout, "%s: %d\n", name, len(res.Splits[name]))
	}
	_, _ = fmt.Fprintf(stdout, "skipped: %d unlabelled images, %d orphan labels\n",
		len(res.Unlabelled), len(res.Orphans))
	return nil
}

func runImport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	from := fs.String("from", "", "The source `format` {kitti, voc, via, sloth}")
	labels := fs.String("labels", "",
		"The `path` to the label input directory (kitti, voc) or file (via, sloth)")
	imagesDir := fs.String("images", "", "The `path` to the image directory")
	namesPath := fs.String("names", "", "The class names `file` (data.yaml or one name per line)")
	outputDir := fs.String("output", "", "The YOLO label output directory `path`")
	mapLabels := fs.String("map-labels", "",
		"Comma-separated list of old=new label (sub-)string replacements")
	filterLabels := fs.String("filter-labels", "",
		"Comma-separated list of labels to keep (after map-labels; empty keeps all)")
	minWidth := fs.Float64("min-bbox-width", 0,
		"The min. required width in `pixels` for object bounding boxes")
	minHeight := fs.Float64("min-bbox-height", 0,
		"The min. required height in `pixels` for object bounding boxes")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *labels == "" || *imagesDir == "" || *outputDir == "" || *namesPath == "" {
		return usagef("import: -labels, -images, -names and -output are required")
	}
	names, err := loadNames(*namesPath)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: no class names in %q", yolods.ErrConfig, *namesPath)
	}

	labelPath := filepath.Clean(*labels)
	images := filepath.Clean(*imagesDir)
	var data []yolods.AnnotatedFile
	switch *from {
	case "kitti":
		data, err = yolods.FromKitti(labelPath, images)
	case "voc":
		data, err = yolods.FromVOC(labelPath, images)
	case "via":
		data, err = yolods.FromVIA(labelPath, images)
	case "sloth":
		data, err = yolods.FromSloth(labelPath, images)
	default:
		return usagef("import: unsupported input format %q", *from)
	}
	if err != nil {
		return err
	}

	af := yolods.AnnotatedFiles(data)
	if err := af.MapLabels(splitList(*mapLabels)); err != nil {
		return err
	}
	af.Filter(splitList(*filterLabels), *minWidth, *minHeight)

	n, err := yolods.WriteYOLO(filepath.Clean(*outputDir), af, names)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "wrote %d label files to %s\n", n, *outputDir)
	return nil
}

func runPreview(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	imagePath := fs.String("image", "", "The image `file`")
	labelPath := fs.String("label", "", "The label `file`")
	outPath := fs.String("output", "", "The output image `file` (.png or .jpg)")
	lineWidth := fs.Int("line-width", 2, "The box outline width in `pixels`")
	maxSide := fs.Int("max-side", 0, "Resize the output so its longer side is this many `pixels`")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *imagePath == "" || *labelPath == "" || *outPath == "" {
		return usagef("preview: -image, -label and -output are required")
	}

	n, err := yolods.RenderPreview(filepath.Clean(*imagePath), filepath.Clean(*labelPath),
		filepath.Clean(*outPath), yolods.PreviewOptions{LineWidth: *lineWidth, MaxSide: *maxSide})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "drew %d boxes to %s\n", n, *outPath)
	return nil
}
