package yolods

// YOLO label format: one "<class_id> <x_center> <y_center> <width> <height>" line per object,
// with the geometry normalised to the image width and height.

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LabelFileExt is the file extension of label files.
const LabelFileExt = ".txt"

// Record is a single object annotation within a label file.
type Record struct {
	ClassID int     // Index into the ordered class list.
	XCenter float64 // Box centre, fraction of the image width.
	YCenter float64 // Box centre, fraction of the image height.
	Width   float64 // Box width, fraction of the image width.
	Height  float64 // Box height, fraction of the image height.
}

// InBounds reports whether the box lies entirely within the image. Boxes of partially visible
// objects may extend past the edges.
func (r Record) InBounds() bool {
	const eps = 1e-6
	return r.XCenter-r.Width/2 >= -eps && r.XCenter+r.Width/2 <= 1+eps &&
		r.YCenter-r.Height/2 >= -eps && r.YCenter+r.Height/2 <= 1+eps
}

// ParseLine parses a single label line. Fields past the fifth are ignored.
func ParseLine(text string) (Record, error) {
	var r Record

	fields := strings.Fields(text)
	if len(fields) < 5 {
		return r, fmt.Errorf("%w: expected 5 fields, got %d in %q", ErrFormat, len(fields), text)
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil || id < 0 {
		return r, fmt.Errorf("%w: class id %q is not a non-negative integer", ErrFormat, fields[0])
	}
	r.ClassID = id

	names := [4]string{"x_center", "y_center", "width", "height"}
	values := [4]*float64{&r.XCenter, &r.YCenter, &r.Width, &r.Height}
	for i, p := range values {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s %q is not a number", ErrFormat, names[i], fields[i+1])
		}
		// Written so that NaN fails as well.
		if !(v >= 0 && v <= 1) {
			return Record{}, fmt.Errorf("%w: %s %v is outside [0, 1]", ErrRange, names[i], v)
		}
		*p = v
	}

	return r, nil
}

// FormatRecord renders r as a label line without the trailing newline.
func FormatRecord(r Record) string {
	return fmt.Sprintf("%d %.5f %.5f %.5f %.5f", r.ClassID, r.XCenter, r.YCenter, r.Width, r.Height)
}

// LineError describes a label line that failed to parse.
type LineError struct {
	Line int // 1-based.
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e LineError) Unwrap() error {
	return e.Err
}

// ReadLabelFile parses the label file at path. Blank lines are skipped and lines that fail to
// parse are returned as LineErrors instead of aborting the read.
//
// The returned error is only non-nil if the file could not be read.
func ReadLabelFile(path string) ([]Record, []LineError, error) {
	numbered, bad, err := readLabelFileLines(path)
	if err != nil {
		return nil, nil, err
	}

	records := make([]Record, len(numbered))
	for i, nr := range numbered {
		records[i] = nr.record
	}
	return records, bad, nil
}

// numberedRecord is a record with its 1-based line number.
type numberedRecord struct {
	record Record
	line   int
}

// readLabelFileLines is like ReadLabelFile but keeps the line numbers of the valid records.
func readLabelFileLines(path string) ([]numberedRecord, []LineError, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, nil, err
	}

	var records []numberedRecord
	var bad []LineError
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		r, err := ParseLine(line)
		if err != nil {
			bad = append(bad, LineError{Line: i + 1, Err: err})
			continue
		}
		records = append(records, numberedRecord{record: r, line: i + 1})
	}

	return records, bad, nil
}

// WriteLabelFile writes records to path, one line each, replacing any existing file.
func WriteLabelFile(path string, records []Record) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, r := range records {
		if _, err := fmt.Fprintln(w, FormatRecord(r)); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	return nil
}
