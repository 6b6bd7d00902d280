package yolods

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sensorable/yolods/logger"
)

// imageFileExts are the file extensions recognised as images (lower case, with the dot).
var imageFileExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// classListFile is the class list that labelImg writes next to the label files.
const classListFile = "classes.txt"

// filesByExtInDir returns all regular files found directly in directory dirPath whose file
// extension matches one of exts, case-insensitively. All files are returned if exts is empty.
//
// The result is sorted by path.
func filesByExtInDir(dirPath string, exts ...string) (files []string, err error) {
	dirInfo, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read directory %q: %v", ErrIO, dirPath, err)
	}
	if !dirInfo.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrIO, dirPath)
	}
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to access %q: %v", ErrIO, dirPath, err)
	}
	defer closeWithErrCheck(dir, &err)

	hasExt := func(name string) bool {
		if len(exts) == 0 {
			return true
		}
		ext := strings.ToLower(filepath.Ext(name))
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}

	// Iterate over all files in dir.
	files = make([]string, 0, 100)
	var fileList []os.FileInfo
	for fileList, err = dir.Readdir(100); len(fileList) > 0; fileList, err = dir.Readdir(100) {
		for _, file := range fileList {
			name := file.Name()
			// Must be a regular file or a symlink and have one of the requested extensions.
			if (!file.Mode().IsRegular() && (file.Mode()&os.ModeSymlink == 0)) || !hasExt(name) {
				continue
			}
			files = append(files, filepath.Join(dirPath, name))
		}
	}
	if err != nil && err != io.EOF {
		logger.S().Warnf("Failed to access some files in %q: %v", dirPath, err)
	}
	err = nil

	sort.Strings(files)
	return files, nil
}

// splitPath splits the given file path into the dir name, the base name without extension and the
// extension (without the dot).
func splitPath(path string) (dir, baseNoExt, ext string, err error) {
	dir, file := filepath.Split(path)
	ext = filepath.Ext(file)
	if ext == "" {
		return "", "", "", fmt.Errorf("missing file extension in %q", path)
	}

	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	baseNoExt = file[0 : len(file)-len(ext)]
	ext = ext[1:]

	return dir, baseNoExt, ext, nil
}

// mapBaseNamesToPaths maps the base names of the given file paths, with the file type extensions
// stripped off, to the full path. When two files share a base name the first one wins and the
// other is reported through dup, if non-nil.
func mapBaseNamesToPaths(filePaths []string, dup func(kept, dropped string)) map[string]string {
	mapping := make(map[string]string, len(filePaths))
	for _, path := range filePaths {
		_, baseNoExt, _, err := splitPath(path)
		if err != nil {
			logger.S().Warn(err)
			continue
		}
		if kept, found := mapping[baseNoExt]; found {
			if dup != nil {
				dup(kept, path)
			}
			continue
		}
		mapping[baseNoExt] = path
	}

	return mapping
}

// labelParserFn parses a label file given the label and image file paths.
type labelParserFn func(labelPath, imagePath string) (AnnotatedFile, error)

// parseLabelsWithOneToOneImages matches label files in labelDir, with file extension labelFileExt
// (e.g. ".xml") by file name to images in imageDir. It then invokes parse on these path pairs.
//
// Returns the list of file annotations obtained by applying parse to all label files. Label files
// without an image or that fail to parse are logged and skipped.
func parseLabelsWithOneToOneImages(labelDir, labelFileExt, imageDir string, parse labelParserFn) (
	[]AnnotatedFile, error) {

	labelFiles, err := filesByExtInDir(labelDir, labelFileExt)
	if err != nil {
		return nil, err
	}
	logger.S().Infof("Parsing labels for %d files", len(labelFiles))

	imageFiles, err := filesByExtInDir(imageDir, imageFileExts...)
	if err != nil {
		return nil, err
	}
	imagesByName := mapBaseNamesToPaths(imageFiles, nil)

	data := make([]AnnotatedFile, 0, len(labelFiles))
	for _, labelPath := range labelFiles {
		// Find the corresponding image.
		_, baseNoExt, _, err := splitPath(labelPath)
		if err != nil {
			logger.S().Warnf("Error while parsing, skipping %q: %v", labelPath, err)
			continue
		}
		imagePath, found := imagesByName[baseNoExt]
		if !found {
			logger.S().Warnf("No corresponding image file, skipping %q", labelPath)
			continue
		}

		fileData, err := parse(labelPath, imagePath)
		if err != nil {
			logger.S().Warnf("Error while parsing, skipping %q: %v", labelPath, err)
			continue
		}

		data = append(data, fileData)
	}

	return data, nil
}

// readLines returns a slice of lines read from the file at path, without line terminators.
func readLines(path string) (lines []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read file %q: %v", ErrIO, path, err)
	}
	defer closeWithErrCheck(file, &err)

	// No line length limit, unlike bufio.Scanner.
	r := bufio.NewReader(file)
	for {
		line, rerr := r.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			lines = append(lines, strings.TrimSuffix(line, "\r"))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("%w: failed to read %q as lines: %v", ErrIO, path, rerr)
		}
	}

	return lines, nil
}

// copyFile copies the file at src to dst, replacing dst if it exists.
func copyFile(dst, src string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(in, &err)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(out, &err)

	_, err = io.Copy(out, in)
	return err
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
