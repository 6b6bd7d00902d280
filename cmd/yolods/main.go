// Validates, splits, imports and previews YOLO object detection datasets.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensorable/yolods"
	"github.com/sensorable/yolods/logger"
)

// Exit codes.
const (
	exitOK    = 0
	exitUsage = 1
	exitFatal = 2
)

// usageError is returned for invalid command lines.
type usageError struct {
	msg string
}

func (e usageError) Error() string {
	return e.msg
}

func usagef(format string, args ...interface{}) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// command is a subcommand. run parses args and does the work.
type command struct {
	name    string
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commands = []command{
	{"validate", "check image/label pairing and label syntax, report class balance", runValidate},
	{"convert", "split a dataset into train/val/test and write data.yaml", runConvert},
	{"import", "convert KITTI, Pascal VOC, VIA or Sloth annotations to YOLO labels", runImport},
	{"preview", "draw the boxes of a label file onto its image", runPreview},
}

func usage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags]\n\nCommands:\n",
		filepath.Base(os.Args[0]))
	for _, c := range commands {
		_, _ = fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
	_, _ = fmt.Fprintf(os.Stderr, "\nRun '%s <command> -h' for the command flags.\n",
		filepath.Base(os.Args[0]))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run dispatches to the subcommand and maps its error to an exit code.
func run(args []string, stdout io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "-help" || args[0] == "--help" {
		usage()
		return exitUsage
	}

	if err := initLogger(os.Getenv("YOLODS_LOG")); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialise logging:", err)
		return exitFatal
	}
	defer logger.Sync()

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(args[1:], stdout)
		return exitCode(err)
	}

	logger.S().Errorf("Unknown command %q", args[0])
	usage()
	return exitUsage
}

// initLogger selects the JSON production logger for mode "json" and the console logger
// otherwise.
func initLogger(mode string) error {
	if mode == "json" {
		return logger.InitProduction()
	}
	return logger.InitDevelopment()
}

func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitUsage
	case errors.As(err, &ue):
		logger.S().Error(err)
		return exitUsage
	default:
		logger.S().Errorf("Fatal: %v", err)
		return exitFatal
	}
}

// loadNames loads the class names from path, or returns nil if path is empty.
func loadNames(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	return yolods.LoadClassNames(filepath.Clean(path))
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
