// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"github.com/shenwei356/util/pathutil"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
	"github.com/twotwotwo/sorts"
)

// VERSION is the program version string.
const VERSION = "0.1.0"

// Options carries the global flags shared by every subcommand.
type Options struct {
	NumCPUs int
	Verbose bool

	LogFile  string
	Log2File bool

	Compress         bool
	CompressionLevel int
}

func getOptions(cmd *cobra.Command) *Options {
	threads := getFlagNonNegativeInt(cmd, "threads")
	if threads == 0 {
		threads = runtime.NumCPU()
	}

	sorts.MaxProcs = threads
	runtime.GOMAXPROCS(threads)

	logfile := getFlagString(cmd, "log")
	if logfile != "" {
		addLog(logfile, !getFlagBool(cmd, "quiet"))
	}
	return &Options{
		NumCPUs: threads,
		Verbose: !getFlagBool(cmd, "quiet"),

		LogFile:  logfile,
		Log2File: logfile != "",

		Compress:         true,
		CompressionLevel: -1,
	}
}

// checkError prints err to stderr and exits. Flag/argument errors exit 1
// via checkErrorExitCode. Here, I/O errors (an *os.PathError anywhere in
// err's chain) exit 2, and everything else routed through checkError
// exits 4: malformed input, fatal sketch-contract violations and internal
// invariant breaks alike. No path exits 3.
func checkError(err error) {
	if err == nil {
		return
	}
	if err == io.EOF {
		return
	}
	log.Error(err)
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		os.Exit(2)
	}
	os.Exit(4)
}

func checkErrorExitCode(err error, code int) {
	if err == nil {
		return
	}
	log.Error(err)
	os.Exit(code)
}

func isStdin(file string) bool {
	return file == "-"
}

func getFlagString(cmd *cobra.Command, flag string) string {
	v, err := cmd.Flags().GetString(flag)
	checkError(err)
	return v
}

func getFlagBool(cmd *cobra.Command, flag string) bool {
	v, err := cmd.Flags().GetBool(flag)
	checkError(err)
	return v
}

func getFlagInt(cmd *cobra.Command, flag string) int {
	v, err := cmd.Flags().GetInt(flag)
	checkError(err)
	return v
}

func getFlagPositiveInt(cmd *cobra.Command, flag string) int {
	v := getFlagInt(cmd, flag)
	if v <= 0 {
		checkError(fmt.Errorf("value of flag --%s should be a positive integer", flag))
	}
	return v
}

func getFlagNonNegativeInt(cmd *cobra.Command, flag string) int {
	v := getFlagInt(cmd, flag)
	if v < 0 {
		checkError(fmt.Errorf("value of flag --%s should be a non-negative integer", flag))
	}
	return v
}

func getFlagFloat64(cmd *cobra.Command, flag string) float64 {
	v, err := cmd.Flags().GetFloat64(flag)
	checkError(err)
	return v
}

func getFlagStringSlice(cmd *cobra.Command, flag string) []string {
	v, err := cmd.Flags().GetStringSlice(flag)
	checkError(err)
	return v
}

// getFileListFromArgsAndFile collects input filenames from positional
// args and, if listFileFlag is set, from a file containing one filename
// per line, falling back to stdin ("-") when checkArgs is requested and
// neither source yielded anything.
func getFileListFromArgsAndFile(cmd *cobra.Command, args []string, checkArgs bool, listFileFlag string, checkListFile bool) []string {
	files := append([]string{}, args...)

	listFile := getFlagString(cmd, listFileFlag)
	if listFile != "" {
		fh, err := xopen.Ropen(listFile)
		if checkListFile {
			checkError(errors.Wrap(err, listFile))
		} else if err != nil {
			return files
		}
		defer fh.Close()

		scanner := bufio.NewScanner(fh)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				files = append(files, line)
			}
		}
	}

	if len(files) == 0 && checkArgs {
		files = append(files, "-")
	}
	return files
}

func makeOutDir(outDir string, force bool) {
	pwd, _ := os.Getwd()
	if outDir == "./" || outDir == "." || pwd == filepath.Clean(outDir) {
		return
	}

	existed, err := pathutil.DirExists(outDir)
	checkError(errors.Wrap(err, outDir))
	if existed {
		empty, err := pathutil.IsEmpty(outDir)
		checkError(errors.Wrap(err, outDir))
		if !empty {
			if !force {
				checkError(fmt.Errorf("%s not empty, use --force to overwrite", outDir))
			}
			checkError(os.RemoveAll(outDir))
		} else {
			checkError(os.RemoveAll(outDir))
		}
	}
	checkError(os.MkdirAll(outDir, 0777))
}

// outStream opens outFile ("-" for stdout) for writing, wrapping it in a
// pgzip writer when gzipped is requested.
func outStream(outFile string, gzipped bool, level int) (*os.File, *pgzip.Writer, io.Writer, error) {
	var fh *os.File
	var err error
	if isStdin(outFile) {
		fh = os.Stdout
	} else {
		fh, err = os.Create(outFile)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	if !gzipped {
		return fh, nil, fh, nil
	}

	gw, err := pgzip.NewWriterLevel(fh, level)
	if err != nil {
		return fh, nil, nil, err
	}
	return fh, gw, gw, nil
}

func formatFlagUsage(s string) string {
	return s
}

func usageTemplate(extraUsage string) string {
	t := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}`
	if extraUsage != "" {
		t += " " + extraUsage
	}
	t += `{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}
`
	return t
}
