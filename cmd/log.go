package cmd

import (
	"os"

	"github.com/mattn/go-colorable"
	logging "github.com/shenwei356/go-logging"
)

var log *logging.Logger

func init() {
	log = logging.MustGetLogger("knovel")
	logging.SetFormatter(logging.MustStringFormatter(`%{color}[%{level:.4s}]%{color:reset} %{message}`))

	backend := logging.NewLogBackend(colorable.NewColorableStderr(), "", 0)
	backendFormatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(
		`%{color}[%{level:.4s}]%{color:reset} %{message}`))
	logging.SetBackend(backendFormatted)
}

// addLog duplicates log output to file in addition to stderr, returning
// the open file handle so the caller can close it once the run is done.
func addLog(file string, verbose bool) *os.File {
	fh, err := os.Create(file)
	checkError(err)

	fileBackend := logging.NewLogBackend(fh, "", 0)
	fileBackendFormatted := logging.NewBackendFormatter(fileBackend, logging.MustStringFormatter(
		`[%{level:.4s}] %{message}`))

	stderrBackend := logging.NewLogBackend(colorable.NewColorableStderr(), "", 0)
	stderrBackendFormatted := logging.NewBackendFormatter(stderrBackend, logging.MustStringFormatter(
		`%{color}[%{level:.4s}]%{color:reset} %{message}`))

	multi := logging.MultiLogger(fileBackendFormatted, stderrBackendFormatted)
	logging.SetBackend(multi)

	if !verbose {
		logging.SetLevel(logging.WARNING, "knovel")
	}

	return fh
}
