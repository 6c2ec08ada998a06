// Package export writes timestamped report backups. Every successful
// synthesis lands on disk as markdown before the done envelope goes out, so
// a dropped stream never loses a finished report. PDF rendering is optional.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Backup directories under the export root.
const (
	FinalSynthesisDir    = "final_synthesis_backups"
	AcademicSynthesisDir = "academic_synthesis_backups"
	AskJournalDir        = "deep_question_runs"
)

// Writer persists backups under one root directory.
type Writer struct {
	Root string
	// PDF additionally renders each markdown backup as a PDF next to it.
	PDF bool
}

// SaveSynthesis writes a timestamped markdown backup into the named
// subdirectory and returns the file path. Failures are logged, not fatal:
// the report still reaches the client through the event stream.
func (w *Writer) SaveSynthesis(subdir, prefix, content string) string {
	dir := filepath.Join(w.Root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("backup dir not writable")
		return ""
	}
	name := fmt.Sprintf("%s_%s.md", prefix, time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("backup write failed")
		return ""
	}
	if w.PDF {
		pdfPath := strings.TrimSuffix(path, ".md") + ".pdf"
		if err := writeSimplePDF(content, pdfPath); err != nil {
			log.Warn().Err(err).Str("path", pdfPath).Msg("pdf render failed")
		}
	}
	log.Info().Str("path", path).Int("bytes", len(content)).Msg("synthesis backup written")
	return path
}

// SaveJournal writes a JSON journal atomically into the named subdirectory.
func (w *Writer) SaveJournal(subdir, name string, data []byte) error {
	dir := filepath.Join(w.Root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, name))
}
