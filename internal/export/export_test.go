package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveSynthesis_WritesTimestampedMarkdown(t *testing.T) {
	w := &Writer{Root: t.TempDir()}
	path := w.SaveSynthesis(FinalSynthesisDir, "synthesis", "# Report\n\nbody [1]")
	if path == "" {
		t.Fatal("no path returned")
	}
	if !strings.HasPrefix(filepath.Base(path), "synthesis_") || !strings.HasSuffix(path, ".md") {
		t.Fatalf("unexpected name: %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "# Report\n\nbody [1]" {
		t.Fatalf("content: %q", data)
	}
}

func TestSaveSynthesis_PDFAlongsideWhenEnabled(t *testing.T) {
	w := &Writer{Root: t.TempDir(), PDF: true}
	path := w.SaveSynthesis(AcademicSynthesisDir, "academic", "# Title\n\nSee [docs](https://docs.test).")
	if path == "" {
		t.Fatal("no path returned")
	}
	pdfPath := strings.TrimSuffix(path, ".md") + ".pdf"
	info, err := os.Stat(pdfPath)
	if err != nil {
		t.Fatalf("pdf missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("pdf empty")
	}
}

func TestSaveJournal_Atomic(t *testing.T) {
	w := &Writer{Root: t.TempDir()}
	if err := w.SaveJournal(AskJournalDir, "deep_question_abc.json", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(w.Root, AskJournalDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "deep_question_abc.json" {
		t.Fatalf("entries: %v", entries)
	}
}
