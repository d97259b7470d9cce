package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordArchiveLabelsOutcome(t *testing.T) {
	before := testutil.ToFloat64(ArchiveOperations.WithLabelValues("pack", "error"))
	RecordArchive("pack", errors.New("boom"), 0)
	after := testutil.ToFloat64(ArchiveOperations.WithLabelValues("pack", "error"))
	if after != before+1 {
		t.Fatalf("error counter = %v, want %v", after, before+1)
	}
}

func TestWriteTextfile(t *testing.T) {
	RecordArchive("unpack", nil, 4096)
	path := filepath.Join(t.TempDir(), "animstore.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, name := range []string{"animstore_archive_operations_total", "animstore_archive_bytes", "animstore_precomputed_frames_total"} {
		if !strings.Contains(text, name) {
			t.Fatalf("textfile missing %s:\n%s", name, text)
		}
	}
}
