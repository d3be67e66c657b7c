package dataset

import (
	"os"
	"testing"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "dataset-*.csv")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestSourceReadsHeaderAndRows(t *testing.T) {
	path := writeTempCSV(t, "a,b\n1,2\n3,4\n")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.HeaderColumns != 2 {
		t.Fatalf("HeaderColumns = %d, want 2", src.HeaderColumns)
	}

	row1, ok := src.Next()
	if !ok || len(row1) != 2 || row1[0] != 1 || row1[1] != 2 {
		t.Fatalf("row1 = %v, ok=%v", row1, ok)
	}

	row2, ok := src.Next()
	if !ok || len(row2) != 2 || row2[0] != 3 || row2[1] != 4 {
		t.Fatalf("row2 = %v, ok=%v", row2, ok)
	}

	_, ok = src.Next()
	if ok {
		t.Fatal("expected end of stream after two rows")
	}
}

func TestSourceUnparseableFieldDecodesAsZero(t *testing.T) {
	path := writeTempCSV(t, "x\nnot-a-number\n")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	row, ok := src.Next()
	if !ok || len(row) != 1 || row[0] != 0.0 {
		t.Fatalf("row = %v, ok=%v, want [0.0]", row, ok)
	}
}

func TestSourceEmptyFileFailsToOpen(t *testing.T) {
	path := writeTempCSV(t, "")

	if _, err := Open(path); err == nil {
		t.Fatal("expected error opening an empty dataset file")
	}
}

func TestSourceEmptyRowEndsIteration(t *testing.T) {
	path := writeTempCSV(t, "a,b\n1,2\n\n3,4\n")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	row, ok := src.Next()
	if !ok || row[0] != 1 {
		t.Fatalf("row = %v, ok=%v", row, ok)
	}

	_, ok = src.Next()
	if ok {
		t.Fatal("expected empty line to terminate iteration")
	}
}
