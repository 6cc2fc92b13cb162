package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDatabaseFiles(t *testing.T) {
	if got := DatabaseFiles(":memory:"); got != nil {
		t.Errorf("memory db = %v", got)
	}
	want := []string{"/d/p.db", "/d/p.db-wal", "/d/p.db-shm"}
	if got := DatabaseFiles("/d/p.db"); !reflect.DeepEqual(got, want) {
		t.Errorf("files = %v", got)
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "pagestash.db")
	write := func(path, body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(db, "hello")
	write(db+"-wal", "abc")
	sub := filepath.Join(dir, "backups")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	write(filepath.Join(sub, "a.json"), "ab")

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{db}, 5},
		{"database with sidecars", DatabaseFiles(db), 8},
		{"directory", []string{sub}, 2},
		{"missing and empty skipped", []string{"", db, filepath.Join(dir, "nope")}, 5},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d bytes, want %d", got, tt.want)
			}
		})
	}
}
