package raster

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
		t.Fatalf("touch %s: %v", name, err)
	}
}

func intPtr(v int) *int { return &v }

func TestLocateNoFilter(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "SPARTACUS2-YEARLY_TM_2023_20230101T000000.tif")
	touch(t, dir, "SPARTACUS2-MONTHLY_TM_2023_20230615T000000.tif")
	touch(t, dir, "notes.txt")

	paths, err := Locate(dir, ".tif", nil, nil)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("got %d files, want 2: %v", len(paths), paths)
	}
}

func TestLocateMonthAndDayFilters(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "SPARTACUS2-YEARLY_TM_2023_20230101T000000.tif")
	touch(t, dir, "SPARTACUS2-MONTHLY_TM_2023_20230615T000000.tif")
	touch(t, dir, "SPARTACUS2-MONTHLY_TM_2023_CLIM_20230615T000000_1991_2020.tif")

	// Month 6 matches both June files, the plain and the CLIM dialect.
	paths, err := Locate(dir, ".tif", intPtr(6), nil)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("month filter: got %d files, want 2: %v", len(paths), paths)
	}

	// Month 1 and day 1 gate independently, leaving the January file.
	paths, err = Locate(dir, ".tif", intPtr(1), intPtr(1))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("month+day filter: got %d files, want 1: %v", len(paths), paths)
	}
	if filepath.Base(paths[0]) != "SPARTACUS2-YEARLY_TM_2023_20230101T000000.tif" {
		t.Errorf("month+day filter picked %s", paths[0])
	}

	// Day 15 alone matches both June files.
	paths, err = Locate(dir, ".tif", nil, intPtr(15))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("day filter: got %d files, want 2: %v", len(paths), paths)
	}
}

func TestLocateMalformedName(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "no_date_here.tif")

	_, err := Locate(dir, ".tif", intPtr(6), nil)
	if !errors.Is(err, ErrBadFilename) {
		t.Errorf("err = %v, want ErrBadFilename", err)
	}
}

func TestLocateEmptyDir(t *testing.T) {
	paths, err := Locate(t.TempDir(), ".tif", nil, nil)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("got %d files in empty dir", len(paths))
	}
}

func TestFilenameDateDialects(t *testing.T) {
	cases := []struct {
		name       string
		month, day int
	}{
		{"SPARTACUS2-YEARLY_TM_1966_19660101T000000.tif", 1, 1},
		{"SPARTACUS2-MONTHLY_SA_2022_20221201T000000.tif", 12, 1},
		{"SPARTACUS2-MONTHLY_TM_2023_CLIM_20230705T000000_1991_2020.tif", 7, 5},
	}
	for _, c := range cases {
		m, d, err := filenameDate(c.name)
		if err != nil {
			t.Errorf("%s: %v", c.name, err)
			continue
		}
		if m != c.month || d != c.day {
			t.Errorf("%s: got (%d, %d), want (%d, %d)", c.name, m, d, c.month, c.day)
		}
	}
}

func TestFilenameDateMalformed(t *testing.T) {
	for _, name := range []string{
		"plain.tif",
		"SPARTACUS2_TM_CLIM.tif",
		"SPARTACUS2-MONTHLY_TM_badtoken.tif",
	} {
		if _, _, err := filenameDate(name); !errors.Is(err, ErrBadFilename) {
			t.Errorf("%s: err = %v, want ErrBadFilename", name, err)
		}
	}
}
