package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithinDirectory(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "safe")
	outside := filepath.Join(tmp, "outside")
	for _, d := range []string{safe, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(safe, "link")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safe, "nod.png"), false},
		{"nested new dir", filepath.Join(safe, "plots", "nod.png"), false},
		{"dot dot", filepath.Join(safe, "..", "nod.png"), true},
		{"sibling", filepath.Join(outside, "nod.png"), true},
		{"through symlink", filepath.Join(safe, "link", "nod.png"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDirectory(tt.path, safe)
			if (err != nil) != tt.wantErr {
				t.Errorf("WithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestWithinDirectory_MissingDir(t *testing.T) {
	if err := WithinDirectory("x.png", filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestValidateExportPath(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := ValidateExportPath("nod.png"); err != nil {
		t.Errorf("relative path in cwd: %v", err)
	}
	if err := ValidateExportPath(filepath.Join(os.TempDir(), "nod.png")); err != nil {
		t.Errorf("temp dir path: %v", err)
	}
	if err := ValidateExportPath("/etc/minihead.png"); err == nil {
		t.Error("expected /etc to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"nod", "nod"},
		{"slow nod / left", "slow_nod_left"},
		{"../../etc/passwd", "etc_passwd"},
		{"tilt-2.v1", "tilt-2.v1"},
		{"", "recording"},
		{"???", "recording"},
		{"héllo wörld", "h_llo_w_rld"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := SanitizeFilename(strings.Repeat("a", 500))
	if len(long) != maxFilenameLen {
		t.Errorf("long name length = %d, want %d", len(long), maxFilenameLen)
	}
}
