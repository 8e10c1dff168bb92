package upload

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestSave(t *testing.T) {
	d, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	d.now = func() time.Time { return time.UnixMilli(1700000000000) }

	saved, err := d.Save("chunk-1.webm", strings.NewReader("video bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if saved.Name != "1700000000000-chunk-1.webm" {
		t.Errorf("Name = %q", saved.Name)
	}
	if saved.Size != int64(len("video bytes")) {
		t.Errorf("Size = %d", saved.Size)
	}

	data, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "video bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"clip.webm", "clip.webm"},
		{"../../etc/passwd", "passwd"},
		{"..\\..\\evil.exe", "evil.exe"},
		{"sp ace&odd.webm", "sp_ace_odd.webm"},
		{"..", "chunk"},
		{"", "chunk"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewDiskStoreEmptyDir(t *testing.T) {
	if _, err := NewDiskStore(""); err == nil {
		t.Error("expected error for empty dir")
	}
}
