package termio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriterFlushOrdersOutput(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := newWriter(f)
	for _, s := range []string{"one ", "two ", "three"} {
		if _, err := w.Write([]byte(s)); err != nil {
			t.Fatal(err)
		}
	}
	w.flush()

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "one two three" {
		t.Fatalf("expected ordered output, got %q", got)
	}
}

func TestWriterCopiesInput(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := newWriter(f)
	buf := []byte("abc")
	_, _ = w.Write(buf)
	buf[0] = 'x'
	w.flush()

	got, _ := os.ReadFile(f.Name())
	if string(got) != "abc" {
		t.Fatalf("expected writer to copy input, got %q", got)
	}
}
