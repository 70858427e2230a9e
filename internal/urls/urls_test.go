package urls

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/shyim/lighthouse-report/internal/failure"
)

func TestSplit(t *testing.T) {
	got := Split("  https://a.example/ \nhttps://b.example/\t https://a.example/  ")
	want := []string{"https://a.example/", "https://b.example/", "https://a.example/"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v got %v", want, got)
	}
}

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "urls.txt", "# staging\nhttps://file.example/\n\n")

	t.Run("explicit wins", func(t *testing.T) {
		got, err := Source{URLs: []string{"https://flag.example/"}, File: file, Env: "https://env.example/"}.Resolve()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if !reflect.DeepEqual(got, []string{"https://flag.example/"}) {
			t.Fatalf("unexpected urls %v", got)
		}
	})

	t.Run("file before env", func(t *testing.T) {
		got, err := Source{File: file, Env: "https://env.example/"}.Resolve()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if !reflect.DeepEqual(got, []string{"https://file.example/"}) {
			t.Fatalf("unexpected urls %v", got)
		}
	})

	t.Run("env fallback", func(t *testing.T) {
		got, err := Source{Env: "https://env.example/ https://env2.example/"}.Resolve()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 urls got %v", got)
		}
	})

	t.Run("nothing is fatal", func(t *testing.T) {
		_, err := Source{Env: "   "}.Resolve()
		if !errors.Is(err, ErrNoURLs) {
			t.Fatalf("expected ErrNoURLs got %v", err)
		}
		if !failure.Is(err, failure.FatalInput) {
			t.Fatalf("expected fatal-input classification got %v", err)
		}
	})
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "urls.csv", "url,owner\nhttps://a.example/,web\n ,\nhttps://b.example/,shop\n")

	got, err := ReadFile(file)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []string{"https://a.example/", "https://b.example/"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v got %v", want, got)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]string{"https://example.com/", "http://localhost:8080/x"}); err != nil {
		t.Fatalf("expected valid urls: %v", err)
	}
	for _, bad := range []string{"example.com", "ftp://example.com/", "https://"} {
		if err := Validate([]string{bad}); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestPartition(t *testing.T) {
	valid, invalid, err := Partition([]string{"https://a.example/", "not-a-url", "https://b.example/", "ftp://c.example/"})
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if !reflect.DeepEqual(valid, []string{"https://a.example/", "https://b.example/"}) {
		t.Fatalf("unexpected valid urls %v", valid)
	}
	if len(invalid) != 2 {
		t.Fatalf("expected 2 invalid entries got %d", len(invalid))
	}
	for _, fe := range invalid {
		if fe.Kind != failure.PartialCollection {
			t.Fatalf("expected partial-collection got %q", fe.Kind)
		}
	}
	if invalid[0].Resource != "not-a-url" {
		t.Fatalf("expected %q got %q", "not-a-url", invalid[0].Resource)
	}

	_, invalid, err = Partition([]string{"not-a-url"})
	if !errors.Is(err, ErrNoValidURLs) || !failure.Is(err, failure.FatalInput) {
		t.Fatalf("expected fatal-input ErrNoValidURLs got %v", err)
	}
	if len(invalid) != 1 {
		t.Fatalf("expected 1 invalid entry got %d", len(invalid))
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
