package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ZipDirectory writes every file below source into the archive at target.
// Entry names are slash-separated and relative to source.
func ZipDirectory(source, target string) (err error) {
	zipfile, err := os.Create(target)
	if err != nil {
		return err
	}
	defer zipfile.Close()

	archive := zip.NewWriter(zipfile)
	defer func() {
		if cerr := archive.Close(); err == nil {
			err = cerr
		}
	}()

	absTarget, _ := filepath.Abs(target)

	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absTarget {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}

		header.Name = filepath.ToSlash(relPath)
		if d.IsDir() {
			header.Name += "/"
		} else {
			header.Method = zip.Deflate
		}

		writer, err := archive.CreateHeader(header)
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if _, err := io.Copy(writer, file); err != nil {
			return fmt.Errorf("zip %s: %w", relPath, err)
		}
		return nil
	})
}

// FindInZip looks up name in the archive, falling back to name/index.html
// for directory-style paths.
func FindInZip(archive *zip.Reader, name string) *zip.File {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")
	for _, f := range archive.File {
		if f.Name == name {
			return f
		}
	}
	if strings.HasSuffix(name, "/") {
		return nil
	}
	indexPath := name + "/index.html"
	if name == "" {
		indexPath = "index.html"
	}
	for _, f := range archive.File {
		if f.Name == indexPath {
			return f
		}
	}
	return nil
}
