package crate

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"

	"lifemonitor/pkg/problem"

	"github.com/klauspost/compress/zip"
)

func ParseDir(dir string) (*Manifest, error) {
	return ParseFS(os.DirFS(dir))
}

// ParseZip parses a zipped crate held in memory.
func ParseZip(data []byte) (*Manifest, error) {
	fsys, err := ZipFS(data)
	if err != nil {
		return nil, err
	}
	return ParseFS(fsys)
}

// ZipFS opens a zip archive as a file system rooted at the crate. Archives with a
// single top-level directory (like repository snapshots) are entered.
func ZipFS(data []byte) (fs.FS, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, problem.Wrap(problem.KindNotValidROCrate, err, "unable to open crate archive")
	}
	return CrateRoot(reader)
}

// CrateRoot returns fsys itself when it holds the metadata file, otherwise its
// single top-level directory.
func CrateRoot(fsys fs.FS) (fs.FS, error) {
	for _, name := range []string{MetadataFile, LegacyMetadataFile} {
		if _, err := fs.Stat(fsys, name); err == nil {
			return fsys, nil
		}
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, problem.Wrap(problem.KindNotValidROCrate, err, "unable to list crate archive")
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) == 1 && len(entries) == 1 {
		return fs.Sub(fsys, path.Clean(dirs[0]))
	}
	return fsys, nil
}

// Zip packs fsys into a crate archive, skipping the directories ignored by
// repository snapshots.
func Zip(fsys fs.FS) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name != "." && d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		f, err := fsys.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		out, err := w.Create(name)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
