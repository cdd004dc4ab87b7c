// Package repository reads workflow repositories: their files, their
// .lifemonitor.yaml configuration and the RO-Crate they carry.
package repository

import (
	"bytes"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"lifemonitor/app/crate"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

var ignoredDirs = map[string]bool{".git": true, ".github": true, "node_modules": true}

var workflowExtensions = map[string]string{
	".ga":    "galaxy",
	".smk":   "snakemake",
	".nf":    "nextflow",
	".cwl":   "cwl",
	".ipynb": "jupyter",
}

var workflowFileNames = map[string]string{
	"Snakefile": "snakemake",
	"main.nf":   "nextflow",
}

// File is a file proposed for addition or update in a repository.
type File struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

type WorkflowFile struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// Repository is a snapshot of a repository at a given ref.
type Repository struct {
	FS            fs.FS
	FullName      string
	Owner         string
	Ref           string
	Rev           string
	DefaultBranch string

	once      sync.Once
	config    *Config
	configErr error
}

func New(fsys fs.FS) *Repository {
	return &Repository{FS: fsys}
}

func FromDir(dir string) *Repository {
	return New(os.DirFS(dir))
}

// FromArchive opens a zipball. The single top-level directory GitHub adds to
// archives is entered.
func FromArchive(data []byte) (*Repository, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "open repository archive")
	}
	root, err := crate.CrateRoot(reader)
	if err != nil {
		return nil, err
	}
	return New(root), nil
}

func (r *Repository) Exists(name string) bool {
	_, err := fs.Stat(r.FS, strings.TrimPrefix(path.Clean(name), "/"))
	return err == nil
}

func (r *Repository) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(r.FS, strings.TrimPrefix(path.Clean(name), "/"))
}

// ConfigFile returns the name of the configuration file, or "" when there is none.
func (r *Repository) ConfigFile() string {
	for _, name := range ConfigFileNames {
		if r.Exists(name) {
			return name
		}
	}
	return ""
}

// Config loads the repository configuration; it is nil when the file is missing.
func (r *Repository) Config() (*Config, error) {
	r.once.Do(func() {
		name := r.ConfigFile()
		if name == "" {
			return
		}
		data, err := r.ReadFile(name)
		if err != nil {
			r.configErr = err
			return
		}
		r.config, r.configErr = ParseConfig(data)
	})
	return r.config, r.configErr
}

func (r *Repository) HasMetadata() bool {
	return r.Exists(crate.MetadataFile) || r.Exists(crate.LegacyMetadataFile)
}

func (r *Repository) Manifest() (*crate.Manifest, error) {
	return crate.ParseFS(r.FS)
}

// WorkflowTypeOf returns the workflow type a file name denotes, or "".
func WorkflowTypeOf(name string) string {
	return workflowType(path.Base(name))
}

func workflowType(name string) string {
	if t, ok := workflowFileNames[name]; ok {
		return t
	}
	return workflowExtensions[path.Ext(name)]
}

// FindWorkflow looks for a workflow file in the repository root and in the
// directories one level below it.
func (r *Repository) FindWorkflow() *WorkflowFile {
	var found []WorkflowFile
	_ = fs.WalkDir(r.FS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != "." && (ignoredDirs[d.Name()] || strings.Count(p, "/") >= 1) {
				return fs.SkipDir
			}
			return nil
		}
		if t := workflowType(d.Name()); t != "" {
			found = append(found, WorkflowFile{Path: p, Type: t})
		}
		return nil
	})
	if len(found) == 0 {
		return nil
	}
	sort.SliceStable(found, func(i, j int) bool {
		return strings.Count(found[i].Path, "/") < strings.Count(found[j].Path, "/")
	})
	return &found[0]
}

// Files lists the regular files of the repository.
func (r *Repository) Files() ([]string, error) {
	var files []string
	err := fs.WalkDir(r.FS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && ignoredDirs[d.Name()] {
			return fs.SkipDir
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// Diff returns the files whose content differs from, or is missing in, the repository.
func (r *Repository) Diff(files []File) []File {
	var changed []File
	for _, f := range files {
		current, err := r.ReadFile(f.Path)
		if err != nil || !bytes.Equal(current, f.Content) {
			changed = append(changed, f)
		}
	}
	return changed
}
