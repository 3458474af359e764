// Package backup snapshots the mutable part of a code repository so a failed
// deployment can put it back exactly as it was.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// ErrHandleClosed is returned when a restored or released handle is used again.
var ErrHandleClosed = errors.New("backup handle already consumed")

// ErrUnsafeCodeDir is returned for a code directory that is not a strict
// subdirectory of the repository root. Restore deletes the code directory.
var ErrUnsafeCodeDir = errors.New("code dir must be a subdirectory of the repository root")

func checkCodeDir(dir string) error {
	if !filepath.IsLocal(dir) || filepath.Clean(dir) == "." {
		return fmt.Errorf("%w: %q", ErrUnsafeCodeDir, dir)
	}
	return nil
}

const (
	tempPrefix   = "venicegate-backup-"
	manifestName = "manifest.json"
	codeSubdir   = "code"
	filesSubdir  = "files"
)

// Manifest records what a backup contains and where it came from.
type Manifest struct {
	Root      string    `json:"root"`
	CodeDir   string    `json:"code_dir"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager creates backups of one repository.
type Manager struct {
	fs      afero.Fs
	root    string
	codeDir string
	files   []string
	tempDir string
}

// NewManager returns a Manager for the repository at root. codeDir and files
// are relative to root. Backups go under the system temp dir unless
// SetTempDir is called.
func NewManager(fs afero.Fs, root, codeDir string, files []string) *Manager {
	return &Manager{fs: fs, root: root, codeDir: codeDir, files: files}
}

// SetTempDir overrides the parent directory for new backups.
func (m *Manager) SetTempDir(dir string) {
	m.tempDir = dir
}

// Create copies the code directory and the named files into a fresh
// temporary directory. Named files that do not exist are skipped.
func (m *Manager) Create() (*Handle, error) {
	if err := checkCodeDir(m.codeDir); err != nil {
		return nil, err
	}
	dir, err := afero.TempDir(m.fs, m.tempDir, tempPrefix)
	if err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	h := &Handle{
		fs:   m.fs,
		Path: dir,
		Manifest: Manifest{
			Root:      m.root,
			CodeDir:   m.codeDir,
			CreatedAt: time.Now().UTC(),
		},
	}

	fail := func(err error) (*Handle, error) {
		m.fs.RemoveAll(dir)
		return nil, err
	}

	src := filepath.Join(m.root, m.codeDir)
	if _, err := m.fs.Stat(src); err != nil {
		return fail(fmt.Errorf("stat code dir %s: %w", src, err))
	}
	if err := copyTree(m.fs, src, filepath.Join(dir, codeSubdir)); err != nil {
		return fail(fmt.Errorf("copy code dir: %w", err))
	}

	for _, name := range m.files {
		p := filepath.Join(m.root, name)
		ok, err := afero.Exists(m.fs, p)
		if err != nil {
			return fail(fmt.Errorf("stat %s: %w", p, err))
		}
		if !ok {
			continue
		}
		if err := copyFile(m.fs, p, filepath.Join(dir, filesSubdir, name)); err != nil {
			return fail(fmt.Errorf("copy %s: %w", name, err))
		}
		h.Manifest.Files = append(h.Manifest.Files, name)
	}

	data, err := json.MarshalIndent(h.Manifest, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("marshal manifest: %w", err))
	}
	if err := afero.WriteFile(m.fs, filepath.Join(dir, manifestName), data, 0o644); err != nil {
		return fail(fmt.Errorf("write manifest: %w", err))
	}
	return h, nil
}

// Open loads an existing backup from its directory.
func Open(fs afero.Fs, path string) (*Handle, error) {
	data, err := afero.ReadFile(fs, filepath.Join(path, manifestName))
	if err != nil {
		return nil, fmt.Errorf("read backup manifest: %w", err)
	}
	var mf Manifest
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse backup manifest: %w", err)
	}
	return &Handle{fs: fs, Path: path, Manifest: mf}, nil
}

// Handle is a single backup. It is consumed by exactly one Restore or Release.
type Handle struct {
	Path     string
	Manifest Manifest

	fs     afero.Fs
	closed bool
}

// Restore replaces the code directory and named files with the backed-up
// copies, then deletes the backup. Files added to the code directory since
// the backup are removed.
func (h *Handle) Restore() error {
	if h == nil || h.closed {
		return ErrHandleClosed
	}
	if err := checkCodeDir(h.Manifest.CodeDir); err != nil {
		return err
	}

	dst := filepath.Join(h.Manifest.Root, h.Manifest.CodeDir)
	if err := h.fs.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear %s: %w", dst, err)
	}
	if err := copyTree(h.fs, filepath.Join(h.Path, codeSubdir), dst); err != nil {
		return fmt.Errorf("restore code dir: %w", err)
	}
	for _, name := range h.Manifest.Files {
		if err := copyFile(h.fs, filepath.Join(h.Path, filesSubdir, name), filepath.Join(h.Manifest.Root, name)); err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
	}
	return h.Release()
}

// Release deletes the backup without restoring it.
func (h *Handle) Release() error {
	if h == nil || h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	if err := h.fs.RemoveAll(h.Path); err != nil {
		return fmt.Errorf("remove backup %s: %w", h.Path, err)
	}
	return nil
}

// Closed reports whether the handle has been restored or released.
func (h *Handle) Closed() bool {
	return h == nil || h.closed
}

func copyTree(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(fs, path, target)
	})
}

func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
