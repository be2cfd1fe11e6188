// Package classstore manages the on-disk class store: one directory per
// label holding that identity's images, plus scanning of the unlabeled pool.
package classstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kozaktomas/face-labeler/internal/constants"
)

var (
	// ErrNotDir means the store root or pool is missing or not a directory.
	ErrNotDir = errors.New("not a directory")
	// ErrPermission wraps commit failures caused by filesystem permissions.
	ErrPermission = errors.New("permission denied")
	// ErrInvalidLabel rejects labels that are not a single path element.
	ErrInvalidLabel = errors.New("invalid label")
)

// maxSuffix bounds the stem_N search so a broken filesystem cannot loop forever.
const maxSuffix = 100000

// Store is a class store rooted at a directory.
type Store struct {
	root string
	// link places the temp file under its final name; os.Link outside tests.
	link func(oldname, newname string) error
}

// Open opens an existing class store.
func Open(root string) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("class store %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("class store %s: %w", root, ErrNotDir)
	}
	return &Store{root: root, link: os.Link}, nil
}

// Create opens the class store, creating the root directory when missing.
func Create(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating class store %s: %w", root, err)
	}
	return Open(root)
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// IsImage reports whether path has a recognized image extension.
func IsImage(path string) bool {
	return constants.ImageExtensions[strings.ToLower(filepath.Ext(path))]
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

// Labels returns the label directories in lexicographic order.
func (s *Store) Labels() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading class store: %w", err)
	}

	var labels []string
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			labels = append(labels, e.Name())
		}
	}
	slices.Sort(labels)
	return labels, nil
}

// Images returns the paths of label's images in lexicographic filename
// order. An unknown label has no images.
func (s *Store) Images(label string) ([]string, error) {
	dir := filepath.Join(s.root, label)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading label %s: %w", label, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !hidden(e.Name()) && IsImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// Commit copies src into label's directory and returns the destination.
// The source's base name is kept; when it is taken the lowest free
// stem_N.ext (N from 1) is used. Existing files are never overwritten and
// src is never modified.
func (s *Store) Commit(label, src string) (string, error) {
	if label == "" || label == "." || label == ".." || strings.ContainsAny(label, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	dir := filepath.Join(s.root, label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", wrapPermission(fmt.Errorf("creating label directory %s: %w", dir, err))
	}

	tmp, err := copyToTemp(dir, src)
	if err != nil {
		return "", wrapPermission(err)
	}
	defer os.Remove(tmp)

	name := filepath.Base(src)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i <= maxSuffix; i++ {
		dest := filepath.Join(dir, name)
		if i > 0 {
			dest = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		}
		if _, err := os.Lstat(dest); err == nil {
			continue
		}

		// Link fails instead of replacing when another writer took the name.
		err := s.link(tmp, dest)
		if err != nil && !errors.Is(err, fs.ErrExist) {
			// No hard links here (FAT, some network mounts): exclusive create.
			err = copyExclusive(tmp, dest)
		}
		if err == nil {
			return dest, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return "", wrapPermission(fmt.Errorf("placing %s: %w", dest, err))
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}

// copyToTemp copies src into a hidden temp file in dir, flushed to disk,
// with src's permissions and modification time.
func copyToTemp(dir, src string) (string, error) {
	in, err := os.Open(src) //nolint:gosec // src comes from the scanned pool
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmp := out.Name()
	fail := func(err error) (string, error) {
		_ = out.Close()
		_ = os.Remove(tmp)
		return "", err
	}

	if _, err := io.Copy(out, in); err != nil {
		return fail(fmt.Errorf("copying %s: %w", src, err))
	}
	if err := out.Sync(); err != nil {
		return fail(fmt.Errorf("syncing %s: %w", tmp, err))
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		return fail(fmt.Errorf("chmod %s: %w", tmp, err))
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("closing %s: %w", tmp, err)
	}
	// Best effort, like a metadata-preserving copy.
	_ = os.Chtimes(tmp, info.ModTime(), info.ModTime())
	return tmp, nil
}

// copyExclusive copies tmp to dest, failing with fs.ErrExist when dest
// already exists. A partial dest is removed on failure.
func copyExclusive(tmp, dest string) error {
	in, err := os.Open(tmp) //nolint:gosec // tmp is our own temp file
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm()) //nolint:gosec // dest is inside the store
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return err
	}
	_ = os.Chtimes(dest, info.ModTime(), info.ModTime())
	return nil
}

func wrapPermission(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrPermission, err)
	}
	return err
}

// ScanPool returns every image file under dir (recursively) sorted by path.
func ScanPool(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pool %s: %w", dir, ErrNotDir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && IsImage(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning pool %s: %w", dir, err)
	}
	slices.Sort(paths)
	return paths, nil
}
