package imagesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mamage/photo-similarity/internal/constants"
)

// LocalResolver reads relative locations from the upload directory.
type LocalResolver struct {
	root string
}

// NewLocalResolver serves files under dir. When dir is not itself an "uploads"
// directory, its "uploads" subdirectory is used.
func NewLocalResolver(dir string) *LocalResolver {
	root := filepath.Clean(dir)
	if !strings.EqualFold(filepath.Base(root), "uploads") {
		root = filepath.Join(root, "uploads")
	}
	return &LocalResolver{root: root}
}

// Root returns the directory files are served from.
func (l *LocalResolver) Root() string { return l.root }

// Path maps a stored location to an absolute file path under the upload root.
func (l *LocalResolver) Path(location string) (string, error) {
	rel := strings.ReplaceAll(location, `\`, "/")
	rel = strings.TrimLeft(rel, "/")
	if strings.HasPrefix(strings.ToLower(rel), "uploads/") {
		rel = rel[len("uploads/"):]
	}
	if rel == "" {
		return "", ErrNotFound
	}

	p := filepath.Join(l.root, filepath.FromSlash(rel))
	if p != l.root && !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", &FetchError{Location: location, Err: errors.New("path escapes upload directory")}
	}
	return p, nil
}

// Fetch implements Resolver.
func (l *LocalResolver) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.Path(location)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, &FetchError{Location: location, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &FetchError{Location: location, Err: err}
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, location)
	}

	data, err := io.ReadAll(io.LimitReader(f, constants.MaxImageBytes))
	if err != nil {
		return nil, &FetchError{Location: location, Err: err}
	}
	return data, nil
}
