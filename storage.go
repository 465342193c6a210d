package readquant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

const gsPrefix = "gs://"

// Opener opens a single file by path.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// FileSystem resolves paths on the local disk, or in Google Storage for paths
// that begin with gs://. The zero value only handles local paths.
type FileSystem struct {
	// Client is used for gs:// paths. Safe for concurrent use.
	Client *storage.Client

	// Context applies to every Google Storage request. If nil,
	// context.Background() is used.
	Context context.Context
}

// NewFileSystem returns a FileSystem bound to ctx. A Google Storage client is
// created only if one of paths is a gs:// path; release it with Close.
func NewFileSystem(ctx context.Context, paths ...string) (FileSystem, error) {
	fsys := FileSystem{Context: ctx}
	for _, p := range paths {
		if !IsStoragePath(p) {
			continue
		}

		client, err := storage.NewClient(ctx)
		if err != nil {
			return fsys, fmt.Errorf("creating Google Storage client for %s: %w", p, err)
		}
		fsys.Client = client
		break
	}

	return fsys, nil
}

// Close releases the Google Storage client, if there is one.
func (fsys FileSystem) Close() error {
	if fsys.Client == nil {
		return nil
	}
	return fsys.Client.Close()
}

func (fsys FileSystem) ctx() context.Context {
	if fsys.Context == nil {
		return context.Background()
	}
	return fsys.Context
}

// Open returns a reader for the file at path. A missing file yields an error
// that satisfies errors.Is(err, fs.ErrNotExist) for both backends.
func (fsys FileSystem) Open(filePath string) (io.ReadCloser, error) {
	if !IsStoragePath(filePath) {
		return os.Open(filePath)
	}

	if fsys.Client == nil {
		return nil, fmt.Errorf("%s: no Google Storage client configured", filePath)
	}

	bucketName, objectName, err := splitStoragePath(filePath)
	if err != nil {
		return nil, err
	}

	rdr, err := fsys.Client.Bucket(bucketName).Object(objectName).NewReader(fsys.ctx())
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, &fs.PathError{Op: "open", Path: filePath, Err: fs.ErrNotExist}
	} else if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	return rdr, nil
}

// Glob returns the paths matching pattern. Local patterns follow
// filepath.Glob and come back in lexical order. gs:// patterns are matched
// against object name prefixes, so a pattern may name "directories" as well
// as objects; these also come back in lexical order.
func (fsys FileSystem) Glob(pattern string) ([]string, error) {
	if !IsStoragePath(pattern) {
		expanded, err := ExpandHome(pattern)
		if err != nil {
			return nil, err
		}
		return filepath.Glob(expanded)
	}

	if fsys.Client == nil {
		return nil, fmt.Errorf("%s: no Google Storage client configured", pattern)
	}

	bucketName, objectPattern, err := splitStoragePath(pattern)
	if err != nil {
		return nil, err
	}
	if _, err := path.Match(objectPattern, ""); err != nil {
		return nil, fmt.Errorf("%s: %w", pattern, err)
	}

	it := fsys.Client.Bucket(bucketName).Objects(fsys.ctx(), &storage.Query{
		Prefix: literalPrefix(objectPattern),
	})

	names := make([]string, 0)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w", pattern, err)
		}
		names = append(names, attrs.Name)
	}

	matches := MatchObjectPrefixes(objectPattern, names)
	for i, v := range matches {
		matches[i] = gsPrefix + bucketName + "/" + v
	}

	return matches, nil
}

// Join is filepath.Join for local paths and a slash join for gs:// paths.
func Join(dir string, elem ...string) string {
	if !IsStoragePath(dir) {
		return filepath.Join(append([]string{dir}, elem...)...)
	}

	return gsPrefix + path.Join(append([]string{strings.TrimPrefix(dir, gsPrefix)}, elem...)...)
}

// IsStoragePath reports whether p refers to Google Storage.
func IsStoragePath(p string) bool {
	return strings.HasPrefix(p, gsPrefix)
}

// MatchObjectPrefixes returns, in first-seen order and without duplicates,
// every slash-separated prefix of names that has as many path elements as
// pattern and matches it.
func MatchObjectPrefixes(pattern string, names []string) []string {
	pattern = strings.TrimSuffix(pattern, "/")
	depth := strings.Count(pattern, "/") + 1

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, name := range names {
		parts := strings.Split(name, "/")
		if len(parts) < depth {
			continue
		}
		candidate := strings.Join(parts[:depth], "/")
		if _, exists := seen[candidate]; exists {
			continue
		}
		if ok, _ := path.Match(pattern, candidate); !ok {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}

	return out
}

// literalPrefix is the part of a glob pattern before the first
// metacharacter. Listing with it as the prefix bounds the request.
func literalPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, `*?[\`); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

func splitStoragePath(p string) (bucket, object string, err error) {
	pathParts := strings.SplitN(strings.TrimPrefix(p, gsPrefix), "/", 2)
	if len(pathParts) != 2 {
		return "", "", fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}

	return pathParts[0], pathParts[1], nil
}
