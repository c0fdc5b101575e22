//go:build debug

package dist

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// localFS serves the files from the source tree so edits show without a rebuild.
type localFS struct {
	root string
}

func (l *localFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return os.Open(filepath.Join(l.root, filepath.FromSlash(name)))
}

var Content fs.FS

func init() {
	_, file, _, _ := runtime.Caller(0)
	Content = &localFS{root: filepath.Dir(file)}
}
