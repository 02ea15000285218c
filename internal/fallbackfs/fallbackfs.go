package fallbackfs

import (
	"errors"
	"io/fs"
	"path"
)

type wrapper struct {
	fs       fs.FS
	fallback string
}

// New serves fallbackToFile for missing paths without a file extension, so
// client side routes resolve to the app shell. Missing assets ("app.js")
// still fail with fs.ErrNotExist.
func New(fsys fs.FS, fallbackToFile string) fs.FS {
	return wrapper{
		fs:       fsys,
		fallback: fallbackToFile,
	}
}

func (w wrapper) Open(name string) (fs.File, error) {
	f, err := w.fs.Open(name)
	if err != nil && errors.Is(err, fs.ErrNotExist) && path.Ext(name) == "" {
		return w.fs.Open(w.fallback)
	}
	return f, err
}
