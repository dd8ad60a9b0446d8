// Package tempfile stages extracted attachments as ephemeral files with
// guaranteed cleanup. A File is exclusively owned: whichever scope holds it
// is responsible for removing it unless ownership is moved away first.
package tempfile

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// File is one staged attachment on disk.
type File struct {
	path      string
	mediaType string
}

// New stages the contents of r into a fresh file under the system temp
// directory. On any error nothing is left behind.
func New(r io.Reader, mediaType string) (*File, error) {
	path := filepath.Join(os.TempDir(), uuid.NewString())

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "creating staging file")
	}

	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "writing staging file")
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "closing staging file")
	}

	return &File{path: path, mediaType: mediaType}, nil
}

// Path returns the on-disk location, or an empty string after the file has
// been moved or removed.
func (f *File) Path() string {
	return f.path
}

// MediaType returns the attachment's original MIME media type.
func (f *File) MediaType() string {
	return f.mediaType
}

// CopyTo duplicates the staged file at dest. The File keeps ownership of the
// original.
func (f *File) CopyTo(dest string) error {
	if f.path == "" {
		return errors.New("staging file already released")
	}
	in, err := os.Open(f.path)
	if err != nil {
		return errors.Wrap(err, "opening staging file")
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "creating destination file")
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "copying staging file")
	}
	return out.Close()
}

// MoveTo relocates the staged file to dest and releases ownership. After a
// successful move the File no longer deletes anything.
func (f *File) MoveTo(dest string) error {
	if f.path == "" {
		return errors.New("staging file already released")
	}
	if err := os.Rename(f.path, dest); err != nil {
		// Rename fails across filesystems; fall back to copy and remove.
		if cerr := f.CopyTo(dest); cerr != nil {
			return cerr
		}
		_ = os.Remove(f.path)
	}
	f.path = ""
	return nil
}

// Remove deletes the staged file. It is safe to call more than once and
// after a move.
func (f *File) Remove() error {
	if f.path == "" {
		return nil
	}
	err := os.Remove(f.path)
	f.path = ""
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing staging file")
	}
	return nil
}

// RemoveAll deletes every file in the list, best effort.
func RemoveAll(files []*File) {
	for _, f := range files {
		if f != nil {
			_ = f.Remove()
		}
	}
}
