package fetcher

import (
	"archive/zip"
	"io"
	"path"

	"github.com/rotisserie/eris"
)

// ZIPArchive is an opened archive whose entries are read in place.
type ZIPArchive struct {
	r       *zip.ReadCloser
	Entries []ZIPEntry
}

// ZIPEntry is a regular file inside a ZIPArchive.
type ZIPEntry struct {
	Name string
	Size int64
	file *zip.File
}

// OpenZIP opens the archive at zipPath. Directory entries are omitted.
func OpenZIP(zipPath string) (*ZIPArchive, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	a := &ZIPArchive{r: r}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.Entries = append(a.Entries, ZIPEntry{
			Name: f.Name,
			Size: int64(f.UncompressedSize64), //nolint:gosec
			file: f,
		})
	}
	return a, nil
}

// Close releases the archive.
func (a *ZIPArchive) Close() error {
	return a.r.Close()
}

// BaseName returns the entry name without directories.
func (e ZIPEntry) BaseName() string {
	return path.Base(e.Name)
}

// Open returns a fresh reader over the decompressed entry. Each call
// starts from the beginning.
func (e ZIPEntry) Open() (io.ReadCloser, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open entry %s", e.Name)
	}
	return rc, nil
}

// Sample returns up to n leading bytes of the entry.
func (e ZIPEntry) Sample(n int) ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	buf := make([]byte, n)
	read, err := io.ReadFull(rc, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, eris.Wrapf(err, "zip: sample entry %s", e.Name)
	}
	return buf[:read], nil
}
