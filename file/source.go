package file

import (
	"io"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
)

// NamedReadCloser is an io.ReadCloser which knows the base name of what it
// reads.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
}

// RawSource hands out readers for a single file or for every regular file in
// a directory, in name order.
type RawSource struct {
	files   []string
	fileIdx *uint64
}

// NewRawSource gets a RawSource for pathname, which may be a file or a
// directory. Subdirectories are not descended into.
func NewRawSource(pathname string) (*RawSource, error) {
	fileIdx := uint64(0)
	s := &RawSource{
		fileIdx: &fileIdx,
	}
	info, err := os.Stat(pathname)
	if err != nil {
		return nil, errors.Wrap(err, "statting path")
	}
	if info.IsDir() {
		infos, err := ioutil.ReadDir(pathname)
		if err != nil {
			return nil, errors.Wrap(err, "reading directory")
		}
		s.files = make([]string, 0, len(infos))
		for _, info = range infos {
			if info.IsDir() {
				continue
			}
			s.files = append(s.files, filepath.Join(pathname, info.Name()))
		}
		sort.Strings(s.files)
	} else {
		s.files = []string{pathname}
	}
	return s, nil
}

// Len returns the number of files the source will read.
func (s *RawSource) Len() int { return len(s.files) }

type metaFile struct {
	*os.File
}

func (m *metaFile) Name() string {
	return filepath.Base(m.File.Name())
}

// NextReader opens the next file. It returns io.EOF when all files have been
// handed out. It is safe to call from multiple goroutines.
func (s *RawSource) NextReader() (NamedReadCloser, error) {
	idx := atomic.AddUint64(s.fileIdx, 1) - 1
	if int(idx) >= len(s.files) {
		return nil, io.EOF
	}

	file, err := os.Open(s.files[idx])
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", s.files[idx])
	}

	return &metaFile{file}, nil
}

// PathFromURL returns the local path named by a file:// URL, or rawurl
// itself if it has no scheme.
func PathFromURL(rawurl string) (string, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", errors.Wrap(err, "parsing url")
	}
	switch u.Scheme {
	case "":
		return rawurl, nil
	case "file":
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			p = "//" + u.Host + p
		}
		return filepath.FromSlash(p), nil
	}
	return "", errors.Errorf("not a file url: %s", rawurl)
}

// ReadAll reads the file named by a path or a file:// URL.
func ReadAll(rawurl string) ([]byte, error) {
	p, err := PathFromURL(rawurl)
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", p)
	}
	return data, nil
}

// WriteAtomic writes data to pathname through a temporary file in the same
// directory, so readers never see a partial file. Missing parent directories
// are created.
func WriteAtomic(pathname string, data []byte) error {
	dir := filepath.Dir(pathname)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating directory")
	}
	f, err := ioutil.TempFile(dir, "."+filepath.Base(pathname)+".")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.Wrap(err, "writing temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Chmod(f.Name(), 0644); err != nil {
		os.Remove(f.Name())
		return errors.Wrap(err, "chmod temp file")
	}
	return errors.Wrap(os.Rename(f.Name(), pathname), "renaming temp file")
}
