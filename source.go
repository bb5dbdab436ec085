package georaster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// A SourceFile is an open, randomly accessible source.
type SourceFile interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// A Source is a file, URL, or byte stream from which rasters are read.
type Source interface {
	// Key returns a string that identifies the source.
	Key() string

	// Path returns the source's path, or the empty string if it has none.
	// Readers use its suffix to filter sources cheaply.
	Path() string

	// Open opens the source.
	Open() (SourceFile, error)

	// Sibling returns the source alongside this one with the suffix
	// replaced, used to locate sidecar files.
	Sibling(suffix string) (Source, bool)
}

// A FileSource is a file in an fs.FS.
type FileSource struct {
	fsys fs.FS
	name string
}

// NewFileSource returns a new FileSource.
func NewFileSource(fsys fs.FS, name string) *FileSource {
	return &FileSource{
		fsys: fsys,
		name: name,
	}
}

func (s *FileSource) Key() string { return "file:" + s.name }
func (s *FileSource) Path() string { return s.name }

// Open opens s. The file must support random access.
func (s *FileSource) Open() (SourceFile, error) {
	file, err := s.fsys.Open(s.name)
	if err != nil {
		return nil, err
	}
	sourceFile, ok := file.(SourceFile)
	if !ok {
		_ = file.Close()
		return nil, errors.ErrUnsupported
	}
	return sourceFile, nil
}

func (s *FileSource) Sibling(suffix string) (Source, bool) {
	return NewFileSource(s.fsys, replaceSuffix(s.name, suffix)), true
}

// A URLSource is a resource fetched over HTTP.
type URLSource struct {
	client *http.Client
	url    *url.URL
}

// A URLSourceOption sets an option on a URLSource.
type URLSourceOption func(*URLSource)

// WithHTTPClient sets the client used to fetch the source.
func WithHTTPClient(client *http.Client) URLSourceOption {
	return func(s *URLSource) {
		s.client = client
	}
}

// NewURLSource returns a new URLSource.
func NewURLSource(rawURL string, options ...URLSourceOption) (*URLSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%s: scheme %q: %w", rawURL, u.Scheme, ErrInvalidArgument)
	}
	s := &URLSource{
		client: http.DefaultClient,
		url:    u,
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

func (s *URLSource) Key() string { return s.url.String() }
func (s *URLSource) Path() string { return s.url.Path }

// Open fetches s into memory.
func (s *URLSource) Open() (SourceFile, error) {
	resp, err := s.client.Get(s.url.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", s.url, fs.ErrNotExist)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: %s", s.url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return newBytesFile(data), nil
}

func (s *URLSource) Sibling(suffix string) (Source, bool) {
	u := *s.url
	u.Path = replaceSuffix(u.Path, suffix)
	u.RawPath = ""
	return &URLSource{
		client: s.client,
		url:    &u,
	}, true
}

// A BytesSource is an in-memory source.
type BytesSource struct {
	key      string
	path     string
	data     []byte
	siblings map[string][]byte
}

// NewBytesSource returns a new BytesSource. path may be empty.
func NewBytesSource(key, path string, data []byte) *BytesSource {
	return &BytesSource{
		key:  key,
		path: path,
		data: data,
	}
}

// NewStreamSource returns a new BytesSource holding the contents of r.
func NewStreamSource(key string, r io.Reader) (*BytesSource, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewBytesSource(key, "", data), nil
}

// WithSibling adds an in-memory sidecar to s.
func (s *BytesSource) WithSibling(suffix string, data []byte) *BytesSource {
	if s.siblings == nil {
		s.siblings = make(map[string][]byte)
	}
	s.siblings[suffix] = data
	return s
}

func (s *BytesSource) Key() string { return s.key }
func (s *BytesSource) Path() string { return s.path }

func (s *BytesSource) Open() (SourceFile, error) {
	return newBytesFile(s.data), nil
}

func (s *BytesSource) Sibling(suffix string) (Source, bool) {
	data, ok := s.siblings[suffix]
	if !ok {
		return nil, false
	}
	return NewBytesSource(s.key+suffix, replaceSuffix(s.path, suffix), data), true
}

type bytesFile struct {
	*bytes.Reader
}

func newBytesFile(data []byte) bytesFile {
	return bytesFile{
		Reader: bytes.NewReader(data),
	}
}

func (bytesFile) Close() error {
	return nil
}

// readAll reads the whole of source.
func readAll(source Source) ([]byte, error) {
	file, err := source.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// sourceSuffix returns the lowercased suffix of source's path.
func sourceSuffix(source Source) string {
	return strings.ToLower(path.Ext(source.Path()))
}

func replaceSuffix(name, suffix string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + suffix
}
