// Package pregen provides access to pre-generated data files: resolving
// per-part file names against a configured base directory and reading the
// resolved files as header-plus-rows tables.
package pregen

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Resolver maps a pregen part's file name to a readable table of rows.
type Resolver interface {
	Open(name string) (RowReader, error)
}

// RowReader yields a header row followed by data rows. Read returns io.EOF
// when the rows are exhausted.
type RowReader interface {
	Header() ([]string, error)
	Read() ([]string, error)
	Close() error
}

// DirResolver resolves relative file names under a base directory. It owns
// all path joining and rejects names that escape the base directory.
type DirResolver struct {
	dir       string
	delimiter rune
	charset   string
}

// Option configures a DirResolver.
type Option func(*DirResolver)

// WithDelimiter sets the field delimiter for delimited files.
func WithDelimiter(d rune) Option {
	return func(r *DirResolver) { r.delimiter = d }
}

// WithCharset sets a legacy character encoding (IANA name, e.g. "latin1")
// to decode delimited files from. The default is UTF-8 passthrough.
func WithCharset(name string) Option {
	return func(r *DirResolver) { r.charset = name }
}

// NewDirResolver creates a resolver rooted at dir.
func NewDirResolver(dir string, opts ...Option) *DirResolver {
	r := &DirResolver{dir: dir, delimiter: ','}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open resolves name under the base directory and opens it as a row source.
// Files ending in .xlsx are read as workbooks; everything else is parsed as
// delimited text.
func (r *DirResolver) Open(name string) (RowReader, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return openXLSXRows(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pregen: open %s", path)
	}

	if r.charset == "" {
		return newCSVRows(f, r.delimiter), nil
	}

	enc, err := htmlindex.Get(r.charset)
	if err != nil {
		f.Close()
		return nil, eris.Wrapf(err, "pregen: unsupported charset %q", r.charset)
	}
	return newDecodedCSVRows(f, enc.NewDecoder().Reader(f), r.delimiter), nil
}

func (r *DirResolver) resolve(name string) (string, error) {
	if name == "" {
		return "", eris.New("pregen: empty file name")
	}
	path := filepath.Join(r.dir, name)

	rel, err := filepath.Rel(r.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("pregen: file name %q escapes base directory", name)
	}
	return path, nil
}
