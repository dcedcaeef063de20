// Package csvio reads and writes the CSV files exchanged with submitters.
//
// Submitted files are produced by spreadsheets and are often inconsistent:
// byte order marks, Latin-1 encodings, padded headers, trailing empty rows
// and columns. Everything that reads a submission goes through this package
// so the rest of the system sees trimmed UTF-8 records.
package csvio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("csvio: file is empty")

// NewReader returns a csv.Reader over r with any UTF-8 byte order mark
// removed. Ragged rows are allowed so callers can report them.
func NewReader(r io.Reader) *csv.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	return cr
}

// NewWriter returns a csv.Writer over w using LF line endings.
func NewWriter(w io.Writer) *csv.Writer {
	return csv.NewWriter(w)
}

// Table is a fully read CSV file. Only used for small files such as DICT
// and META; DATA files are streamed.
type Table struct {
	Header []string
	Rows   [][]string
	// Lines holds the 1-based starting line of each row.
	Lines []int
}

// Column returns the index of the named column, matched case-insensitively
// after trimming, or -1.
func (t *Table) Column(name string) int {
	return IndexOf(t.Header, name)
}

// Cell returns the trimmed value of column idx in row, or "" when the row is
// shorter than the header or idx is negative.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// IndexOf returns the index of name in header, compared case-insensitively
// after trimming, or -1.
func IndexOf(header []string, name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i
		}
	}
	return -1
}

// ReadTable reads an entire CSV stream.
func ReadTable(r io.Reader) (*Table, error) {
	cr := NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, err
	}
	t := &Table{Header: trimAll(header)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		t.Rows = append(t.Rows, rec)
		t.Lines = append(t.Lines, line)
	}
	return t, nil
}

// ReadTableFile reads an entire CSV file.
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// ReadHeader returns the trimmed header row of a CSV file.
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	header, err := NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, err
	}
	return trimAll(header), nil
}

// WriteFileAtomic writes a file by calling fn with a temporary file in the
// destination directory and renaming it into place when fn succeeds.
// A failed write leaves no file at path.
func WriteFileAtomic(path string, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = fn(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteTableFile writes header and rows to path atomically.
func WriteTableFile(path string, header []string, rows [][]string) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		cw := NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	})
}

// CopyFile copies src to dst atomically.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	return WriteFileAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// IsNewer reports whether a was modified after b. A missing b counts as older.
func IsNewer(a, b string) (bool, error) {
	sa, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	sb, err := os.Stat(b)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return sa.ModTime().After(sb.ModTime()), nil
}

// =============================================================================
// Encoding
// =============================================================================

// ValidUTF8 reports whether the stream is valid UTF-8. It reads in chunks so
// large files are never held in memory.
func ValidUTF8(r io.Reader) (bool, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		rn, size, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if rn == utf8.RuneError && size == 1 {
			return false, nil
		}
	}
}

// ValidUTF8File reports whether the file at path is valid UTF-8.
func ValidUTF8File(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()
	return ValidUTF8(f)
}

// ConvertLatin1 rewrites src as UTF-8 into dst, decoding it as ISO-8859-1.
// Every byte sequence is valid ISO-8859-1, so the conversion only fails on I/O.
func ConvertLatin1(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	dec := charmap.ISO8859_1.NewDecoder().Reader(in)
	return WriteFileAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, dec)
		return err
	})
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

// sniffLen is how much of a file IsBinary inspects.
const sniffLen = 8000

// IsBinary reports whether the file looks like binary data rather than text:
// its first bytes contain a NUL. Spreadsheets saved under a .csv name are
// the usual cause.
func IsBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return bytes.IndexByte(buf[:n], 0) >= 0, nil
}

// CheckWellFormed streams the whole file through the CSV parser. With
// latin1 set the bytes are decoded as ISO-8859-1 first. The returned error
// wraps *csv.ParseError for syntax problems.
func CheckWellFormed(path string, latin1 bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	var r io.Reader = f
	if latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(f)
	}
	cr := NewReader(r)
	cr.ReuseRecord = true
	if _, err := cr.Read(); errors.Is(err, io.EOF) {
		return ErrEmptyFile
	} else if err != nil {
		return err
	}
	for {
		_, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
