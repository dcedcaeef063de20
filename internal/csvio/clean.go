package csvio

import (
	"errors"
	"io"
	"os"
	"strings"
)

// CleanStats reports what Clean removed.
type CleanStats struct {
	// Header is the untrimmed header of the columns that were kept.
	Header         []string
	Rows           int
	EmptyRows      int
	EmptyColumns   []string
	TrimmedHeaders int
}

// Clean copies the CSV at src to dst with header and cell whitespace trimmed
// and rows and columns that are entirely empty removed. A column counts as
// empty when both its header and every value are blank.
//
// The file is streamed twice: once to find empty columns, once to write.
func Clean(src, dst string) (CleanStats, error) {
	var stats CleanStats

	used, header, err := scanColumns(src)
	if err != nil {
		return stats, err
	}
	for i, h := range header {
		if h != strings.TrimSpace(h) {
			stats.TrimmedHeaders++
		}
		if !used[i] {
			stats.EmptyColumns = append(stats.EmptyColumns, strings.TrimSpace(h))
			continue
		}
		stats.Header = append(stats.Header, h)
	}

	in, err := os.Open(src)
	if err != nil {
		return stats, err
	}
	defer func() { _ = in.Close() }()

	err = WriteFileAtomic(dst, func(w io.Writer) error {
		cr := NewReader(in)
		cr.ReuseRecord = true
		cw := NewWriter(w)
		out := make([]string, 0, len(header))

		first := true
		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if !first && blank(rec) {
				stats.EmptyRows++
				continue
			}
			out = out[:0]
			for i := range header {
				if !used[i] {
					continue
				}
				out = append(out, strings.TrimSpace(Cell(rec, i)))
			}
			// extra cells past the header are kept so ragged rows stay visible
			for i := len(header); i < len(rec); i++ {
				out = append(out, strings.TrimSpace(rec[i]))
			}
			if err := cw.Write(out); err != nil {
				return err
			}
			if !first {
				stats.Rows++
			}
			first = false
		}
		cw.Flush()
		return cw.Error()
	})
	return stats, err
}

// scanColumns returns, per header column, whether the column has a name or
// any non-blank value.
func scanColumns(path string) ([]bool, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	cr := NewReader(f)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrEmptyFile
	}
	if err != nil {
		return nil, nil, err
	}
	header = append([]string(nil), header...)
	used := make([]bool, len(header))
	for i, h := range header {
		used[i] = strings.TrimSpace(h) != ""
	}
	cr.ReuseRecord = true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		for i := range header {
			if !used[i] && Cell(rec, i) != "" {
				used[i] = true
			}
		}
	}
	return used, header, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
