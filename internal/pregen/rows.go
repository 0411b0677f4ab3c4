package pregen

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// csvRows reads delimited text lazily. The first record is the header.
type csvRows struct {
	closer io.Closer
	reader *csv.Reader
	header []string
}

func newCSVRows(f io.ReadCloser, delimiter rune) *csvRows {
	return &csvRows{closer: f, reader: newReader(f, delimiter)}
}

// newDecodedCSVRows parses rows from decoded but closes the underlying file.
func newDecodedCSVRows(f io.Closer, decoded io.Reader, delimiter rune) *csvRows {
	return &csvRows{closer: f, reader: newReader(decoded, delimiter)}
}

func newReader(r io.Reader, delimiter rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.ReuseRecord = false
	return cr
}

func (c *csvRows) Header() ([]string, error) {
	if c.header != nil {
		return c.header, nil
	}
	rec, err := c.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, eris.Wrap(err, "pregen: read header")
	}
	c.header = rec
	return rec, nil
}

func (c *csvRows) Read() ([]string, error) {
	if c.header == nil {
		if _, err := c.Header(); err != nil {
			return nil, err
		}
	}
	rec, err := c.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, eris.Wrap(err, "pregen: read row")
	}
	return rec, nil
}

func (c *csvRows) Close() error {
	return c.closer.Close()
}

// xlsxRows serves rows from the first sheet of a workbook. The whole sheet is
// materialized up front; pregen workbooks are small.
type xlsxRows struct {
	rows [][]string
	next int
}

func openXLSXRows(path string) (*xlsxRows, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pregen: open workbook %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("pregen: workbook %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return &xlsxRows{rows: rows}, nil
}

func (x *xlsxRows) Header() ([]string, error) {
	if len(x.rows) == 0 {
		return nil, io.EOF
	}
	if x.next == 0 {
		x.next = 1
	}
	return x.rows[0], nil
}

func (x *xlsxRows) Read() ([]string, error) {
	if x.next == 0 {
		x.next = 1 // skip header
	}
	if x.next >= len(x.rows) {
		return nil, io.EOF
	}
	row := x.rows[x.next]
	x.next++
	return row, nil
}

func (x *xlsxRows) Close() error { return nil }
