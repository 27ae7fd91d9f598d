package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnterminatedQuote reports a quoted field left open until end of input.
var ErrUnterminatedQuote = errors.New("unterminated quoted field")

// Record is one parsed CSV line with its 1-based source line number. Err is
// set when the line could not be parsed; Fields is empty in that case.
type Record struct {
	Line   int
	Fields []string
	Err    error
}

// ReadCSV parses every record from r. Rows may have differing field counts;
// callers validate shape per record. A malformed line is returned as a record
// carrying Err and reading continues with the next line. A leading UTF-8 BOM
// is dropped and fields are trimmed.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records := make([]Record, 0)
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			records = append(records, Record{Line: parseErr.StartLine, Err: parseErr.Err})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(records) == 0 && len(fields) > 0 {
			fields[0] = strings.TrimPrefix(fields[0], "\ufeff")
		}
		records = append(records, Record{Line: line, Fields: fields})
	}

	// An open quote on the last record consumed the rest of the input.
	if n := len(records); n > 0 && errors.Is(records[n-1].Err, csv.ErrQuote) {
		return nil, fmt.Errorf("parse csv: line %d: %w", records[n-1].Line, ErrUnterminatedQuote)
	}
	return records, nil
}
