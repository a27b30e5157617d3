package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// jsonlReader serves records and queries from JSON-lines files. Each call to
// Records or Queries re-opens the file, which is what makes the sequence
// restartable.
type jsonlReader struct {
	cfg       Config
	normalize bool
}

func (r *jsonlReader) Records() (RecordIterator, error) {
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open records for %s: %w", r.cfg.Name, err)
	}
	return &recordIter{lines: newLineIter(f), normalize: r.normalize}, nil
}

func (r *jsonlReader) Queries() (QueryIterator, error) {
	f, err := os.Open(r.cfg.QueriesPath)
	if err != nil {
		return nil, fmt.Errorf("open queries for %s: %w", r.cfg.Name, err)
	}
	return &queryIter{lines: newLineIter(f), normalize: r.normalize}, nil
}

// lineIter walks a file line by line, skipping blanks.
type lineIter struct {
	f       *os.File
	scanner *bufio.Scanner
	err     error
}

func newLineIter(f *os.File) *lineIter {
	sc := bufio.NewScanner(f)
	// Wide vectors produce long lines; the default 64K token cap is too small
	// for 1536-dimensional records.
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &lineIter{f: f, scanner: sc}
}

func (it *lineIter) next() ([]byte, bool) {
	if it.err != nil {
		return nil, false
	}
	for it.scanner.Scan() {
		line := it.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return line, true
	}
	it.err = it.scanner.Err()
	return nil, false
}

func (it *lineIter) close() error { return it.f.Close() }

type recordIter struct {
	lines     *lineIter
	normalize bool
	cur       Record
	err       error
}

func (it *recordIter) Next() bool {
	if it.err != nil {
		return false
	}
	line, ok := it.lines.next()
	if !ok {
		it.err = it.lines.err
		return false
	}
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		it.err = fmt.Errorf("decode record: %w", err)
		return false
	}
	if it.normalize {
		rec.Vector = Normalize(rec.Vector)
	}
	it.cur = rec
	return true
}

func (it *recordIter) Record() Record { return it.cur }
func (it *recordIter) Err() error { return it.err }
func (it *recordIter) Close() error { return it.lines.close() }

type queryIter struct {
	lines     *lineIter
	normalize bool
	cur       Query
	err       error
}

func (it *queryIter) Next() bool {
	if it.err != nil {
		return false
	}
	line, ok := it.lines.next()
	if !ok {
		it.err = it.lines.err
		return false
	}
	var q Query
	if err := json.Unmarshal(line, &q); err != nil {
		it.err = fmt.Errorf("decode query: %w", err)
		return false
	}
	if it.normalize {
		q.Vector = Normalize(q.Vector)
	}
	it.cur = q
	return true
}

func (it *queryIter) Query() Query { return it.cur }
func (it *queryIter) Err() error { return it.err }
func (it *queryIter) Close() error { return it.lines.close() }
