package dataset

// SliceReader serves records and queries from in-memory slices. Each call to
// Records or Queries starts a fresh pass, matching the restartable contract.
// It backs tests and small in-process runs.
type SliceReader struct {
	RecordsData []Record
	QueriesData []Query
}

func (r *SliceReader) Records() (RecordIterator, error) {
	return &sliceRecordIter{data: r.RecordsData, pos: -1}, nil
}

func (r *SliceReader) Queries() (QueryIterator, error) {
	return &sliceQueryIter{data: r.QueriesData, pos: -1}, nil
}

type sliceRecordIter struct {
	data []Record
	pos  int
}

func (it *sliceRecordIter) Next() bool {
	it.pos++
	return it.pos < len(it.data)
}

func (it *sliceRecordIter) Record() Record { return it.data[it.pos] }
func (it *sliceRecordIter) Err() error     { return nil }
func (it *sliceRecordIter) Close() error   { return nil }

type sliceQueryIter struct {
	data []Query
	pos  int
}

func (it *sliceQueryIter) Next() bool {
	it.pos++
	return it.pos < len(it.data)
}

func (it *sliceQueryIter) Query() Query { return it.data[it.pos] }
func (it *sliceQueryIter) Err() error   { return nil }
func (it *sliceQueryIter) Close() error { return nil }
