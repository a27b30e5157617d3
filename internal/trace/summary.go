package trace

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/sync/errgroup"
)

// RowKey identifies one profiled run in the summary matrix.
type RowKey struct {
	Dataset   string
	Size      string
	Engine    string
	Iteration int
}

func (k RowKey) String() string {
	return fmt.Sprintf("%s/%s/%s_%d", k.Dataset, k.Size, k.Engine, k.Iteration)
}

// Row is one summary matrix row: counts per (process, event) column.
type Row struct {
	Key    RowKey
	Counts map[string]int
}

// Summary is the filtered count matrix. Columns holds only the
// (process-event) keys that are non-zero in every row; sparse columns are
// artifacts of non-deterministic process scheduling, not signal.
type Summary struct {
	Columns []string
	Rows    []Row
}

// traceLineRE extracts COMM, PID and the event name from one trace text
// line, tolerating a trailing Size= detail.
var traceLineRE = regexp.MustCompile(`^\d+\.\d+\s+(\S+)\s+(\d+)\s+([A-Za-z][A-Za-z ]*?)\s*(?:Size=.*)?$`)

// ParseTraceFile counts trace lines grouped by "comm-event". Header and
// non-event lines are skipped.
func ParseTraceFile(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parseTrace(f)
}

func parseTrace(r io.Reader) (map[string]int, error) {
	counts := make(map[string]int)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := traceLineRE.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		counts[m[1]+"-"+strings.TrimSpace(m[3])]++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// Summarize walks a profile results tree laid out
// {dataset}/{size}/{engine}_{iteration}.txt, parses every trace file, and
// assembles the filtered matrix. Files are parsed concurrently; this is a
// post-hoc step outside the single-threaded orchestration path.
func Summarize(root string) (*Summary, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".txt") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	var (
		mu   sync.Mutex
		rows []Row
	)
	g := new(errgroup.Group)
	g.SetLimit(8)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			key, ok := rowKeyFromPath(root, path)
			if !ok {
				return nil
			}
			counts, err := ParseTraceFile(path)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			mu.Lock()
			rows = append(rows, Row{Key: key, Counts: counts})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Key.String() < rows[j].Key.String() })
	return &Summary{Columns: denseColumns(rows), Rows: rows}, nil
}

// rowKeyFromPath decodes {dataset}/{size}/{engine}_{iteration}.txt relative
// to root. Engines may contain underscores; the iteration is the suffix
// after the last one.
func rowKeyFromPath(root, path string) (RowKey, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return RowKey{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return RowKey{}, false
	}
	base := strings.TrimSuffix(parts[2], ".txt")
	idx := strings.LastIndex(base, "_")
	if idx <= 0 {
		return RowKey{}, false
	}
	iter, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return RowKey{}, false
	}
	return RowKey{Dataset: parts[0], Size: parts[1], Engine: base[:idx], Iteration: iter}, true
}

// denseColumns returns the sorted (process-event) keys with a non-zero count
// in every row.
func denseColumns(rows []Row) []string {
	if len(rows) == 0 {
		return nil
	}
	var cols []string
	for col := range rows[0].Counts {
		dense := true
		for _, row := range rows[1:] {
			if row.Counts[col] == 0 {
				dense = false
				break
			}
		}
		if dense {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

// WriteCSV writes the matrix with dataset/size/iteration key columns.
func (s *Summary) WriteCSV(w io.Writer) error {
	header := append([]string{"dataset", "size", "engine", "iteration"}, s.Columns...)
	if _, err := fmt.Fprintln(w, strings.Join(header, ",")); err != nil {
		return err
	}
	for _, row := range s.Rows {
		fields := []string{row.Key.Dataset, row.Key.Size, row.Key.Engine, strconv.Itoa(row.Key.Iteration)}
		for _, col := range s.Columns {
			fields = append(fields, strconv.Itoa(row.Counts[col]))
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields, ",")); err != nil {
			return err
		}
	}
	return nil
}

// RenderTable prints the matrix as a readable table.
func (s *Summary) RenderTable(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	header := table.Row{"dataset", "size", "engine", "iter"}
	for _, col := range s.Columns {
		header = append(header, col)
	}
	t.AppendHeader(header)
	for _, row := range s.Rows {
		r := table.Row{row.Key.Dataset, row.Key.Size, row.Key.Engine, row.Key.Iteration}
		for _, col := range s.Columns {
			r = append(r, row.Counts[col])
		}
		t.AppendRow(r)
	}
	t.Render()
}
