package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_PlainLines(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Stage("Upload")
	w.Printf("uploaded %d records", 42)
	w.Warningf("teardown lagged")
	w.Errorf("cell failed")
	w.Successf("done")

	out := buf.String()
	assert.Contains(t, out, "Experiment stage: Upload\n")
	assert.Contains(t, out, "uploaded 42 records\n")
	assert.Contains(t, out, "Warning: teardown lagged\n")
	assert.Contains(t, out, "Error: cell failed\n")
	assert.Contains(t, out, "done\n")
}

func TestWriter_NoColorCodesOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Stage("Search")
	w.Warningf("w")

	assert.NotContains(t, buf.String(), "\x1b[", "buffers never get ANSI escapes")
}

func TestDiscard(t *testing.T) {
	w := Discard()
	w.Printf("dropped")
	w.Warningf("dropped")
}
