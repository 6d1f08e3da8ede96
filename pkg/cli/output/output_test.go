package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Render(t *testing.T) {
	color.NoColor = true

	tbl := NewTable([]string{"ID", "STATE"})
	tbl.AddRow([]string{"abc", "Executing"})
	tbl.AddRow([]string{"a-much-longer-id", "Failure"})
	assert.Equal(t, 2, tbl.Len())

	var buf bytes.Buffer
	tbl.Render(&buf)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID                STATE      ", lines[0])
	assert.Equal(t, "----------------  ---------  ", lines[1])
	assert.Equal(t, "abc               Executing  ", lines[2])
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"hits": 3}))
	assert.Equal(t, "{\n  \"hits\": 3\n}\n", buf.String())
}

func TestStateLabel(t *testing.T) {
	assert.Equal(t, "✅ ExecutionComplete", StateLabel("DONE", "ExecutionComplete"))
	assert.Equal(t, "❌ Failure", StateLabel("DONE", "Failure"))
	assert.Equal(t, "Custom", StateLabel("TRANSITION", "Custom"))
}
