package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGrouped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.json")
	content := `{
		"Prediction": [{"node": "reactor-3", "value": 451}],
		"Measurement": [{"node": "reactor-1"}, {"node": "reactor-2"}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	grouped, err := ReadGrouped(path)
	require.NoError(t, err)
	assert.Len(t, grouped["Prediction"], 1)
	assert.Len(t, grouped["Measurement"], 2)
}

func TestReadGroupedRejectsWrongExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.csv")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	_, err := ReadGrouped(path)
	assert.Error(t, err)
}

func TestReadGroupedRejectsNonGroupedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "grouped"]`), 0644))

	_, err := ReadGrouped(path)
	assert.Error(t, err)
}

func TestFlattenIsStableAcrossMetatypes(t *testing.T) {
	grouped := Grouped{
		"Zeta":  {{"n": "z"}},
		"Alpha": {{"n": "a1"}, {"n": "a2"}},
	}

	flat := grouped.Flatten()
	require.Len(t, flat, 3)
	assert.Equal(t, "a1", flat[0]["n"])
	assert.Equal(t, "a2", flat[1]["n"])
	assert.Equal(t, "z", flat[2]["n"])
}

func TestWriteCSVCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "query.csv")

	err := WriteCSV(path, []string{"node", "value"}, [][]string{
		{"reactor-1", "42"},
		{"reactor-2", "43"},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "node,value\nreactor-1,42\nreactor-2,43\n", string(raw))
}

func TestWriteCSVRejectsWrongExtension(t *testing.T) {
	err := WriteCSV(filepath.Join(t.TempDir(), "query.json"), nil, nil)
	assert.Error(t, err)
}
