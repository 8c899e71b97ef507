package sqlpatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func writeFixture(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFixture(t *testing.T) {
	path := writeFixture(t, `cols: ["id", "name", "score::NUMERIC"]
rows:
  - [1, alice, "12.5"]
  - [2, bob, "7.25"]
`)

	data, err := LoadFixture(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "score::NUMERIC"}, data.Cols)
	assert.Equal(t, 2, len(data.Rows))

	actual, err := Apply("select t.id from scores t",
		NewPatch(TableAs("scores", "t"), data))
	assert.NoError(t, err)
	assert.Equal(t,
		"select t.id from  (VALUES (1,'alice','12.5'::NUMERIC),(2,'bob','7.25'::NUMERIC)) AS t(id,name,score)",
		actual)
}

func TestLoadFixtureNamedRows(t *testing.T) {
	path := writeFixture(t, `cols: [id, name]
named_rows:
  - id: 1
    name: alice
  - id: 2
`)

	data, err := LoadFixture(path)
	assert.NoError(t, err)

	values, err := renderValues(data, "", false)
	assert.NoError(t, err)
	assert.Equal(t, "VALUES (1,'alice'),(2,null)", values)
}

func TestLoadFixtureErrors(t *testing.T) {
	_, err := LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFixture(writeFixture(t, "cols: [id]\nbogus_key: 1\n"))
	assert.Error(t, err)

	_, err = LoadFixture(writeFixture(t, `cols: [id]
rows:
  - [1]
named_rows:
  - id: 2
`))
	assert.IsError(t, err, ErrColumnMismatch)
}
