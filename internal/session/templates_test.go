package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTemplate(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name, name+TemplateSuffix), []byte("<Session/>"), 0o600))
}

func makeScript(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0o600))
}

func TestTemplateCatalog_ListsAndResolves(t *testing.T) {
	user, system, meta := t.TempDir(), t.TempDir(), t.TempDir()
	makeTemplate(t, user, "Band")
	makeTemplate(t, system, "Band")
	makeTemplate(t, system, "Podcast")
	require.NoError(t, os.MkdirAll(filepath.Join(user, "NotATemplate"), 0o755))
	makeScript(t, meta, "live.lua", `ardour { ["type"] = "SessionInit", name = "Live Band", description = "Tracks for a live set" }
function factory () return function () end end`)
	makeScript(t, meta, "action.lua", `ardour { ["type"] = "EditorAction", name = "Not a session" }`)
	makeScript(t, meta, "Podcast.lua", `ardour { ["type"]    =   "SessionInit", name = "Podcast" }`)

	c := NewTemplateCatalog(user, []string{system}, []string{meta}, nil)

	fsNames := []string{}
	for _, ti := range c.Filesystem() {
		fsNames = append(fsNames, ti.Name)
	}
	assert.ElementsMatch(t, []string{"Band", "Podcast"}, fsNames, "User templates hide system ones with the same name.")

	metaByName := map[string]TemplateInfo{}
	for _, ti := range c.Meta() {
		metaByName[ti.Name] = ti
	}
	require.Len(t, metaByName, 2, "Only SessionInit scripts are templates.")
	assert.Equal(t, "Tracks for a live set", metaByName["Live Band"].Description)
	assert.True(t, metaByName["Podcast"].Meta)

	ref := c.Resolve("Band")
	assert.Equal(t, filepath.Join(user, "Band"), ref.Path)
	assert.False(t, ref.Meta)

	ref = c.Resolve("Podcast")
	assert.Equal(t, filepath.Join(system, "Podcast"), ref.Path, "Filesystem templates win over scripts.")

	ref = c.Resolve("Live Band")
	assert.True(t, ref.Meta)
	assert.Equal(t, filepath.Join(meta, "live.lua"), ref.Path)

	ref = c.Resolve("band")
	assert.Equal(t, filepath.Join(user, "band"), ref.Path, "Matching is exact; unknown names get a guessed path.")

	assert.True(t, c.Resolve("").IsZero())
}

func TestTemplateCatalog_Suggest(t *testing.T) {
	user := t.TempDir()
	makeTemplate(t, user, "Orchestra")
	makeTemplate(t, user, "Podcast")
	c := NewTemplateCatalog(user, nil, nil, nil)

	s, ok := c.Suggest("Orchestr")
	require.True(t, ok)
	assert.Equal(t, "Orchestra", s)

	_, ok = c.Suggest("Zzzzzzzzzzzzzzzz")
	assert.False(t, ok, "Far-off names get no suggestion.")
}
