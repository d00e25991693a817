package rewrite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyPage = `<!DOCTYPE html>
<html>
<head>
    <link rel="stylesheet" href="../css/styles.css">
    <link rel="stylesheet" href="../css/nav.css">
</head>
<body>
    <nav class="mobile-menu"></nav>
    <script>function toggleMenu() { document.body.classList.toggle('open'); }</script>
    <script src="../js/nav.js"></script>
</body>
</html>
`

const plainPage = `<html>
<head>
    <link rel="stylesheet" href="../css/styles.css">
</head>
<body>
</body>
</html>
`

func TestReplaceRuleIsIdempotent(t *testing.T) {
	rules := []Rule{Replace("nav-stylesheet", Literal("nav.css"), "unified-nav.css")}

	out, applied := ApplyRules(`<link href="nav.css">`, rules)
	assert.Equal(t, `<link href="unified-nav.css">`, out)
	assert.Equal(t, []string{"nav-stylesheet"}, applied)

	again, applied := ApplyRules(out, rules)
	assert.Equal(t, out, again)
	assert.Empty(t, applied)
}

func TestDefaultRulesMigrateLegacyPage(t *testing.T) {
	out, applied := ApplyRules(legacyPage, DefaultRules())

	assert.Equal(t, []string{"nav-stylesheet", "legacy-nav-script", "legacy-nav-include", "unified-nav-script"}, applied)
	assert.Contains(t, out, `href="../css/unified-nav.css"`)
	assert.NotContains(t, out, "toggleMenu")
	assert.NotContains(t, out, `src="../js/nav.js"`)
	assert.Contains(t, out, `<script src="../js/unified-nav.js"></script>`+"\n</body>")
	assert.Equal(t, 1, strings.Count(out, "unified-nav.css"))
}

func TestDefaultRulesInsertStylesheetAfterBase(t *testing.T) {
	out, applied := ApplyRules(plainPage, DefaultRules())

	assert.Equal(t, []string{"unified-stylesheet-link", "unified-nav-script"}, applied)
	assert.Contains(t, out, `href="../css/styles.css">`+"\n"+`    <link rel="stylesheet" href="../css/unified-nav.css">`)
}

func TestDefaultRulesConverge(t *testing.T) {
	for _, page := range []string{legacyPage, plainPage, "<p>fragment without anchors</p>"} {
		once, _ := ApplyRules(page, DefaultRules())
		twice, applied := ApplyRules(once, DefaultRules())
		assert.Equal(t, once, twice)
		assert.Empty(t, applied)
	}
}

func TestInsertWithoutAnchorIsNotRecorded(t *testing.T) {
	rules := []Rule{InsertIfAbsent("script", Literal("</body>"), Before, "<script></script>")}
	out, applied := ApplyRules("<p>no body</p>", rules)
	assert.Equal(t, "<p>no body</p>", out)
	assert.Empty(t, applied)
}

func TestRemoveRule(t *testing.T) {
	r := Remove("drop", MustRegex(`<!-- legacy -->\n?`))
	out, applied := ApplyRules("a<!-- legacy -->\nb", []Rule{r})
	assert.Equal(t, "ab", out)
	assert.Equal(t, []string{"drop"}, applied)
	assert.True(t, r.Satisfied(out))
}

func TestRuleOrderMatters(t *testing.T) {
	first := Replace("a-to-b", Literal("a.css"), "b.css")
	second := InsertIfAbsent("after-b", Literal("b.css"), After, "!")

	out, applied := ApplyRules("a.css", []Rule{first, second})
	assert.Equal(t, "b.css!", out)
	assert.Equal(t, []string{"a-to-b", "after-b"}, applied)

	out, applied = ApplyRules("a.css", []Rule{second, first})
	assert.Equal(t, "b.css", out)
	assert.Equal(t, []string{"a-to-b"}, applied)
}

func TestRuleValidate(t *testing.T) {
	assert.Error(t, Rule{Matcher: Literal("x"), Action: Action{Kind: ActionRemove}}.Validate())
	assert.Error(t, Rule{ID: "x", Action: Action{Kind: ActionRemove}}.Validate())
	assert.Error(t, Rule{ID: "x", Matcher: Literal("x"), Action: Action{Kind: "mangle"}}.Validate())
	assert.Error(t, Rule{ID: "x", Matcher: Literal("x"), Action: Action{Kind: ActionInsertIfAbsent, Text: "y", Position: "inside"}}.Validate())
	assert.NoError(t, Replace("x", Literal("x"), "y").Validate())
	assert.NoError(t, Replace("x", Literal("$x"), "$y").Validate())
	assert.Error(t, Replace("x", MustRegex(`(\w+)\.css`), "$1.min.css").Validate())
	assert.NoError(t, Replace("x", MustRegex(`(\w+)\.css`), "$1.min.css").WithGuard(Present(Literal(".min.css"))).Validate())
}

func TestParseRulesGroupReplacementNeedsGuard(t *testing.T) {
	unguarded := `
rules:
  - id: minify
    old: '(\w+)\.css'
    new: '$1.min.css'
    regex: true
`
	_, err := ParseRules("rules.yaml", []byte(unguarded))
	require.Error(t, err)
	assert.ErrorIs(t, err, siteerrors.ErrRuleConfig)
	var re *siteerrors.RuleError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "minify", re.RuleID)

	guarded := unguarded + "    guard: '.min.css'\n"
	rules, err := ParseRules("rules.yaml", []byte(guarded))
	require.NoError(t, err)

	out, applied := ApplyRules(`<link href="main.css">`, rules)
	assert.Equal(t, `<link href="main.min.css">`, out)
	assert.Equal(t, []string{"minify"}, applied)

	again, applied := ApplyRules(out, rules)
	assert.Equal(t, out, again)
	assert.Empty(t, applied)
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestRewriterWritesOnlyChangedDocuments(t *testing.T) {
	root := writeDocs(t, map[string]string{
		"products/a.html": `<link href="nav.css">`,
		"products/b.html": `<link href="unified-nav.css">`,
	})
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "products/b.html"), old, old))

	rw, err := New(Config{Root: root, Rules: []Rule{Replace("nav-stylesheet", Literal("nav.css"), "unified-nav.css")}})
	require.NoError(t, err)

	records, err := rw.Rewrite(context.Background(), []string{"products/a.html", "products/b.html"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"nav-stylesheet"}, records[0].Applied)
	assert.True(t, records[0].Written)
	assert.Empty(t, records[1].Applied)
	assert.False(t, records[1].Written)

	data, err := os.ReadFile(filepath.Join(root, "products/a.html"))
	require.NoError(t, err)
	assert.Equal(t, `<link href="unified-nav.css">`, string(data))

	st, err := os.Stat(filepath.Join(root, "products/b.html"))
	require.NoError(t, err)
	assert.True(t, st.ModTime().Equal(old), "untouched document must keep its mtime")

	second, err := rw.Rewrite(context.Background(), []string{"products/a.html", "products/b.html"})
	require.NoError(t, err)
	for _, r := range second {
		assert.Empty(t, r.Applied)
		assert.False(t, r.Written)
	}
}

func TestRewriterDryRunNeverWrites(t *testing.T) {
	root := writeDocs(t, map[string]string{"p/a.html": legacyPage})
	rw, err := New(Config{Root: root, Rules: DefaultRules(), DryRun: true})
	require.NoError(t, err)

	records, err := rw.Rewrite(context.Background(), []string{"p/a.html"})
	require.NoError(t, err)
	assert.NotEmpty(t, records[0].Applied)
	assert.False(t, records[0].Written)

	data, err := os.ReadFile(filepath.Join(root, "p/a.html"))
	require.NoError(t, err)
	assert.Equal(t, legacyPage, string(data))
}

func TestRewriterWriteFailureIsIsolated(t *testing.T) {
	docs := map[string]string{"a.html": "nav.css", "b.html": "nav.css", "c.html": "nav.css"}
	var mu sync.Mutex
	written := map[string]string{}
	rw, err := New(Config{
		Rules:   []Rule{Replace("r", Literal("nav.css"), "unified-nav.css")},
		Workers: 2,
		Read: func(rel string) ([]byte, error) {
			return []byte(docs[rel]), nil
		},
		Write: func(rel string, data []byte) error {
			if rel == "b.html" {
				return errors.New("disk full")
			}
			mu.Lock()
			defer mu.Unlock()
			written[rel] = string(data)
			return nil
		},
	})
	require.NoError(t, err)

	records, err := rw.Rewrite(context.Background(), []string{"a.html", "b.html", "c.html"})
	require.NoError(t, err)

	assert.True(t, records[0].Written)
	assert.False(t, records[1].Written)
	assert.Equal(t, "disk full", records[1].Error)
	assert.Equal(t, []string{"r"}, records[1].Applied)
	assert.True(t, records[2].Written)
	assert.Equal(t, map[string]string{"a.html": "unified-nav.css", "c.html": "unified-nav.css"}, written)
}

func TestRewriterRecordsReadFailure(t *testing.T) {
	root := t.TempDir()
	rw, err := New(Config{Root: root, Rules: DefaultRules()})
	require.NoError(t, err)

	records, err := rw.Rewrite(context.Background(), []string{"missing.html"})
	require.NoError(t, err)
	assert.NotEmpty(t, records[0].Error)
	assert.False(t, records[0].Written)
}

func TestNewRejectsInvalidRule(t *testing.T) {
	_, err := New(Config{Rules: []Rule{{ID: "broken"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, siteerrors.ErrRuleConfig)
}

func TestFindDocuments(t *testing.T) {
	root := writeDocs(t, map[string]string{
		"products/a.html":         "x",
		"products/sub/b.htm":      "x",
		"products/style.css":      "x",
		"applications/c.html":     "x",
		"products/node_modules/x": "x",
		"index.html":              "x",
	})
	docs, err := FindDocuments(context.Background(), root, "products", DocumentOptions{
		Extensions:  []string{".html", ".htm"},
		ExcludeDirs: []string{"node_modules"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"products/a.html", "products/sub/b.htm"}, docs)

	_, err = FindDocuments(context.Background(), root, "missing", DocumentOptions{Extensions: []string{".html"}})
	assert.ErrorIs(t, err, siteerrors.ErrRootNotFound)

	_, err = FindDocuments(context.Background(), root, "../elsewhere", DocumentOptions{Extensions: []string{".html"}})
	assert.ErrorIs(t, err, siteerrors.ErrInput)
}

func TestParseRulesFormats(t *testing.T) {
	yamlRules := `
rules:
  - id: nav-stylesheet
    old: nav.css
    new: unified-nav.css
  - id: drop-legacy
    old: '<script src="legacy\.js"></script>'
    regex: true
    new: null
  - id: add-script
    insert: '<script src="u.js"></script>'
    anchor: '</body>'
    position: before
`
	rules, err := ParseRules("rules.yaml", []byte(yamlRules))
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, ActionReplace, rules[0].Action.Kind)
	assert.Equal(t, ActionRemove, rules[1].Action.Kind)
	assert.Equal(t, ActionInsertIfAbsent, rules[2].Action.Kind)

	out, applied := ApplyRules(`<link href="nav.css"><script src="legacy.js"></script></body>`, rules)
	assert.Equal(t, `<link href="unified-nav.css"><script src="u.js"></script></body>`, out)
	assert.Equal(t, []string{"nav-stylesheet", "drop-legacy", "add-script"}, applied)

	tomlRules := `
[[rules]]
id = "nav-stylesheet"
old = "nav.css"
new = "unified-nav.css"
guard = "unified-nav"
`
	rules, err = ParseRules("rules.toml", []byte(tomlRules))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Satisfied("unified-nav.js"))

	jsonRules := `{"rules": [{"old": "a", "new": "b"}]}`
	rules, err = ParseRules("rules.json", []byte(jsonRules))
	require.NoError(t, err)
	assert.Equal(t, "rule-1", rules[0].ID)
}

func TestParseRulesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown field":     `{"rules": [{"old": "a", "colour": "b"}]}`,
		"old and insert":    `{"rules": [{"old": "a", "insert": "b", "anchor": "c"}]}`,
		"insert no anchor":  `{"rules": [{"insert": "b"}]}`,
		"bad position":      `{"rules": [{"insert": "b", "anchor": "c", "position": "inside"}]}`,
		"bad regex":         `{"rules": [{"old": "(", "regex": true}]}`,
		"duplicate ids":     `{"rules": [{"id": "x", "old": "a"}, {"id": "x", "old": "b"}]}`,
		"missing rules key": `{"rule": []}`,
		"not json":          `{`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules("rules.json", []byte(content))
			require.Error(t, err)
			assert.ErrorIs(t, err, siteerrors.ErrRuleConfig)
			var re *siteerrors.RuleError
			assert.True(t, errors.As(err, &re))
		})
	}

	_, err := ParseRules("rules.ini", []byte("x"))
	assert.ErrorIs(t, err, siteerrors.ErrRuleConfig)
}

func TestLoadRulesFileMissing(t *testing.T) {
	_, err := LoadRulesFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, siteerrors.ErrRuleConfig)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestChangelog(t *testing.T) {
	records := []DocumentChangeRecord{
		{Path: "p/a.html", Applied: []string{"r1", "r2"}, Written: true},
		{Path: "p/b.html", Applied: []string{}},
		{Path: "p/c.html", Applied: []string{"r1"}, Error: "disk full"},
	}
	c := NewChangelog(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "products", false, []string{"r1", "r2"}, records)
	assert.Equal(t, Summary{Documents: 3, Changed: 2, Written: 1, Failed: 1}, c.Summary)
	require.Len(t, c.Documents, 2)

	path := filepath.Join(t.TempDir(), "migration-log.json")
	require.NoError(t, WriteChangelog(path, c))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"timestamp": "2024-05-01T00:00:00Z"`)
	assert.Contains(t, string(raw), `"applied": [`)

	out, err := RenderChangelog(c)
	require.NoError(t, err)
	assert.Contains(t, out, "Migration of products: 3 documents, 2 changed, 1 written, 1 failed")
	assert.Contains(t, out, "✅ p/a.html [r1, r2]")
	assert.Contains(t, out, "❌ p/c.html [r1]: disk full")
}

func TestWatchRunsAfterChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ran := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, WatchOptions{
			Debounce: 20 * time.Millisecond,
			Relevant: func(p string) bool { return strings.HasSuffix(p, ".html") },
		}, func(context.Context) error {
			ran <- struct{}{}
			return nil
		})
	}()

	// Keep touching the file until the watcher is up and reacts.
	deadline := time.After(5 * time.Second)
	for i := 0; ; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte{byte('a' + i%26)}, 0o644))
		select {
		case <-ran:
			cancel()
			require.NoError(t, <-done)
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("watch never ran")
		}
	}
}
