package rewrite

// Markup used by the built-in navigation migration. Documents live one level
// below the root, inside the target content directory.
const (
	UnifiedStylesheet = "unified-nav.css"
	UnifiedScript     = "unified-nav.js"

	unifiedStylesheetLink = `
    <link rel="stylesheet" href="../css/unified-nav.css">`
	unifiedScriptTag = `    <script src="../js/unified-nav.js"></script>
`
)

// DefaultRules returns the built-in navigation migration. Order matters: the
// stylesheet rename runs first so the link insertion sees the renamed file
// and skips.
func DefaultRules() []Rule {
	return []Rule{
		Replace("nav-stylesheet", Literal("nav.css"), UnifiedStylesheet),
		InsertIfAbsent("unified-stylesheet-link",
			MustRegex(`<link[^>]*href="[^"]*styles?\.css"[^>]*>`), After, unifiedStylesheetLink).
			WithGuard(Present(Literal(UnifiedStylesheet))),
		Remove("legacy-nav-script",
			MustRegex(`[ \t]*<script[^>]*>[^<]*(?:toggleMenu|legacyNav|mobile-menu)[^<]*</script>\n?`)),
		Remove("legacy-nav-include",
			MustRegex(`[ \t]*<script[^>]*src="(?:[^"]*/)?nav\.js"[^>]*>\s*</script>\n?`)),
		InsertIfAbsent("unified-nav-script", Literal("</body>"), Before, unifiedScriptTag).
			WithGuard(Present(Literal(UnifiedScript))),
	}
}
