package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanHTMLRemovesChrome(t *testing.T) {
	html := `<html><head><script>var x = 1;</script><style>.a{}</style></head>
	<body>
	<nav><a href="/">Home</a></nav>
	<header>Site Header</header>
	<main><h1>Widget Guide</h1><p>Widgets were invented in 1990.</p></main>
	<footer>Copyright Example Corp</footer>
	</body></html>`

	text, err := CleanHTML(html)
	require.NoError(t, err)

	assert.Contains(t, text, "Widget Guide")
	assert.Contains(t, text, "Widgets were invented in 1990.")
	assert.NotContains(t, text, "var x = 1")
	assert.NotContains(t, text, "Site Header")
	assert.NotContains(t, text, "Copyright Example Corp")
	assert.NotContains(t, text, "Home")
}

func TestCleanHTMLPlainParagraphs(t *testing.T) {
	text, err := CleanHTML("<p>First paragraph.</p><p>Second paragraph.</p>")
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
}
