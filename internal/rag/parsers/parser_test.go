package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DispatchByExtension(t *testing.T) {
	reg := NewRegistry()

	text, err := reg.Parse("notes.txt", []byte("  plain text content  "))
	require.NoError(t, err)
	assert.Equal(t, "plain text content", text)

	text, err = reg.Parse("README.MD", []byte("# Heading\n\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "# Heading\n\nbody", text)

	_, err = reg.Parse("image.png", []byte{0x89, 0x50})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".png")
}

func TestRegistry_Supported(t *testing.T) {
	reg := NewRegistry()

	assert.True(t, reg.Supported("report.txt"))
	assert.True(t, reg.Supported("doc.markdown"))
	assert.True(t, reg.Supported("page.HTML"))
	assert.True(t, reg.Supported("manual.pdf"))
	assert.False(t, reg.Supported("data.csv"))
	assert.False(t, reg.Supported("noext"))
}

func TestTextParser_RejectsBinary(t *testing.T) {
	p := NewTextParser()
	_, err := p.Parse([]byte{0xff, 0xfe, 0x00, 0x80})
	require.Error(t, err)
}

func TestHTMLParser_StripsTagsKeepsStructure(t *testing.T) {
	p := NewHTMLParser()
	input := []byte(`<html><head>
		<style>body { color: red; }</style>
		<script>alert("ignored");</script>
	</head><body>
		<h1>Quarterly Report</h1>
		<p>Revenue grew <b>12%</b> in Q3.</p>
		<p>East region led &amp; support tickets dropped.</p>
	</body></html>`)

	text, err := p.Parse(input)
	require.NoError(t, err)

	assert.Contains(t, text, "Quarterly Report")
	assert.Contains(t, text, "Revenue grew 12% in Q3.")
	assert.Contains(t, text, "East region led & support tickets dropped.")
	assert.NotContains(t, text, "<p>")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color: red")

	// 块级边界保留为换行, 段落顺序不变
	h1 := strings.Index(text, "Quarterly Report")
	p1 := strings.Index(text, "Revenue grew")
	p2 := strings.Index(text, "East region")
	assert.Less(t, h1, p1)
	assert.Less(t, p1, p2)
}
