package httphandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		contains    []string
		notContains []string
	}{
		{name: "plain text", input: "hello world", contains: []string{"hello world"}},
		{name: "bold", input: "**bold text**", contains: []string{"<strong>bold text</strong>"}},
		{name: "inline code", input: "use `go test`", contains: []string{"<code>go test</code>"}},
		{name: "link", input: "[build](https://ci.example.com/job/1/)", contains: []string{`<a href="https://ci.example.com/job/1/"`, "build</a>"}},
		{name: "strikethrough", input: "~~flaky~~", contains: []string{"<del>flaky</del>"}},
		{name: "script removed", input: `<script>alert("xss")</script>`, notContains: []string{"<script>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderMarkdown(tt.input)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.notContains {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestRenderMarkdown_EmptyInput(t *testing.T) {
	assert.Equal(t, "", renderMarkdown(""))
}
