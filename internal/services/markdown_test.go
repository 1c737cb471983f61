package services_test

import (
	"strings"
	"testing"

	"github.com/rimnsai/rimns-web-ui/internal/services"
)

func TestMarkdownRender(t *testing.T) {
	md := services.NewMarkdown("")

	tests := []struct {
		name     string
		source   string
		want     []string
		wantNone []string
	}{
		{
			name:   "Emphasis",
			source: "**bold** and _italic_",
			want:   []string{"<strong>bold</strong>", "<em>italic</em>"},
		},
		{
			name:   "Table",
			source: "| a | b |\n|---|---|\n| 1 | 2 |",
			want:   []string{"<table>", "<td>1</td>"},
		},
		{
			name:   "Strikethrough",
			source: "~~gone~~",
			want:   []string{"<del>gone</del>"},
		},
		{
			name:   "Code block",
			source: "```go\nfunc main() {}\n```",
			want:   []string{"<pre", "main"},
		},
		{
			name:     "Raw HTML is not passed through",
			source:   "<script>alert(1)</script>",
			wantNone: []string{"<script>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := md.Render(tt.source)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(string(got), w) {
					t.Errorf("Render() = %v, want it to contain %v", got, w)
				}
			}
			for _, w := range tt.wantNone {
				if strings.Contains(string(got), w) {
					t.Errorf("Render() = %v, must not contain %v", got, w)
				}
			}
		})
	}
}
