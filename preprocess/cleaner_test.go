package preprocess

import (
	"strings"
	"testing"
)

func TestCleanSnippet(t *testing.T) {
	got := CleanSnippet("  hello\tworld  \n\n\n\nnext  ")
	if got != "hello world\n\nnext" {
		t.Errorf("unexpected clean result: %q", got)
	}

	if CleanSnippet("") != "" {
		t.Error("empty input should stay empty")
	}
}

func TestHTMLToTextPlain(t *testing.T) {
	got, err := HTMLToText("plain snippet, no markup")
	if err != nil {
		t.Fatalf("HTMLToText error: %v", err)
	}
	if got != "plain snippet, no markup" {
		t.Errorf("plain text should pass through, got %q", got)
	}
}

func TestHTMLToTextStructure(t *testing.T) {
	html := "<h2>Refunds</h2><p>Refunds are processed within 30 days.</p><li>Keep your receipt</li>"
	got, err := HTMLToText(html)
	if err != nil {
		t.Fatalf("HTMLToText error: %v", err)
	}
	if !strings.Contains(got, "## Refunds") {
		t.Errorf("expected heading marker, got %q", got)
	}
	if !strings.Contains(got, "Refunds are processed within 30 days.") {
		t.Errorf("expected paragraph text, got %q", got)
	}
	if !strings.Contains(got, "- Keep your receipt") {
		t.Errorf("expected list marker, got %q", got)
	}
}
