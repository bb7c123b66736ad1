package pullrequest

import "testing"

func TestSplitDescription_ATXHeading(t *testing.T) {
	src := []byte("# Add login flow\n\n## Summary\n\nAdds a **login** form.\n")

	title, body := SplitDescription(src)
	if title != "Add login flow" {
		t.Errorf("title = %q", title)
	}
	if body != "## Summary\n\nAdds a **login** form." {
		t.Errorf("body = %q", body)
	}
}

func TestSplitDescription_InlineMarkup(t *testing.T) {
	title, _ := SplitDescription([]byte("# Fix `nil` deref in *parser*\n\nbody\n"))
	if title != "Fix nil deref in parser" {
		t.Errorf("title = %q", title)
	}
}

func TestSplitDescription_SecondLevelOnly(t *testing.T) {
	src := []byte("## Summary\n\nNo title here.\n")

	title, body := SplitDescription(src)
	if title != "" {
		t.Errorf("title = %q, want empty", title)
	}
	if body != "## Summary\n\nNo title here." {
		t.Errorf("body = %q", body)
	}
}

func TestSplitDescription_HeadingAfterPreamble(t *testing.T) {
	src := []byte("PROJ-12\n\n# Title\n\nText\n")

	title, body := SplitDescription(src)
	if title != "Title" {
		t.Errorf("title = %q", title)
	}
	if body != "PROJ-12\n\n\nText" {
		t.Errorf("body = %q", body)
	}
}

func TestSplitDescription_Setext(t *testing.T) {
	src := []byte("Title\n=====\n\nText\n")

	title, body := SplitDescription(src)
	if title != "Title" {
		t.Errorf("title = %q", title)
	}
	if body != "Title\n=====\n\nText" {
		t.Errorf("body = %q", body)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("\n\n  first \nsecond"); got != "first" {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine("   "); got != "" {
		t.Errorf("firstLine = %q", got)
	}
}
