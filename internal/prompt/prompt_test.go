package prompt

import (
	"strings"
	"testing"
)

func TestBuild_ReplacesAllOccurrences(t *testing.T) {
	got := Build("A: {{selection}} B: {{selection}} C: {{context}}", "sel", "ctx")
	want := "A: sel B: sel C: ctx"
	if got != want {
		t.Errorf("Build = %q, want %q", got, want)
	}
}

func TestBuild_DoesNotReinterpretSubstitutedText(t *testing.T) {
	// A selection containing a placeholder-shaped substring must be inserted
	// verbatim, not expanded again.
	got := Build("X {{selection}} Y", "contains {{context}} token", "CTX")
	want := "X contains {{context}} token Y"
	if got != want {
		t.Errorf("Build = %q, want %q", got, want)
	}

	got = Build("{{context}}", "ignored", "inner {{selection}}")
	if got != "inner {{selection}}" {
		t.Errorf("Build = %q, want inner placeholder preserved", got)
	}
}

func TestBuild_DollarSignsAreLiteral(t *testing.T) {
	// Characters with special meaning in some substitution engines pass
	// through byte-for-byte.
	got := Build("{{selection}}", "price is $1, group ref $& and ${name}", "")
	if got != "price is $1, group ref $& and ${name}" {
		t.Errorf("Build mangled dollar sequences: %q", got)
	}
}

func TestBuild_NoPlaceholders(t *testing.T) {
	if got := Build("plain text", "s", "c"); got != "plain text" {
		t.Errorf("Build = %q, want unchanged template", got)
	}
}

func TestBuildMenuLabel_TruncatesSelection(t *testing.T) {
	long := strings.Repeat("a", 40)
	got := BuildMenuLabel("Explain: {{selection}}", long, DefaultLabelMax)

	want := "Explain: " + strings.Repeat("a", 24) + "..."
	if got != want {
		t.Errorf("BuildMenuLabel = %q, want %q", got, want)
	}
}

func TestBuildMenuLabel_ContextCollapses(t *testing.T) {
	got := BuildMenuLabel("{{selection}} ({{context}})", "short", DefaultLabelMax)
	if got != "short (...)" {
		t.Errorf("BuildMenuLabel = %q, want %q", got, "short (...)")
	}
}

func TestBuildMenuLabel_ZeroWidthRunesStillCapped(t *testing.T) {
	// Combining marks have zero display width, so width-based truncation
	// never fires; the character cap must hold anyway.
	sel := strings.Repeat("́", 60)
	got := BuildMenuLabel("{{selection}}", sel, 30)
	if n := len([]rune(got)); n > 30 {
		t.Errorf("BuildMenuLabel returned %d characters, want <= 30", n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Truncated label %q must end in ellipsis", got)
	}
}

func TestBuildMenuLabel_LengthContract(t *testing.T) {
	templates := []string{
		"Explain {{selection}} in context {{context}}",
		"{{selection}}{{selection}}{{selection}}",
		strings.Repeat("pad ", 20) + "{{selection}}",
	}
	selections := []string{"", "tiny", strings.Repeat("x", 100)}

	for _, tmpl := range templates {
		for _, sel := range selections {
			got := BuildMenuLabel(tmpl, sel, 30)
			if len(got) > 30 {
				t.Errorf("BuildMenuLabel(%q, %q, 30) = %q (len %d), exceeds limit", tmpl, sel, got, len(got))
			}
			if len(got) == 30 && !strings.HasSuffix(got, "...") {
				t.Errorf("Truncated label %q must end in ellipsis", got)
			}
		}
	}
}
