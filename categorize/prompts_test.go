package categorize

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFormatUserPrompt(t *testing.T) {
	t.Parallel()

	tax := testTaxonomy()
	p := Product{Title: " Sony WH-1000XM4 ", Brand: "Sony"}

	with := FormatUserPrompt(p, tax.Root, tax.SecondLevel, tax.ThirdLevel, true)
	for _, want := range []string{
		"Product title: Sony WH-1000XM4\n",
		"Brand: Sony\n",
		"Level 1 (fixed): Electronics",
		"- Audio: sound devices\n",
		"- Laptops: portable computers\n",
		`"Category path: Electronics>level 2>level 3"`,
	} {
		if !strings.Contains(with, want) {
			t.Fatalf("prompt missing %q:\n%s", want, with)
		}
	}

	without := FormatUserPrompt(Product{Title: "Thing"}, tax.Root, tax.SecondLevel, tax.ThirdLevel, false)
	if strings.Contains(without, "sound devices") {
		t.Fatalf("descriptions leaked without definitions:\n%s", without)
	}
	if !strings.Contains(without, "- Audio\n") || !strings.Contains(without, "Brand: (unknown)") {
		t.Fatalf("unexpected prompt:\n%s", without)
	}
}

func TestFormatUserPrompt_FollowsLabelOrder(t *testing.T) {
	t.Parallel()

	tax := testTaxonomy()
	reversed := []Label{tax.ThirdLevel[2], tax.ThirdLevel[1], tax.ThirdLevel[0]}
	prompt := FormatUserPrompt(Product{Title: "x"}, tax.Root, tax.SecondLevel, reversed, false)
	if strings.Index(prompt, "- Speakers") > strings.Index(prompt, "- Headphones") {
		t.Fatalf("labels not rendered in the given order:\n%s", prompt)
	}
}

func TestPermuteLabels(t *testing.T) {
	t.Parallel()

	labels := DefaultTaxonomy().ThirdLevel
	orig := append([]Label(nil), labels...)

	a := PermuteLabels(labels, RowRand(7, 3))
	b := PermuteLabels(labels, RowRand(7, 3))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed and row gave different permutations (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(orig, labels); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
	if len(a) != len(labels) {
		t.Fatalf("len=%d, want %d", len(a), len(labels))
	}

	seen := map[string]bool{}
	for _, l := range a {
		seen[l.Name] = true
	}
	for _, l := range labels {
		if !seen[l.Name] {
			t.Fatalf("permutation lost %q", l.Name)
		}
	}

	if cmp.Equal(a, PermuteLabels(labels, RowRand(7, 4))) && cmp.Equal(a, PermuteLabels(labels, RowRand(8, 3))) {
		t.Fatalf("different rows and seeds all produced the same permutation")
	}
}
