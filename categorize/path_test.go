package categorize

import (
	"errors"
	"testing"
)

func testTaxonomy() Taxonomy {
	return Taxonomy{
		Root: "Electronics",
		SecondLevel: []Label{
			{Name: "Audio", Description: "sound devices"},
			{Name: "Computers", Description: "computing devices"},
		},
		ThirdLevel: []Label{
			{Name: "Headphones", Description: "worn on the ears"},
			{Name: "Laptops", Description: "portable computers"},
			{Name: "Speakers", Description: "loudspeakers"},
		},
	}
}

func TestNormalizeSeparators(t *testing.T) {
	t.Parallel()

	if got := NormalizeSeparators("A >  B>\tC "); got != "A>B>C" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractPath(t *testing.T) {
	t.Parallel()

	tax := testTaxonomy()
	cases := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "exact",
			response: "It plays music.\nCategory path: Electronics>Audio>Speakers",
			want:     "Electronics>Audio>Speakers",
		},
		{
			name:     "spaced separators",
			response: "Category path: Electronics > Computers > Laptops.",
			want:     "Electronics>Computers>Laptops",
		},
		{
			name:     "first in taxonomy order",
			response: "Either Electronics>Computers>Laptops or Electronics>Audio>Headphones",
			want:     "Electronics>Audio>Headphones",
		},
		{
			name:     "cross combination is admissible",
			response: "Electronics>Computers>Speakers",
			want:     "Electronics>Computers>Speakers",
		},
		{
			name:     "unknown label",
			response: "Electronics>Audio>Turntables",
			wantErr:  true,
		},
		{
			name:     "wrong root",
			response: "Home>Audio>Speakers",
			wantErr:  true,
		},
		{
			name:     "empty",
			response: "",
			wantErr:  true,
		},
	}
	for _, tc := range cases {
		got, err := tax.ExtractPath(tc.response)
		if tc.wantErr {
			if !errors.Is(err, ErrNoValidPath) {
				t.Fatalf("%s: err=%v, want ErrNoValidPath", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	root, second, third, err := SplitPath("Electronics>Audio>Speakers")
	if err != nil {
		t.Fatalf("SplitPath: %v", err)
	}
	if root != "Electronics" || second != "Audio" || third != "Speakers" {
		t.Fatalf("got %q %q %q", root, second, third)
	}

	if _, _, _, err := SplitPath("Electronics>Audio"); err == nil {
		t.Fatalf("expected error for two-level path")
	}
}
