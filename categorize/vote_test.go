package categorize

import "testing"

func TestMostCommon(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"a"}, "a"},
		{[]string{"a", "b", "b"}, "b"},
		{[]string{"b", "a", "a", "b"}, "b"},
		{[]string{"c", "a", "b"}, "c"},
		{[]string{"x", "y", "y", "x", "z", "z", "z"}, "z"},
	}
	for _, tc := range cases {
		if got := MostCommon(tc.in); got != tc.want {
			t.Fatalf("MostCommon(%v)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
