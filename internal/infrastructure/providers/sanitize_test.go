package providers

import "testing"

func TestStripHTML(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "already clean", "already clean"},
		{"inline markup", "Go <b>generics</b> are <em>here</em>", "Go generics are here"},
		{"nested blocks", "<div><p>first</p><p>second</p></div>", "first second"},
		{"script dropped", `<p>keep</p><script>alert("x")</script><p>this</p>`, "keep this"},
		{"style dropped", "<style>p{color:red}</style>visible", "visible"},
		{"entities decoded", "a &amp; b &lt;c&gt;", "a & b <c>"},
		{"whitespace collapsed", "  spaced \t out\n text ", "spaced out text"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripHTML(tc.input); got != tc.want {
				t.Fatalf("StripHTML(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
