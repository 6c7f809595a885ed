package crawler

import (
	"context"
	"testing"

	"github.com/nao1215/webql/internal/model"
)

func TestScriptTagExtractor(t *testing.T) {
	t.Parallel()

	page := `<html><head>
		<script src="/static/app.js"></script>
		<script src="vendor/react.js" defer></script>
		<script src="https://cdn.example/lib.js"></script>
		<script>console.log("inline")</script>
		<script src=""></script>
	</head><body></body></html>`

	refs, err := NewScriptTagExtractor().Extract(context.Background(), htmlAsset("https://site.example/app/index.html", page))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertURLs(t, refURLs(refs),
		"https://site.example/static/app.js",
		"https://site.example/app/vendor/react.js",
		"https://cdn.example/lib.js",
	)
	for _, r := range refs {
		if r.Mechanism != model.MechanismScriptTag {
			t.Errorf("unexpected mechanism %s", r.Mechanism)
		}
		if r.Source != "https://site.example/app/index.html" {
			t.Errorf("unexpected source %q", r.Source)
		}
	}
}

func TestImportMapExtractor(t *testing.T) {
	t.Parallel()

	t.Run("resolves every address", func(t *testing.T) {
		t.Parallel()

		page := `<script type="importmap">
		{"imports": {"vue": "/modules/vue.mjs", "lodash": "https://cdn.example/lodash.js", "bad": 42}}
		</script>`

		refs, err := NewImportMapExtractor(nil).Extract(context.Background(), htmlAsset("https://site.example/", page))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertURLs(t, refURLs(refs),
			"https://cdn.example/lodash.js",
			"https://site.example/modules/vue.mjs",
		)
	})

	t.Run("malformed import map is skipped", func(t *testing.T) {
		t.Parallel()

		page := `<script type="importmap">{"imports": </script>
		<script type="importmap">{"imports": {"a": "./a.js"}}</script>`

		refs, err := NewImportMapExtractor(nil).Extract(context.Background(), htmlAsset("https://site.example/", page))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertURLs(t, refURLs(refs), "https://site.example/a.js")
	})
}

func TestAggressiveExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "candidate runs from the match to the double quote",
			body: `<p>load app.mjs" now</p>`,
			want: []string{"https://site.example/.mjs"},
		},
		{
			name: "single quote is used when no double quote follows",
			body: `x = 'lib.tsx'`,
			// \.ts and \.tsx both match at the same dot
			want: []string{"https://site.example/.tsx", "https://site.example/.tsx"},
		},
		{
			name: "no terminator yields nothing",
			body: `plain text mentioning app.js`,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			refs, err := NewAggressiveExtractor().Extract(context.Background(), htmlAsset("https://site.example/page.html", tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertURLs(t, refURLs(refs), tt.want...)
		})
	}
}

func TestQuotedTail(t *testing.T) {
	t.Parallel()

	body := []byte(`src=".js?v=2" alt='x'`)
	got, ok := quotedTail(body, 5)
	if !ok || got != ".js?v=2" {
		t.Errorf("got (%q, %v)", got, ok)
	}

	if _, ok := quotedTail([]byte(`"`), 0); ok {
		t.Error("an empty candidate should be rejected")
	}
}
