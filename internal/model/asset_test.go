package model

import "testing"

func TestClassifyContentType(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		header   string
		expected ContentKind
	}{
		{"text/html; charset=utf-8", KindHTML},
		{"application/xhtml+xml", KindHTML},
		{"application/javascript", KindJavaScript},
		{"text/javascript; charset=UTF-8", KindJavaScript},
		{"Application/JSON", KindJSON},
		{"application/manifest+json", KindJSON},
		{"image/png", KindUnrecognized},
		{"", KindUnrecognized},
	}

	for _, tc := range testCases {
		t.Run(tc.header, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyContentType(tc.header); got != tc.expected {
				t.Errorf("ClassifyContentType(%q) = %s, expected %s", tc.header, got, tc.expected)
			}
		})
	}
}

func TestAssetWithBody(t *testing.T) {
	t.Parallel()

	original := &Asset{
		URL:         "https://site.example/app.js",
		StatusCode:  200,
		ContentType: "application/javascript",
		Kind:        KindJavaScript,
		Body:        []byte("var a=1"),
	}

	replaced := original.WithBody([]byte("var a = 1;"))

	if string(original.Body) != "var a=1" {
		t.Errorf("original body changed to %q", original.Body)
	}
	if string(replaced.Body) != "var a = 1;" {
		t.Errorf("replaced body = %q", replaced.Body)
	}
	if replaced.URL != original.URL || replaced.Kind != original.Kind {
		t.Error("WithBody should keep the other fields")
	}
}

func TestMechanismString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		mechanism Mechanism
		expected  string
	}{
		{MechanismSeed, "seed"},
		{MechanismScriptTag, "script_tag"},
		{MechanismImportMap, "import_map"},
		{MechanismAggressive, "aggressive"},
		{MechanismDynamicImport, "dynamic_import"},
		{MechanismWebpackChunk, "webpack_chunk"},
		{MechanismManifest, "manifest"},
		{MechanismSourceMap, "source_map"},
		{Mechanism(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if got := tc.mechanism.String(); got != tc.expected {
				t.Errorf("got %q, expected %q", got, tc.expected)
			}
		})
	}
}
