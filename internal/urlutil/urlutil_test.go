package urlutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestOriginFromRequest(t *testing.T) {
	cases := []struct {
		name   string
		target string
		host   string
		proto  string
		want   string
	}{
		{"request host", "http://portal.test:8080/", "", "", "http://portal.test:8080"},
		{"forwarded https", "http://portal.test/", "", "https", "https://portal.test"},
		{"bogus forwarded proto ignored", "http://portal.test/", "", "wss", "http://portal.test"},
		{"missing host uses fallback", "http://portal.test/", "-", "", "https://fallback.test"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.host == "-" {
				req.Host = ""
			}
			if tc.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tc.proto)
			}
			if got := OriginFromRequest(req, "https://fallback.test/"); got != tc.want {
				t.Fatalf("OriginFromRequest = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildAbsolute_TunnelURLs(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := "https://" + rapid.StringMatching(`[a-z]{3,12}\.test`).Draw(rt, "host")
		if rapid.Bool().Draw(rt, "trailingSlash") {
			base += "/"
		}
		seg := rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "seg")

		want := strings.TrimRight(base, "/") + "/sentry-proxy/" + seg
		for _, p := range []string{"/sentry-proxy/" + seg, "sentry-proxy/" + seg} {
			got := BuildAbsolute(base, p)
			if got != want {
				rt.Fatalf("BuildAbsolute(%q, %q) = %q, want %q", base, p, got, want)
			}
			if u, err := url.Parse(got); err != nil || u.Scheme != "https" {
				rt.Fatalf("not absolute: %q (%v)", got, err)
			}
		}
	})
	if got := BuildAbsolute("https://a.test", "https://b.test/x"); got != "https://b.test/x" {
		t.Fatalf("absolute path rewritten: %q", got)
	}
	if got := BuildAbsolute("https://a.test/", ""); got != "https://a.test" {
		t.Fatalf("empty path: %q", got)
	}
}

func TestSameOrigin(t *testing.T) {
	cases := []struct {
		name   string
		origin string
		proto  string
		want   bool
	}{
		{"no origin header", "", "", true},
		{"matching origin", "http://portal.test:8080", "", true},
		{"matching origin with slash", "http://portal.test:8080/", "", true},
		{"forwarded https", "https://portal.test:8080", "https", true},
		{"scheme mismatch", "https://portal.test:8080", "", false},
		{"other host", "http://evil.test", "", false},
		{"opaque origin", "null", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "http://portal.test:8080/login/", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tc.proto)
			}
			if got := SameOrigin(req, "http://fallback.test"); got != tc.want {
				t.Fatalf("SameOrigin = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLocalPath_RejectsOffsiteTargets(t *testing.T) {
	for _, raw := range []string{"", "notes", "//evil.test/x", "/\\evil.test", "https://evil.test/", "http:/x"} {
		if got, ok := LocalPath(raw); ok {
			t.Errorf("LocalPath(%q) = %q, want rejection", raw, got)
		}
	}
}

func TestLocalPath_KeepsPathAndQuery(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		path := "/" + rapid.StringMatching(`[a-z]{1,10}(/[a-z]{1,10}){0,3}`).Draw(rt, "path")
		query := rapid.StringMatching(`(\?[a-z]{1,5}=[a-z0-9]{1,5})?`).Draw(rt, "query")
		got, ok := LocalPath(path + query)
		if !ok || got != path+query {
			rt.Fatalf("LocalPath(%q) = %q, %v", path+query, got, ok)
		}
	})
}
