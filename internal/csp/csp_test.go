package csp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const defaultHeaderValue = "default-src 'none'"

func TestPolicyString(t *testing.T) {
	tests := []struct {
		name string
		opts map[string]string
		want string
	}{
		{
			name: "defaults",
			opts: nil,
			want: defaultHeaderValue,
		},
		{
			name: "default src self",
			opts: map[string]string{DefaultSrc: KeywordSelf},
			want: "default-src 'self'",
		},
		{
			name: "blank default src",
			opts: map[string]string{DefaultSrc: "   "},
			want: defaultHeaderValue,
		},
		{
			name: "img src",
			opts: map[string]string{DefaultSrc: KeywordSelf, ImgSrc: "static.example.com"},
			want: "default-src 'self'; img-src static.example.com",
		},
		{
			name: "script src",
			opts: map[string]string{ScriptSrc: "'self' js.example.com"},
			want: "default-src 'none'; script-src 'self' js.example.com",
		},
		{
			name: "media src",
			opts: map[string]string{DefaultSrc: KeywordSelf, MediaSrc: "static.example.com"},
			want: "default-src 'self'; media-src static.example.com",
		},
		{
			name: "report uri",
			opts: map[string]string{ReportOnly: "false", ReportURI: "/testReportUrl"},
			want: defaultHeaderValue + "; report-uri /testReportUrl",
		},
		{
			name: "sandbox",
			opts: map[string]string{Sandbox: "true"},
			want: defaultHeaderValue + "; sandbox",
		},
		{
			name: "sandbox upper case",
			opts: map[string]string{Sandbox: "TRUE"},
			want: defaultHeaderValue + "; sandbox",
		},
		{
			name: "sandbox allow scripts",
			opts: map[string]string{Sandbox: "allow-scripts"},
			want: defaultHeaderValue + "; sandbox allow-scripts",
		},
		{
			name: "blank values are omitted",
			opts: map[string]string{ImgSrc: "", StyleSrc: " ", Sandbox: "\t"},
			want: defaultHeaderValue,
		},
		{
			name: "directives equal to default are omitted",
			opts: map[string]string{DefaultSrc: KeywordSelf, ImgSrc: KeywordSelf, FontSrc: "fonts.example.com", ReportURI: KeywordSelf},
			want: "default-src 'self'; font-src fonts.example.com",
		},
		{
			name: "unknown keys are ignored",
			opts: map[string]string{"base-uri": "'self'"},
			want: defaultHeaderValue,
		},
		{
			name: "all directives",
			opts: map[string]string{
				ReportURI:  "/r",
				Sandbox:    "allow-forms allow-same-origin",
				DefaultSrc: KeywordSelf,
				ImgSrc:     "http://*.example.com",
				ScriptSrc:  "js.example.com",
				StyleSrc:   "css.example.com",
				FontSrc:    "fonts.example.com",
				ConnectSrc: "api.example.com",
				ObjectSrc:  KeywordNone,
				MediaSrc:   "media.example.com",
				FrameSrc:   "frames.example.com",
			},
			want: "default-src 'self'; img-src http://*.example.com; script-src js.example.com; " +
				"style-src css.example.com; font-src fonts.example.com; connect-src api.example.com; " +
				"object-src 'none'; media-src media.example.com; frame-src frames.example.com; " +
				"report-uri /r; sandbox allow-forms allow-same-origin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromOptions(tt.opts).String())
		})
	}
}

func TestZeroPolicy(t *testing.T) {
	var p Policy
	assert.Equal(t, defaultHeaderValue, p.String())
	assert.Equal(t, Header, p.HeaderName())
}

func TestHeaderName(t *testing.T) {
	for _, v := range []string{"true", "True", "TRUE"} {
		assert.Equal(t, HeaderReportOnly, FromOptions(map[string]string{ReportOnly: v}).HeaderName(), v)
	}
	for _, v := range []string{"", "false", "yes", "1"} {
		assert.Equal(t, Header, FromOptions(map[string]string{ReportOnly: v}).HeaderName(), v)
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("report only", func(t *testing.T) {
		p := FromOptions(map[string]string{ReportOnly: "true", ReportURI: "/r"})
		var called bool
		h := Middleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.True(t, called)
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, "default-src 'none'; report-uri /r", rec.Header().Get(HeaderReportOnly))
		assert.Empty(t, rec.Header().Get(Header))
	})

	t.Run("adds to existing header", func(t *testing.T) {
		h := Middleware(Policy{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		rec := httptest.NewRecorder()
		rec.Header().Set(Header, "script-src 'self'")
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, []string{"script-src 'self'", defaultHeaderValue}, rec.Header().Values(Header))
	})

	t.Run("request is forwarded unchanged", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/some/path?q=1", strings.NewReader("body"))
		var got *http.Request
		h := Middleware(Policy{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r
		}))
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Same(t, req, got)
	})
}

var sourceGen = rapid.SampledFrom([]string{
	"", " ", KeywordNone, KeywordSelf, "static.example.com", "'self' js.example.com", "data:",
})

func TestPolicyStringProperties(t *testing.T) {
	order := []string{DefaultSrc, ImgSrc, ScriptSrc, StyleSrc, FontSrc, ConnectSrc, ObjectSrc, MediaSrc, FrameSrc, ReportURI, Sandbox}

	rapid.Check(t, func(rt *rapid.T) {
		opts := make(map[string]string)
		for _, k := range order {
			if k == Sandbox {
				opts[k] = rapid.SampledFrom([]string{"", "true", "TrUe", "allow-scripts"}).Draw(rt, k)
				continue
			}
			opts[k] = sourceGen.Draw(rt, k)
		}
		p := FromOptions(opts)
		parts := strings.Split(p.String(), "; ")

		if !strings.HasPrefix(parts[0], DefaultSrc+" ") {
			rt.Fatalf("policy must start with default-src, got %q", parts[0])
		}

		last := -1
		for _, part := range parts {
			name, value, _ := strings.Cut(part, " ")
			idx := indexOf(order, name)
			if idx <= last {
				rt.Fatalf("directive %q out of order in %q", name, p.String())
			}
			last = idx
			if name != DefaultSrc && name != Sandbox && value == p.DefaultSrc {
				rt.Fatalf("directive %q repeats default-src in %q", name, p.String())
			}
		}

		for _, k := range order[1:10] {
			v := opts[k]
			included := strings.Contains(p.String(), "; "+k+" "+v)
			want := strings.TrimSpace(v) != "" && v != p.DefaultSrc
			if included != want {
				rt.Fatalf("directive %q with value %q: included=%v want=%v", k, v, included, want)
			}
		}
	})
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
