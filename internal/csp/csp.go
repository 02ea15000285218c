package csp

import (
	"net/http"
	"strings"

	"github.com/modfin/cspd/pkg/cspd"
)

const (
	Header           = "Content-Security-Policy"
	HeaderReportOnly = "Content-Security-Policy-Report-Only"

	KeywordNone = "'none'"
	KeywordSelf = "'self'"
)

// Option keys, also used as directive names.
const (
	ReportOnly = "report-only"
	ReportURI  = "report-uri"
	Sandbox    = "sandbox"
	DefaultSrc = "default-src"
	ImgSrc     = "img-src"
	ScriptSrc  = "script-src"
	StyleSrc   = "style-src"
	FontSrc    = "font-src"
	ConnectSrc = "connect-src"
	ObjectSrc  = "object-src"
	MediaSrc   = "media-src"
	FrameSrc   = "frame-src"
)

// Keys lists every recognized option key.
var Keys = []string{
	ReportOnly, ReportURI, Sandbox, DefaultSrc, ImgSrc, ScriptSrc, StyleSrc,
	FontSrc, ConnectSrc, ObjectSrc, MediaSrc, FrameSrc,
}

// Policy is the configuration a Content-Security-Policy header is rendered
// from. Values are passed through as is, keywords like 'self' need their
// quotes.
type Policy struct {
	ReportOnly bool
	ReportURI  string
	Sandbox    string
	DefaultSrc string
	ImgSrc     string
	ScriptSrc  string
	StyleSrc   string
	FontSrc    string
	ConnectSrc string
	ObjectSrc  string
	MediaSrc   string
	FrameSrc   string
}

// FromOptions builds a Policy from named options, see Keys. Unknown keys are
// ignored.
func FromOptions(opts map[string]string) Policy {
	p := Policy{
		ReportOnly: strings.EqualFold(opts[ReportOnly], "true"),
		ReportURI:  opts[ReportURI],
		Sandbox:    opts[Sandbox],
		DefaultSrc: opts[DefaultSrc],
		ImgSrc:     opts[ImgSrc],
		ScriptSrc:  opts[ScriptSrc],
		StyleSrc:   opts[StyleSrc],
		FontSrc:    opts[FontSrc],
		ConnectSrc: opts[ConnectSrc],
		ObjectSrc:  opts[ObjectSrc],
		MediaSrc:   opts[MediaSrc],
		FrameSrc:   opts[FrameSrc],
	}
	if isBlank(p.DefaultSrc) {
		p.DefaultSrc = KeywordNone
	}
	return p
}

// HeaderName is the response header the policy is sent in.
func (p Policy) HeaderName() string {
	if p.ReportOnly {
		return HeaderReportOnly
	}
	return Header
}

// String renders the header value. Directives that repeat default-src are
// left out.
func (p Policy) String() string {
	def := p.DefaultSrc
	if isBlank(def) {
		def = KeywordNone
	}
	var b strings.Builder
	b.WriteString(DefaultSrc)
	b.WriteString(" ")
	b.WriteString(def)

	directives := []struct{ name, value string }{
		{ImgSrc, p.ImgSrc},
		{ScriptSrc, p.ScriptSrc},
		{StyleSrc, p.StyleSrc},
		{FontSrc, p.FontSrc},
		{ConnectSrc, p.ConnectSrc},
		{ObjectSrc, p.ObjectSrc},
		{MediaSrc, p.MediaSrc},
		{FrameSrc, p.FrameSrc},
		{ReportURI, p.ReportURI},
	}
	for _, d := range directives {
		if isBlank(d.value) || d.value == def {
			continue
		}
		b.WriteString("; ")
		b.WriteString(d.name)
		b.WriteString(" ")
		b.WriteString(d.value)
	}

	switch {
	case isBlank(p.Sandbox):
	case strings.EqualFold(p.Sandbox, "true"):
		b.WriteString("; ")
		b.WriteString(Sandbox)
	default:
		b.WriteString("; ")
		b.WriteString(Sandbox)
		b.WriteString(" ")
		b.WriteString(p.Sandbox)
	}
	return b.String()
}

// Middleware adds the policy header to every response. Existing values of
// the header are kept.
func Middleware(policy Policy) cspd.Middleware {
	name := policy.HeaderName()
	value := policy.String()
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add(name, value)
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
