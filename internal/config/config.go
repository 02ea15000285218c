package config

import (
	"errors"
	"fmt"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/modfin/cspd/internal/csp"
	"github.com/modfin/cspd/internal/log"
	"github.com/modfin/cspd/pkg/cspd"
	"gopkg.in/yaml.v3"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"sync"
)

var cfg Config
var once sync.Once

type config struct {
	Addr         string `env:"ADDR" envDefault:":8080"`
	Routes       string `env:"ROUTES"`
	PublicDir    string `env:"PUBLIC_DIR"`
	PublicPrefix string `env:"PUBLIC_PREFIX"`
	Compress     bool   `env:"COMPRESS" envDefault:"true"`

	ReportPath      string `env:"REPORT_PATH"`
	ReportMaxBytes  int64  `env:"REPORT_MAX_BYTES" envDefault:"65536"`
	ReportRateLimit int    `env:"REPORT_RATE_LIMIT" envDefault:"60"`

	MetricsAddr string `env:"METRICS_ADDR"`
	MetricsUser string `env:"METRICS_USER"`
	MetricsPass string `env:"METRICS_PASS"`

	CspConfigFile string `env:"CSP_CONFIG_FILE"`
	CspReportOnly string `env:"CSP_REPORT_ONLY"`
	CspReportUri  string `env:"CSP_REPORT_URI"`
	CspSandbox    string `env:"CSP_SANDBOX"`
	CspDefaultSrc string `env:"CSP_DEFAULT_SRC"`
	CspImgSrc     string `env:"CSP_IMG_SRC"`
	CspScriptSrc  string `env:"CSP_SCRIPT_SRC"`
	CspStyleSrc   string `env:"CSP_STYLE_SRC"`
	CspFontSrc    string `env:"CSP_FONT_SRC"`
	CspConnectSrc string `env:"CSP_CONNECT_SRC"`
	CspObjectSrc  string `env:"CSP_OBJECT_SRC"`
	CspMediaSrc   string `env:"CSP_MEDIA_SRC"`
	CspFrameSrc   string `env:"CSP_FRAME_SRC"`
}

type Config struct {
	Addr            string
	Routes          []cspd.Route
	PublicDir       string
	PublicPrefix    string
	Compress        bool
	ReportPath      string
	ReportMaxBytes  int64
	ReportRateLimit int
	MetricsAddr     string
	MetricsUser     string
	MetricsPass     string
	Policy          csp.Policy
}

// Get parses the environment once, a .env file in the working directory is
// loaded first if present. Invalid configuration is fatal.
func Get() Config {
	once.Do(func() {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.New().WithError(err).Fatal("error loading .env")
		}
		var c config
		err = env.Parse(&c)
		if err != nil {
			log.New().WithError(err).Fatal("error parsing env")
		}
		cfg, err = build(c)
		if err != nil {
			log.New().WithError(err).Fatal("invalid configuration")
		}
	})
	return cfg
}

func build(c config) (Config, error) {
	var routes []cspd.Route
	if strings.TrimSpace(c.Routes) != "" {
		var err error
		routes, err = cspd.ParseRoutes(c.Routes)
		if err != nil {
			return Config{}, fmt.Errorf("error parsing ROUTES: %w", err)
		}
	}
	if c.ReportMaxBytes < 0 {
		return Config{}, errors.New("REPORT_MAX_BYTES is negative")
	}
	if strings.TrimSpace(c.MetricsUser) != "" && strings.TrimSpace(c.MetricsPass) == "" {
		return Config{}, errors.New("METRICS_USER requires METRICS_PASS")
	}
	if c.ReportRateLimit < 0 {
		return Config{}, errors.New("REPORT_RATE_LIMIT is negative")
	}

	opts := map[string]string{}
	if path := strings.TrimSpace(c.CspConfigFile); path != "" {
		var err error
		opts, err = readOptions(path)
		if err != nil {
			return Config{}, err
		}
	}
	for k, v := range map[string]string{
		csp.ReportOnly: c.CspReportOnly,
		csp.ReportURI:  c.CspReportUri,
		csp.Sandbox:    c.CspSandbox,
		csp.DefaultSrc: c.CspDefaultSrc,
		csp.ImgSrc:     c.CspImgSrc,
		csp.ScriptSrc:  c.CspScriptSrc,
		csp.StyleSrc:   c.CspStyleSrc,
		csp.FontSrc:    c.CspFontSrc,
		csp.ConnectSrc: c.CspConnectSrc,
		csp.ObjectSrc:  c.CspObjectSrc,
		csp.MediaSrc:   c.CspMediaSrc,
		csp.FrameSrc:   c.CspFrameSrc,
	} {
		if strings.TrimSpace(v) != "" {
			opts[k] = strings.TrimSpace(v)
		}
	}
	policy := csp.FromOptions(opts)

	reportPath := strings.TrimSpace(c.ReportPath)
	if reportPath == "" {
		reportPath = localReportPath(policy.ReportURI)
	}

	return Config{
		Addr:            strings.TrimSpace(c.Addr),
		Routes:          routes,
		PublicDir:       strings.TrimSpace(c.PublicDir),
		PublicPrefix:    strings.TrimSpace(c.PublicPrefix),
		Compress:        c.Compress,
		ReportPath:      reportPath,
		ReportMaxBytes:  c.ReportMaxBytes,
		ReportRateLimit: c.ReportRateLimit,
		MetricsAddr:     strings.TrimSpace(c.MetricsAddr),
		MetricsUser:     strings.TrimSpace(c.MetricsUser),
		MetricsPass:     strings.TrimSpace(c.MetricsPass),
		Policy:          policy,
	}, nil
}

// localReportPath is the path of the first report-uri when it points at
// this host, "" otherwise. report-uri may list several URIs.
func localReportPath(reportUri string) string {
	fields := strings.Fields(reportUri)
	if len(fields) == 0 {
		return ""
	}
	u, err := url.Parse(fields[0])
	if err != nil || u.Scheme != "" || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return ""
	}
	return u.Path
}

// readOptions reads a flat YAML mapping of option keys to values, e.g.
//
//	default-src: "'self'"
//	img-src: static.example.com
//	report-only: true
func readOptions(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading CSP_CONFIG_FILE: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("error parsing CSP_CONFIG_FILE: %w", err)
	}
	known := make(map[string]bool, len(csp.Keys))
	for _, k := range csp.Keys {
		known[k] = true
	}
	opts := make(map[string]string, len(raw))
	for k, v := range raw {
		if !known[k] {
			return nil, fmt.Errorf("CSP_CONFIG_FILE: unknown option %q", k)
		}
		switch v := v.(type) {
		case nil:
		case string:
			opts[k] = v
		case bool, int, float64:
			opts[k] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("CSP_CONFIG_FILE: option %q must be a string", k)
		}
	}
	return opts, nil
}
