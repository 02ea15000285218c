package cspd

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Route proxies every request below Prefix to Target.
type Route struct {
	Prefix      string `json:"prefix"`
	Target      string `json:"target"`
	Strip       bool   `json:"strip,omitempty"`
	RewriteHost bool   `json:"rewrite_host,omitempty"`
}

// ParseRoutes accepts either a JSON array of routes or one route per line:
//
//	Prefix /api http://localhost:9000
//	PrefixStrip /static http://localhost:9001
func ParseRoutes(s string) ([]Route, error) {
	var routes []Route
	err := json.Unmarshal([]byte(s), &routes)
	if err == nil && len(routes) > 0 {
		return routes, nil
	}
	routes = nil
	for i, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		parts := strings.Fields(l)
		if len(parts) != 3 {
			return nil, fmt.Errorf("line %d: 3 tokens per line required", i+1)
		}
		var strip bool
		switch strings.ToLower(parts[0]) {
		case "prefixstrip":
			strip = true
		case "prefix":
			strip = false
		default:
			return nil, fmt.Errorf("line %d: route mode required (Prefix/PrefixStrip)", i+1)
		}
		routes = append(routes, Route{
			Strip:  strip,
			Prefix: parts[1],
			Target: parts[2],
		})
	}
	return routes, nil
}
