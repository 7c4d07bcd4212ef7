// Package router implements the client agent's in-process HTTP dispatcher:
// an ordered list of method+pattern routes with {name} and {*name} path
// parameters, first match wins.
package router

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Handler is a route handler. The path parameters the route matched are
// passed in params.
type Handler func(w http.ResponseWriter, r *http.Request, params Params)

// Params maps path-parameter names to their matched segment values. A
// {*name} tail parameter's value is the remaining path joined by "/".
type Params map[string]string

type route struct {
	method  string // empty means "any method"
	segs    []segment
	handler Handler
}

type segment struct {
	literal string
	param   string // non-empty for {name}
	tail    bool   // true for {*name}
}

// Router matches requests against routes registered in order.
type Router struct {
	routes []route
}

// New returns an empty Router.
func New() *Router {
	return &Router{}
}

// Handle registers a route. method == "" matches any HTTP method.
func (rt *Router) Handle(method, pattern string, handler Handler) {
	rt.routes = append(rt.routes, route{
		method:  method,
		segs:    parsePattern(pattern),
		handler: handler,
	})
}

func parsePattern(pattern string) []segment {
	pattern = strings.Trim(pattern, "/")
	if pattern == "" {
		return nil
	}
	parts := strings.Split(pattern, "/")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		switch {
		case strings.HasPrefix(p, "{*") && strings.HasSuffix(p, "}"):
			segs = append(segs, segment{param: p[2 : len(p)-1], tail: true})
		case strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}"):
			segs = append(segs, segment{param: p[1 : len(p)-1]})
		default:
			segs = append(segs, segment{literal: p})
		}
	}
	return segs
}

// ServeHTTP implements http.Handler. OPTIONS requests are answered
// globally with a permissive CORS 204 before any route is consulted.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeCORSPreflight(w)
		return
	}

	reqParts := splitPath(r.URL.Path)
	for _, rte := range rt.routes {
		if rte.method != "" && rte.method != r.Method {
			continue
		}
		params, ok := matchSegments(rte.segs, reqParts)
		if !ok {
			continue
		}
		setCORSHeaders(w)
		rte.handler(w, r, params)
		return
	}

	writeNotFound(w, r.Method, r.URL.Path)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(segs []segment, parts []string) (Params, bool) {
	var params Params
	i := 0
	for _, seg := range segs {
		if seg.tail {
			if params == nil {
				params = Params{}
			}
			params[seg.param] = strings.Join(parts[i:], "/")
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		if seg.param != "" {
			if params == nil {
				params = Params{}
			}
			params[seg.param] = parts[i]
		} else if seg.literal != parts[i] {
			return nil, false
		}
		i++
	}
	if i != len(parts) {
		return nil, false
	}
	if params == nil {
		params = Params{}
	}
	return params, true
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeCORSPreflight(w http.ResponseWriter) {
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func writeNotFound(w http.ResponseWriter, method, path string) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{
		Type:    "error",
		Message: "Route not found: " + method + " " + path,
	})
}
