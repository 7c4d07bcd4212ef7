package rendezvous

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// parseRequest reads one HTTP request from r and captures the fields
// needed to replay it onto a different socket. Headers come from
// http.ReadRequest's header map, so HeaderOrder follows map iteration
// order, not the order on the wire (replay must be close enough to the
// original for the receiving router to parse identically, not
// necessarily semantically equivalent for every header).
func parseRequest(r *bufio.Reader) (*parsedRequest, error) {
	req, err := http.ReadRequest(r)
	if err != nil {
		return nil, err
	}
	defer req.Body.Close()

	var body []byte
	if req.Body != nil {
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("rendezvous: read body: %w", err)
		}
	}

	order := make([]string, 0, len(req.Header))
	for k := range req.Header {
		order = append(order, k)
	}

	return &parsedRequest{
		Method:      req.Method,
		Path:        req.URL.Path,
		Query:       req.URL.RawQuery,
		Proto:       "HTTP/1.1",
		Header:      map[string][]string(req.Header),
		HeaderOrder: order,
		Body:        body,
	}, nil
}

// token extracts the "token" query parameter from a parsed
// request's raw query string.
func (p *parsedRequest) token() string {
	values, err := url.ParseQuery(p.Query)
	if err != nil {
		return ""
	}
	return values.Get("token")
}

// writeTo reconstructs a canonical HTTP/1.1 request line, headers, and
// body onto w, then flushes. The request line's query values are
// percent-encoded via url.Values.Encode so replay is byte-exact enough
// for the client agent's router to parse identically to the original.
func (p *parsedRequest) writeTo(w *bufio.Writer) error {
	path := p.Path
	if p.Query != "" {
		if values, err := url.ParseQuery(p.Query); err == nil {
			path = path + "?" + values.Encode()
		} else {
			path = path + "?" + p.Query
		}
	}

	if _, err := fmt.Fprintf(w, "%s %s %s\r\n", p.Method, path, p.Proto); err != nil {
		return err
	}

	wroteContentLength := false
	for _, key := range p.HeaderOrder {
		for _, v := range p.Header[key] {
			if strings.EqualFold(key, "Content-Length") {
				wroteContentLength = true
			}
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", key, v); err != nil {
				return err
			}
		}
	}
	if !wroteContentLength && len(p.Body) > 0 {
		if _, err := fmt.Fprintf(w, "Content-Length: %s\r\n", strconv.Itoa(len(p.Body))); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	if len(p.Body) > 0 {
		if _, err := w.Write(p.Body); err != nil {
			return err
		}
	}
	return w.Flush()
}
