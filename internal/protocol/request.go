// Package protocol implements the line-oriented wire format spoken between
// clients and the hotelling server. A request is a single line of tokens
// separated by '/', the first token naming the method. Replies use the same
// framing and start with either "reply" or "error".
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	sep = "/"

	// prefixReply starts every successful reply.
	prefixReply = "reply"
	// prefixError starts every structured error reply.
	prefixError = "error"
)

// Arg is a single positional argument. Tokens that look like integers are
// decoded eagerly, everything else stays a string.
type Arg struct {
	raw   string
	n     int
	isInt bool
}

// StringArg wraps a string token.
func StringArg(s string) Arg {
	return parseArg(s)
}

// IntArg wraps an integer token.
func IntArg(n int) Arg {
	return Arg{raw: strconv.Itoa(n), n: n, isInt: true}
}

func parseArg(tok string) Arg {
	if looksNumeric(tok) {
		if n, err := strconv.Atoi(tok); err == nil {
			return Arg{raw: tok, n: n, isInt: true}
		}
	}
	return Arg{raw: tok}
}

func looksNumeric(tok string) bool {
	digits := strings.TrimPrefix(tok, "-")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String returns the token as it appeared on the wire.
func (a Arg) String() string { return a.raw }

// Int returns the integer value and whether the token was numeric.
func (a Arg) Int() (int, bool) { return a.n, a.isInt }

// Request is a decoded client call.
type Request struct {
	Method string
	Args   []Arg
}

// NewRequest builds a request from already typed values. Ints and strings
// are accepted; anything else is formatted with %v.
func NewRequest(method string, args ...any) Request {
	req := Request{Method: method, Args: make([]Arg, 0, len(args))}
	for _, a := range args {
		switch v := a.(type) {
		case int:
			req.Args = append(req.Args, IntArg(v))
		case string:
			req.Args = append(req.Args, StringArg(v))
		default:
			req.Args = append(req.Args, StringArg(fmt.Sprint(v)))
		}
	}
	return req
}

// ParseRequest decodes one request line. Surrounding whitespace and empty
// tokens are ignored, so "/ask_init/abc" and "ask_init/abc\n" are equivalent.
func ParseRequest(line string) (Request, error) {
	toks := tokens(line)
	if len(toks) == 0 {
		return Request{}, fmt.Errorf("empty request")
	}

	req := Request{Method: toks[0], Args: make([]Arg, 0, len(toks)-1)}
	for _, tok := range toks[1:] {
		req.Args = append(req.Args, parseArg(tok))
	}
	return req, nil
}

// String encodes the request back into its wire form.
func (r Request) String() string {
	parts := make([]string, 0, len(r.Args)+1)
	parts = append(parts, r.Method)
	for _, a := range r.Args {
		parts = append(parts, a.raw)
	}
	return strings.Join(parts, sep)
}

// Int returns argument i as an integer.
func (r Request) Int(i int) (int, error) {
	if i >= len(r.Args) {
		return 0, fmt.Errorf("%s: missing argument %d", r.Method, i)
	}
	n, ok := r.Args[i].Int()
	if !ok {
		return 0, fmt.Errorf("%s: argument %d (%q) is not an integer", r.Method, i, r.Args[i].raw)
	}
	return n, nil
}

// Str returns argument i as a string.
func (r Request) Str(i int) (string, error) {
	if i >= len(r.Args) {
		return "", fmt.Errorf("%s: missing argument %d", r.Method, i)
	}
	return r.Args[i].raw, nil
}

func tokens(line string) []string {
	raw := strings.Split(strings.TrimSpace(line), sep)
	out := raw[:0]
	for _, tok := range raw {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
