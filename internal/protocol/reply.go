package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ReplyName maps a request method onto the name echoed in its reply:
// "ask_init" becomes "reply_init".
func ReplyName(method string) string {
	return strings.Replace(method, "ask", "reply", 1)
}

// FormatReply encodes a successful reply for method.
func FormatReply(method string, values ...any) string {
	parts := make([]string, 0, len(values)+2)
	parts = append(parts, prefixReply, ReplyName(method))
	for _, v := range values {
		parts = append(parts, formatValue(v))
	}
	return strings.Join(parts, sep)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return "0"
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Reply is a decoded successful reply, as seen by a client.
type Reply struct {
	Method string
	Values []Arg
}

// ParseReply decodes a reply line. Structured errors and the catch-all
// diagnostic are returned as *Error so callers can branch on Kind.
func ParseReply(line string) (Reply, error) {
	line = strings.TrimSpace(line)
	toks := tokens(line)
	if len(toks) == 0 {
		return Reply{}, Malformed("empty reply")
	}

	switch toks[0] {
	case prefixReply:
		if len(toks) < 2 {
			return Reply{}, Malformed("reply without method: %q", line)
		}
		rep := Reply{Method: toks[1], Values: make([]Arg, 0, len(toks)-2)}
		for _, tok := range toks[2:] {
			rep.Values = append(rep.Values, parseArg(tok))
		}
		return rep, nil

	case prefixError:
		if len(toks) < 2 {
			return Reply{}, Malformed("error without reason: %q", line)
		}
		e := &Error{Kind: kindForReason(toks[1]), Reason: toks[1]}
		if len(toks) > 2 {
			retry, _ := ParseRequest(strings.Join(toks[2:], sep))
			e.Retry = &retry
		}
		return Reply{}, e

	default:
		return Reply{}, &Error{Kind: KindMalformed, Detail: strings.TrimPrefix(line, malformedPrefix)}
	}
}

// Int returns value i as an integer.
func (r Reply) Int(i int) (int, error) {
	if i >= len(r.Values) {
		return 0, fmt.Errorf("%s: missing value %d", r.Method, i)
	}
	n, ok := r.Values[i].Int()
	if !ok {
		return 0, fmt.Errorf("%s: value %d (%q) is not an integer", r.Method, i, r.Values[i].raw)
	}
	return n, nil
}

// Str returns value i verbatim.
func (r Reply) Str(i int) (string, error) {
	if i >= len(r.Values) {
		return "", fmt.Errorf("%s: missing value %d", r.Method, i)
	}
	return r.Values[i].raw, nil
}

// Ints decodes every value as an integer.
func (r Reply) Ints() ([]int, error) {
	out := make([]int, len(r.Values))
	for i := range r.Values {
		n, err := r.Int(i)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
