// Package gurl implements the URL model shared by the Gopher, Gemini and
// Finger fetchers: parsing, wire-form encoding and RFC 3986 relative
// resolution, with IDNA-aware hostnames. In URL text the Gopher item-type is
// the first path segment; a parsed URL holds it in its ItemType field.
package gurl

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// Err is the sentinel kind for malformed-URL failures (spec error kind
// UrlParse). Use errors.Is(err, gurl.Err) to test for it.
var Err = fmt.Errorf("gurl: invalid url")

// DefaultPort returns the scheme's well-known port, or 0 if the scheme
// carries no default (about, mailto).
func DefaultPort(scheme string) int {
	switch scheme {
	case "gopher", "gophers":
		return 70
	case "gemini":
		return 1965
	case "finger":
		return 79
	case "http":
		return 80
	case "https":
		return 443
	default:
		return 0
	}
}

func schemeSupported(scheme string) bool {
	switch scheme {
	case "gopher", "gophers", "gemini", "finger", "http", "https", "about", "mailto":
		return true
	}
	return false
}

// URL is the client's canonical address type. Host is always the IDNA
// A-label (ASCII, suitable for the wire); use Unicode() for display.
type URL struct {
	Scheme   string
	Host     string
	Port     int
	ItemType ItemType // gopher only; ItemNone for other schemes
	Path     string   // percent-decoded; gopher selector or gemini/finger path, item-type stripped
	Query    string   // gopher tab-search suffix, or gemini "?"-query
	Opaque   string   // for schemes without authority (about:help, mailto:user@host)
}

// Parse parses s into a URL. A scheme is required. For Gopher URLs the first
// character of the path is lifted into ItemType and removed from Path; an
// empty or bare "/" path means ItemMenu. Supplying both a
// tab-embedded query and an external "?query" is rejected — the tab form is
// authoritative per the source client's convention.
func Parse(s string) (URL, error) {
	raw, err := url.Parse(s)
	if err != nil {
		return URL{}, fmt.Errorf("%w: %s: %v", Err, s, err)
	}
	if raw.Scheme == "" {
		return URL{}, fmt.Errorf("%w: %s: missing scheme", Err, s)
	}
	if !schemeSupported(raw.Scheme) {
		return URL{}, fmt.Errorf("%w: %s: unsupported scheme %q", Err, s, raw.Scheme)
	}
	if raw.Fragment != "" || raw.User != nil {
		return URL{}, fmt.Errorf("%w: %s: fragments and userinfo are not supported", Err, s)
	}

	u := URL{Scheme: raw.Scheme}

	if raw.Scheme == "about" || raw.Scheme == "mailto" {
		u.Opaque = raw.Opaque
		if u.Opaque == "" {
			u.Opaque = strings.TrimPrefix(raw.Path, "/")
		}
		return u, nil
	}

	host := raw.Hostname()
	if host == "" {
		return URL{}, fmt.Errorf("%w: %s: missing host", Err, s)
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return URL{}, fmt.Errorf("%w: %s: idna: %v", Err, s, err)
	}
	u.Host = ascii

	if p := raw.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return URL{}, fmt.Errorf("%w: %s: bad port %q", Err, s, p)
		}
		u.Port = port
	} else {
		u.Port = DefaultPort(raw.Scheme)
	}

	path := raw.EscapedPath()
	path = strings.TrimPrefix(path, "/")

	tabQuery, pathNoTab, hasTab := splitTabQuery(path)
	if hasTab && raw.RawQuery != "" {
		return URL{}, fmt.Errorf("%w: %s: both tab-query and ?query present", Err, s)
	}
	path = pathNoTab

	switch raw.Scheme {
	case "gopher", "gophers":
		if path == "" {
			u.ItemType = ItemMenu
			u.Path = ""
		} else {
			u.ItemType = Decode(path[0])
			u.Path = decodePercent(path[1:])
			if u.Path == "/" {
				// "/1/" names the root menu: the same empty selector as "/".
				u.Path = ""
			}
		}
		if hasTab {
			u.Query = decodePercent(tabQuery)
		}
	case "gemini":
		u.Path = decodePercent(path)
		u.Query = raw.RawQuery
	case "finger":
		u.Path = decodePercent(path)
	case "http", "https":
		u.Path = decodePercent(path)
		u.Query = raw.RawQuery
	}

	return u, nil
}

// splitTabQuery splits a raw (still percent-escaped) gopher path on the
// first literal or escaped tab, returning (query, pathWithoutQuery, found).
func splitTabQuery(path string) (query, rest string, found bool) {
	if i := strings.IndexByte(path, '\t'); i >= 0 {
		return path[i+1:], path[:i], true
	}
	if i := strings.Index(path, "%09"); i >= 0 {
		return path[i+3:], path[:i], true
	}
	return "", path, false
}

func decodePercent(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

func escapePath(s string) string {
	return strings.Replace(url.PathEscape(s), "%2F", "/", -1)
}

// HostPort returns "host:port" suitable for net.Dial.
func (u URL) HostPort() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// String renders the canonical wire-form URL text, the identity key used for
// history and bookmarks. Gopher URLs re-embed the item-type byte as the
// first path segment.
func (u URL) String() string {
	if u.Scheme == "about" || u.Scheme == "mailto" {
		return u.Scheme + ":" + u.Opaque
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if strings.IndexByte(u.Host, ':') >= 0 {
		b.WriteByte('[')
		b.WriteString(u.Host)
		b.WriteByte(']')
	} else {
		b.WriteString(u.Host)
	}
	if u.Port != 0 && u.Port != DefaultPort(u.Scheme) {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(u.Port))
	}

	switch u.Scheme {
	case "gopher", "gophers":
		b.WriteByte('/')
		it := u.ItemType
		if it == ItemNone {
			it = ItemText
		}
		b.WriteByte(byte(it))
		b.WriteString(escapePath(u.Path))
		if u.Query != "" {
			b.WriteString("%09")
			b.WriteString(escapePath(u.Query))
		}
	default:
		b.WriteByte('/')
		b.WriteString(escapePath(u.Path))
		if u.Query != "" {
			b.WriteByte('?')
			b.WriteString(u.Query)
		}
	}
	return b.String()
}

// Unicode renders the host as a Unicode U-label and the path percent-decoded,
// for display purposes only — never fed back into Parse.
func (u URL) Unicode() string {
	host := u.Host
	if uni, err := idna.Lookup.ToUnicode(u.Host); err == nil {
		host = uni
	}
	disp := u
	disp.Host = host
	s := disp.String()
	// The percent-escaping above is for wire safety; undo it for the
	// human-readable rendering of the path/query.
	if unescaped, err := url.PathUnescape(s); err == nil {
		return unescaped
	}
	return s
}

// ResolveRelative resolves ref against base per RFC 3986, used by the Gemini
// fetcher and gemtext parser to turn "=> other.gmi" into an absolute URL.
func ResolveRelative(base URL, ref string) (URL, error) {
	baseURL, err := url.Parse(base.String())
	if err != nil {
		return URL{}, fmt.Errorf("%w: resolve base: %v", Err, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return URL{}, fmt.Errorf("%w: resolve ref %q: %v", Err, ref, err)
	}
	resolved := baseURL.ResolveReference(refURL)
	return Parse(resolved.String())
}

// Wire returns the bytes sent on the connection for this request, per
// scheme. It does not include the scheme/host — that selects the connection
// target, not the wire payload (Gemini is the exception: its request line is
// the entire absolute URL).
func (u URL) Wire() ([]byte, error) {
	switch u.Scheme {
	case "gopher", "gophers":
		s := u.Path
		if u.ItemType == ItemSearch && u.Query != "" {
			s = s + "\t" + u.Query
		}
		return []byte(s + "\r\n"), nil
	case "gemini":
		s := u.String()
		if len(s) > 1024 {
			return nil, fmt.Errorf("gurl: gemini request line exceeds 1024 bytes")
		}
		return []byte(s + "\r\n"), nil
	case "finger":
		return []byte(u.Path + "\r\n"), nil
	default:
		return nil, fmt.Errorf("gurl: scheme %q has no wire form", u.Scheme)
	}
}
