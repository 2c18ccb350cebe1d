// Package clientcert loads the bindings between Gemini URL prefixes and the
// client identity certificates offered during the TLS handshake for matching
// requests. Bindings are stored as a flat YAML document, parallel to the
// settings and bookmarks stores; PEM certificate and key files are referenced
// by path rather than embedded, so they can be managed (and excluded from
// backups) independently.
package clientcert

import (
	"crypto/tls"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jansc/ncgopher/internal/gurl"
	"gopkg.in/yaml.v3"
)

// Binding pairs a URL prefix with the certificate/key pair offered for any
// request whose URL starts with it. Note is a free-text reminder of what the
// identity is for (a login, a capsule-specific persona).
type Binding struct {
	URLPrefix string `yaml:"url_prefix"`
	CertPath  string `yaml:"cert_path"`
	KeyPath   string `yaml:"key_path"`
	Note      string `yaml:"note,omitempty"`
}

type document struct {
	Bindings []Binding `yaml:"bindings"`
}

// Store resolves the identity to present for a given URL via longest-prefix
// match over its configured bindings. Certificates are parsed eagerly at
// Load time so a misconfigured PEM pair is reported up front rather than mid
// handshake.
type Store struct {
	path     string
	bindings []Binding
	certs    map[string]tls.Certificate // keyed by URLPrefix
}

// Load reads path, a YAML document of bindings, and eagerly parses every
// referenced certificate/key pair. A missing file yields an empty store, not
// an error — client certificates are an opt-in feature.
func Load(path string) (*Store, error) {
	s := &Store{path: path, certs: make(map[string]tls.Certificate)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clientcert: read %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("clientcert: parse %s: %w", path, err)
	}

	for _, b := range doc.Bindings {
		cert, err := tls.LoadX509KeyPair(b.CertPath, b.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("clientcert: load %s/%s for prefix %q: %w", b.CertPath, b.KeyPath, b.URLPrefix, err)
		}
		s.bindings = append(s.bindings, b)
		s.certs[b.URLPrefix] = cert
	}

	// Longest prefix first, so Lookup's first match is the most specific.
	sort.Slice(s.bindings, func(i, j int) bool {
		return len(s.bindings[i].URLPrefix) > len(s.bindings[j].URLPrefix)
	})

	return s, nil
}

// Lookup implements fetch.ClientCertStore: it returns the certificate bound
// to the longest URL prefix that u's canonical form starts with.
func (s *Store) Lookup(u gurl.URL) (tls.Certificate, bool) {
	if s == nil {
		return tls.Certificate{}, false
	}
	full := u.String()
	for _, b := range s.bindings {
		if strings.HasPrefix(full, b.URLPrefix) {
			return s.certs[b.URLPrefix], true
		}
	}
	return tls.Certificate{}, false
}

// Bindings returns the configured bindings in longest-prefix-first order,
// for display in a management dialog.
func (s *Store) Bindings() []Binding {
	if s == nil {
		return nil
	}
	out := make([]Binding, len(s.bindings))
	copy(out, s.bindings)
	return out
}
