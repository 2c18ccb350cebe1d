package clientcert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyPair(t *testing.T, dir, name string) (certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, name+".crt")
	keyPath = filepath.Join(dir, name+".key")

	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	require.NoError(t, keyOut.Close())

	return certPath, keyPath
}

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	_, ok := s.Lookup(gurl.URL{Scheme: "gemini", Host: "example.org", Path: "secure"})
	assert.False(t, ok)
}

func TestLookupPicksLongestPrefix(t *testing.T) {
	dir := t.TempDir()
	generalCert, generalKey := writeKeyPair(t, dir, "general")
	specificCert, specificKey := writeKeyPair(t, dir, "specific")

	configPath := filepath.Join(dir, "client_certificates.yaml")
	body := "bindings:\n" +
		"  - url_prefix: gemini://example.org/\n" +
		"    cert_path: " + generalCert + "\n" +
		"    key_path: " + generalKey + "\n" +
		"  - url_prefix: gemini://example.org/account/\n" +
		"    cert_path: " + specificCert + "\n" +
		"    key_path: " + specificKey + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))

	s, err := Load(configPath)
	require.NoError(t, err)

	cert, ok := s.Lookup(gurl.URL{Scheme: "gemini", Host: "example.org", Path: "account/settings"})
	require.True(t, ok)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "specific", leaf.Subject.CommonName)

	cert, ok = s.Lookup(gurl.URL{Scheme: "gemini", Host: "example.org", Path: "blog"})
	require.True(t, ok)
	leaf, err = x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "general", leaf.Subject.CommonName)
}

func TestLookupNoMatch(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	_, ok := s.Lookup(gurl.URL{Scheme: "gemini", Host: "other.org", Path: ""})
	assert.False(t, ok)
}
