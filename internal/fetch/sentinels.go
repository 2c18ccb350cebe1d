package fetch

import "errors"

var (
	errNoPeerCert    = errors.New("fetch: no peer certificate presented")
	errTrustRejected = errors.New("fetch: user rejected certificate fingerprint")
	errRedirectLoop  = errors.New("fetch: redirect loop detected")
	errTooManyRedirects = errors.New("fetch: exceeded 5 redirects")
	errUnsupportedCharset = errors.New("fetch: unsupported charset")
	errMalformedHeader = errors.New("fetch: malformed gemini response header")
	errRequestLineTooLong = errors.New("fetch: gemini request line exceeds 1024 bytes")
)
