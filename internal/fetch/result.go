package fetch

import (
	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/page"
)

// ResultKind discriminates what a fetch produced.
type ResultKind int

const (
	ResultPage ResultKind = iota
	ResultNeedQuery
	ResultDownloadDone
)

// Result is what a protocol fetcher produces for a successfully completed
// (non-error) request.
type Result struct {
	Kind        ResultKind
	Page        page.Page
	QueryPrompt string   // set when Kind == ResultNeedQuery
	QueryURL    gurl.URL // the URL the UI should re-request with ?query appended
	BytesWritten int64   // set when Kind == ResultDownloadDone
}

// TrustDecider is consulted when a TLS handshake presents a certificate
// that is New or Mismatch relative to the trust store. It must block until
// the user has answered (the "one-shot reply channel" of the concurrency
// model) and return whether to proceed.
type TrustDecider func(host string, port int, oldFP *string, newFP string) bool

// ProgressFunc receives periodic byte counts while streaming a download to
// disk.
type ProgressFunc func(bytesWritten int64)
