package httpcell

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	hostsvc "github.com/dodeca-dev/dodeca/services/host"
)

// cachePolicy is the small, static cache-control table SPEC_FULL.md's
// §4.11 addition calls for: immutable, far-future caching for
// content-addressed asset paths, short validation caching for
// everything else. It is read-only after cell startup, matching the
// rest of the cell's "dumb shim" posture — no build-time knowledge,
// just a fixed policy keyed by path prefix.
var cachePolicy = []struct {
	prefix string
	value  string
}{
	{"/assets/", "public, max-age=31536000, immutable"},
	{"/fonts/", "public, max-age=31536000, immutable"},
	{"/", "public, max-age=0, must-revalidate"},
}

func cacheControlFor(path string, immutable bool) string {
	if immutable {
		return "public, max-age=31536000, immutable"
	}
	for _, p := range cachePolicy {
		if strings.HasPrefix(path, p.prefix) {
			return p.value
		}
	}
	return "public, max-age=0, must-revalidate"
}

// contentHandler implements http.Handler by resolving every request
// through the host's ContentService over the cell's own session,
// streaming the response body off the tunnel ContentFetch returns.
type contentHandler struct {
	host   *hostsvc.Client
	logger *log.Logger
}

func (h *contentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rx, resp, err := h.host.ContentFetch(ctx, r.URL.Path)
	if err != nil {
		h.logger.Printf("httpcell: ContentFetch %s: %v", r.URL.Path, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if resp.NotFound {
		http.NotFound(w, r)
		return
	}

	header := w.Header()
	if resp.ContentType != "" {
		header.Set("Content-Type", resp.ContentType)
	}
	if resp.Length > 0 {
		header.Set("Content-Length", strconv.FormatInt(resp.Length, 10))
	}
	header.Set("Cache-Control", cacheControlFor(r.URL.Path, resp.Immutable))

	for {
		chunk, err := rx.Read()
		if len(chunk) > 0 {
			if _, werr := w.Write(chunk); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				h.logger.Printf("httpcell: body stream %s: %v", r.URL.Path, err)
			}
			return
		}
	}
}
