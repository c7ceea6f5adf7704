package host

import (
	"context"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	hostsvc "github.com/dodeca-dev/dodeca/services/host"
)

// ContentResolver is the default hostsvc.Server: it serves a cell's
// ContentFetch calls from a built static site directory on disk (the
// output of the markdown/template/asset pipeline, out of scope for
// this fabric), answers ResolveData from an in-memory key/value store
// populated at host startup, and forwards Log calls to the host's own
// logger. Grounded on the teacher's debug probe registry
// (control/debug.go) for the same "small synchronized map behind an
// exported read method" shape.
type ContentResolver struct {
	root   string
	logger *log.Logger

	mu   sync.RWMutex
	data map[string][]byte
}

func NewContentResolver(root string, logger *log.Logger) *ContentResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &ContentResolver{root: root, logger: logger, data: make(map[string][]byte)}
}

// SetData installs (or replaces) one key in the in-memory data store
// ResolveData answers from.
func (c *ContentResolver) SetData(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

var _ hostsvc.Server = (*ContentResolver)(nil)

// immutablePrefixes names the path prefixes this host treats as
// content-addressed, matching the HTTP cell's own cache policy table
// (cells/http/handler.go) so ContentFetch's Immutable bit and the
// cell's Cache-Control header never disagree.
var immutablePrefixes = []string{"/assets/", "/fonts/"}

func (c *ContentResolver) ContentFetch(ctx context.Context, req hostsvc.ContentRequest) (hostsvc.ContentResponse, []byte, error) {
	cleanPath := filepath.Clean("/" + req.Path)
	fsPath := filepath.Join(c.root, cleanPath)
	if !strings.HasPrefix(fsPath, filepath.Clean(c.root)+string(filepath.Separator)) && fsPath != filepath.Clean(c.root) {
		return hostsvc.ContentResponse{NotFound: true}, nil, nil
	}

	body, err := os.ReadFile(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return hostsvc.ContentResponse{NotFound: true}, nil, nil
		}
		return hostsvc.ContentResponse{}, nil, err
	}

	immutable := false
	for _, p := range immutablePrefixes {
		if strings.HasPrefix(cleanPath, p) {
			immutable = true
			break
		}
	}

	resp := hostsvc.ContentResponse{
		ContentType: contentTypeFor(cleanPath),
		Length:      int64(len(body)),
		Immutable:   immutable,
	}
	return resp, body, nil
}

func contentTypeFor(path string) string {
	ext := filepath.Ext(path)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (c *ContentResolver) ResolveData(ctx context.Context, q hostsvc.DataQuery) (hostsvc.DataResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[q.Key]
	return hostsvc.DataResult{Value: v, Found: ok}, nil
}

func (c *ContentResolver) Log(line hostsvc.LogLine) {
	c.logger.Printf("[cell:%s] %s: %s", line.CellName, line.Level, line.Message)
}
