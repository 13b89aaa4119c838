package web

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/models"
)

const downloadName = "generated-image.jpg"

// downloadPath links to entry n of the history, counted from the oldest
// entry so links stay valid while newer entries are prepended.
func downloadPath(n int) string {
	return "/download?n=" + strconv.Itoa(n)
}

// entryOrdinal converts a most-recent-first index into downloadPath's n.
func entryOrdinal(logs []models.LogEntry, i int) int {
	return len(logs) - 1 - i
}

// handleDownload serves a history image from this origin so the browser
// saves it in place instead of navigating to the provider's host.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logs := sessionFrom(ctx).Logs().Logs()

	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil || n < 0 || n >= len(logs) {
		http.NotFound(w, r)
		return
	}
	entry := logs[entryOrdinal(logs, n)]
	if entry.ImageURL == "" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)

	if rest, ok := strings.CutPrefix(entry.ImageURL, "data:"); ok {
		mime, data, _ := strings.Cut(rest, ";base64,")
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil || data == "" {
			logging.From(ctx).Warn("undecodable inline image", "error", err)
			w.Header().Del("Content-Disposition")
			http.Error(w, "invalid image", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", mime)
		w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
		_, _ = w.Write(raw)
		return
	}

	if err := s.relayImage(ctx, w, entry.ImageURL); err != nil {
		logging.From(ctx).Warn("image download failed", "error", err)
		w.Header().Del("Content-Disposition")
		http.Error(w, "image unavailable", http.StatusBadGateway)
	}
}

// relayImage streams the remote image at url into w. Nothing is written to
// w when it returns an error.
func (s *Server) relayImage(ctx context.Context, w http.ResponseWriter, url string) error {
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return goerr.New("unsupported image reference", goerr.V("url", url))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return goerr.Wrap(err, "create image request", goerr.V("url", url))
	}
	resp, err := s.images.Do(req)
	if err != nil {
		return goerr.Wrap(err, "fetch image", goerr.V("url", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return goerr.New("image host refused", goerr.V("url", url), goerr.V("status", resp.StatusCode))
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		// headers are gone; the truncated body is all the client gets
		logging.From(ctx).Warn("image stream interrupted", "error", err, "url", url)
	}
	return nil
}
