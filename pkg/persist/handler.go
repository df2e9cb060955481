package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
)

// ShutdownMessage is the body of a successful end response.
const ShutdownMessage = "Server shutting down..."

// maxPageSize bounds the request body of the end handler.
const maxPageSize = 32 << 20

var trailingNewlines = regexp.MustCompile(`\n+</body>`)

// Normalize collapses every run of newlines before </body> into one.
func Normalize(text string) string {
	return trailingNewlines.ReplaceAllString(text, "\n</body>")
}

// WritePage normalizes text and writes it to path, replacing the file.
// Empty text is refused with ErrEmptyText and the file is left alone: a
// finished page is never empty, so only a broken client sends one.
func WritePage(path, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	if err := os.WriteFile(path, []byte(Normalize(text)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// EndHandler receives a finished page, writes it and then calls OnWritten.
type EndHandler struct {
	// Path is the page file to overwrite.
	Path string

	// OnWritten runs after the page was written and the response sent,
	// usually to trigger shutdown.
	OnWritten func()

	Logger logging.Logger
}

// ServeHTTP implements http.Handler.
func (h *EndHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = logging.L(r.Context())
	}

	var payload Payload
	dec := json.NewDecoder(io.LimitReader(r.Body, maxPageSize))
	if err := dec.Decode(&payload); err != nil {
		logger.Warn("malformed page payload", logging.Err(err))
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if err := WritePage(h.Path, payload.Text); err != nil {
		if errors.Is(err, ErrEmptyText) {
			logger.Warn("empty page payload")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("page write failed", logging.String("path", h.Path), logging.Err(err))
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	logger.Info("page written", logging.String("path", h.Path), logging.Int("bytes", len(payload.Text)))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, ShutdownMessage)

	if h.OnWritten != nil {
		h.OnWritten()
	}
}
