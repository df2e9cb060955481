package client

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func readScript(t *testing.T) string {
	t.Helper()
	data, err := fs.ReadFile(Assets(), "livecorrect.js")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}

func TestAssets(t *testing.T) {
	script := readScript(t)
	for _, want := range []string{"lv-click", "lv-input", "phx_join", "processFragmentsIn"} {
		if !strings.Contains(script, want) {
			t.Errorf("client script lacks %q", want)
		}
	}
	if _, err := fs.ReadFile(Assets(), "missing.js"); err == nil {
		t.Error("expected error for a missing file")
	}
}

// Clicks on display blocks must not cancel the default action, or links
// inside paragraphs stop working.
func TestClickDefaultOnlyCancelledForButtons(t *testing.T) {
	script := readScript(t)
	start := strings.Index(script, `addEventListener("click"`)
	if start < 0 {
		t.Fatal("no click listener")
	}
	end := strings.Index(script[start:], "});")
	if end < 0 {
		t.Fatal("unterminated click listener")
	}
	listener := script[start : start+end]

	guard := strings.Index(listener, `el.tagName === "BUTTON"`)
	prevent := strings.Index(listener, "preventDefault()")
	if prevent < 0 {
		return
	}
	if guard < 0 || guard > prevent {
		t.Error("preventDefault must be guarded by a button check")
	}
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livecorrect.js", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Errorf("content type = %q", ct)
	}
}
