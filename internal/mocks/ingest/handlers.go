package ingest

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"sync"

	"github.com/ccastromar/sourcemap-uploader/internal/logx"
	"github.com/ccastromar/sourcemap-uploader/internal/metrics"
)

const maxMemory = 32 << 20

// Behavior scripts how the mock answers. The zero value accepts everything.
type Behavior struct {
	// APIKey, when set, is the only key accepted (401 otherwise).
	APIKey string
	// HangFirst requests never get an answer until the client gives up.
	HangFirst int
	// FailFirst requests after the hanging ones get a 500.
	FailFirst int
	// RejectDuplicates answers 409 to a second upload of the same source map
	// unless overwrite=true.
	RejectDuplicates bool
}

// Part is a file part as received.
type Part struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Received is one accepted upload.
type Received struct {
	ID     string
	Fields map[string]string
	Files  map[string]Part
}

type Handler struct {
	behavior Behavior

	mu       sync.Mutex
	requests int
	uploads  []Received
	seen     map[string]bool
}

func NewHandler(b Behavior) *Handler {
	return &Handler{behavior: b, seen: make(map[string]bool)}
}

func RegisterHandlers(mux *http.ServeMux, h *Handler) {
	mux.Handle("/sourcemap", h)
	mux.HandleFunc("/uploads", h.listUploads)
}

// Requests is the number of requests that reached the handler.
func (h *Handler) Requests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests
}

// Uploads returns the accepted uploads in arrival order.
func (h *Handler) Uploads() []Received {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Received(nil), h.uploads...)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.reply(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.mu.Lock()
	h.requests++
	n := h.requests
	h.mu.Unlock()

	if n <= h.behavior.HangFirst {
		logx.Debug("Ingest", "request %d: hanging", n)
		<-r.Context().Done()
		return
	}
	if n <= h.behavior.HangFirst+h.behavior.FailFirst {
		h.reply(w, http.StatusInternalServerError, "server error")
		return
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		h.reply(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	rec := received(r)

	apiKey := rec.Fields["apiKey"]
	if apiKey == "" {
		h.reply(w, http.StatusBadRequest, "missing apiKey")
		return
	}
	if h.behavior.APIKey != "" && apiKey != h.behavior.APIKey {
		h.reply(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	sm, ok := rec.Files["sourceMap"]
	if !ok {
		h.reply(w, http.StatusBadRequest, "missing sourceMap")
		return
	}
	if len(sm.Data) == 0 {
		h.reply(w, http.StatusUnprocessableEntity, "empty file")
		return
	}

	key := apiKey + "|" + rec.Fields["appVersion"] + "|" + sm.Filename
	overwrite, _ := strconv.ParseBool(rec.Fields["overwrite"])

	h.mu.Lock()
	dup := h.behavior.RejectDuplicates && h.seen[key] && !overwrite
	if !dup {
		h.seen[key] = true
		h.uploads = append(h.uploads, rec)
	}
	h.mu.Unlock()

	if dup {
		h.reply(w, http.StatusConflict, "duplicate")
		return
	}
	logx.Info("Ingest", "accepted %s (upload %s)", sm.Filename, rec.ID)
	h.reply(w, http.StatusOK, "OK")
}

func (h *Handler) reply(w http.ResponseWriter, status int, body string) {
	metrics.IngestRequests.Inc(map[string]string{"status": strconv.Itoa(status)})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func received(r *http.Request) Received {
	rec := Received{
		ID:     r.Header.Get("X-Upload-Id"),
		Fields: make(map[string]string),
		Files:  make(map[string]Part),
	}
	for name, vs := range r.MultipartForm.Value {
		if len(vs) > 0 {
			rec.Fields[name] = vs[0]
		}
	}
	for name, fhs := range r.MultipartForm.File {
		if len(fhs) == 0 {
			continue
		}
		fh := fhs[0]
		p := Part{Filename: fh.Filename, ContentType: fh.Header.Get("Content-Type")}
		// FileHeader.Filename is trimmed to its base name; keep the path as sent.
		if _, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
			p.Filename = params["filename"]
		}
		if f, err := fh.Open(); err == nil {
			p.Data, _ = io.ReadAll(f)
			f.Close()
		}
		rec.Files[name] = p
	}
	return rec
}

func (h *Handler) listUploads(w http.ResponseWriter, r *http.Request) {
	type item struct {
		ID        string            `json:"id"`
		Fields    map[string]string `json:"fields"`
		SourceMap string            `json:"sourceMap"`
	}
	var out []item
	for _, u := range h.Uploads() {
		out = append(out, item{ID: u.ID, Fields: u.Fields, SourceMap: u.Files["sourceMap"].Filename})
	}
	writeJSON(w, out)
}
