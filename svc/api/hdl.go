package api

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io"
	"math"
	"mime"
	"net/http"

	"burnbin/cfg"
	"burnbin/metrics"
	"burnbin/pkg/domain"
	"burnbin/svc/svc"
	"burnbin/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}

// createReq keeps every field raw so type mismatches surface as the
// per-field validation message rather than a decode failure.
type createReq struct {
	Content    json.RawMessage `json:"content"`
	TTLSeconds json.RawMessage `json:"ttl_seconds"`
	MaxViews   json.RawMessage `json:"max_views"`
}
type CreateResp struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

var pageTmpl = template.Must(template.New("paste").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Paste</title>
  </head>
  <body>
    <pre>{{.}}</pre>
  </body>
</html>
`))

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			log.Warn().
				Str("content_type", contentType).
				Str("request_id", requestID).
				Msg("invalid Content-Type header")
			writeErr(w, domain.ErrUnsupportedMedia, requestID)
			return
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPasteSize*2+1024)
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request")
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeErr(w, domain.ErrPasteTooLarge, requestID)
			return
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	params := domain.CreateParams{
		Content:    rawString(req.Content),
		TTLSeconds: rawInt(req.TTLSeconds),
		MaxViews:   rawInt(req.MaxViews),
	}
	paste, err := h.paste.Create(r.Context(), params)
	if err != nil {
		if domain.IsValidation(err) {
			log.Warn().Err(err).Str("request_id", requestID).Msg("create rejected")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("paste_id", paste.ID).
		Bool("expires", paste.ExpiresAt != nil).
		Bool("view_limited", paste.MaxViews != nil).
		Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{
		ID:  paste.ID,
		URL: h.baseURL(r) + "/p/" + paste.ID,
	})
}

// GetPaste returns the data form. Every denial is reported as the same
// not-found body.
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	view, err := h.paste.Get(r.Context(), id)
	if err != nil {
		if domain.IsNotFound(err) {
			hlog.FromRequest(r).Debug().Err(err).Str("paste_id", id).Msg("paste denied")
			writeErr(w, domain.ErrPasteNotFound, requestID)
			return
		}
		writeErr(w, err, requestID)
		return
	}
	metrics.PasteRetrieved.WithLabelValues("json").Inc()
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(view)
}

// ViewPaste renders the content as an escaped HTML page.
func (h *Hdl) ViewPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	id := chi.URLParam(r, "id")
	view, err := h.paste.Get(r.Context(), id)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if domain.IsNotFound(err) {
			log.Debug().Err(err).Str("paste_id", id).Msg("paste denied")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, domain.ErrPasteNotFound.Msg)
			return
		}
		log.Error().Err(err).Str("request_id", util.GetRequestID(r.Context())).Msg("view failed")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "internal server error")
		return
	}
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, view.Content); err != nil {
		log.Error().Err(err).Msg("render failed")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "internal server error")
		return
	}
	metrics.PasteRetrieved.WithLabelValues("html").Inc()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Hdl) baseURL(r *http.Request) string {
	if h.cfg.PublicURL != "" {
		return h.cfg.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// rawString yields the JSON string value, or "" for anything else so the
// content check rejects it.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// maxWholeNumber is the largest integer a float64 holds exactly. Anything
// above it has lost precision before it reaches us.
const maxWholeNumber = 1<<53 - 1

// rawInt returns nil when the field was absent. Present values that are not
// whole numbers within +/-maxWholeNumber come back as 0, which fails the
// >= 1 check.
func rawInt(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	n := 0
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return &n
	}
	num, ok := v.(json.Number)
	if !ok {
		return &n
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxWholeNumber {
		return &n
	}
	n = int(int64(f))
	return &n
}
