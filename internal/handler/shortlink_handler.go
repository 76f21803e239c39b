package handler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"mime"
	"net/http"
	"strings"

	"github.com/hunabku/shorturl/internal/errors"
	"github.com/hunabku/shorturl/internal/logger"
	"github.com/hunabku/shorturl/internal/middleware"
	"github.com/hunabku/shorturl/internal/model"
	"github.com/hunabku/shorturl/internal/service"
	"github.com/hunabku/shorturl/internal/validator"
)

const resolvePrefix = "/shorturl/"

// Pinger reports store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// ShortLinkHandler handles HTTP requests for short link operations
type ShortLinkHandler struct {
	service   *service.ShortLinkService
	validator *validator.URLValidator
	store     Pinger
	apiKey    string
	log       *logger.Logger
}

// NewShortLinkHandler creates a new handler instance
// A nil v uses the default URL rules.
func NewShortLinkHandler(svc *service.ShortLinkService, v *validator.URLValidator, store Pinger, apiKey string, log *logger.Logger) *ShortLinkHandler {
	if v == nil {
		v = validator.NewURLValidator()
	}
	return &ShortLinkHandler{
		service:   svc,
		validator: v,
		store:     store,
		apiKey:    apiKey,
		log:       log,
	}
}

// ============ HANDLERS ============

// HandleCreate creates a new short link
// GET|POST /shorturl_create?url=...&apikey=...[&format=json|csv]
func (h *ShortLinkHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		errors.BadRequest("Use GET or POST method").WriteJSON(w)
		return
	}

	var req model.CreateShortLinkRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errors.BadRequest("Invalid JSON in request body").WriteJSON(w)
			return
		}
	} else {
		req.URL = r.FormValue("url")
	}

	format, err := model.ParseFormat(r.FormValue("format"))
	if err != nil {
		errors.BadRequest(err.Error()).WriteJSON(w)
		return
	}

	// Validate URL before it reaches the allocator
	if appErr := h.validator.ValidateURL(req.URL); appErr != nil {
		appErr.WriteJSON(w)
		return
	}

	resp, err := h.service.CreateShortLink(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}

	h.log.Debug("short link created",
		"request_id", middleware.GetRequestID(r.Context()),
		"code", resp.URLID,
	)

	writeCreated(w, format, resp)
}

// HandleResolve redirects to the target URL
// GET|POST /shorturl/{code}
func (h *ShortLinkHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		errors.BadRequest("Use GET or POST method").WriteJSON(w)
		return
	}

	code := strings.TrimPrefix(r.URL.Path, resolvePrefix)

	target, err := h.service.Resolve(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, r, err, code)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// HandleHealth returns service health status
// GET /health
func (h *ShortLinkHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Error("health check failed", "error", err.Error())
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status": "unhealthy"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}

// ============ ROUTER SETUP ============

// SetupRoutes configures all HTTP routes
func (h *ShortLinkHandler) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/shorturl_create", middleware.APIKey(h.apiKey, h.log)(http.HandlerFunc(h.HandleCreate)))
	mux.HandleFunc(resolvePrefix, h.HandleResolve)
	mux.HandleFunc("/health", h.HandleHealth)

	return mux
}

// ============ HELPERS ============

// writeServiceError maps service errors to AppErrors, keeping each kind
// distinct for the client
func (h *ShortLinkHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, code string) {
	reqID := middleware.GetRequestID(r.Context())

	switch {
	case stderrors.Is(err, service.ErrEmptyURL):
		errors.MissingField("url").WriteJSON(w)
	case stderrors.Is(err, service.ErrInvalidURL):
		errors.InvalidURL("URL must be valid http/https").WriteJSON(w)
	case stderrors.Is(err, service.ErrURLNotFound):
		errors.URLNotFound(code).WriteJSON(w)
	case stderrors.Is(err, service.ErrAllocationExhausted):
		h.log.Error("allocation exhausted", "request_id", reqID, "error", err.Error())
		errors.AllocationExhausted().WriteJSON(w)
	case stderrors.Is(err, service.ErrStoreUnavailable):
		h.log.Error("store unavailable", "request_id", reqID, "error", err.Error())
		errors.StoreUnavailable().WriteJSON(w)
	default:
		h.log.Error("unexpected error", "request_id", reqID, "error", err.Error())
		errors.Internal("").WriteJSON(w)
	}
}

func writeCreated(w http.ResponseWriter, format model.Format, resp *model.CreateShortLinkResponse) {
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)

	switch format {
	case model.FormatCSV:
		cw := csv.NewWriter(w)
		cw.Write([]string{"urlid", "short_url", "url"})
		cw.Write([]string{resp.URLID, resp.ShortURL, resp.URL})
		cw.Flush()
	default:
		json.NewEncoder(w).Encode(resp)
	}
}

func isJSON(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
