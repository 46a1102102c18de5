// Package api exposes the listing feed over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/history"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/listing"
)

// Publisher receives newly published properties (the realtime hub).
type Publisher interface {
	Publish(p listing.Property) int
}

type noopPublisher struct{}

func (noopPublisher) Publish(listing.Property) int { return 0 }

// Handler wires HTTP endpoints to the listing store, seen history and feed assembler.
type Handler struct {
	log *slog.Logger
	cfg Config

	props   listing.Store
	history history.Store
	cursors *feed.CursorCodec

	publisher Publisher
	feedOpts  []feed.Option

	now func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithPublisher sets where newly published properties are announced.
func WithPublisher(p Publisher) HandlerOption {
	return func(h *Handler) {
		if p != nil {
			h.publisher = p
		}
	}
}

// WithFeedOptions passes assembler options (attempts, amplification, metrics...).
func WithFeedOptions(opts ...feed.Option) HandlerOption {
	return func(h *Handler) { h.feedOpts = append(h.feedOpts, opts...) }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) HandlerOption {
	return func(h *Handler) { h.cfg = cfg.withDefaults() }
}

// NewHandler constructs a Handler. A nil codec means unsigned cursors.
func NewHandler(log *slog.Logger, props listing.Store, hist history.Store, cursors *feed.CursorCodec, opts ...HandlerOption) (*Handler, error) {
	if props == nil {
		return nil, errors.New("api: nil listing store")
	}
	if hist == nil {
		return nil, errors.New("api: nil history store")
	}
	if log == nil {
		log = slog.Default()
	}
	if cursors == nil {
		c, err := feed.NewCursorCodec(nil)
		if err != nil {
			return nil, err
		}
		cursors = c
	}

	h := &Handler{
		log:       log,
		cfg:       DefaultConfig(),
		props:     props,
		history:   hist,
		cursors:   cursors,
		publisher: noopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires the v1 routes onto r.
func (h *Handler) Register(r chi.Router) {
	if h == nil || r == nil {
		return
	}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/properties/{propertyID}", h.handleGetProperty)

		r.Group(func(r chi.Router) {
			r.Use(requireConsumer)
			r.Get("/feed", h.handleFeed)
			r.Post("/feed/seen", h.handleMarkSeen)
			r.Post("/properties", h.handleCreateProperty)
		})
	})
}

// Assembler builds the feed assembler for sort (the default sort when zero).
func (h *Handler) Assembler(sort feed.SortConfig) (*feed.Assembler[listing.Property], error) {
	sort, err := listing.NormalizeSort(sort)
	if err != nil {
		return nil, err
	}
	opts := append([]feed.Option{feed.WithTable(listing.TableName), feed.WithLogger(h.log)}, h.feedOpts...)
	return feed.NewAssembler[listing.Property](h.props, sort, opts...)
}

// ---- handlers ----

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	consumerID := consumerFrom(ctx)
	q := r.URL.Query()

	limit := h.cfg.DefaultPageSize
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > feed.MaxPageSize {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and "+strconv.Itoa(feed.MaxPageSize))
			return
		}
		limit = n
	}

	var sort feed.SortConfig
	if raw := strings.TrimSpace(q.Get("sort")); raw != "" {
		sc, err := feed.ParseSortConfig(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_sort", err.Error())
			return
		}
		sort = sc
	}
	asm, err := h.Assembler(sort)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_sort", err.Error())
		return
	}

	cursor, err := h.cursors.Decode(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_cursor", "cursor is invalid; restart from the first page")
		return
	}

	page, err := asm.FetchUnseenPage(ctx, h.history, consumerID, cursor, limit)
	if err != nil {
		h.writeFeedError(w, consumerID, err)
		return
	}

	resp := feedResponse{
		Units:   make([]propertyResponse, 0, len(page.Units)),
		HasMore: page.HasMore,
	}
	for _, p := range page.Units {
		resp.Units = append(resp.Units, toPropertyResponse(p))
	}
	if page.NextCursor != nil {
		tok, err := h.cursors.Encode(page.NextCursor)
		if err != nil {
			h.log.Error("api.feed.cursor_encode.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "failed to encode cursor")
			return
		}
		resp.NextCursor = &tok
	}

	if h.cfg.AutoMarkSeen && len(page.Units) > 0 {
		h.markServed(ctx, consumerID, page.Units)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeFeedError(w http.ResponseWriter, consumerID string, err error) {
	switch {
	case feed.IsInvalidCursor(err):
		writeError(w, http.StatusBadRequest, "invalid_cursor", "cursor is invalid; restart from the first page")
	case errors.Is(err, feed.ErrInvalidPageSize):
		writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
	case errors.Is(err, feed.ErrInvalidSort):
		writeError(w, http.StatusBadRequest, "invalid_sort", err.Error())
	case feed.IsLookupFailed(err):
		h.log.Warn("api.feed.lookup.fail", "consumer_id", consumerID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "lookup_failed", "seen history is unavailable; retry later")
	default:
		h.log.Error("api.feed.fail", "consumer_id", consumerID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to assemble feed")
	}
}

// markServed is best effort: the page has already been assembled.
func (h *Handler) markServed(ctx context.Context, consumerID string, units []listing.Property) {
	ids := make([]string, len(units))
	for i, p := range units {
		ids[i] = p.ID
	}
	if _, err := h.history.MarkSeen(ctx, consumerID, ids, h.now()); err != nil {
		h.log.Warn("api.feed.auto_mark.fail", "consumer_id", consumerID, "err", err)
	}
}

func (h *Handler) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	var req markSeenRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "ids is required")
		return
	}

	consumerID := consumerFrom(r.Context())
	n, err := h.history.MarkSeen(r.Context(), consumerID, req.IDs, h.now())
	if err != nil {
		if errors.Is(err, history.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if errors.Is(err, history.ErrHistoryFull) {
			writeError(w, http.StatusConflict, "history_full", "seen history is at its limit")
			return
		}
		h.log.Error("api.seen.mark.fail", "consumer_id", consumerID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	writeJSON(w, http.StatusOK, markSeenResponse{Marked: n})
}

func (h *Handler) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var req createPropertyRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	p, err := h.props.Create(r.Context(), listing.CreateInput{
		Title:       req.Title,
		City:        req.City,
		MonthlyRent: req.MonthlyRent,
		Bedrooms:    req.Bedrooms,
		Status:      listing.Status(strings.ToLower(strings.TrimSpace(req.Status))),
		CaretakerID: consumerFrom(r.Context()),
		Now:         h.now(),
	})
	if err != nil {
		if errors.Is(err, listing.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.log.Error("api.property.create.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	if p.Status == listing.StatusPublished {
		delivered := h.publisher.Publish(p)
		h.log.Debug("api.property.published", "property_id", p.ID, "delivered", delivered)
	}

	writeJSON(w, http.StatusCreated, toPropertyResponse(p))
}

func (h *Handler) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "propertyID")
	p, err := h.props.Get(r.Context(), id)
	switch {
	case errors.Is(err, listing.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "property not found")
		return
	case errors.Is(err, listing.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		h.log.Error("api.property.get.fail", "property_id", id, "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	// Unpublished properties are only visible to their caretaker.
	if p.Status != listing.StatusPublished {
		caller := strings.TrimSpace(r.Header.Get(ConsumerHeader))
		if caller == "" || caller != p.CaretakerID {
			writeError(w, http.StatusNotFound, "not_found", "property not found")
			return
		}
	}

	writeJSON(w, http.StatusOK, toPropertyResponse(p))
}
