package marketdata

import (
	"net/http"

	"github.com/aristath/carteira/internal/httputil"
	"github.com/aristath/carteira/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler serves the screening endpoints
type Handler struct {
	upside     *UpsideService
	fairValues *FairValueRepository
	log        zerolog.Logger
}

// NewHandler creates a new screening handler
func NewHandler(upside *UpsideService, fairValues *FairValueRepository, log zerolog.Logger) *Handler {
	return &Handler{
		upside:     upside,
		fairValues: fairValues,
		log:        log.With().Str("handler", "screening").Logger(),
	}
}

// RegisterRoutes registers the screening routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/screening", func(r chi.Router) {
		r.Get("/upside", h.HandleUpside)
		r.Post("/fair-values", h.HandleImportFairValues)
	})
}

// HandleUpside handles GET /api/screening/upside?tickers=A,B
func (h *Handler) HandleUpside(w http.ResponseWriter, r *http.Request) {
	tickers := utils.ParseTickers(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		httputil.BadRequest(w, "tickers query parameter is required")
		return
	}

	results, err := h.upside.Screen(r.Context(), tickers)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// HandleImportFairValues handles POST /api/screening/fair-values
func (h *Handler) HandleImportFairValues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FairValues []FairValue `json:"fair_values"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	for _, fv := range req.FairValues {
		if fv.Ticker == "" || fv.Strategy == "" || fv.Value <= 0 {
			httputil.BadRequest(w, "each fair value needs ticker, strategy and a positive fair_value")
			return
		}
	}
	for _, fv := range req.FairValues {
		if err := h.fairValues.Upsert(r.Context(), fv); err != nil {
			httputil.WriteError(w, h.log, err)
			return
		}
	}

	h.log.Info().Int("count", len(req.FairValues)).Msg("Imported fair values")
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"imported": len(req.FairValues)})
}
