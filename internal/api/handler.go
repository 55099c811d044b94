package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tariffsheriff/tariffd/internal/catalog"
	"github.com/tariffsheriff/tariffd/internal/domain"
	"github.com/tariffsheriff/tariffd/internal/engine"
	"github.com/tariffsheriff/tariffd/internal/repository"
	"github.com/tariffsheriff/tariffd/internal/roo"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	resolver   *engine.Resolver
	comparator *engine.Comparator
	rooEngine  *roo.Engine
	catalog    *catalog.Cached
	version    string
}

// NewHandler creates a new API handler. The cached catalog may be nil when
// the server runs without a cache; invalidation then becomes a no-op.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, resolver *engine.Resolver, comparator *engine.Comparator, rooEngine *roo.Engine, cat *catalog.Cached, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		resolver:   resolver,
		comparator: comparator,
		rooEngine:  rooEngine,
		catalog:    cat,
		version:    version,
	}
}

// ResolveResponse is the response for POST /resolve.
type ResolveResponse struct {
	Result   *domain.ResolutionResult `json:"result"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Resolve handles POST /resolve: one shipment, one rate decision, one duty
// amount. Falling back to the default basis is a 200, not an error.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req domain.ResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.resolver.Resolve(ctx, &req)
	if err != nil {
		h.publishResolutionFailed(ctx, &req, err)
		writeError(w, err)
		return
	}

	h.publishResolutionCompleted(ctx, &req, result)

	resp := ResolveResponse{Result: result}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// CompareRequest is the request body for POST /compare.
type CompareRequest struct {
	domain.ComparisonRequest

	// Async queues the comparison on the event bus instead of running it in
	// the request. The result is published on the comparison topic.
	Async bool `json:"async,omitempty"`
}

// Compare handles POST /compare: the same shipment resolved against several
// candidate origins, ranked by total duty.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Origins) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one origin is required",
		})
		return
	}

	if req.ComparisonID == "" {
		req.ComparisonID = uuid.New().String()
	}

	if req.Async {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus not available",
			})
			return
		}
		payload, _ := json.Marshal(req.ComparisonRequest)
		if err := h.bus.Publish(ctx, domain.TopicComparisonRequested, payload); err != nil {
			slog.Error("failed to queue comparison", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to queue comparison",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"comparisonId": req.ComparisonID,
			"status":       "queued",
		})
		return
	}

	result := h.comparator.Compare(ctx, &req.Request, req.Origins)
	result.ComparisonID = req.ComparisonID

	writeJSON(w, http.StatusOK, result)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreateCalculationRequest is the request body for POST /calculations.
type CreateCalculationRequest struct {
	Name    string                   `json:"name"`
	Notes   string                   `json:"notes,omitempty"`
	Request domain.ResolutionRequest `json:"request"`
}

// CreateCalculation resolves the request and persists the outcome for audit.
func (h *Handler) CreateCalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var req CreateCalculationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.resolver.Resolve(ctx, &req.Request)
	if err != nil {
		h.publishResolutionFailed(ctx, &req.Request, err)
		writeError(w, err)
		return
	}

	calc := &domain.Calculation{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Notes:     req.Notes,
		Request:   req.Request,
		Result:    *result,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.repo.SaveCalculation(ctx, calc); err != nil {
		slog.Error("failed to save calculation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save calculation",
		})
		return
	}

	h.publishResolutionCompleted(ctx, &req.Request, result)

	slog.Info("calculation saved", "id", calc.ID, "name", calc.Name)
	writeJSON(w, http.StatusCreated, calc)
}

// GetCalculation retrieves a saved calculation by ID.
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	calc, err := h.repo.GetCalculation(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, calc)
}

// ListCalculations returns saved calculations, newest first.
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	calcs, err := h.repo.ListCalculations(ctx, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calculations": calcs,
		"count":        len(calcs),
	})
}

// DeleteCalculation removes a saved calculation.
func (h *Handler) DeleteCalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteCalculation(ctx, id); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("calculation deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "calculation deleted",
	})
}

// ListCountries returns all countries.
func (h *Handler) ListCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.repo.ListCountries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"countries": countries,
		"count":     len(countries),
	})
}

// GetCountry retrieves a country by ISO3 code.
func (h *Handler) GetCountry(w http.ResponseWriter, r *http.Request) {
	country, err := h.repo.GetCountry(r.Context(), chi.URLParam(r, "iso3"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, country)
}

// CreateCountry inserts or updates a country.
func (h *Handler) CreateCountry(w http.ResponseWriter, r *http.Request) {
	var country domain.Country
	if err := json.NewDecoder(r.Body).Decode(&country); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if country.ID == "" {
		country.ID = uuid.New().String()
	}

	if err := h.repo.SaveCountry(r.Context(), &country); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("country saved", "iso3", country.ISO3)
	writeJSON(w, http.StatusCreated, country)
}

// ListProducts returns product classifications for a destination country.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	destination := r.URL.Query().Get("destination")
	if destination == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "destination query parameter is required",
		})
		return
	}

	products, err := h.repo.ListProducts(r.Context(), destination)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// CreateProduct inserts or updates a product classification.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var product domain.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if product.ID == "" {
		product.ID = uuid.New().String()
	}

	if err := h.repo.SaveProduct(ctx, &product); err != nil {
		writeError(w, err)
		return
	}

	// A new classification may change the current taxonomy version too.
	h.invalidate(ctx,
		"product:"+product.DestinationISO3+":"+product.HSVersion+":"+product.HSCode,
		"hsversion",
	)

	slog.Info("product saved",
		"id", product.ID,
		"destination", product.DestinationISO3,
		"hs_code", product.HSCode,
	)
	writeJSON(w, http.StatusCreated, product)
}

// ListAgreements returns all trade agreements.
func (h *Handler) ListAgreements(w http.ResponseWriter, r *http.Request) {
	agreements, err := h.repo.ListAgreements(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agreements": agreements,
		"count":      len(agreements),
	})
}

// GetAgreement retrieves an agreement with its member parties.
func (h *Handler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	agreement, err := h.repo.GetAgreement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agreement)
}

// CreateAgreement inserts or updates a trade agreement.
func (h *Handler) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	var agreement domain.Agreement
	if err := json.NewDecoder(r.Body).Decode(&agreement); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if agreement.ID == "" {
		agreement.ID = uuid.New().String()
	}
	if agreement.Status == "" {
		agreement.Status = domain.AgreementSigned
	}

	if err := h.repo.SaveAgreement(r.Context(), &agreement); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("agreement saved", "id", agreement.ID, "name", agreement.Name)
	writeJSON(w, http.StatusCreated, agreement)
}

// CreateRooRule inserts or replaces the rule of origin for one
// (agreement, product) pair. Expressions are compiled before saving so a
// broken rule never reaches the catalog.
func (h *Handler) CreateRooRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule domain.RooRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Method == "" {
		rule.Method = "rvc"
	}

	if rule.Method == "cel" && h.rooEngine != nil {
		if err := h.rooEngine.ValidateRule(&rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid origin rule expression: " + err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveRooRule(ctx, &rule); err != nil {
		writeError(w, err)
		return
	}

	h.invalidate(ctx, "roo:"+rule.AgreementID+":"+rule.ProductID)

	slog.Info("origin rule saved",
		"id", rule.ID,
		"agreement", rule.AgreementID,
		"product", rule.ProductID,
		"method", rule.Method,
	)
	writeJSON(w, http.StatusCreated, rule)
}

// ListTariffRates returns the rate rows for one importer and product.
func (h *Handler) ListTariffRates(w http.ResponseWriter, r *http.Request) {
	importer := r.URL.Query().Get("importer")
	product := r.URL.Query().Get("product")
	if importer == "" || product == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "importer and product query parameters are required",
		})
		return
	}

	rates, err := h.repo.ListTariffRates(r.Context(), importer, product)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rates": rates,
		"count": len(rates),
	})
}

// GetTariffRate retrieves a rate row by ID.
func (h *Handler) GetTariffRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.repo.GetTariffRate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

// CreateTariffRate inserts or updates a tariff rate row.
func (h *Handler) CreateTariffRate(w http.ResponseWriter, r *http.Request) {
	var rate domain.TariffRate
	if err := json.NewDecoder(r.Body).Decode(&rate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if rate.ID == "" {
		rate.ID = uuid.New().String()
	}
	if rate.Basis == "" {
		rate.Basis = domain.BasisDefault
	}
	if rate.RateType == "" {
		rate.RateType = domain.RateTypeAdValorem
	}

	if err := h.repo.SaveTariffRate(r.Context(), &rate); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("tariff rate saved",
		"id", rate.ID,
		"importer", rate.ImporterISO3,
		"product", rate.ProductID,
		"basis", rate.Basis,
	)
	writeJSON(w, http.StatusCreated, rate)
}

// GetSalesTaxRate returns the importer's standard sales-tax rate.
func (h *Handler) GetSalesTaxRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.repo.FetchSalesTaxRate(r.Context(), chi.URLParam(r, "importer"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

// PutSalesTaxRate sets the importer's standard sales-tax rate.
func (h *Handler) PutSalesTaxRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	importer := chi.URLParam(r, "importer")

	var rate domain.SalesTaxRate
	if err := json.NewDecoder(r.Body).Decode(&rate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	rate.ImporterISO3 = importer

	if err := h.repo.SaveSalesTaxRate(ctx, &rate); err != nil {
		writeError(w, err)
		return
	}

	h.invalidate(ctx, "vat:"+importer)

	slog.Info("sales tax rate saved", "importer", importer, "rate", rate.StandardRate)
	writeJSON(w, http.StatusOK, rate)
}

// invalidate drops cached catalog entries after an admin write.
func (h *Handler) invalidate(ctx context.Context, keys ...string) {
	if h.catalog == nil {
		return
	}
	h.catalog.Invalidate(ctx, keys...)
}

type resolutionEvent struct {
	Request *domain.ResolutionRequest `json:"request"`
	Result  *domain.ResolutionResult  `json:"result,omitempty"`
	Error   string                    `json:"error,omitempty"`
	Kind    string                    `json:"kind,omitempty"`
}

func (h *Handler) publishResolutionCompleted(ctx context.Context, req *domain.ResolutionRequest, result *domain.ResolutionResult) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(resolutionEvent{Request: req, Result: result})
	if err := h.bus.Publish(ctx, domain.TopicResolutionCompleted, payload); err != nil {
		slog.Error("failed to publish resolution event", "error", err)
	}
}

func (h *Handler) publishResolutionFailed(ctx context.Context, req *domain.ResolutionRequest, cause error) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(resolutionEvent{
		Request: req,
		Error:   cause.Error(),
		Kind:    engine.KindOf(cause),
	})
	if err := h.bus.Publish(ctx, domain.TopicResolutionFailed, payload); err != nil {
		slog.Error("failed to publish resolution event", "error", err)
	}
}

// writeError maps the resolution error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, repository.ErrInvalidInput):
		kind = engine.KindValidation
		status = http.StatusBadRequest
	case kind == engine.KindValidation:
		status = http.StatusBadRequest
	case kind == engine.KindNotFound:
		status = http.StatusNotFound
	case kind == engine.KindAmbiguousData:
		status = http.StatusConflict
	case kind == engine.KindComputation:
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  kind,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
