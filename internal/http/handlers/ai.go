package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hongminglow/cdms-be/internal/analytics"
	"github.com/hongminglow/cdms-be/internal/http/respond"
	"github.com/hongminglow/cdms-be/internal/llm"
	"github.com/hongminglow/cdms-be/internal/models/dto"
	"github.com/hongminglow/cdms-be/internal/validation"
)

const (
	msgAIOff          = "AI service not configured"
	siteContextSample = 50
)

// AIHandler answers natural-language questions and drafts reports.
type AIHandler struct {
	llm      llm.Completer
	gateway  *analytics.Gateway
	validate *validation.Validator
	logger   *slog.Logger
}

// NewAIHandler builds the handler. A nil completer answers 503; a nil gateway
// only drops the site context from prompts.
func NewAIHandler(completer llm.Completer, gateway *analytics.Gateway, v *validation.Validator, logger *slog.Logger) *AIHandler {
	return &AIHandler{llm: completer, gateway: gateway, validate: v, logger: logger}
}

// Register attaches the protected AI routes.
func (h *AIHandler) Register(mux *http.ServeMux, protect Middleware) {
	mux.Handle("POST /api/ai/query", protect(http.HandlerFunc(h.handleQuery)))
	mux.Handle("POST /api/ai/generate-report", protect(http.HandlerFunc(h.handleReport)))
	mux.Handle("POST /api/ai/recommend-actions", protect(http.HandlerFunc(h.handleRecommend)))
}

func (h *AIHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		respond.Error(w, http.StatusServiceUnavailable, msgAIOff)
		return
	}
	var req dto.AIQueryRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	siteCount := -1
	if h.gateway != nil {
		sites, err := h.gateway.Sample(r.Context(), analytics.TableSiteSummary, siteContextSample)
		if err != nil {
			h.logger.Warn("site context unavailable for query", "error", err)
		} else {
			siteCount = len(sites)
		}
	}

	answer, ok := h.complete(w, r, llm.QuerySystem(siteCount), req.Query)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, "ok", map[string]string{"response": answer})
}

func (h *AIHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		respond.Error(w, http.StatusServiceUnavailable, msgAIOff)
		return
	}
	var req dto.AIReportRequest
	if !decode(w, r, h.validate, &req) {
		return
	}
	siteID := ""
	if req.SiteID != nil {
		siteID = strings.TrimSpace(*req.SiteID)
	}

	report, ok := h.complete(w, r, llm.AnalystSystem, llm.ReportPrompt(req.ReportType, siteID, req.Context))
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, "ok", map[string]string{"report": report, "report_type": req.ReportType})
}

func (h *AIHandler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		respond.Error(w, http.StatusServiceUnavailable, msgAIOff)
		return
	}
	siteID := strings.TrimSpace(r.URL.Query().Get("site_id"))

	recs, ok := h.complete(w, r, llm.AdvisorSystem, llm.RecommendationPrompt(siteID))
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, "ok", map[string]string{"recommendations": recs})
}

func (h *AIHandler) complete(w http.ResponseWriter, r *http.Request, system, prompt string) (string, bool) {
	out, err := h.llm.Complete(r.Context(), system, prompt)
	if err != nil {
		h.logger.Error("llm completion failed", "user_id", caller(r).ID, "error", err)
		respond.Error(w, http.StatusBadGateway, "AI service request failed")
		return "", false
	}
	return out, true
}
