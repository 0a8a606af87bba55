package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-steel/registry-cli/internal/model"
	"github.com/meridian-steel/registry-cli/internal/registry"
	"github.com/meridian-steel/registry-cli/internal/store"
)

// Service is the subset of the registry service the handlers call.
type Service interface {
	Register(ctx context.Context, in registry.RegisterInput) (*registry.RegisterOutcome, error)
	SubmitAccessRequest(ctx context.Context, in registry.AccessRequestInput) (*model.AccessRequest, error)
	ApproveAccessRequest(ctx context.Context, requestID, decidedBy string) error
	DenyAccessRequest(ctx context.Context, requestID, decidedBy string) error
	ApproveCompany(ctx context.Context, companyID string) error
	RejectCompany(ctx context.Context, companyID string) error
	MatchName(ctx context.Context, name string) []model.MatchCandidate
	MatchABN(ctx context.Context, raw string) *model.Company
	Stats(ctx context.Context) (*model.RegistryStats, error)

	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]model.Company, error)
	ListAccessRequests(ctx context.Context, filter store.RequestFilter) ([]model.AccessRequest, error)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registry.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.svc.Register(r.Context(), in)
	if err != nil {
		if eris.Is(err, registry.ErrInvalidABN) {
			writeError(w, http.StatusBadRequest, "abn failed checksum validation")
			return
		}
		if eris.Is(err, store.ErrDuplicateABN) {
			writeError(w, http.StatusConflict, "abn already registered")
			return
		}
		writeServiceError(w, err, "register company")
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := s.svc.GetCompany(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "get company")
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	filter := store.CompanyFilter{
		Status:  model.CompanyStatus(r.URL.Query().Get("status")),
		Country: r.URL.Query().Get("country"),
		Limit:   queryInt(r, "limit"),
		Offset:  queryInt(r, "offset"),
	}
	if filter.Status != "" && !model.ValidCompanyStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	companies, err := s.svc.ListCompanies(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err, "list companies")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (s *Server) handleApproveCompany(w http.ResponseWriter, r *http.Request) {
	s.decideCompany(w, r, s.svc.ApproveCompany)
}

func (s *Server) handleRejectCompany(w http.ResponseWriter, r *http.Request) {
	s.decideCompany(w, r, s.svc.RejectCompany)
}

func (s *Server) decideCompany(w http.ResponseWriter, r *http.Request, decide func(context.Context, string) error) {
	id := chi.URLParam(r, "id")
	if err := decide(r.Context(), id); err != nil {
		if eris.Is(err, registry.ErrNotPending) {
			writeError(w, http.StatusConflict, "company already reviewed")
			return
		}
		writeServiceError(w, err, "review company")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleMatchName(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	candidates := s.svc.MatchName(r.Context(), in.Name)
	if candidates == nil {
		candidates = []model.MatchCandidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": candidates})
}

func (s *Server) handleMatchABN(w http.ResponseWriter, r *http.Request) {
	company := s.svc.MatchABN(r.Context(), chi.URLParam(r, "abn"))
	writeJSON(w, http.StatusOK, map[string]any{"match": company})
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var in registry.AccessRequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := s.svc.SubmitAccessRequest(r.Context(), in)
	if err != nil {
		switch {
		case eris.Is(err, registry.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "message is required")
		case eris.Is(err, registry.ErrNoTargetCompany):
			writeError(w, http.StatusBadRequest, "target company is required")
		case eris.Is(err, store.ErrDuplicateRequest):
			writeError(w, http.StatusConflict, "access request already pending")
		default:
			writeServiceError(w, err, "submit access request")
		}
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	filter := store.RequestFilter{
		Status:    model.RequestStatus(r.URL.Query().Get("status")),
		CompanyID: r.URL.Query().Get("company_id"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}

	requests, err := s.svc.ListAccessRequests(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err, "list access requests")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (s *Server) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	s.decideRequest(w, r, s.svc.ApproveAccessRequest)
}

func (s *Server) handleDenyRequest(w http.ResponseWriter, r *http.Request) {
	s.decideRequest(w, r, s.svc.DenyAccessRequest)
}

func (s *Server) decideRequest(w http.ResponseWriter, r *http.Request, decide func(context.Context, string, string) error) {
	var in struct {
		DecidedBy string `json:"decided_by"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}

	id := chi.URLParam(r, "id")
	if err := decide(r.Context(), id, in.DecidedBy); err != nil {
		if eris.Is(err, registry.ErrNotPending) {
			writeError(w, http.StatusConflict, "request already decided")
			return
		}
		writeServiceError(w, err, "decide access request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err, "stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps not-found to 404, everything else to a logged
// 500. Validation errors from the service arrive wrapped; they come
// back as 400.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if isValidationError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zap.L().Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
