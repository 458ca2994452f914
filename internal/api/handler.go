package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bookwell/kestrel/internal/domain"
	"github.com/go-chi/chi/v5"
)

type resolveRequest struct {
	Family  string          `json:"family"`
	Context *domain.Context `json:"context"`
}

type decideRequest struct {
	Family  string          `json:"family"`
	Context *domain.Context `json:"context"`
	Inputs  map[string]any  `json:"inputs,omitempty"`
}

type invalidateRequest struct {
	Family           string `json:"family,omitempty"`
	AllOrganizations bool   `json:"all_organizations,omitempty"`
}

// decodeScoped decodes a request carrying a context and stamps the header
// organization onto it. A body organization that disagrees with the header is
// rejected rather than silently overridden.
func decodeScoped(r *http.Request, family *string, rc **domain.Context, inputs *map[string]any) error {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errors.New("invalid JSON body")
	}
	if req.Family == "" {
		return errors.New("family is required")
	}
	if req.Context == nil {
		req.Context = &domain.Context{}
	}

	orgID := GetOrgID(r.Context())
	if req.Context.OrganizationID != "" && req.Context.OrganizationID != orgID {
		return errors.New("context organization_id does not match " + OrgHeader)
	}
	req.Context.OrganizationID = orgID

	*family = domain.FamilyPrefix(req.Family)
	*rc = req.Context
	if inputs != nil {
		*inputs = req.Inputs
	}
	return nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var family string
	var rc *domain.Context
	if err := decodeScoped(r, &family, &rc, nil); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rules, err := s.resolver.Resolve(r.Context(), rc, family)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"family": family,
		"rules":  rules,
		"count":  len(rules),
	})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var family string
	var rc *domain.Context
	if err := decodeScoped(r, &family, &rc, nil); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := s.resolver.Score(r.Context(), rc, family)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"family":  family,
		"matches": matches,
		"count":   len(matches),
	})
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var family string
	var rc *domain.Context
	var inputs map[string]any
	if err := decodeScoped(r, &family, &rc, &inputs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.decisions.Decide(r.Context(), rc, family, inputs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	orgID := GetOrgID(r.Context())
	if rule.Scope.OrganizationID != "" && rule.Scope.OrganizationID != orgID {
		writeError(w, http.StatusBadRequest, "rule organization_id does not match "+OrgHeader)
		return
	}
	rule.Scope.OrganizationID = orgID

	if rule.FamilyCode == "" {
		writeError(w, http.StatusBadRequest, "family_code is required")
		return
	}

	id, err := s.resolver.UpsertRule(r.Context(), orgID, &rule)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"rule_id": id,
		"version": rule.Metadata.Version,
	})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	family := r.URL.Query().Get("family")
	if family == "" {
		writeError(w, http.StatusBadRequest, "family query parameter is required")
		return
	}
	family = domain.FamilyPrefix(family)

	rules, err := s.store.FetchRules(r.Context(), GetOrgID(r.Context()), family)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"family": family,
		"rules":  rules,
		"count":  len(rules),
	})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	rule, err := s.resolver.GetRule(r.Context(), GetOrgID(r.Context()), ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	orgID := GetOrgID(r.Context())
	family := ""
	if req.Family != "" {
		family = domain.FamilyPrefix(req.Family)
	}
	if req.AllOrganizations {
		orgID = ""
		family = ""
	}

	if err := s.resolver.InvalidateCache(r.Context(), orgID, family); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")

	rec, err := s.store.GetDecisionRecord(r.Context(), GetOrgID(r.Context()), recordID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "decision record not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
