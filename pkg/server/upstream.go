package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"scraper-gateway/pkg/apperr"
)

type gmgnCall func(ctx context.Context, chain, address string) (json.RawMessage, error)

// gmgnRoute serves the gmgn endpoints that take a chain and one address.
func (s *Server) gmgnRoute(pick func(Gmgn) gmgnCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Gmgn == nil {
			s.writeError(w, r, missing("gmgn client"))
			return
		}
		data, err := pick(s.deps.Gmgn)(r.Context(), r.PathValue("chain"), r.PathValue("address"))
		s.writeRaw(w, r, data, err)
	}
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gmgn == nil {
		s.writeError(w, r, missing("gmgn client"))
		return
	}
	data, err := s.deps.Gmgn.TrendingTokens(r.Context(), r.PathValue("chain"), r.URL.Query().Get("timeframe"))
	s.writeRaw(w, r, data, err)
}

func (s *Server) handleEVMSecurity(w http.ResponseWriter, r *http.Request) {
	if s.deps.GoPlus == nil {
		s.writeError(w, r, missing("goplus client"))
		return
	}
	chainID, token := r.PathValue("chainID"), r.PathValue("token")
	if err := validChainID(chainID); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.deps.GoPlus.EVMTokenSecurity(r.Context(), chainID, token)
	s.writeResult(w, r, result, err, "No security information found for token %s on chain %s", token, chainID)
}

func (s *Server) handleSolanaSecurity(w http.ResponseWriter, r *http.Request) {
	if s.deps.GoPlus == nil {
		s.writeError(w, r, missing("goplus client"))
		return
	}
	token := r.PathValue("token")
	result, err := s.deps.GoPlus.SolanaTokenSecurity(r.Context(), token)
	s.writeResult(w, r, result, err, "No security information found for Solana token %s", token)
}

// handleAddressSecurity answers the mapping as-is, even when empty.
func (s *Server) handleAddressSecurity(w http.ResponseWriter, r *http.Request) {
	if s.deps.GoPlus == nil {
		s.writeError(w, r, missing("goplus client"))
		return
	}
	result, err := s.deps.GoPlus.AddressSecurity(r.Context(), r.PathValue("address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRugpull(w http.ResponseWriter, r *http.Request) {
	if s.deps.GoPlus == nil {
		s.writeError(w, r, missing("goplus client"))
		return
	}
	chainID, token := r.PathValue("chainID"), r.PathValue("token")
	if err := validChainID(chainID); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.deps.GoPlus.RugpullDetection(r.Context(), chainID, token)
	s.writeResult(w, r, result, err, "No rugpull information found for token %s on chain %s", token, chainID)
}

func (s *Server) handleRugCheckReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.RugCheck == nil {
		s.writeError(w, r, missing("rugcheck client"))
		return
	}
	data, err := s.deps.RugCheck.TokenReport(r.Context(), r.PathValue("token"))
	s.writeRaw(w, r, data, err)
}

func (s *Server) writeRaw(w http.ResponseWriter, r *http.Request, data json.RawMessage, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// writeResult turns an empty goplus mapping into a 404.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result map[string]any, err error, notFound string, args ...any) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(result) == 0 {
		s.writeError(w, r, &apperr.NotFoundError{Message: fmt.Sprintf(notFound, args...)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func validChainID(chainID string) error {
	if _, err := strconv.Atoi(chainID); err != nil {
		return apperr.Validation("chain_id", "must be an integer, got %q", chainID)
	}
	return nil
}
