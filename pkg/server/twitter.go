package server

import (
	"context"
	"net/http"

	"scraper-gateway/pkg/twitter"
)

type twitterList func(ctx context.Context, username string, pages int) ([]map[string]any, error)

type twitterParams struct {
	Username string `json:"username"`
	Query    string `json:"query"`
	Pages    *int   `json:"pages"`
}

func (p twitterParams) pages() int {
	if p.Pages == nil {
		return 1
	}
	return *p.Pages
}

func (s *Server) handleTwitterUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.Twitter == nil {
		s.writeError(w, r, missing("twitter scraper"))
		return
	}
	user, err := s.deps.Twitter.UserInfo(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": user})
}

func (s *Server) twitterListRoute(pick func(Twitter) twitterList) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Twitter == nil {
			s.writeError(w, r, missing("twitter scraper"))
			return
		}
		var params twitterParams
		if err := decodeBody(r, &params); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := twitter.ValidatePages(params.pages()); err != nil {
			s.writeError(w, r, err)
			return
		}
		records, err := pick(s.deps.Twitter)(r.Context(), params.Username, params.pages())
		s.writeRecords(w, r, records, err)
	}
}

func (s *Server) handleTwitterSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Twitter == nil {
		s.writeError(w, r, missing("twitter scraper"))
		return
	}
	var params twitterParams
	if err := decodeBody(r, &params); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := twitter.ValidatePages(params.pages()); err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.deps.Twitter.Search(r.Context(), params.Query, params.pages())
	s.writeRecords(w, r, records, err)
}

func (s *Server) writeRecords(w http.ResponseWriter, r *http.Request, records []map[string]any, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   records,
		"count":  len(records),
	})
}
