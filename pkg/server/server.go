// Package server exposes the proxy gateway, the token-analytics clients and
// the twitter scraper over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"scraper-gateway/pkg/apperr"
	"scraper-gateway/pkg/gateway"
	"scraper-gateway/pkg/ipinfo"
	"scraper-gateway/pkg/models"
	"scraper-gateway/pkg/proxy"
)

const shutdownTimeout = 10 * time.Second

type Proxier interface {
	Do(ctx context.Context, method, rawURL string, body []byte, call gateway.CallOptions) (*gateway.Response, error)
}

type ExitIPResolver interface {
	ExitIP(ctx context.Context, opts *proxy.Options) (ipinfo.IPInfoResponse, error)
}

type Gmgn interface {
	SmartMoneyWallet(ctx context.Context, chain, wallet string) (json.RawMessage, error)
	TopTraders(ctx context.Context, chain, token string) (json.RawMessage, error)
	TokenSecurity(ctx context.Context, chain, token string) (json.RawMessage, error)
	WalletHoldings(ctx context.Context, chain, wallet string) (json.RawMessage, error)
	TrendingTokens(ctx context.Context, chain, timeframe string) (json.RawMessage, error)
	TopBuyers(ctx context.Context, chain, token string) (json.RawMessage, error)
	TopHolders(ctx context.Context, chain, token string) (json.RawMessage, error)
}

type GoPlus interface {
	EVMTokenSecurity(ctx context.Context, chainID, token string) (map[string]any, error)
	SolanaTokenSecurity(ctx context.Context, token string) (map[string]any, error)
	AddressSecurity(ctx context.Context, address string) (map[string]any, error)
	RugpullDetection(ctx context.Context, chainID, token string) (map[string]any, error)
}

type RugCheck interface {
	TokenReport(ctx context.Context, token string) (json.RawMessage, error)
}

type Twitter interface {
	UserInfo(ctx context.Context, username string) (map[string]any, error)
	Followers(ctx context.Context, username string, pages int) ([]map[string]any, error)
	Following(ctx context.Context, username string, pages int) ([]map[string]any, error)
	UserTweets(ctx context.Context, username string, pages int) ([]map[string]any, error)
	Search(ctx context.Context, query string, pages int) ([]map[string]any, error)
}

type RequestLogs interface {
	RecentRequestLogs(ctx context.Context, provider string, limit int) ([]models.RequestLog, error)
}

// Deps are the collaborators behind the routes. A nil dependency makes its
// routes answer 500 with a configuration error.
type Deps struct {
	Proxy    Proxier
	IPInfo   ExitIPResolver
	Gmgn     Gmgn
	GoPlus   GoPlus
	RugCheck RugCheck
	Twitter  Twitter
	Requests RequestLogs
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger.With("component", "server"), mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.mux.HandleFunc("POST /proxy", s.handleProxy)
	s.mux.HandleFunc("GET /proxy/ipinfo", s.handleIPInfo)
	s.mux.HandleFunc("GET /proxy/requests", s.handleRequests)

	s.mux.HandleFunc("GET /gmgn/smart-money/{chain}/{address}", s.gmgnRoute(func(g Gmgn) gmgnCall { return g.SmartMoneyWallet }))
	s.mux.HandleFunc("GET /gmgn/top-traders/{chain}/{address}", s.gmgnRoute(func(g Gmgn) gmgnCall { return g.TopTraders }))
	s.mux.HandleFunc("GET /gmgn/token-security/{chain}/{address}", s.gmgnRoute(func(g Gmgn) gmgnCall { return g.TokenSecurity }))
	s.mux.HandleFunc("GET /gmgn/wallet-holdings/{chain}/{address}", s.gmgnRoute(func(g Gmgn) gmgnCall { return g.WalletHoldings }))
	s.mux.HandleFunc("GET /gmgn/top-buyers/{chain}/{address}", s.gmgnRoute(func(g Gmgn) gmgnCall { return g.TopBuyers }))
	s.mux.HandleFunc("GET /gmgn/top-holders/{chain}/{address}", s.gmgnRoute(func(g Gmgn) gmgnCall { return g.TopHolders }))
	s.mux.HandleFunc("GET /gmgn/trending/{chain}", s.handleTrending)

	s.mux.HandleFunc("GET /goplus/evm/{chainID}/tokens/{token}/security", s.handleEVMSecurity)
	s.mux.HandleFunc("GET /goplus/solana/tokens/{token}/security", s.handleSolanaSecurity)
	s.mux.HandleFunc("GET /goplus/address/{address}/security", s.handleAddressSecurity)
	s.mux.HandleFunc("GET /goplus/rugpull/{chainID}/tokens/{token}", s.handleRugpull)

	s.mux.HandleFunc("GET /rugcheck/tokens/{token}/report", s.handleRugCheckReport)

	s.mux.HandleFunc("GET /twitter/user/{username}", s.handleTwitterUser)
	s.mux.HandleFunc("POST /twitter/followers", s.twitterListRoute(func(t Twitter) twitterList { return t.Followers }))
	s.mux.HandleFunc("POST /twitter/following", s.twitterListRoute(func(t Twitter) twitterList { return t.Following }))
	s.mux.HandleFunc("POST /twitter/tweets", s.twitterListRoute(func(t Twitter) twitterList { return t.UserTweets }))
	s.mux.HandleFunc("POST /twitter/search", s.handleTwitterSearch)
}

// Handler returns the routes wrapped in request-id, recover and access log middleware.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = RecoverPanic(s.logger, h)
	h = AccessLog(s.logger, h)
	h = WithRequestID(h)
	return h
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, readHeaderTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, readHeaderTimeout)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, readHeaderTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api started", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("graceful shutdown failed", "error", err)
			_ = srv.Close()
			return err
		}
		<-errCh
		s.logger.Info("server stopped gracefully")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func missing(what string) error {
	return apperr.Configuration("%s is not configured", what)
}
