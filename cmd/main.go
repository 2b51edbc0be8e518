package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scraper-gateway/pkg/apis/gmgn"
	"scraper-gateway/pkg/apis/goplus"
	"scraper-gateway/pkg/apis/rugcheck"
	"scraper-gateway/pkg/cache"
	"scraper-gateway/pkg/config"
	"scraper-gateway/pkg/database"
	"scraper-gateway/pkg/fetch"
	"scraper-gateway/pkg/gateway"
	"scraper-gateway/pkg/ipinfo"
	"scraper-gateway/pkg/logger"
	"scraper-gateway/pkg/proxy"
	"scraper-gateway/pkg/server"
	"scraper-gateway/pkg/twitter"
)

var (
	configPath string
	debugFlag  bool
	cfg        *config.Config
	log        *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scraper-gateway",
	Short: "HTTP gateway for proxied scraping and token analytics APIs",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		level := cfg.Log.Level
		if debugFlag {
			level = "debug"
		}
		log = logger.New(logger.Options{
			Level:     level,
			Format:    cfg.Log.Format,
			AddSource: cfg.Log.AddSource,
		})
		slog.SetDefault(log)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var recorder gateway.Recorder
		var requests server.RequestLogs
		if cfg.Database.DSN != "" {
			db, err := database.NewDB(ctx, cfg.Database.DSN)
			if err != nil {
				log.Error("Error initializing database", "error", err)
				os.Exit(1)
			}
			defer db.Close()
			if err := db.InitSchema(ctx); err != nil {
				log.Error("Error initializing database schema", "error", err)
				os.Exit(1)
			}
			recorder, requests = db, db
		} else {
			log.Info("database dsn not set, request audit disabled")
		}

		gw, err := newGateway(recorder)
		if err != nil {
			log.Error("Error creating proxy gateway", "error", err)
			os.Exit(1)
		}

		up := cfg.Upstream
		getter := cache.Wrap(gw, up.CacheSize, up.CacheTTL(), log)

		deps := server.Deps{
			Proxy:    gw,
			IPInfo:   ipinfo.New(gw, up.IPInfoBaseURL, up.IPInfoToken),
			Gmgn:     gmgn.New(getter, up.GmgnBaseURL, log),
			GoPlus:   goplus.New(getter, up.GoPlusBaseURL, log),
			RugCheck: rugcheck.New(getter, up.RugCheckBaseURL, log),
			Requests: requests,
		}

		tw := cfg.Twitter
		var sessions twitter.Sessions
		if tw.SessionDB != "" {
			store, err := twitter.OpenSessionStore(tw.SessionDB)
			if err != nil {
				log.Warn("twitter session store unavailable, sessions will not persist", "path", tw.SessionDB, "error", err)
			} else {
				defer store.Close()
				sessions = store
			}
		}
		backend := twitter.NewGraphQLBackend(gw, twitter.GraphQLConfig{
			GraphQLURL: tw.GraphQLURL,
			APIURL:     tw.APIURL,
		}, log)
		scraper := twitter.NewScraper(backend, sessions, twitter.ScraperConfig{
			SessionName: tw.SessionName,
			Credentials: twitter.Credentials{
				Username:  tw.Username,
				Password:  tw.Password,
				AuthToken: tw.AuthToken,
				CT0:       tw.CT0,
			},
		}, log)
		if err := scraper.Open(ctx); err != nil {
			log.Warn("twitter session not ready, will retry on first request", "error", err)
		}
		deps.Twitter = scraper

		srv := server.New(deps, log)
		if err := srv.Run(ctx, cfg.Server.Addr(), cfg.Server.ReadHeaderTimeout); err != nil {
			log.Error("server stopped with error", "error", err)
			os.Exit(1)
		}
	},
}

var proxyURLCmd = &cobra.Command{
	Use:     "proxy-url",
	Short:   "Print the proxy URL built for a set of options",
	Example: "proxy-url --country GB --session rotating --gateway singapore",
	Run: func(cmd *cobra.Command, args []string) {
		provider, err := proxy.NewProvider(cfg.Proxy.ProviderConfig(), log)
		if err != nil {
			log.Error("Error creating proxy provider", "error", err)
			os.Exit(1)
		}

		opts, err := optionsFromFlags(cmd)
		if err != nil {
			log.Error("Invalid proxy options", "error", err)
			os.Exit(1)
		}

		proxyURL, err := provider.BuildURL(opts)
		if err != nil {
			log.Error("Error building proxy URL", "error", err)
			os.Exit(1)
		}
		if proxyURL == "" {
			fmt.Println("direct")
			return
		}

		if show, _ := cmd.Flags().GetBool("show-password"); !show {
			if u, err := url.Parse(proxyURL); err == nil {
				proxyURL = u.Redacted()
			}
		}
		fmt.Println(proxyURL)
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Perform one request through the proxy gateway",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		method, _ := cmd.Flags().GetString("method")
		lines, _ := cmd.Flags().GetStringArray("header")
		data, _ := cmd.Flags().GetString("data")
		browser, _ := cmd.Flags().GetString("browser")

		header, err := fetch.ParseHeaderLines(lines)
		if err != nil {
			log.Error("Invalid header", "error", err)
			os.Exit(1)
		}

		opts, err := optionsFromFlags(cmd)
		if err != nil {
			log.Error("Invalid proxy options", "error", err)
			os.Exit(1)
		}

		gw, err := newGateway(nil)
		if err != nil {
			log.Error("Error creating proxy gateway", "error", err)
			os.Exit(1)
		}

		var body []byte
		if data != "" {
			body = []byte(data)
		}
		res, err := gw.Do(cmd.Context(), strings.ToUpper(method), args[0], body, gateway.CallOptions{
			Header:  header,
			Options: &opts,
			Browser: browser,
		})
		if err != nil {
			log.Error("Request failed", "error", err)
			os.Exit(1)
		}

		fmt.Printf("HTTP %d\n", res.StatusCode)
		os.Stdout.Write(res.Body)
		fmt.Println()
	},
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the request audit database",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the audit schema",
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.Database.DSN == "" {
			log.Error("database dsn is not configured")
			os.Exit(1)
		}
		db, err := database.NewDB(cmd.Context(), cfg.Database.DSN)
		if err != nil {
			log.Error("Error connecting to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(cmd.Context()); err != nil {
			log.Error("Error initializing database schema", "error", err)
			os.Exit(1)
		}
		log.Info("Database schema initialized")
	},
}

func newGateway(recorder gateway.Recorder) (*gateway.Gateway, error) {
	provider, err := proxy.NewProvider(cfg.Proxy.ProviderConfig(), log)
	if err != nil {
		return nil, err
	}
	defaults, err := cfg.Proxy.Defaults.Options()
	if err != nil {
		return nil, err
	}
	return gateway.New(gateway.Config{
		Provider:       provider,
		DefaultOptions: &defaults,
		Browser:        cfg.Proxy.Browser,
		DialAddress:    cfg.Proxy.DialAddress,
		Timeout:        cfg.Proxy.Timeout(),
		Recorder:       recorder,
	}, log)
}

// optionsFromFlags overlays the option flags on the configured defaults.
func optionsFromFlags(cmd *cobra.Command) (proxy.Options, error) {
	if random, _ := cmd.Flags().GetBool("random"); random {
		return proxy.RandomOptions(), nil
	}

	oc := cfg.Proxy.Defaults
	flags := cmd.Flags()
	if flags.Changed("country") {
		oc.Country, _ = flags.GetString("country")
	}
	if flags.Changed("type") {
		oc.IPSourceType, _ = flags.GetString("type")
	}
	if flags.Changed("session") {
		oc.SessionType, _ = flags.GetString("session")
	}
	if flags.Changed("lifetime") {
		oc.Lifetime, _ = flags.GetInt("lifetime")
		// An explicit 0 must fail validation instead of meaning "unset".
		if oc.Lifetime == 0 {
			oc.Lifetime = -1
		}
	}
	if flags.Changed("gateway") {
		oc.Gateway, _ = flags.GetString("gateway")
	}
	if flags.Changed("protocol") {
		oc.Protocol, _ = flags.GetString("protocol")
	}
	return oc.Options()
}

func addOptionFlags(cmd *cobra.Command) {
	cmd.Flags().String("country", "", "Two-letter uppercase country code")
	cmd.Flags().String("type", "", "IP source type: residential, mobile or datacenter")
	cmd.Flags().String("session", "", "Session type: sticky or rotating")
	cmd.Flags().Int("lifetime", 0, "Sticky session lifetime in minutes")
	cmd.Flags().String("gateway", "", "Gateway: france, united_states or singapore")
	cmd.Flags().String("protocol", "", "Proxy protocol: http or socks5")
	cmd.Flags().Bool("random", false, "Pick random proxy options")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")

	addOptionFlags(proxyURLCmd)
	proxyURLCmd.Flags().Bool("show-password", false, "Print the proxy password in clear")

	addOptionFlags(fetchCmd)
	fetchCmd.Flags().StringP("method", "X", "GET", "HTTP method")
	fetchCmd.Flags().StringArrayP("header", "H", nil, "Extra header as 'Name: value' (repeatable)")
	fetchCmd.Flags().String("data", "", "Request body")
	fetchCmd.Flags().String("browser", "", "Browser profile: "+strings.Join(gateway.BrowserNames(), ", "))

	dbCmd.AddCommand(dbInitCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(proxyURLCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(dbCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
