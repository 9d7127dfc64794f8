package controller

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mxfleet/internal/discovery"
)

const shutdownTimeout = 10 * time.Second

// Server wires the chi router onto State and runs the HTTP/HTTPS
// listeners side by side, following the teacher's chi-based
// setupRouter/Run/Shutdown shape.
type Server struct {
	state *State
	router *chi.Mux

	httpServer  *http.Server
	httpsServer *http.Server
}

// NewServer builds the router; Run creates the listeners that serve it.
func NewServer(state *State) *Server {
	s := &Server{state: state}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.state.handleWebSocket)
	r.Head("/ws", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	if s.state.Config.StaticPath != "" {
		fs := http.FileServer(http.Dir(s.state.Config.StaticPath))
		r.Handle("/static/*", http.StripPrefix("/static/", fs))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(requireAPIKey(s.state.APIKeyHash))

		r.Get("/list", s.state.handleList)
		r.Get("/list-info", s.state.handleListInfo)
		r.Get("/info", s.state.handleInfo)
		r.Get("/all-tasks", s.state.handleAllTasks)
		r.Get("/result", s.state.handleResult)

		r.Route("/task", func(r chi.Router) {
			r.Post("/exec", s.state.handleTaskExec)
			r.Post("/file", s.state.handleTaskFile)
			r.Post("/script", s.state.handleTaskScript)
		})

		r.Get("/discovery", s.state.handleDiscoveryGet)
		r.Post("/discovery", s.state.handleDiscoveryPost)

		r.Route("/relative-url", func(r chi.Router) {
			r.Get("/by-host", s.state.handleRelativeURLByHost)
			r.Get("/by-host-ip", s.state.handleRelativeURLByHostIP)
			r.Get("/by-ip", s.state.handleRelativeURLByIP)
			r.Get("/remote-ip-by-host-ip", s.state.handleRelativeURLRemoteIPByHostIP)
		})
	})

	return r
}

// Run starts each enabled listener (HTTP when --http, HTTPS when
// --https) and blocks until ctx is canceled or either listener exits.
func (s *Server) Run(ctx context.Context) error {
	if s.state.Config.DetectOthers {
		s.detectOtherControllers(ctx)
	}

	if s.state.Config.DisableDiscovery {
		s.state.Log.Info().Msg("discovery service disabled by configuration")
	} else if err := s.state.Discovery.Start(); err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}

	errCh := make(chan error, 2)
	active := 0

	if s.state.Config.EnableHTTP {
		s.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", s.state.Config.HTTPPort), Handler: s.router}
		active++
		go func() {
			s.state.Log.Info().Int("port", s.state.Config.HTTPPort).Msg("http server started")
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	if s.state.Config.EnableHTTPS {
		cert, err := tls.LoadX509KeyPair(s.state.Config.TLSCertPath, s.state.Config.TLSKeyPath)
		if err != nil {
			return fmt.Errorf("load tls keypair: %w", err)
		}
		s.httpsServer = &http.Server{
			Addr:      fmt.Sprintf(":%d", s.state.Config.HTTPSPort),
			Handler:   s.router,
			TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		}
		active++
		go func() {
			s.state.Log.Info().Int("port", s.state.Config.HTTPSPort).Msg("https server started")
			if err := s.httpsServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("https server: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	if active == 0 {
		return fmt.Errorf("no listener enabled: pass --http or --https")
	}

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown()
			return err
		}
		return s.Shutdown()
	}
}

// detectOtherControllers runs agent-style discovery for at most
// 2*CycleTimeout (up to two broadcast cycles) before binding this
// controller's own responder, warning if another
// controller already answers on the LAN (spec §12, --detect-others).
func (s *Server) detectOtherControllers(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, discovery.CycleTimeout*2)
	defer cancel()

	found, err := discovery.Discover(probeCtx, s.state.Log)
	if err != nil {
		s.state.Log.Debug().Err(err).Msg("detect-others: no other controller found")
		return
	}
	s.state.Log.Warn().Strs("controllers", found).Msg("detect-others: another controller already answers on this network")
}

// Shutdown gracefully stops every running listener and the discovery
// responder.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.httpsServer != nil {
		if err := s.httpsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.state.Discovery.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
