package www

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/angas/spotprice/config"
	"github.com/angas/spotprice/database"
	"github.com/angas/spotprice/hours"
)

// Server is a read only view of the running publishers.
type Server struct {
	logger  *slog.Logger
	config  config.AppConfigApi
	db      *database.Database
	status  *Status
	hub     *Hub
	version string
	started time.Time
	mux     *http.ServeMux
}

// NewServer registers the routes, db may be nil.
func NewServer(db *database.Database, status *Status, hub *Hub, config config.AppConfigApi, version string) *Server {
	logger := slog.Default().With("module", "www")
	s := &Server{
		logger:  logger,
		config:  config,
		db:      db,
		status:  status,
		hub:     hub,
		version: version,
		started: time.Now(),
		mux:     http.NewServeMux(),
	}

	logReqMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.String("remoteAddr", r.RemoteAddr))
			next.ServeHTTP(w, r)
		})
	}

	s.mux.Handle("GET /api/status", logReqMW(http.HandlerFunc(s.handleStatus)))
	s.mux.Handle("GET /api/prices/{source}", logReqMW(NewPricesHandler(logger.With(slog.String("handler", "prices")), db)))
	s.mux.Handle("GET /api/log", logReqMW(NewLogHandler(logger.With(slog.String("handler", "log")), db)))
	s.mux.Handle("GET /api/sys_info", logReqMW(http.HandlerFunc(s.handleSysInfo)))
	s.mux.HandleFunc("/ws", s.handleWebsocket)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, s.status.Snapshot())
}

type sysInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	Timezone  string `json:"timezone"`
	Uptime    string `json:"uptime"`
	Clients   int    `json:"clients"`
}

func (s *Server) handleSysInfo(w http.ResponseWriter, r *http.Request) {
	info := sysInfo{
		Version:   s.version,
		GoVersion: runtime.Version(),
		Timezone:  hours.Location().String(),
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.hub != nil {
		info.Clients = s.hub.Clients()
	}
	writeJSON(s.logger, w, info)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.NotFound(w, r)
		return
	}
	client, err := NewClient(s.hub, w, r, r.Header.Get("User-Agent"))
	if err != nil {
		s.logger.Error("new websocket client failed", slog.Any("error", err))
		return
	}
	if !s.hub.Register(client) {
		client.conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Address, strconv.Itoa(s.config.Port))
	s.logger.Info("starting server...", slog.String("address", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErrors := make(chan error, 1)
	go func() {
		srvErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", slog.Any("error", err))
		}
		return nil
	}
}
