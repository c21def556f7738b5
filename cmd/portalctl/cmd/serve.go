package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/hwlegacy/portalauth"
	"github.com/hwlegacy/portalauth/metrics/export/prometheus"
	"github.com/hwlegacy/portalauth/middleware"
	"github.com/spf13/cobra"
)

var listenAddr string

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8080", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the guarded portal areas over HTTP",
	Long: `Serve a single-session portal:

  GET  /login      sign-in instructions
  POST /login      form fields email, password
  POST /logout
  GET  /dashboard  requires a session
  GET  /admin      requires an administrator
  GET  /session    current state as JSON
  GET  /metrics    Prometheus exposition
  GET  /healthz`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cmd.ErrOrStderr(), "/")
	if err != nil {
		return err
	}
	defer rt.close()
	if err := rt.engine.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           newPortalRouter(rt.engine, rt.nav),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		glog.Infof("portalctl: listening on %s", listenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type portalHandlers struct {
	engine *portalauth.Engine
	nav    portalauth.Navigator
}

func newPortalRouter(engine *portalauth.Engine, nav portalauth.Navigator) http.Handler {
	h := &portalHandlers{engine: engine, nav: nav}
	cfg := engine.Config()

	router := mux.NewRouter()
	router.StrictSlash(true)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	router.Handle("/metrics", prometheus.New(engine).Handler()).Methods(http.MethodGet)
	router.HandleFunc("/session", h.session).Methods(http.MethodGet)
	router.HandleFunc("/login", h.loginForm).Methods(http.MethodGet)
	router.HandleFunc("/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	router.Handle(cfg.Redirect.InvestorPath,
		middleware.RequireSession(engine, cfg.Redirect.LoginPath)(http.HandlerFunc(h.area)),
	).Methods(http.MethodGet)
	router.Handle(cfg.Redirect.AdminPath,
		middleware.RequireAdmin(engine, cfg.Redirect.InvestorPath)(http.HandlerFunc(h.area)),
	).Methods(http.MethodGet)

	return router
}

func (h *portalHandlers) session(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, http.StatusOK, viewOf(h.engine.Store().State()))
}

func (h *portalHandlers) area(w http.ResponseWriter, r *http.Request) {
	st, _ := middleware.StateFromContext(r.Context())
	writeJSONStatus(w, http.StatusOK, viewOf(st))
}

func (h *portalHandlers) loginForm(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, http.StatusOK, map[string]string{
		"next":   r.URL.Query().Get("next"),
		"action": "POST email and password as form fields",
	})
}

func (h *portalHandlers) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	err := h.engine.SignIn(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	if err != nil {
		writeJSONStatus(w, loginStatus(err), errorBody{Error: portalauth.FailureMessage(err)})
		return
	}
	http.Redirect(w, r, h.destination(), http.StatusSeeOther)
}

func loginStatus(err error) int {
	switch {
	case errors.Is(err, portalauth.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, portalauth.ErrInvalidCredentials),
		errors.Is(err, portalauth.ErrEmailNotConfirmed),
		errors.Is(err, portalauth.ErrInvalidInput):
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *portalHandlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SignOut(r.Context()); err != nil {
		writeJSONStatus(w, http.StatusBadGateway, errorBody{Error: portalauth.FailureMessage(err)})
		return
	}
	http.Redirect(w, r, h.engine.Config().Redirect.LoginPath, http.StatusSeeOther)
}

// destination is where the coordinator last navigated, falling back to the
// role's landing area when the one-shot redirect already fired.
func (h *portalHandlers) destination() string {
	cfg := h.engine.Config()
	st := h.engine.Store().State()
	if st.IsAdmin {
		return cfg.Redirect.AdminPath
	}
	if h.nav != nil {
		if p := h.nav.CurrentPath(); p == cfg.Redirect.InvestorPath || p == cfg.Redirect.AdminPath {
			return p
		}
	}
	return cfg.Redirect.InvestorPath
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("portalctl: write response: %v", err)
	}
}
