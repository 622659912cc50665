package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/irontracks/liveworkout/internal/middleware/ratelimit"
	"github.com/irontracks/liveworkout/internal/telemetry/tracing"
	"github.com/irontracks/liveworkout/pkg"
)

type Handler struct {
	authService  *Service
	loginChecker Checker
	// clients present this on login, users are not password-managed here
	appLoginSecret string

	// OnLogout runs after a successful logout, e.g. to dispose the user's
	// session engine
	OnLogout func(userID string)
}

func NewHandler(authService *Service, loginChecker Checker, appLoginSecret string) *Handler {
	return &Handler{
		authService:    authService,
		loginChecker:   loginChecker,
		appLoginSecret: appLoginSecret,
	}
}

func (handler *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter ratelimit.RequestRateLimiter,
	loginAllowedPerMin int,
) {
	loginRouter := router.PathPrefix("/a").Subrouter()
	loginRouter.HandleFunc("/login", handler.HandleLogin).Methods("POST", "OPTIONS")
	loginRouter.HandleFunc("/logout", handler.HandleLogout).Methods("GET", "OPTIONS")
	loginRouter.Use(ratelimit.RateLimit(rateLimiter, "login", loginAllowedPerMin))
}

type LoginRequest struct {
	UserID string `json:"userId"`
	Secret string `json:"secret"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (handler *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.login")
	defer span.End()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("login, unmarshal json params: %s", err)
		http.Error(w, "login failed", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}
	if req.Secret != handler.appLoginSecret {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	token, err := handler.authService.Login(ctx, req.UserID, time.Now())
	if err != nil {
		log.Errorf("failed to login user %s: %s", req.UserID, err)
		http.Error(w, "error, failed to login", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(LoginResponse{Token: token})
	if err != nil {
		log.Errorf("failed to marshal login response: %s", err)
		http.Error(w, "failed to marshal login response", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

func (handler *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.auth.logout")
	defer span.End()

	token := r.Header.Get("X-IRONTRACKS-TOKEN")
	if token == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	userID, err := handler.loginChecker.UserOf(ctx, token)
	if err != nil {
		userID = ""
	}

	if _, err := handler.authService.Logout(ctx, token); err != nil {
		log.Errorf("failed to logout: %s", err)
		http.Error(w, "error, failed to logout", http.StatusInternalServerError)
		return
	}

	if userID != "" && handler.OnLogout != nil {
		handler.OnLogout(userID)
	}

	pkg.WriteTextResponseOK(w, "logged-out")
}
