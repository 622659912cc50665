package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/irontracks/liveworkout/internal/auth"
	"github.com/irontracks/liveworkout/internal/liveworkout/pacing"
	"github.com/irontracks/liveworkout/internal/liveworkout/search"
	"github.com/irontracks/liveworkout/internal/liveworkout/session"
	"github.com/irontracks/liveworkout/internal/telemetry/tracing"
	"github.com/irontracks/liveworkout/pkg"
)

type Handler struct {
	manager  *Manager
	searcher search.Searcher
}

func NewHandler(manager *Manager, searcher search.Searcher) *Handler {
	return &Handler{
		manager:  manager,
		searcher: searcher,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/session/start", handler.HandleStart).Methods("POST", "OPTIONS")
	router.HandleFunc("/session/resume", handler.HandleResume).Methods("POST", "OPTIONS")
	router.HandleFunc("/session", handler.HandleGet).Methods("GET", "OPTIONS")
	router.HandleFunc("/session", handler.HandleAbandon).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/session/logs", handler.HandleSetLog).Methods("PUT", "OPTIONS")
	router.HandleFunc("/session/timer", handler.HandleStartTimer).Methods("POST", "OPTIONS")
	router.HandleFunc("/session/timer", handler.HandleCloseTimer).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/session/next", handler.HandleNext).Methods("POST", "OPTIONS")
	router.HandleFunc("/session/prev", handler.HandlePrev).Methods("POST", "OPTIONS")
	router.HandleFunc("/session/exercises", handler.HandleAddExercise).Methods("POST", "OPTIONS")
	router.HandleFunc("/session/exercises/{index}", handler.HandleSwapExercise).Methods("PUT", "OPTIONS")
	router.HandleFunc("/session/finish", handler.HandleFinish).Methods("POST", "OPTIONS")
	router.HandleFunc("/exercises/search", handler.HandleSearch).Methods("GET", "OPTIONS")
}

type SessionResponse struct {
	Session               *session.Session `json:"session"`
	GroupStarts           []int            `json:"groupStarts,omitempty"`
	EstimatedTotalSeconds int              `json:"estimatedTotalSeconds,omitempty"`
	GroupEstimatedSeconds int              `json:"groupEstimatedSeconds,omitempty"`
	View                  string           `json:"view,omitempty"`
}

func newSessionResponse(snap *session.Session) SessionResponse {
	resp := SessionResponse{Session: snap}
	if snap != nil {
		exercises := snap.Workout.Exercises
		starts := session.GroupStarts(exercises)
		resp.GroupStarts = starts
		resp.EstimatedTotalSeconds = pacing.EstimateWorkoutSeconds(exercises)

		// pacer budget for the group currently on screen
		start := session.AlignedGroupStart(starts, snap.UI.CurrentExerciseIndex, len(exercises))
		size := session.GroupSize(starts, start, len(exercises))
		if start+size <= len(exercises) {
			resp.GroupEstimatedSeconds = pacing.EstimateGroupSeconds(exercises[start : start+size])
		}
	}
	return resp
}

func (handler *Handler) writeSession(w http.ResponseWriter, resp SessionResponse, status int) {
	respJson, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("failed to marshal session response: %s", err)
		http.Error(w, "failed to marshal session", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, status)
}

type StartSessionRequest struct {
	Workout       session.Workout   `json:"workout"`
	TeamSessionID string            `json:"teamSessionId,omitempty"`
	TeamHost      bool              `json:"teamHost,omitempty"`
	HostName      string            `json:"hostName,omitempty"`
	PreCheckin    map[string]string `json:"preCheckin,omitempty"`
}

func (handler *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.start")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("start session, unmarshal json params: %s", err)
		http.Error(w, "start session failed", http.StatusBadRequest)
		return
	}

	e := handler.manager.For(userID)
	if err := e.Start(ctx, req.Workout, StartOptions{
		TeamSessionID: req.TeamSessionID,
		TeamHost:      req.TeamHost,
		HostName:      req.HostName,
		PreCheckin:    req.PreCheckin,
	}); err != nil {
		switch {
		case errors.Is(err, session.ErrNoExercises):
			http.Error(w, "workout has no exercises", http.StatusBadRequest)
		case errors.Is(err, ErrSessionActive):
			http.Error(w, "a session is already active", http.StatusConflict)
		default:
			log.Errorf("failed to start session for user %s: %s", userID, err)
			http.Error(w, "error, failed to start session", http.StatusInternalServerError)
		}
		return
	}

	handler.writeSession(w, newSessionResponse(e.Snapshot()), http.StatusCreated)
}

func (handler *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.resume")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	e := handler.manager.For(userID)
	view, err := e.Resume(ctx)
	if err != nil {
		log.Errorf("failed to resume session for user %s: %s", userID, err)
		http.Error(w, "error, failed to resume session", http.StatusInternalServerError)
		return
	}

	resp := newSessionResponse(e.Snapshot())
	resp.View = view
	handler.writeSession(w, resp, http.StatusOK)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.get")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	e := handler.manager.For(userID)
	handler.writeSession(w, newSessionResponse(e.Snapshot()), http.StatusOK)
}

type SetLogRequest struct {
	PerformedExerciseID string         `json:"performedExerciseId"`
	SetIndex            int            `json:"setIndex"`
	Log                 session.SetLog `json:"log"`
	Done                bool           `json:"done,omitempty"`
}

func (handler *Handler) HandleSetLog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.setlog")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	var req SetLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("set log, unmarshal json params: %s", err)
		http.Error(w, "set log failed", http.StatusBadRequest)
		return
	}
	if req.PerformedExerciseID == "" || req.SetIndex < 0 {
		http.Error(w, "error, exercise id empty or set index negative", http.StatusBadRequest)
		return
	}

	e := handler.manager.For(userID)
	var err error
	if req.Done {
		err = e.MarkSetDone(req.PerformedExerciseID, req.SetIndex, req.Log)
	} else {
		err = e.UpdateSetLog(req.PerformedExerciseID, req.SetIndex, req.Log)
	}
	if err != nil {
		handler.writeOpError(w, userID, "set log", err)
		return
	}

	handler.writeSession(w, newSessionResponse(e.Snapshot()), http.StatusOK)
}

type StartTimerRequest struct {
	Seconds int `json:"seconds"`
}

func (handler *Handler) HandleStartTimer(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.starttimer")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	var req StartTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("start timer, unmarshal json params: %s", err)
		http.Error(w, "start timer failed", http.StatusBadRequest)
		return
	}

	e := handler.manager.For(userID)
	if err := e.StartRestTimer(req.Seconds); err != nil {
		handler.writeOpError(w, userID, "start timer", err)
		return
	}

	handler.writeSession(w, newSessionResponse(e.Snapshot()), http.StatusOK)
}

func (handler *Handler) HandleCloseTimer(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.closetimer")
	defer span.End()

	userID := auth.UserIDFromContext(r.Context())

	e := handler.manager.For(userID)
	if err := e.CloseTimer(); err != nil {
		handler.writeOpError(w, userID, "close timer", err)
		return
	}

	handler.writeSession(w, newSessionResponse(e.Snapshot()), http.StatusOK)
}

type NextGroupResponse struct {
	Finished bool             `json:"finished"`
	SavedID  string           `json:"savedId,omitempty"`
	Session  *session.Session `json:"session"`
}

func (handler *Handler) HandleNext(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.next")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	e := handler.manager.For(userID)
	finished, savedID, err := e.NextGroup(ctx)
	if err != nil {
		handler.writeOpError(w, userID, "next group", err)
		return
	}

	respJson, err := json.Marshal(NextGroupResponse{
		Finished: finished,
		SavedID:  savedID,
		Session:  e.Snapshot(),
	})
	if err != nil {
		log.Errorf("failed to marshal next group response: %s", err)
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandlePrev(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.prev")
	defer span.End()

	userID := auth.UserIDFromContext(r.Context())

	e := handler.manager.For(userID)
	if err := e.PrevGroup(); err != nil {
		handler.writeOpError(w, userID, "prev group", err)
		return
	}

	handler.writeSession(w, newSessionResponse(e.Snapshot()), http.StatusOK)
}

type AddExerciseRequest struct {
	Index    int              `json:"index"`
	Exercise session.Exercise `json:"exercise"`
}

func (handler *Handler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.addexercise")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	var req AddExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("add exercise, unmarshal json params: %s", err)
		http.Error(w, "add exercise failed", http.StatusBadRequest)
		return
	}
	if req.Exercise.Name == "" {
		http.Error(w, "error, exercise name empty", http.StatusBadRequest)
		return
	}

	e := handler.manager.For(userID)
	if err := e.AddExercise(ctx, req.Index, req.Exercise); err != nil {
		handler.writeOpError(w, userID, "add exercise", err)
		return
	}

	handler.writeSession(w, newSessionResponse(e.Snapshot()), http.StatusOK)
}

func (handler *Handler) HandleSwapExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.swapexercise")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	vars := mux.Vars(r)
	idxStr := vars["index"]
	if idxStr == "" {
		http.Error(w, "error, index empty", http.StatusBadRequest)
		return
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		http.Error(w, "error, index NaN", http.StatusBadRequest)
		return
	}

	var replacement session.Exercise
	if err := json.NewDecoder(r.Body).Decode(&replacement); err != nil {
		log.Errorf("swap exercise, unmarshal json params: %s", err)
		http.Error(w, "swap exercise failed", http.StatusBadRequest)
		return
	}
	if replacement.Name == "" {
		http.Error(w, "error, exercise name empty", http.StatusBadRequest)
		return
	}

	e := handler.manager.For(userID)
	if err := e.SwapExercise(ctx, idx, replacement); err != nil {
		handler.writeOpError(w, userID, "swap exercise", err)
		return
	}

	handler.writeSession(w, newSessionResponse(e.Snapshot()), http.StatusOK)
}

type FinishRequest struct {
	PostCheckin map[string]string `json:"postCheckin,omitempty"`
}

type FinishResponse struct {
	SavedID string `json:"savedId"`
}

func (handler *Handler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.finish")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	var req FinishRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Errorf("finish session, unmarshal json params: %s", err)
			http.Error(w, "finish session failed", http.StatusBadRequest)
			return
		}
	}

	e := handler.manager.For(userID)
	savedID, err := e.Finish(ctx, req.PostCheckin)
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			http.Error(w, "no active session", http.StatusBadRequest)
			return
		}
		log.Errorf("failed to finish session for user %s: %s", userID, err)
		http.Error(w, "error, failed to save finished workout", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(FinishResponse{SavedID: savedID})
	if err != nil {
		log.Errorf("failed to marshal finish response: %s", err)
		http.Error(w, "failed to marshal finish response", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.abandon")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)

	e := handler.manager.For(userID)
	if err := e.Abandon(ctx); err != nil {
		handler.writeOpError(w, userID, "abandon", err)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"abandoned":true}`)
}

func (handler *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.search")
	defer span.End()

	query := r.URL.Query().Get("q")
	candidates, err := handler.searcher.Search(ctx, query)
	if err != nil {
		log.Errorf("failed to search exercises [%s]: %s", query, err)
		http.Error(w, "error, exercise search failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(candidates)
	if err != nil {
		log.Errorf("failed to marshal search response: %s", err)
		http.Error(w, "failed to marshal search response", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) writeOpError(w http.ResponseWriter, userID, op string, err error) {
	if errors.Is(err, ErrNoActiveSession) {
		http.Error(w, "no active session", http.StatusBadRequest)
		return
	}
	log.Errorf("failed to %s for user %s: %s", op, userID, err)
	http.Error(w, "error, "+op+" failed", http.StatusInternalServerError)
}
