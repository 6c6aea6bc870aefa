// Package profile keeps the user's own settings, currently just the body
// weight that bodyweight exercises default their set weight to.
package profile

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/2beens/liftlog/internal/store"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	kv store.KV
}

func NewHandler(kv store.KV) *Handler {
	return &Handler{kv: kv}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/bodyweight", handler.handleGetBodyWeight).Methods("GET", "OPTIONS").Name("get-bodyweight")
	router.HandleFunc("/bodyweight", handler.handleSetBodyWeight).Methods("PUT", "OPTIONS").Name("set-bodyweight")
}

type BodyWeightResponse struct {
	BodyWeight float64 `json:"bodyWeight"`
	Set        bool    `json:"set"`
}

func (handler *Handler) handleGetBodyWeight(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.profile.getBodyWeight")
	defer span.End()

	resp := BodyWeightResponse{}
	val, err := handler.kv.Get(ctx, store.KeyUserBodyWeight)
	switch {
	case err == store.ErrKeyNotFound:
		// never set, report zero
	case err != nil:
		log.Errorf("get body weight: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	default:
		weight, parseErr := strconv.ParseFloat(val, 64)
		if parseErr != nil {
			log.Errorf("get body weight, stored value %q not numeric: %s", val, parseErr)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		resp.BodyWeight = weight
		resp.Set = true
	}

	data, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("get body weight, marshal: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, data, http.StatusOK)
}

type SetBodyWeightRequest struct {
	BodyWeight float64 `json:"bodyWeight"`
}

func (handler *Handler) handleSetBodyWeight(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.profile.setBodyWeight")
	defer span.End()

	if contentType := r.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "application/json") {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req SetBodyWeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("set body weight, unmarshal request: %s", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.BodyWeight <= 0 {
		http.Error(w, "body weight must be positive", http.StatusBadRequest)
		return
	}

	val := strconv.FormatFloat(req.BodyWeight, 'f', -1, 64)
	if err := handler.kv.Set(ctx, store.KeyUserBodyWeight, val); err != nil {
		log.Errorf("set body weight: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "updated")
}
