package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kaunda/regcycle/internal/engine"
	"github.com/kaunda/regcycle/model"
)

// processIDFrom composes the process identifier from the route parameters.
func processIDFrom(r *http.Request) string {
	return model.NewProcessID(chi.URLParam(r, "cycleId"), chi.URLParam(r, "reportId"))
}

func handlePhaseInit(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := e.InitializePhase(r.Context(), processIDFrom(r), chi.URLParam(r, "phase"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, map[string]any{"activities": views})
	}
}

func handlePhaseActivities(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := e.ListActivities(r.Context(), processIDFrom(r), chi.URLParam(r, "phase"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"activities": views})
	}
}

func handlePhaseStatus(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phase := chi.URLParam(r, "phase")
		status, err := e.PhaseStatus(r.Context(), processIDFrom(r), phase)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{
			"phase":  phase,
			"status": status,
		})
	}
}

func handleTransition(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			Target      string         `json:"target"`
			InstanceKey string         `json:"instance_key"`
			Reason      string         `json:"reason"`
			Metadata    map[string]any `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}
		if body.Target == "" {
			WriteBadRequest(w, "target is required")
			return
		}

		view, err := e.Transition(r.Context(), engine.TransitionRequest{
			ProcessID:   processIDFrom(r),
			Phase:       chi.URLParam(r, "phase"),
			Code:        chi.URLParam(r, "code"),
			InstanceKey: body.InstanceKey,
			Target:      body.Target,
			ActorID:     rctx.SubjectID,
			Reason:      body.Reason,
			Metadata:    body.Metadata,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func handleMaterialize(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			InstanceKey string `json:"instance_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}
		if body.InstanceKey == "" {
			WriteBadRequest(w, "instance_key is required")
			return
		}

		view, err := e.MaterializeInstance(r.Context(),
			processIDFrom(r), chi.URLParam(r, "phase"), chi.URLParam(r, "code"), body.InstanceKey)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, view)
	}
}

func handleReset(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		// cascade defaults to true when the field is omitted; only an
		// explicit false scopes the reset to the named instance.
		var body struct {
			InstanceKey string `json:"instance_key"`
			Cascade     *bool  `json:"cascade"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}
		cascade := true
		if body.Cascade != nil {
			cascade = *body.Cascade
		}

		views, err := e.ResetActivity(r.Context(),
			processIDFrom(r), chi.URLParam(r, "phase"), chi.URLParam(r, "code"),
			body.InstanceKey, rctx.SubjectID, cascade)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"activities": views})
	}
}

func handleHistory(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := e.History(r.Context(),
			processIDFrom(r), chi.URLParam(r, "phase"), chi.URLParam(r, "code"),
			r.URL.Query().Get("instance_key"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"history": rows})
	}
}
