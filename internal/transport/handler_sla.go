package transport

import (
	"net/http"

	"github.com/kaunda/regcycle/internal/escalation"
	"github.com/kaunda/regcycle/internal/sla"
)

func handleSLAStatus(t *sla.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, err := t.Status(r.Context(), processIDFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"sla": statuses})
	}
}

func handleEscalations(m *escalation.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := m.ListEvents(r.Context(), processIDFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"escalations": events})
	}
}

// handleSweep runs one breach sweep on demand. The same sweep also runs on a
// timer; this endpoint exists for operational tooling.
func handleSweep(m *escalation.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fired, err := m.Sweep(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]int{"escalations_fired": fired})
	}
}
