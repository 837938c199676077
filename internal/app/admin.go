package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/corvidlabs/voxcore/internal/config"
	"github.com/corvidlabs/voxcore/internal/dialer/store"
	"github.com/corvidlabs/voxcore/internal/history"
)

// registerAdminRoutes mounts the narrow admin mutation API: call-history
// read paths and outbound-campaign control. No route here accepts arbitrary
// shell or file-system input; every write goes through a typed store method.
func (a *App) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/calls", a.handleListCalls)
	mux.HandleFunc("GET /admin/calls/{id}", a.handleGetCall)

	if a.dialerStore == nil {
		return
	}
	mux.HandleFunc("GET /admin/campaigns/{name}", a.handleGetCampaign)
	mux.HandleFunc("POST /admin/campaigns/{name}/start", a.handleCampaignStart)
	mux.HandleFunc("POST /admin/campaigns/{name}/pause", a.handleCampaignPause)
	mux.HandleFunc("POST /admin/campaigns/{name}/resume", a.handleCampaignResume)
	mux.HandleFunc("POST /admin/campaigns/{name}/leads", a.handleEnqueueLead)
	mux.HandleFunc("POST /admin/calls/dial", a.handleManualDial)
}

func (a *App) handleListCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := history.Filter{
		CallerNumber:  q.Get("caller_number"),
		CalledNumber:  q.Get("called_number"),
		ContextName:   q.Get("context_name"),
		Outcome:       q.Get("outcome"),
		ProviderName:  q.Get("provider_name"),
		Direction:     q.Get("direction"),
		SortAscending: q.Get("sort") == "asc",
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}
	if v := q.Get("since"); v != "" {
		f.Since, _ = time.Parse(time.RFC3339, v)
	}
	if v := q.Get("until"); v != "" {
		f.Until, _ = time.Parse(time.RFC3339, v)
	}

	summaries, err := a.history.ListSummaries(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *App) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("id must be an integer"))
		return
	}

	detail, err := a.history.GetDetail(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *App) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	run, err := a.dialerStore.GetCampaignRun(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, errors.New("campaign not found"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *App) handleCampaignStart(w http.ResponseWriter, r *http.Request) {
	a.setCampaignStatus(w, r, store.CampaignStatusRunning)
}

func (a *App) handleCampaignPause(w http.ResponseWriter, r *http.Request) {
	a.setCampaignStatus(w, r, store.CampaignStatusPaused)
}

func (a *App) handleCampaignResume(w http.ResponseWriter, r *http.Request) {
	a.setCampaignStatus(w, r, store.CampaignStatusRunning)
}

func (a *App) setCampaignStatus(w http.ResponseWriter, r *http.Request, status store.CampaignStatus) {
	if err := a.dialerStore.SetCampaignStatus(r.Context(), r.PathValue("name"), status); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

type enqueueLeadRequest struct {
	PhoneNumber string            `json:"phone_number"`
	LeadName    string            `json:"lead_name"`
	CustomVars  map[string]string `json:"custom_vars"`
}

func (a *App) handleEnqueueLead(w http.ResponseWriter, r *http.Request) {
	var req enqueueLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, errors.New("phone_number is required"))
		return
	}

	lead, err := a.dialerStore.EnqueueLead(r.Context(), r.PathValue("name"), req.PhoneNumber, req.LeadName, req.CustomVars)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

type manualDialRequest struct {
	CampaignName string `json:"campaign_name"`
	DialString   string `json:"dial_string"`
	CalledNumber string `json:"called_number"`
}

// handleManualDial exercises CallEngine.RunOutboundCall directly, bypassing
// the lease/pacing queue, for one-off operator-initiated calls.
func (a *App) handleManualDial(w http.ResponseWriter, r *http.Request) {
	var req manualDialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var campaign config.Campaign
	found := false
	for _, c := range a.cfgSource().Campaigns {
		if c.Name == req.CampaignName {
			campaign = c
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, errors.New("campaign not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := a.engine.RunOutboundCall(ctx, campaign, req.DialString, req.CalledNumber); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dialing"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
