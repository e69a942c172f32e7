package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tidemark/cadence/internal/engine"
	"github.com/tidemark/cadence/internal/export"
	"github.com/tidemark/cadence/internal/store"
)

type entryJSON struct {
	ID           string `json:"id"`
	SectionID    string `json:"section_id"`
	GroupID      string `json:"group_id,omitempty"`
	IsTemplate   bool   `json:"is_template,omitempty"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time,omitempty"`
	DurationMin  int    `json:"duration_min,omitempty"`
	NotifyBefore bool   `json:"notify_before"`
	RRule        string `json:"rrule,omitempty"`
	Completed    bool   `json:"completed"`
	Edited       bool   `json:"edited,omitempty"`
}

func toEntryJSON(e store.Entry) entryJSON {
	return entryJSON{
		ID:           e.ID,
		SectionID:    e.SectionID,
		GroupID:      e.GroupID,
		IsTemplate:   e.IsTemplate,
		Title:        e.Title,
		Date:         e.Date,
		StartTime:    e.StartTime,
		DurationMin:  e.DurationMin,
		NotifyBefore: e.NotifyBefore,
		RRule:        e.RRule,
		Completed:    e.Completed,
		Edited:       e.Edited,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.OnActivate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied":           res.Applied,
		"scheduled":         len(res.Notify.Scheduled),
		"cancelled":         len(res.Notify.Cancelled),
		"permission_denied": res.Notify.PermissionDenied,
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.db.ListTemplates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]entryJSON, 0, len(templates))
	for _, t := range templates {
		out = append(out, toEntryJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

type templateRequest struct {
	SectionID    string `json:"section_id"`
	Title        string `json:"title"`
	RRule        string `json:"rrule"`
	Date         string `json:"date"` // recurrence anchor, "2006-01-02"
	StartTime    string `json:"start_time"`
	DurationMin  int    `json:"duration_min"`
	NotifyBefore bool   `json:"notify_before"`
}

func (s *Server) validateTemplateRequest(req templateRequest) (int, string) {
	if req.SectionID == "" || req.Title == "" {
		return http.StatusBadRequest, "section_id and title required"
	}
	if _, err := time.ParseInLocation(store.DateFormat, req.Date, s.loc); err != nil {
		return http.StatusBadRequest, "date must be YYYY-MM-DD"
	}
	if req.StartTime != "" {
		if _, err := time.Parse(store.ClockFormat, req.StartTime); err != nil {
			return http.StatusBadRequest, "start_time must be HH:MM"
		}
	}
	if err := engine.ValidateRule(req.RRule); err != nil {
		return http.StatusUnprocessableEntity, err.Error()
	}
	return 0, ""
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if status, msg := s.validateTemplateRequest(req); status != 0 {
		writeError(w, status, msg)
		return
	}
	sec, err := s.db.GetSection(req.SectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sec == nil {
		writeError(w, http.StatusNotFound, "section not found")
		return
	}

	tpl := store.Entry{
		SectionID:    req.SectionID,
		GroupID:      uuid.NewString(),
		IsTemplate:   true,
		Title:        req.Title,
		Date:         req.Date,
		StartTime:    req.StartTime,
		DurationMin:  req.DurationMin,
		NotifyBefore: req.NotifyBefore,
		RRule:        req.RRule,
	}
	if err := s.db.CreateEntry(&tpl); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.engine.OnTemplateEdit(r.Context(), tpl.GroupID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toEntryJSON(tpl))
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryID")
	tpl, err := s.db.GetEntry(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tpl == nil || !tpl.IsTemplate {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SectionID == "" {
		req.SectionID = tpl.SectionID
	}
	if req.Date == "" {
		req.Date = tpl.Date
	}
	if status, msg := s.validateTemplateRequest(req); status != 0 {
		writeError(w, status, msg)
		return
	}

	tpl.SectionID = req.SectionID
	tpl.Title = req.Title
	tpl.Date = req.Date
	tpl.StartTime = req.StartTime
	tpl.DurationMin = req.DurationMin
	tpl.NotifyBefore = req.NotifyBefore
	tpl.RRule = req.RRule
	if err := s.db.UpdateEntry(tpl); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.engine.OnTemplateEdit(r.Context(), tpl.GroupID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toEntryJSON(*tpl))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryID")
	today := time.Now().In(s.loc).Format(store.DateFormat)
	if err := s.db.DeleteTemplate(id, today); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if _, err := s.engine.ResyncNow(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	now := time.Now().In(s.loc)
	from := r.URL.Query().Get("from")
	if from == "" {
		from = now.Format(store.DateFormat)
	}
	to := r.URL.Query().Get("to")
	if to == "" {
		to = now.AddDate(0, 0, 14).Format(store.DateFormat)
	}

	entries, err := s.db.EntriesBetween(from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "entries": out})
}

type entryRequest struct {
	SectionID    string `json:"section_id"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	DurationMin  int    `json:"duration_min"`
	NotifyBefore bool   `json:"notify_before"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SectionID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "section_id and title required")
		return
	}
	if _, err := time.ParseInLocation(store.DateFormat, req.Date, s.loc); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	// Hand-created entries are user content: never subject to regeneration.
	e := store.Entry{
		SectionID:    req.SectionID,
		Title:        req.Title,
		Date:         req.Date,
		StartTime:    req.StartTime,
		DurationMin:  req.DurationMin,
		NotifyBefore: req.NotifyBefore,
		Edited:       true,
	}
	if err := s.db.CreateEntry(&e); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.engine.ResyncNow(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toEntryJSON(e))
}

// entryUpdateRequest distinguishes omitted fields from zero values so a
// partial update leaves the rest of the entry alone. start_time may be
// set to "" explicitly to drop the wall-clock time.
type entryUpdateRequest struct {
	SectionID    *string `json:"section_id"`
	Title        *string `json:"title"`
	Date         *string `json:"date"`
	StartTime    *string `json:"start_time"`
	DurationMin  *int    `json:"duration_min"`
	NotifyBefore *bool   `json:"notify_before"`
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryID")
	e, err := s.db.GetEntry(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if e == nil || e.IsTemplate {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}

	var req entryUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Title != nil {
		e.Title = *req.Title
	}
	if req.SectionID != nil {
		e.SectionID = *req.SectionID
	}
	if req.Date != nil {
		if _, err := time.ParseInLocation(store.DateFormat, *req.Date, s.loc); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		e.Date = *req.Date
	}
	if req.StartTime != nil {
		if *req.StartTime != "" {
			if _, err := time.Parse(store.ClockFormat, *req.StartTime); err != nil {
				writeError(w, http.StatusBadRequest, "start_time must be HH:MM")
				return
			}
		}
		e.StartTime = *req.StartTime
	}
	if req.DurationMin != nil {
		e.DurationMin = *req.DurationMin
	}
	if req.NotifyBefore != nil {
		e.NotifyBefore = *req.NotifyBefore
	}
	e.Edited = true // user edit pins the instance against regeneration

	if err := s.db.UpdateEntry(e); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.engine.ResyncNow(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toEntryJSON(*e))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryID")
	if err := s.db.DeleteInstance(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if _, err := s.engine.ResyncNow(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCompleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryID")
	if err := s.db.CompleteEntry(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := s.db.ListSections()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type sectionJSON struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		NotifyEnabled bool   `json:"notify_enabled"`
	}
	out := make([]sectionJSON, 0, len(sections))
	for _, sec := range sections {
		out = append(out, sectionJSON{sec.ID, sec.Name, sec.NotifyEnabled})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": out})
}

func (s *Server) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	sec := store.Section{Name: req.Name, NotifyEnabled: true}
	if err := s.db.CreateSection(&sec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id": sec.ID, "name": sec.Name, "notify_enabled": sec.NotifyEnabled,
	})
}

func (s *Server) handleSectionNotifications(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "sectionID")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	sec, err := s.db.GetSection(sectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sec == nil {
		writeError(w, http.StatusNotFound, "section not found")
		return
	}
	if err := s.engine.OnSectionToggle(r.Context(), sectionID, req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"section_id": sectionID, "enabled": req.Enabled})
}

func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	now := time.Now().In(s.loc)
	from := r.URL.Query().Get("from")
	if from == "" {
		from = now.AddDate(0, 0, -7).Format(store.DateFormat)
	}
	to := r.URL.Query().Get("to")
	if to == "" {
		to = now.AddDate(0, 3, 0).Format(store.DateFormat)
	}

	entries, err := s.db.EntriesBetween(from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cadence.ics"`)
	w.Write([]byte(export.Calendar(entries, s.loc)))
}
