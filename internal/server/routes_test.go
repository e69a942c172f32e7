package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidemark/cadence/internal/engine"
	"github.com/tidemark/cadence/internal/notify"
	"github.com/tidemark/cadence/internal/store"
)

func testServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sched := notify.NewScheduler(db, notify.NewMock(), time.Hour, 14*24*time.Hour, time.UTC)
	eng := engine.New(db, sched, time.UTC, 28)
	return New(db, eng, time.UTC, "test"), db
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createSection(t *testing.T, srv *Server, name string) string {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/sections", map[string]string{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create section: status %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		ID string `json:"id"`
	}
	decode(t, rec, &out)
	return out.ID
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Status string `json:"status"`
		DB     bool   `json:"db"`
	}
	decode(t, rec, &out)
	if out.Status != "ok" || !out.DB {
		t.Errorf("unexpected health response: %+v", out)
	}
}

func TestCreateAndListSections(t *testing.T) {
	srv, _ := testServer(t)
	createSection(t, srv, "Fitness")
	createSection(t, srv, "Chores")

	rec := doJSON(t, srv, http.MethodGet, "/api/sections", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Sections []struct {
			Name          string `json:"name"`
			NotifyEnabled bool   `json:"notify_enabled"`
		} `json:"sections"`
	}
	decode(t, rec, &out)
	if len(out.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(out.Sections))
	}
	if !out.Sections[0].NotifyEnabled {
		t.Error("sections should default to notifications on")
	}
}

func TestCreateTemplateMaterializesEntries(t *testing.T) {
	srv, _ := testServer(t)
	sec := createSection(t, srv, "Fitness")

	rec := doJSON(t, srv, http.MethodPost, "/api/templates", map[string]any{
		"section_id": sec,
		"title":      "Stretch",
		"rrule":      "FREQ=DAILY",
		"date":       time.Now().UTC().Format(store.DateFormat),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template: status %d: %s", rec.Code, rec.Body.String())
	}
	var tpl entryJSON
	decode(t, rec, &tpl)
	if tpl.GroupID == "" || !tpl.IsTemplate {
		t.Fatalf("template response missing group id or flag: %+v", tpl)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/entries", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list entries: status %d", rec.Code)
	}
	var out struct {
		Entries []entryJSON `json:"entries"`
	}
	decode(t, rec, &out)
	if len(out.Entries) == 0 {
		t.Fatal("daily template should have materialized instances in the window")
	}
	for _, e := range out.Entries {
		if e.IsTemplate {
			t.Errorf("entry listing must not include templates: %+v", e)
		}
		if e.GroupID != tpl.GroupID {
			t.Errorf("instance %s not linked to group %s", e.ID, tpl.GroupID)
		}
	}
}

func TestCreateTemplateInvalidRule(t *testing.T) {
	srv, _ := testServer(t)
	sec := createSection(t, srv, "Fitness")

	rec := doJSON(t, srv, http.MethodPost, "/api/templates", map[string]any{
		"section_id": sec,
		"title":      "Broken",
		"rrule":      "FREQ=FORTNIGHTLY",
		"date":       time.Now().UTC().Format(store.DateFormat),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for invalid rule, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateTemplateUnknownSection(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/templates", map[string]any{
		"section_id": "nope",
		"title":      "Orphan",
		"rrule":      "FREQ=DAILY",
		"date":       time.Now().UTC().Format(store.DateFormat),
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeletedInstanceStaysDeleted(t *testing.T) {
	srv, _ := testServer(t)
	sec := createSection(t, srv, "Fitness")

	rec := doJSON(t, srv, http.MethodPost, "/api/templates", map[string]any{
		"section_id": sec,
		"title":      "Stretch",
		"rrule":      "FREQ=DAILY",
		"date":       time.Now().UTC().Format(store.DateFormat),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/entries", nil)
	var out struct {
		Entries []entryJSON `json:"entries"`
	}
	decode(t, rec, &out)
	if len(out.Entries) < 2 {
		t.Fatalf("need at least 2 instances, got %d", len(out.Entries))
	}
	victim := out.Entries[len(out.Entries)-1]

	rec = doJSON(t, srv, http.MethodDelete, "/api/entries/"+victim.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete entry: status %d: %s", rec.Code, rec.Body.String())
	}

	// Regeneration must not resurrect the deleted date.
	rec = doJSON(t, srv, http.MethodPost, "/api/activate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/entries", nil)
	out.Entries = nil
	decode(t, rec, &out)
	for _, e := range out.Entries {
		if e.Date == victim.Date {
			t.Fatalf("deleted instance came back on %s", victim.Date)
		}
	}
}

func TestCompleteEntry(t *testing.T) {
	srv, db := testServer(t)
	sec := createSection(t, srv, "Fitness")

	e := store.Entry{SectionID: sec, Title: "Laundry", Date: time.Now().UTC().Format(store.DateFormat)}
	if err := db.CreateEntry(&e); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/entries/%s/complete", e.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status %d: %s", rec.Code, rec.Body.String())
	}

	got, err := db.GetEntry(e.ID)
	if err != nil || got == nil {
		t.Fatalf("get entry: %v", err)
	}
	if !got.Completed {
		t.Error("entry should be completed")
	}
}

func TestUpdateEntryPartial(t *testing.T) {
	srv, db := testServer(t)
	sec := createSection(t, srv, "Fitness")

	e := store.Entry{
		SectionID:    sec,
		Title:        "Gym",
		Date:         time.Now().UTC().Format(store.DateFormat),
		StartTime:    "06:00",
		DurationMin:  45,
		NotifyBefore: true,
	}
	if err := db.CreateEntry(&e); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	// A rename-only update must not disturb the schedule fields.
	rec := doJSON(t, srv, http.MethodPut, "/api/entries/"+e.ID, map[string]string{"title": "Gym (early)"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d: %s", rec.Code, rec.Body.String())
	}

	got, err := db.GetEntry(e.ID)
	if err != nil || got == nil {
		t.Fatalf("get entry: %v", err)
	}
	if got.Title != "Gym (early)" {
		t.Errorf("title = %q", got.Title)
	}
	if got.StartTime != "06:00" || got.DurationMin != 45 || !got.NotifyBefore {
		t.Errorf("omitted fields changed: start=%q dur=%d notify=%v",
			got.StartTime, got.DurationMin, got.NotifyBefore)
	}
	if !got.Edited {
		t.Error("update should pin the instance")
	}

	// An explicit empty start_time clears the clock.
	rec = doJSON(t, srv, http.MethodPut, "/api/entries/"+e.ID, map[string]string{"start_time": ""})
	if rec.Code != http.StatusOK {
		t.Fatalf("clear start: status %d: %s", rec.Code, rec.Body.String())
	}
	got, _ = db.GetEntry(e.ID)
	if got.StartTime != "" {
		t.Errorf("start_time = %q, want cleared", got.StartTime)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/entries/"+e.ID, map[string]string{"start_time": "25:99"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad start_time, got %d", rec.Code)
	}
}

func TestSectionToggleUnknownSection(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/sections/missing/notifications", map[string]bool{"enabled": false})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestExportICS(t *testing.T) {
	srv, db := testServer(t)
	sec := createSection(t, srv, "Fitness")

	e := store.Entry{
		SectionID: sec,
		Title:     "Gym",
		Date:      time.Now().UTC().Format(store.DateFormat),
		StartTime: "06:00",
	}
	if err := db.CreateEntry(&e); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/export.ics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "SUMMARY:Gym") {
		t.Errorf("calendar output missing expected components:\n%s", body)
	}
}
