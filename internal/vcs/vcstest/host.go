// Package vcstest provides an in-memory GitHub host for tests. It serves
// the commit-detail, commit status and check run endpoints and keeps one
// status per (sha, context) and one check run per (sha, name), the way
// GitHub does.
package vcstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// Status is a stored commit status.
type Status struct {
	State       string `json:"state"`
	Context     string `json:"context"`
	Description string `json:"description"`
	TargetURL   string `json:"target_url"`
}

// CheckRun is a stored check run.
type CheckRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadSHA    string `json:"head_sha"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	Output     struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	} `json:"output"`
}

// Key identifies a reported verdict.
type Key struct {
	SHA     string
	Context string
}

// Host is a fake GitHub REST API.
type Host struct {
	*httptest.Server

	mu          sync.Mutex
	commits     map[string]any
	statuses    map[Key]Status
	checkRuns   map[Key]*CheckRun
	nextID      int64
	fetchCalls  int
	reportCalls int
	failFetches int
	failReports int
	failStatus  int
	lastAuth    string
}

// New starts a Host. Close it when done.
func New() *Host {
	h := &Host{
		commits:   map[string]any{},
		statuses:  map[Key]Status{},
		checkRuns: map[Key]*CheckRun{},
		nextID:    1000,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}/commits/{sha}", h.getCommit)
	mux.HandleFunc("POST /repos/{owner}/{repo}/statuses/{sha}", h.postStatus)
	mux.HandleFunc("GET /repos/{owner}/{repo}/commits/{sha}/check-runs", h.listCheckRuns)
	mux.HandleFunc("POST /repos/{owner}/{repo}/check-runs", h.createCheckRun)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/check-runs/{id}", h.updateCheckRun)
	h.Server = httptest.NewServer(mux)
	return h
}

// AddCommit registers a commit. A nil signature or payload is served as
// JSON null.
func (h *Host) AddCommit(repo, sha, email string, signature, payload *string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commits[repo+"@"+sha] = map[string]any{
		"sha": sha,
		"commit": map[string]any{
			"author": map[string]any{"name": "Test Author", "email": email},
			"verification": map[string]any{
				"verified":  false,
				"reason":    "unknown_signature_type",
				"signature": signature,
				"payload":   payload,
			},
		},
	}
}

// SetCommitDocument registers an arbitrary commit-detail document.
func (h *Host) SetCommitDocument(repo, sha string, doc any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commits[repo+"@"+sha] = doc
}

// FailNextFetches makes the next n commit fetches answer 503.
func (h *Host) FailNextFetches(n int) {
	h.mu.Lock()
	h.failFetches = n
	h.mu.Unlock()
}

// FailNextReports makes the next n report writes answer with status code.
func (h *Host) FailNextReports(n, status int) {
	h.mu.Lock()
	h.failReports = n
	h.failStatus = status
	h.mu.Unlock()
}

// FetchCalls returns the number of commit fetches served, failed or not.
func (h *Host) FetchCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fetchCalls
}

// ReportCalls returns the number of report writes received.
func (h *Host) ReportCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reportCalls
}

// LastAuthorization returns the Authorization header of the last request.
func (h *Host) LastAuthorization() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAuth
}

// Statuses returns a copy of all stored statuses.
func (h *Host) Statuses() map[Key]Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[Key]Status, len(h.statuses))
	for k, v := range h.statuses {
		out[k] = v
	}
	return out
}

// CheckRuns returns a copy of all stored check runs.
func (h *Host) CheckRuns() map[Key]CheckRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[Key]CheckRun, len(h.checkRuns))
	for k, v := range h.checkRuns {
		out[k] = *v
	}
	return out
}

func (h *Host) getCommit(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fetchCalls++
	h.lastAuth = r.Header.Get("Authorization")
	if h.failFetches > 0 {
		h.failFetches--
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "service unavailable"})
		return
	}
	doc, ok := h.commits[r.PathValue("owner")+"/"+r.PathValue("repo")+"@"+r.PathValue("sha")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// failReport must be called with h.mu held.
func (h *Host) failReport(w http.ResponseWriter, r *http.Request) bool {
	h.reportCalls++
	h.lastAuth = r.Header.Get("Authorization")
	if h.failReports > 0 {
		h.failReports--
		writeJSON(w, h.failStatus, map[string]string{"message": "injected failure"})
		return true
	}
	return false
}

func (h *Host) postStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failReport(w, r) {
		return
	}
	var st Status
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil || st.State == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Validation Failed"})
		return
	}
	if len([]rune(st.Description)) > 140 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "description too long"})
		return
	}
	h.nextID++
	h.statuses[Key{SHA: r.PathValue("sha"), Context: st.Context}] = st
	writeJSON(w, http.StatusCreated, map[string]any{"id": h.nextID, "state": st.State})
}

func (h *Host) listCheckRuns(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	name := r.URL.Query().Get("check_name")
	runs := []CheckRun{}
	if cr, ok := h.checkRuns[Key{SHA: r.PathValue("sha"), Context: name}]; ok {
		runs = append(runs, *cr)
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_count": len(runs), "check_runs": runs})
}

func (h *Host) createCheckRun(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failReport(w, r) {
		return
	}
	var cr CheckRun
	if err := json.NewDecoder(r.Body).Decode(&cr); err != nil || cr.HeadSHA == "" || cr.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Validation Failed"})
		return
	}
	h.nextID++
	cr.ID = h.nextID
	// GitHub itself would allow duplicates here; recording by key lets
	// tests detect a second create as an overwrite with a new id.
	h.checkRuns[Key{SHA: cr.HeadSHA, Context: cr.Name}] = &cr
	writeJSON(w, http.StatusCreated, cr)
}

func (h *Host) updateCheckRun(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failReport(w, r) {
		return
	}
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for _, cr := range h.checkRuns {
		if cr.ID != id {
			continue
		}
		var upd CheckRun
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Validation Failed"})
			return
		}
		cr.Status = upd.Status
		cr.Conclusion = upd.Conclusion
		cr.Output = upd.Output
		writeJSON(w, http.StatusOK, cr)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StringPtr is a convenience for AddCommit.
func StringPtr(s string) *string { return &s }
