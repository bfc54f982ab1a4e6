package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/bguthro/seestar-alp/internal/event"
	"github.com/bguthro/seestar-alp/internal/watch"
)

// watcherView merges a watcher's status report with its mailbox stats.
type watcherView struct {
	watch.StatusReport
	Mailbox *watch.WorkerStats `json:"mailbox,omitempty"`
}

// handleListWatchers returns the event routing table and every watcher's
// status and mailbox stats.
func (s *Server) handleListWatchers(w http.ResponseWriter, _ *http.Request) {
	routes := s.watchers.Routes()
	if routes == nil {
		routes = map[event.Kind][]string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"routes":   routes,
		"watchers": s.watcherViews(),
	})
}

// handleGetWatcher returns a single watcher by name.
func (s *Server) handleGetWatcher(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, v := range s.watcherViews() {
		if v.Name == name {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	writeNotFound(w, "watcher not found")
}

// watcherViews joins Stats and Reports by watcher name, sorted by name.
// Watchers without a report are listed with their name and events only.
func (s *Server) watcherViews() []watcherView {
	reports := make(map[string]watch.StatusReport)
	for _, rep := range s.watchers.Reports() {
		reports[rep.Name] = rep
	}

	stats := s.watchers.Stats()
	views := make([]watcherView, 0, len(stats))
	for _, st := range stats {
		rep, ok := reports[st.Watcher]
		if !ok {
			rep = watch.StatusReport{Name: st.Watcher, Events: st.Events}
		}
		views = append(views, watcherView{StatusReport: rep, Mailbox: &st})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}
