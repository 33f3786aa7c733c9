package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/frondo/internal/analysis"
	"github.com/JonMunkholm/frondo/internal/manuscript"
	"github.com/JonMunkholm/frondo/internal/web/templates"
)

// formOverhead is the multipart framing allowed on top of the file itself.
const formOverhead = 1 << 20

// heartbeatInterval keeps idle event streams (and their session) alive.
const heartbeatInterval = 15 * time.Second

// withSession resolves the session cookie, creating a session when the
// cookie is missing or stale.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(s.cfg.Session.CookieName); err == nil {
			id = c.Value
		}

		sess, created, err := s.sessions.GetOrCreate(r.Context(), id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     s.cfg.Session.CookieName,
				Value:    sess.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.cfg.Session.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(withSessionContext(r.Context(), sess)))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.Page(sess.Controller.Snapshot(), s.filter.Accept()).Render(r.Context(), w)
}

// handleConverter renders the converter fragment for the current state.
// The page script fetches it whenever the session view changes.
func (s *Server) handleConverter(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	s.renderConverter(w, r, sess.Controller.Snapshot())
}

// handleAcquire takes a dropped or picked file and starts processing it.
// A drop without a file only clears the drag overlay.
func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.acquirer.MaxSize+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, r, fmt.Errorf("parse form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	source := manuscript.ParseSource(r.FormValue("source"))

	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		if source == manuscript.SourceDrop {
			sess.Controller.Dispatch(manuscript.Drop{})
			s.renderConverter(w, r, sess.Controller.Snapshot())
			return
		}
		s.respondError(w, r, errNoFile)
		return
	}
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read form file: %w", err))
		return
	}
	defer f.Close()

	file, err := s.acquirer.Acquire(ctx, hdr.Filename, hdr.Header.Get("Content-Type"), f, source)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if source == manuscript.SourceDrop {
		sess.Controller.Dispatch(manuscript.Drop{File: &file})
	} else {
		sess.Controller.Dispatch(manuscript.FileChosen{File: file})
	}

	logFromRequest(r).Info("manuscript acquired",
		"file", file.Name,
		"size", file.Size,
		"content_type", file.ContentType,
		"source", source,
	)

	s.renderConverter(w, r, sess.Controller.Snapshot())
}

// handleDrag feeds drag events into the controller and returns the drop
// target so the script can mirror its classes.
func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var ev manuscript.Event
	switch chi.URLParam(r, "action") {
	case "enter":
		ev = manuscript.DragEnter{}
	case "over":
		ev = manuscript.DragOver{}
	case "leave":
		ev = manuscript.DragLeave{}
	default:
		s.respondError(w, r, errUnknownDragAction)
		return
	}
	sess.Controller.Dispatch(ev)

	v := sess.Controller.Snapshot()
	if wantsJSON(r) {
		writeJSON(w, r, http.StatusOK, v)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.DropZone(v, s.filter.Accept()).Render(r.Context(), w)
}

func (s *Server) handleSessionView(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	writeJSON(w, r, http.StatusOK, sess.Controller.Snapshot())
}

// handleSessionDelete ends the session. Anything still in flight for it
// settles into nothing.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := s.sessions.Delete(r.Context(), sess.ID); err != nil {
		logFromRequest(r).Warn("session close incomplete", "error", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Session.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionEvents streams view snapshots as server-sent events. The
// first event is the current view.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logFromRequest(r).Error("streaming not supported", "error", err)
		return
	}

	views, unsubscribe := sess.Controller.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case v, ok := <-views:
			if !ok {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				rc.Flush()
				return
			}
			data, err := json.Marshal(v)
			if err != nil {
				logFromRequest(r).Error("encode view", "error", err)
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: view\ndata: %s\n\n", v.Generation, data)
			if err := rc.Flush(); err != nil {
				return
			}
			s.sessions.Touch(sess.ID)

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
			s.sessions.Touch(sess.ID)

		case <-s.shutdown:
			return

		case <-r.Context().Done():
			return
		}
	}
}

type healthResponse struct {
	Status   string                  `json:"status"`
	Sessions int                     `json:"sessions"`
	Analysis *analysis.LimiterStatus `json:"analysis,omitempty"`
}

// handleHealth reports liveness, the session count and, when analysis
// requests are capped, how many are running and queued.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Sessions: s.sessions.Count()}
	if s.analysis != nil {
		status := s.analysis.Status()
		resp.Analysis = &status
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// renderConverter writes the converter fragment, or the view as JSON for
// clients that ask for it.
func (s *Server) renderConverter(w http.ResponseWriter, r *http.Request, v manuscript.View) {
	if wantsJSON(r) {
		writeJSON(w, r, http.StatusOK, v)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Converter(v, s.filter.Accept()).Render(r.Context(), w); err != nil {
		logFromRequest(r).Error("render converter", "error", err)
	}
}
