package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/menta2k/headshot/pkg/editor"
	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/interaction"
)

// PointerEvent is a gesture event in display coordinates.
type PointerEvent struct {
	Type   string  `json:"type"` // down, move or up
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Handle string  `json:"handle,omitempty"`
}

// CreateResponse is returned when a session is created.
type CreateResponse struct {
	ID   string      `json:"id"`
	View editor.View `json:"view"`
}

// ErrorResponse carries a failure and the session state after it.
type ErrorResponse struct {
	Error string       `json:"error"`
	View  *editor.View `json:"view,omitempty"`
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, id string, sess *editor.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, ok := s.Lookup(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("session %q not found", id), nil)
			return
		}
		h(w, r, id, sess)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.Len()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, sess := s.Create()
	writeJSON(w, http.StatusCreated, CreateResponse{ID: id, View: sess.View()})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.Remove(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, fmt.Errorf("session %q not found", r.PathValue("id")), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, id string, sess *editor.Session) {
	writeJSON(w, http.StatusOK, sess.View())
}

// handleUpload accepts the photo either as the raw request body or as the
// "image" field of a multipart form.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, id string, sess *editor.Session) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, errors.New("too many uploads, slow down"), nil)
		return
	}

	data, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}

	img, err := s.processor.DecodeImage(data)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err, nil)
		return
	}
	if err := s.processor.ValidateImage(img); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err, nil)
		return
	}

	s.logger.Info("image uploaded", "session", id, "bytes", len(data),
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	if _, err := sess.Upload(r.Context(), img); err != nil {
		view := sess.View()
		writeError(w, statusFor(err), err, &view)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
			return nil, fmt.Errorf("invalid multipart upload: %w", err)
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("missing image field: %w", err)
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}
	return data, nil
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, id string, sess *editor.Session) {
	sess.Reset()
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request, id string, sess *editor.Session) {
	var d geometry.Dimensions
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid display size: %w", err), nil)
		return
	}
	if err := sess.SetDisplaySize(d); err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request, id string, sess *editor.Session) {
	var ev PointerEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid pointer event: %w", err), nil)
		return
	}
	if err := applyPointer(sess, ev); err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, id string, sess *editor.Session) {
	c, err := sess.Preview()
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, c); err != nil {
		writeError(w, http.StatusInternalServerError, err, nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, id string, sess *editor.Session) {
	var buf bytes.Buffer
	if err := sess.Export(r.Context(), &buf); err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}

	renderer := sess.Renderer()
	w.Header().Set("Content-Type", renderer.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", renderer.Filename()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// handleWebSocket reads pointer events and answers each with the session
// view. Failed events are answered with an ErrorResponse and do not close
// the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, id string, sess *editor.Session) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", id, "error", err)
		return
	}
	defer conn.Close()
	defer sess.PointerUp()

	for {
		var ev PointerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", "session", id, "error", err)
			}
			return
		}

		var reply any
		if err := applyPointer(sess, ev); err != nil {
			view := sess.View()
			reply = ErrorResponse{Error: err.Error(), View: &view}
		} else {
			reply = sess.View()
		}

		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Debug("websocket write failed", "session", id, "error", err)
			return
		}
	}
}

func applyPointer(sess *editor.Session, ev PointerEvent) error {
	p := geometry.Point{X: ev.X, Y: ev.Y}
	switch strings.ToLower(ev.Type) {
	case "down":
		h, err := interaction.ParseHandle(ev.Handle)
		if err != nil {
			return err
		}
		return sess.PointerDown(p, h)
	case "move":
		_, err := sess.PointerMove(p)
		return err
	case "up":
		sess.PointerUp()
		return nil
	default:
		return fmt.Errorf("unknown pointer event type %q", ev.Type)
	}
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	var de *editor.DetectionError
	switch {
	case errors.Is(err, editor.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, editor.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity
	case errors.As(err, &de):
		return http.StatusBadGateway
	case errors.Is(err, editor.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, editor.ErrEmptyExport), errors.Is(err, editor.ErrNoCropRegion):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error, view *editor.View) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), View: view})
}
