package agent

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
	"github.com/Ryuchen/Panda-Sandbox-Agent/pkg/api"
)

// maxMemory bounds the in-memory part of a multipart upload; larger parts
// spill to temporary files.
const maxMemory = 32 << 20

func ok(msg string) api.Response {
	return api.Response{Message: msg, StatusCode: http.StatusOK}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends err as a failure envelope. The traceback is the full
// wrapped chain so platform diagnostics reach the controller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := kind.HTTPStatus()
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Str("kind", string(kind)).
		Str("path", r.URL.Path).
		Str("remote", remoteIP(r)).
		Str("request_id", w.Header().Get(api.RequestIDHeader)).
		Msg("directive failed")
	writeJSON(w, status, api.Response{
		Message:    core.Message(err),
		StatusCode: status,
		ErrorKind:  string(kind),
		Traceback:  err.Error(),
	})
}

// parseForm accepts url-encoded and multipart bodies alike.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return core.Wrap(core.KindClient, "parse form", "malformed request body", err)
	}
	return nil
}

// formValue returns a posted field and whether it was sent at all.
func formValue(r *http.Request, key string) (string, bool) {
	vs, ok := r.PostForm[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func formBool(r *http.Request, key string) bool {
	v, _ := formValue(r, key)
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// remoteIP is the controller identity used for pinning: the peer address
// without its port.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
