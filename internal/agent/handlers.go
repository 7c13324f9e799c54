package agent

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/dispatch"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/fsops"
	"github.com/Ryuchen/Panda-Sandbox-Agent/pkg/api"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	exe, _ := os.Executable()
	writeJSON(w, http.StatusOK, api.IndexResponse{Response: ok("Panda Sandbox Agent"), Version: s.Version, Filepath: exe})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Status()
	writeJSON(w, http.StatusOK, api.StatusResponse{Response: ok("Analysis status"), Status: snap.Status, Description: snap.Description})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	var status, description *string
	if v, ok := formValue(r, "status"); ok {
		status = &v
	}
	if v, ok := formValue(r, "description"); ok {
		description = &v
	}
	if err := s.state.SetStatus(status, description); err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Str("status", *status).Msg("analysis status updated")
	writeJSON(w, http.StatusOK, ok("Analysis status updated"))
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	addr, err := s.state.Pin(remoteIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.Gauge("panda_agent_pinned", 1, nil)
	log.Info().Str("controller", addr).Msg("agent pinned")
	writeJSON(w, http.StatusOK, api.PinResponse{Response: ok("Successfully pinned Agent"), ClientIP: addr})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	command, _ := formValue(r, "command")
	cwd, _ := formValue(r, "cwd")
	req := dispatch.Request{
		Target:   command,
		Dir:      cwd,
		Blocking: formBool(r, "waite"),
		Shell:    formBool(r, "shell"),
		Args:     r.PostForm["args"],
	}
	s.execute(w, r, "execute", req, s.dispatcher.RunCommand)
}

func (s *Server) handleExecPy(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	path, _ := formValue(r, "filepath")
	cwd, _ := formValue(r, "cwd")
	req := dispatch.Request{Target: path, Dir: cwd, Blocking: formBool(r, "waite")}
	s.execute(w, r, "execpy", req, s.dispatcher.RunScript)
}

// execute runs one execution directive and journals its outcome. Client
// errors are rejected before anything is launched or recorded.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, directive string, req dispatch.Request, run func(context.Context, dispatch.Request) (dispatch.Result, error)) {
	if s.dispatcher == nil {
		writeError(w, r, core.Errorf(core.KindUnsupported, directive, "execution is not configured"))
		return
	}
	start := time.Now()
	res, err := run(r.Context(), req)
	if core.KindOf(err) == core.KindClient {
		writeError(w, r, err)
		return
	}

	labels := map[string]string{"component": "agent", "directive": directive, "blocking": strconv.FormatBool(req.Blocking)}
	entry := core.JournalEntry{
		Directive: directive,
		Target:    req.Target,
		Remote:    remoteIP(r),
		Blocking:  req.Blocking,
		Launched:  res.Launched,
		ExitCode:  res.ExitCode,
		CreatedAt: start,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if _, jerr := s.journal.Record(r.Context(), entry); jerr != nil {
		log.Error().Err(jerr).Msg("journal execution")
	}

	if err != nil {
		s.metrics.Counter("panda_agent_exec_failed", 1, labels)
		writeError(w, r, err)
		return
	}
	s.metrics.Counter("panda_agent_exec_successful", 1, labels)
	s.metrics.Timer("panda_agent_exec_duration", time.Since(start), labels)

	resp := api.ExecResponse{Response: ok("Successfully executed command"), Launched: res.Launched, PID: res.PID, ExitCode: res.ExitCode}
	if res.Stdout != nil {
		out := string(*res.Stdout)
		resp.Stdout = &out
		s.metrics.Histogram("panda_agent_exec_output_size", float64(len(out)), labels)
	}
	if res.Stderr != nil {
		errOut := string(*res.Stderr)
		resp.Stderr = &errOut
	}
	log.Info().
		Str("directive", directive).
		Str("target", req.Target).
		Bool("blocking", req.Blocking).
		Int("pid", res.PID).
		Msg("process launched")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	t := s.getTerminator()
	if t == nil {
		writeError(w, r, core.Errorf(core.KindUnsupported, "kill", "not running in a server that supports termination"))
		return
	}
	if err := t.Terminate(); err != nil {
		writeError(w, r, core.Wrap(core.KindUnsupported, "kill", "termination failed", err))
		return
	}
	log.Info().Str("controller", remoteIP(r)).Msg("agent termination requested")
	writeJSON(w, http.StatusOK, ok("Quit the Panda Sandbox Agent"))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	stdout, stderr := s.sink.Snapshot()
	writeJSON(w, http.StatusOK, api.LogsResponse{Response: ok("Panda Sandbox Agent logs"), Stdout: string(stdout), Stderr: string(stderr)})
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, api.SystemResponse{Response: ok("System Platform"), System: platformName(runtime.GOOS), Arch: runtime.GOARCH, Hostname: host})
}

// platformName renders GOOS the way analysis controllers expect it.
func platformName(goos string) string {
	if goos == "" {
		return ""
	}
	return strings.ToUpper(goos[:1]) + goos[1:]
}

func (s *Server) handleEnviron(w http.ResponseWriter, r *http.Request) {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, found := strings.Cut(kv, "="); found && k != "" {
			env[k] = v
		}
	}
	writeJSON(w, http.StatusOK, api.EnvironResponse{Response: ok("Environment variables"), Environ: env})
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	exe, err := os.Executable()
	if err != nil {
		writeError(w, r, core.Wrap(core.KindInternal, "path", "unable to resolve agent path", err))
		return
	}
	writeJSON(w, http.StatusOK, api.PathResponse{Response: ok("Agent path"), Filepath: exe})
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	dir, _ := formValue(r, "dirpath")
	var mode os.FileMode
	if v, ok := formValue(r, "mode"); ok && v != "" {
		m, err := strconv.ParseUint(v, 8, 32)
		if err != nil {
			writeError(w, r, core.Wrap(core.KindClient, "mkdir", "invalid mode", err))
			return
		}
		mode = os.FileMode(m)
	}
	if err := fsops.Mkdir(dir, mode); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Successfully created directory"))
}

func (s *Server) handleMktemp(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	prefix, _ := formValue(r, "prefix")
	suffix, _ := formValue(r, "suffix")
	dir, _ := formValue(r, "dirpath")
	path, err := fsops.Mktemp(prefix, suffix, dir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.PathResponse{Response: ok("Successfully created temporary file"), Filepath: path})
}

func (s *Server) handleMkdtemp(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	prefix, _ := formValue(r, "prefix")
	suffix, _ := formValue(r, "suffix")
	dir, _ := formValue(r, "dirpath")
	path, err := fsops.Mkdtemp(prefix, suffix, dir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.PathResponse{Response: ok("Successfully created temporary directory"), Dirpath: path})
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	path, _ := formValue(r, "filepath")
	if path == "" {
		writeError(w, r, core.Errorf(core.KindClient, "store", "no file path has been provided"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, core.Wrap(core.KindClient, "store", "no file has been provided", err))
		return
	}
	defer file.Close()
	checksum, _ := formValue(r, "sha256")
	if err := fsops.Store(path, file, strings.ToLower(checksum)); err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Str("path", path).Msg("file stored")
	writeJSON(w, http.StatusOK, ok("Successfully stored file"))
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	path, _ := formValue(r, "filepath")
	f, info, err := fsops.Retrieve(path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()
	if sum, err := fsops.Checksum(path); err == nil {
		w.Header().Set(api.ChecksumHeader, sum)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filepath.Base(path)))
	http.ServeContent(w, r, "", info.ModTime(), f)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	dir, _ := formValue(r, "dirpath")
	if dir == "" {
		writeError(w, r, core.Errorf(core.KindClient, "extract", "no directory path has been provided"))
		return
	}
	file, header, err := r.FormFile("zipfile")
	if err != nil {
		writeError(w, r, core.Wrap(core.KindClient, "extract", "no zip file has been provided", err))
		return
	}
	defer file.Close()
	if err := fsops.Extract(file, header.Size, dir); err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Str("dir", dir).Int64("size", header.Size).Msg("archive extracted")
	writeJSON(w, http.StatusOK, ok("Successfully extracted zip file"))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeError(w, r, err)
		return
	}
	path, _ := formValue(r, "path")
	if err := fsops.Remove(path, formBool(r, "recursive"), formBool(r, "force")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Successfully deleted path"))
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, core.Errorf(core.KindClient, "journal", "invalid limit %q", v))
			return
		}
		limit = n
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]api.JournalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, api.JournalEntry(e))
	}
	writeJSON(w, http.StatusOK, api.JournalResponse{Response: ok("Execution journal"), Entries: out})
}
