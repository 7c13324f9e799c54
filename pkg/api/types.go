package api

import "time"

// Wire types for the agent's directive protocol. Every response object
// carries the Response fields; directive payload fields sit beside them.

// Response is the common envelope.
type Response struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Traceback  string `json:"traceback,omitempty"`
}

type IndexResponse struct {
	Response
	Version  string `json:"version"`
	Filepath string `json:"filepath"`
}

type StatusResponse struct {
	Response
	Status      *string `json:"status"`
	Description *string `json:"description"`
}

type PinResponse struct {
	Response
	ClientIP string `json:"client_ip,omitempty"`
}

// ExecRequest describes an /execute or /execpy directive.
type ExecRequest struct {
	Target string
	Args   []string
	Cwd    string
	Shell  bool
	Wait   bool
}

// ExecResponse reports a launched process. Stdout, Stderr and ExitCode are
// present only for waited executions.
type ExecResponse struct {
	Response
	Launched bool    `json:"launched"`
	PID      int     `json:"pid,omitempty"`
	Stdout   *string `json:"stdout,omitempty"`
	Stderr   *string `json:"stderr,omitempty"`
	ExitCode *int    `json:"exit_code,omitempty"`
}

type LogsResponse struct {
	Response
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

type SystemResponse struct {
	Response
	System   string `json:"system"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname,omitempty"`
}

type EnvironResponse struct {
	Response
	Environ map[string]string `json:"environ"`
}

type PathResponse struct {
	Response
	Filepath string `json:"filepath,omitempty"`
	Dirpath  string `json:"dirpath,omitempty"`
}

// JournalEntry mirrors one recorded execution.
type JournalEntry struct {
	ID        string    `json:"id"`
	Directive string    `json:"directive"`
	Target    string    `json:"target"`
	Remote    string    `json:"remote"`
	Blocking  bool      `json:"blocking"`
	Launched  bool      `json:"launched"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type JournalResponse struct {
	Response
	Entries []JournalEntry `json:"entries"`
}

// Header carrying the SHA-256 of a retrieved file.
const ChecksumHeader = "X-Checksum-Sha256"

// Header carrying the per-request identifier.
const RequestIDHeader = "X-Request-Id"
