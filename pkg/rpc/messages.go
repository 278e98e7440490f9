// Package rpc defines the logical, transport-agnostic wire contract between
// the Control Service and an Agent (spec §6). Messages are self-contained
// JSON objects with camelCase keys; the agent tolerates unknown fields, the
// server emits only known ones.
package rpc

import "encoding/json"

// Envelope is the outer frame carried over the websocket connection. Type
// selects which of the inner payload fields is populated.
type Envelope struct {
	Type string `json:"type"`

	RequestCommand  *RequestCommand  `json:"requestCommand,omitempty"`
	ResponseCommand *ResponseCommand `json:"responseCommand,omitempty"`
	SyncCommand     *SyncCommand     `json:"syncCommand,omitempty"`
	ReportSemVer    *ReportSemVer    `json:"reportSemVer,omitempty"`
}

const (
	TypeRequestCommand  = "requestCommand"
	TypeResponseCommand = "responseCommand"
	TypeSyncCommand     = "syncCommand"
	TypeReportSemVer    = "reportSemVer"
)

// RequestCommand is sent Server -> Agent. Args is a structured blob that the
// agent's command handler decodes once into its typed request.
type RequestCommand struct {
	RequestID string          `json:"requestId"`
	Command   string          `json:"command"`
	Args      json.RawMessage `json:"args"`
}

// ResponseCommand is sent Agent -> Server, completing a prior RequestCommand.
type ResponseCommand struct {
	RequestID string          `json:"requestId"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// SyncCommand is sent Agent -> Server, fire-and-forget, by the Notify
// Handler after it completes a Notify job.
type SyncCommand struct {
	WorkspaceID  int64  `json:"workspaceId"`
	RepositoryID int64  `json:"repositoryId"`
	Version      string `json:"version"`
	Branch       string `json:"branch"`
	Outgoing     *int32 `json:"outgoing,omitempty"`
	Incoming     *int32 `json:"incoming,omitempty"`
	HasUpstream  *bool  `json:"hasUpstream,omitempty"`
}

// ReportSemVer is sent Agent -> Server on every successful (re)connect.
type ReportSemVer struct {
	SemVer string `json:"semVer"`
}

func NewRequestCommandEnvelope(requestID, command string, args json.RawMessage) Envelope {
	return Envelope{Type: TypeRequestCommand, RequestCommand: &RequestCommand{RequestID: requestID, Command: command, Args: args}}
}

func NewResponseCommandEnvelope(requestID string, success bool, data json.RawMessage, errMsg string) Envelope {
	return Envelope{Type: TypeResponseCommand, ResponseCommand: &ResponseCommand{RequestID: requestID, Success: success, Data: data, Error: errMsg}}
}

func NewSyncCommandEnvelope(sc SyncCommand) Envelope {
	return Envelope{Type: TypeSyncCommand, SyncCommand: &sc}
}

func NewReportSemVerEnvelope(semVer string) Envelope {
	return Envelope{Type: TypeReportSemVer, ReportSemVer: &ReportSemVer{SemVer: semVer}}
}
