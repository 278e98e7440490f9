package models

// JobKind discriminates a JobEnvelope's variant. JobEnvelope is a tagged
// union, not a base type with virtual dispatch: the Worker Pool switches
// on Kind rather than doing any reflection-driven dispatch.
type JobKind string

const (
	JobKindCommand JobKind = "Command"
	JobKindNotify  JobKind = "Notify"
)

// CommandJob carries a single server-issued RequestCommand awaiting a typed
// handler invocation. Args holds the args as the RPC Link received them (a
// json.RawMessage); the handler the Command Dispatcher selects decodes them
// once into its typed request.
type CommandJob struct {
	RequestID string
	Command   string
	Args      any
}

// NotifyJob carries a hook-triggered notification: version calc + fetch +
// ahead/behind for one repository, fire-and-forget.
type NotifyJob struct {
	RepositoryID   int64
	WorkspaceID    int64
	RepositoryPath string
}

// JobEnvelope is the unit of work flowing through the Agent's Job Queue.
// Exactly one of Command or Notify is set, selected by Kind.
type JobEnvelope struct {
	Kind    JobKind
	Command *CommandJob
	Notify  *NotifyJob
}

// NewCommandEnvelope builds a Command-kind envelope.
func NewCommandEnvelope(requestID, command string, args any) JobEnvelope {
	return JobEnvelope{
		Kind:    JobKindCommand,
		Command: &CommandJob{RequestID: requestID, Command: command, Args: args},
	}
}

// NewNotifyEnvelope builds a Notify-kind envelope.
func NewNotifyEnvelope(repositoryID, workspaceID int64, repositoryPath string) JobEnvelope {
	return JobEnvelope{
		Kind:   JobKindNotify,
		Notify: &NotifyJob{RepositoryID: repositoryID, WorkspaceID: workspaceID, RepositoryPath: repositoryPath},
	}
}
