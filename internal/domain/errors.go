package domain

import (
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies domain failures. The set is closed.
type ErrorKind string

const (
	KindDuplicateKey    ErrorKind = "DUPLICATE_KEY"
	KindNotManaged      ErrorKind = "NOT_MANAGED"
	KindCyclicParenting ErrorKind = "CYCLIC_PARENTING"
	KindHasDeployments  ErrorKind = "HAS_DEPLOYMENTS"
	KindNoSuchComponent ErrorKind = "NO_SUCH_COMPONENT"
	KindVersionRedeploy ErrorKind = "VERSION_REDEPLOY"
	KindVersionRollback ErrorKind = "VERSION_ROLLBACK"
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
)

// Entity names used in error reports.
const (
	EntityApp         = "app"
	EntityEnvironment = "environment"
	EntityVersion     = "version"
	EntityDeployment  = "deployment"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrDuplicateKey    = &Error{Kind: KindDuplicateKey}
	ErrNotManaged      = &Error{Kind: KindNotManaged}
	ErrCyclicParenting = &Error{Kind: KindCyclicParenting}
	ErrHasDeployments  = &Error{Kind: KindHasDeployments}
	ErrNoSuchComponent = &Error{Kind: KindNoSuchComponent}
	ErrVersionRedeploy = &Error{Kind: KindVersionRedeploy}
	ErrVersionRollback = &Error{Kind: KindVersionRollback}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
)

// DeploymentRef describes a recorded or candidate deployment in conflict reports.
type DeploymentRef struct {
	AppKey          string    `json:"app_key"`
	EnvironmentName string    `json:"environment"`
	VersionName     string    `json:"version"`
	VersionID       int64     `json:"version_id"`
	DeployedAt      time.Time `json:"deployed_at"`
	TicketReference string    `json:"ticket,omitempty"`
}

// Error is the single error type returned for domain failures.
type Error struct {
	Kind   ErrorKind
	Entity string
	Keys   []string
	// Existing is the recorded deployment a release collided with.
	Existing *DeploymentRef
	// Candidate is the deployment that was refused.
	Candidate *DeploymentRef
	Detail    string
}

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindDuplicateKey:
		fmt.Fprintf(&b, "%s %s already exists", e.entity(), e.keyList())
	case KindNotManaged:
		fmt.Fprintf(&b, "%s %s is not managed", e.entity(), e.keyList())
	case KindCyclicParenting:
		fmt.Fprintf(&b, "setting parent would create a cycle through %s", e.keyList())
	case KindHasDeployments:
		fmt.Fprintf(&b, "%s %s still has deployments", e.entity(), e.keyList())
	case KindNoSuchComponent:
		fmt.Fprintf(&b, "%s is not a component of project %s", e.key(1), e.key(0))
	case KindVersionRedeploy:
		if e.Existing != nil {
			fmt.Fprintf(&b, "version %s of %s was already deployed to %s at %s",
				e.Existing.VersionName, e.Existing.AppKey, e.Existing.EnvironmentName, e.Existing.DeployedAt.UTC().Format(time.RFC3339))
		} else {
			fmt.Fprintf(&b, "version %s is already deployed", e.keyList())
		}
	case KindVersionRollback:
		if e.Existing != nil && e.Candidate != nil {
			fmt.Fprintf(&b, "deploying version %s of %s would roll back newer version %s deployed to %s at %s",
				e.Candidate.VersionName, e.Candidate.AppKey, e.Existing.VersionName, e.Existing.EnvironmentName,
				e.Existing.DeployedAt.UTC().Format(time.RFC3339))
		} else {
			fmt.Fprintf(&b, "version %s would roll back a newer deployment", e.keyList())
		}
	case KindInvalidArgument:
		b.WriteString("invalid argument")
	default:
		b.WriteString(string(e.Kind))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) entity() string {
	if e.Entity == "" {
		return "entity"
	}
	return e.Entity
}

func (e *Error) key(i int) string {
	if i < len(e.Keys) {
		return e.Keys[i]
	}
	return "?"
}

func (e *Error) keyList() string {
	if len(e.Keys) == 0 {
		return "?"
	}
	return strings.Join(e.Keys, ", ")
}

// Forceable reports whether the failure can be overridden by retrying with force.
func (e *Error) Forceable() bool {
	return e.Kind == KindVersionRedeploy || e.Kind == KindVersionRollback
}

// NotManaged builds a not-found failure for the entity identified by keys.
func NotManaged(entity string, keys ...string) *Error {
	return &Error{Kind: KindNotManaged, Entity: entity, Keys: keys}
}

// DuplicateKey builds a uniqueness failure for the entity identified by keys.
func DuplicateKey(entity string, keys ...string) *Error {
	return &Error{Kind: KindDuplicateKey, Entity: entity, Keys: keys}
}

// HasDeployments builds a deletion refusal for the entities identified by keys.
func HasDeployments(entity string, keys ...string) *Error {
	return &Error{Kind: KindHasDeployments, Entity: entity, Keys: keys}
}

// InvalidArgument builds a validation failure.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Detail: fmt.Sprintf(format, args...)}
}
