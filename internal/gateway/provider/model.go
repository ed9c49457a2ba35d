package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. ProviderID is set on assistant entries so
// every participant can tell who said what.
type Message struct {
	Role       Role   `json:"role"`
	ProviderID string `json:"provider_id,omitempty"`
	Content    string `json:"content"`
}

// ResponseFormat describes the structured output a client should request
// from its backend when the backend supports it.
type ResponseFormat struct {
	Name   string
	Schema map[string]any
}

// Client sends a whole transcript to one reasoning backend and returns its
// raw reply text.
type Client interface {
	ID() string
	Enabled() bool
	Send(ctx context.Context, transcript []Message) (string, error)
}

var (
	// ErrDisabled is returned by clients constructed without credentials.
	ErrDisabled = errors.New("provider disabled: no api key configured")
	// ErrSchemaRejected marks a backend refusing the requested output mode;
	// adapters catch it and retry in a looser mode.
	ErrSchemaRejected = errors.New("structured output mode rejected")
)

type ErrorKind string

const (
	KindDisabled ErrorKind = "disabled"
	KindAuth     ErrorKind = "auth"
	KindNetwork  ErrorKind = "network"
	KindTimeout  ErrorKind = "timeout"
	KindStatus   ErrorKind = "status"
	KindEmpty    ErrorKind = "empty"
	KindPanic    ErrorKind = "panic"
)

// Error is the ProviderError of the decision pipeline: never fatal, always
// attributed to one provider.
type Error struct {
	ProviderID string
	Kind       ErrorKind
	Status     int
	Err        error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s: %s (status=%d): %v", e.ProviderID, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.ProviderID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err for providerID. Context errors become timeouts.
func Wrap(providerID string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	kind := KindNetwork
	switch {
	case errors.Is(err, ErrDisabled):
		kind = KindDisabled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	}
	return &Error{ProviderID: providerID, Kind: kind, Err: err}
}

func statusError(providerID string, status int, msg string) error {
	kind := KindStatus
	if status == 401 || status == 403 {
		kind = KindAuth
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "no error message"
	}
	return &Error{ProviderID: providerID, Kind: kind, Status: status, Err: errors.New(msg)}
}

// looksLikeFormatRejection reports whether a 4xx body complains about the
// response_format / schema request rather than the conversation itself.
func looksLikeFormatRejection(status int, msg string) bool {
	if status != 400 && status != 422 {
		return false
	}
	lower := strings.ToLower(msg)
	for _, needle := range []string{"response_format", "json_schema", "schema", "json mode", "structured", "prefill", "assistant message"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
