// Package faults classifies errors from the storage network, metadata store,
// and pinning providers, and decides which of them are worth retrying.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Category groups errors by the subsystem that produced them.
type Category string

const (
	Network        Category = "network"
	StorageNetwork Category = "storage_network"
	MetadataStore  Category = "metadata_store"
	Pinning        Category = "pinning"
	Auth           Category = "auth"
	Validation     Category = "validation"
	Unknown        Category = "unknown"
)

// Error is a classified error with an optional machine-readable code.
type Error struct {
	Category Category
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error without an underlying cause.
func New(cat Category, code, message string) *Error {
	return &Error{Category: cat, Code: code, Message: message}
}

// Wrap classifies an existing error.
func Wrap(cat Category, message string, err error) *Error {
	return &Error{Category: cat, Message: message, Err: err}
}

// substring hints used when a caller hands us an untyped error.
var categoryHints = []struct {
	cat   Category
	hints []string
}{
	{Auth, []string{"unauthorized", "token expired", "invalid token", "credential", "forbidden"}},
	{StorageNetwork, []string{"ipfs", "gateway", "content id", "cid", "chunk", "pin queue"}},
	{MetadataStore, []string{"dynamodb", "pointer", "metadata store", "conditional check"}},
	{Pinning, []string{"pin", "unpin", "pinata"}},
	{Network, []string{"timeout", "connection refused", "connection reset", "no such host", "network", "dns", "eof"}},
	{Validation, []string{"invalid", "malformed", "required", "must be"}},
}

// Classify returns err as a *Error, inferring a category from message
// substrings when the error carries no explicit classification.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	msg := strings.ToLower(err.Error())
	for _, group := range categoryHints {
		for _, hint := range group.hints {
			if strings.Contains(msg, hint) {
				return &Error{Category: group.cat, Message: err.Error(), Err: err}
			}
		}
	}
	return &Error{Category: Unknown, Message: err.Error(), Err: err}
}

// Error codes that are never retried regardless of category: retrying will
// not change the outcome.
var nonRetryableCodes = map[string]bool{
	"not_found":         true,
	"permission_denied": true,
	"already_exists":    true,
	"invalid_credentials": true,
	"token_expired":     true,
	"owner_mismatch":    true,
}

// non-retryable message fragments, for errors arriving without a code.
var nonRetryableHints = []string{
	"not found",
	"permission denied",
	"already exists",
	"invalid credentials",
	"token expired",
}

// Retryable reports whether err is worth retrying. Only network, storage
// network, and metadata store failures qualify, and a deny-list of terminal
// codes always wins.
func Retryable(err error) bool {
	fe := Classify(err)
	if fe == nil {
		return false
	}
	if nonRetryableCodes[fe.Code] {
		return false
	}
	msg := strings.ToLower(fe.Message)
	for _, hint := range nonRetryableHints {
		if strings.Contains(msg, hint) {
			return false
		}
	}
	switch fe.Category {
	case Network, StorageNetwork, MetadataStore:
		return true
	}
	return false
}

// UserMessage maps a classified error to a short message safe to show a
// user. Raw provider errors never surface directly.
func UserMessage(err error) string {
	fe := Classify(err)
	if fe == nil {
		return ""
	}
	switch fe.Category {
	case Network:
		return "Network problem. Check your connection and try again."
	case StorageNetwork:
		return "The storage network is not responding. Your data is safe; try again shortly."
	case MetadataStore:
		return "Could not reach the metadata service. Try again shortly."
	case Pinning:
		return "The pinning service reported a problem."
	case Auth:
		return "Your session is no longer valid. Sign in again."
	case Validation:
		return "That request is not valid."
	default:
		return "Something went wrong. Try again."
	}
}
