package job

import (
	"errors"
	"fmt"
	"io/fs"
)

// FailureKind is a stable category for a pipeline failure.
type FailureKind string

const (
	FailureInputMissing     FailureKind = "input_missing"
	FailureDownloadFailed   FailureKind = "download_failed"
	FailureConversionFailed FailureKind = "conversion_failed"
	FailureRenderFailed     FailureKind = "render_failed"
	FailureDeliveryFailed   FailureKind = "delivery_failed"
	FailureUnroutableJob    FailureKind = "unroutable_job"
)

// Error represents a categorized pipeline failure.
type Error struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" && e.Err == nil {
		return string(e.Kind)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError creates a categorized error.
func NewError(kind FailureKind, detail string) error {
	return &Error{Kind: kind, Detail: detail}
}

// WrapError categorizes err, keeping it reachable through errors.Is/As.
func WrapError(kind FailureKind, detail string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the failure category for err when available.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Kind
	}

	if errors.Is(err, fs.ErrNotExist) {
		return FailureInputMissing
	}

	return FailureConversionFailed
}
