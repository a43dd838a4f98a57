package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks page-level transport failures: timeouts, DNS,
	// connection resets and non-2xx responses.
	ErrNetwork = errors.New("network error")
	// ErrParse marks pages whose structure does not match what the
	// extractor expects.
	ErrParse = errors.New("parse error")
	// ErrConfiguration marks invalid run configuration. It is fatal.
	ErrConfiguration = errors.New("configuration error")
)

// ParseError reports a missing structural element or record field.
type ParseError struct {
	Field  string // "title", "authors", "abstract", "link", "dl", ...
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("parse error: %s: %s", e.Field, e.Detail)
	}
	return fmt.Sprintf("parse error: missing %s", e.Field)
}

// Is lets errors.Is(err, ErrParse) match any ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// ErrorKind classifies a failure for summaries.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindParse
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	default:
		return KindUnknown
	}
}
