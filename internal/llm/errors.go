package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInputTooLarge marks a failure caused by the prompt exceeding the
// model's input capacity.
var ErrInputTooLarge = errors.New("input exceeds model limit")

var inputTooLargeSignatures = []string{
	"context_length_exceeded",
	"maximum context length",
	"context window",
	"prompt is too long",
	"request too large",
	"exceeds the maximum number of tokens",
	"input token count",
	"too many tokens",
	"string_above_max_length",
}

// IsInputTooLarge reports whether err is, or reads like, an input-size failure.
func IsInputTooLarge(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInputTooLarge) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range inputTooLargeSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// classify wraps input-size failures with ErrInputTooLarge.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrInputTooLarge) || !IsInputTooLarge(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInputTooLarge, err)
}
