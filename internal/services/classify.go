package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/desertthunder/ytclip/internal/shared"
)

// classifyFetch is the only place fetcher output is interpreted.
//
// A stderr line starting with "ERROR:" that mentions "private" or "unavailable" marks the item
// [Unavailable], whatever the exit status. A missing executable or cancellation is [Fatal];
// any other failure is [Transient].
func classifyFetch(res CommandResult, err error) error {
	if reason, ok := unavailableReason(res.Stderr); ok {
		return NewFailure(Unavailable, reason, err)
	}
	return classifyProcess(res, err)
}

// classifyRender is the only place transcoder output is interpreted.
func classifyRender(res CommandResult, err error) error {
	return classifyProcess(res, err)
}

func classifyProcess(res CommandResult, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewFailure(Fatal, "cancelled", err)
	case errors.Is(err, shared.ErrMissingBinary):
		return NewFailure(Fatal, "executable not found", err)
	}
	return NewFailure(Transient, res.LastStderrLine(), err)
}

func unavailableReason(stderr []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(stderr))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "ERROR:") {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "private") || strings.Contains(lower, "unavailable") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:")), true
		}
	}
	return "", false
}
