package prober

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"

	"PingTower/internal/scheduler/models"
)

// failureKind is the error taxonomy used to decide retries.
type failureKind int

const (
	failureNone failureKind = iota
	failureTimeout
	failureRefused
	failureUnknownHost
	failureInvalidRequest
	failureCancelled
	failureUnexpected
)

func (k failureKind) retryable() bool {
	return k == failureTimeout || k == failureRefused
}

func statusForCode(code int) models.Status {
	if code >= 200 && code < 400 {
		return models.StatusUp
	}
	// 4xx and 5xx mean the service answered with an error; anything else is
	// not a usable answer either.
	return models.StatusDown
}

func retryableCode(code int) bool {
	return code >= 500 && code < 600
}

// classifyError maps a transport error to a status, a message and its failure kind.
func classifyError(err error) (models.Status, string, failureKind) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return models.StatusTimeout, "Request timeout", failureTimeout
		}
		return models.StatusDown, fmt.Sprintf("Unknown host: %s", dnsErr.Name), failureUnknownHost
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.StatusTimeout, "Request timeout", failureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.StatusTimeout, "Request timeout", failureTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return models.StatusDown, fmt.Sprintf("Connection refused: %s", rootMessage(err)), failureRefused
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return models.StatusDown, fmt.Sprintf("Connection failed: %s", rootMessage(err)), failureRefused
	}

	if errors.Is(err, context.Canceled) {
		return models.StatusError, "Probe cancelled", failureCancelled
	}

	return models.StatusError, fmt.Sprintf("Unexpected error: %s", rootMessage(err)), failureUnexpected
}

func rootMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
