// Package supervisor owns retry, dead-letter and queue health policy for sync tasks.
package supervisor

import (
	"net/http"

	"stocksync-api/internal/syncerr"
)

// Class is the retry class of a failure.
type Class string

const (
	// ClassTransient failures are retried automatically.
	ClassTransient Class = "transient"
	// ClassAuth failures are retried after the remote session is invalidated.
	ClassAuth Class = "auth"
	// ClassPermanent failures are dead-lettered for manual action.
	ClassPermanent Class = "permanent"
)

// weight ranks classes in recommendations; systemic problems first.
func (c Class) weight() int {
	switch c {
	case ClassAuth:
		return 10
	case ClassPermanent:
		return 5
	default:
		return 1
	}
}

// Classify maps an error to its retry class using its kind tag.
func Classify(err error) Class {
	switch syncerr.KindOf(err) {
	case syncerr.KindAuth:
		return ClassAuth
	case syncerr.KindUnresolvedItem, syncerr.KindValidation:
		return ClassPermanent
	case syncerr.KindRemoteServer:
		status := syncerr.StatusOf(err)
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
			return ClassPermanent
		}
		return ClassTransient
	default:
		// connection, malformed_response, internal
		return ClassTransient
	}
}
