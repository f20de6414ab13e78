// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package revert defines the protocol rejection taxonomy. A *revert.Error
// means the call was well formed but the protocol refused it; anything
// else bubbling out of the engine is an infrastructure failure.
package revert

import (
	"errors"
)

// Error is a protocol rejection with a stable reason string.
type Error struct {
	reason string
}

// New creates a rejection with the given reason.
func New(reason string) *Error {
	return &Error{reason: reason}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.reason
}

// Reason returns the machine-readable reason string.
func (e *Error) Reason() string {
	return e.reason
}

// Is reports whether err is a protocol rejection.
func Is(err error) bool {
	if err == nil {
		return false
	}
	var re *Error
	return errors.As(err, &re)
}

// Authorization.
var (
	ErrNotAdmin            = New("not admin")
	ErrNotOwnerNorDelegate = New("not owner nor delegate")
)

// Eligibility.
var (
	ErrVoterHasNoLocks          = New("voter has no locks")
	ErrNoBribesForSelectedGauge = New("no bribes for selected gauge")
)

// Stage sequencing.
var (
	ErrSettlementPending       = New("settlement pending")
	ErrAlreadyUpdatedThisEpoch = New("already updated this epoch")
	ErrAlreadyChargedThisEpoch = New("already charged this epoch")
	ErrAlreadySettledThisEpoch = New("already settled this epoch")
	ErrPriorStageNotComplete   = New("prior stage not complete")
)

// Budget.
var ErrBudgetExceeded = New("budget exceeded")

// Input validation.
var (
	ErrLengthMismatch      = New("length mismatch")
	ErrNonExistentGauge    = New("non existent gauge")
	ErrInactiveGauge       = New("inactive gauge")
	ErrNonWhitelistedToken = New("non whitelisted token")
	ErrInvalidBPS          = New("invalid bps")
	ErrInvalidAmount       = New("invalid amount")
	ErrInvalidRecipient    = New("invalid recipient")
	ErrInvalidParam        = New("invalid param")
	ErrAlreadyWhitelisted  = New("already whitelisted")
	ErrAlreadyRegistered   = New("already registered")
	ErrSourceNotFound      = New("source not found")
	ErrAlreadyPaused       = New("already paused")
	ErrAlreadyUnpaused     = New("already unpaused")
)

// State.
var (
	ErrNothingToClaim      = New("nothing to claim")
	ErrAllocationNotFound  = New("allocation not found")
	ErrInsufficientBalance = New("insufficient balance")
)
