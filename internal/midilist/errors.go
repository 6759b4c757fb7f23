package midilist

import "errors"

// ErrInvalidParameter is returned when a mutation is rejected before any
// state change, e.g. pitch or velocity out of range.
var ErrInvalidParameter = errors.New("invalid parameter")

// ErrNotAMember is returned when removing or looking up an event that is
// not part of the list.
var ErrNotAMember = errors.New("event is not a member of this list")

// ErrIntegrity signals an internally detected ordering or pairing
// inconsistency. It indicates a programming defect, not a recoverable
// condition.
var ErrIntegrity = errors.New("integrity violation")
