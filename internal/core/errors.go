package core

import "errors"

// ErrSlotTaken is returned by the store when a conditional hold insert
// finds the requested range already occupied. Callers treat it as expected
// control flow and move on to the next candidate slot.
var ErrSlotTaken = errors.New("time slot already held or booked")

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")
