package tracking

import "custody-workbench/internal/domain"

// Step is one marker of the progress sequence.
type Step struct {
	Status domain.TransferStatus `json:"status"`
	Filled bool                  `json:"filled"`
}

// Progress is the rendered lifecycle of a tracked transfer. A failed or
// cancelled transfer shows a banner instead of steps.
type Progress struct {
	Status domain.TransferStatus `json:"status"`
	Steps  []Step                `json:"steps,omitempty"`
	Banner string                `json:"banner,omitempty"`
}

var stepSequence = []domain.TransferStatus{
	domain.TransferStatusPending,
	domain.TransferStatusProcessing,
	domain.TransferStatusCompleted,
}

// NewProgress maps status onto PENDING -> PROCESSING -> COMPLETED.
// Steps up to and including the current one are filled; an unknown or empty
// status fills none.
func NewProgress(status domain.TransferStatus) Progress {
	switch status {
	case domain.TransferStatusFailed:
		return Progress{Status: status, Banner: "Transfer failed"}
	case domain.TransferStatusCancelled:
		return Progress{Status: status, Banner: "Transfer cancelled"}
	}

	reached := -1
	for i, s := range stepSequence {
		if s == status {
			reached = i
		}
	}
	steps := make([]Step, len(stepSequence))
	for i, s := range stepSequence {
		steps[i] = Step{Status: s, Filled: i <= reached}
	}
	return Progress{Status: status, Steps: steps}
}

// Complete reports whether every step is filled.
func (p Progress) Complete() bool {
	return p.Status == domain.TransferStatusCompleted
}
