package domain

import "time"

// AlertRecord is the audit trail entry written for every dispatched alert.
type AlertRecord struct {
	ID             string // record UUID
	Address        string
	Symbol         string
	Score          float64
	Recommendation Recommendation
	Message        string // rendered notification text
	SentAt         time.Time
}
