package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type SearchKind string

const (
	SearchKindMobile   SearchKind = "mobile"
	SearchKindIDNumber SearchKind = "id_number"
)

// idNumberLength is the length of a national ID number; every other term is
// looked up as a mobile number.
const idNumberLength = 12

func (k SearchKind) Valid() bool {
	return k == SearchKindMobile || k == SearchKindIDNumber
}

// ClassifyTerm trims the term and picks the lookup kind for it.
func ClassifyTerm(term string) (string, SearchKind, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", "", fmt.Errorf("search term is empty")
	}
	if len(term) == idNumberLength {
		return term, SearchKindIDNumber, nil
	}
	return term, SearchKindMobile, nil
}

type SearchRecord struct {
	ID         string          `json:"id"`
	UserID     int64           `json:"user_id"`
	Term       string          `json:"term"`
	Kind       SearchKind      `json:"kind"`
	Succeeded  bool            `json:"succeeded"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewSearchRecord(userID int64, term string, kind SearchKind, succeeded bool, payload json.RawMessage, now time.Time) *SearchRecord {
	if !succeeded {
		payload = nil
	}
	return &SearchRecord{
		ID:         GenerateSearchID(),
		UserID:     userID,
		Term:       term,
		Kind:       kind,
		Succeeded:  succeeded,
		Payload:    payload,
		OccurredAt: now,
	}
}

// LookupResult is what the external lookup collaborator returns.
type LookupResult struct {
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

type SearchOutcome struct {
	Record    *SearchRecord `json:"record"`
	Charged   bool          `json:"charged"`
	Balance   int64         `json:"balance"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

type HistoryPage struct {
	Records  []*SearchRecord `json:"records"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Pages    int             `json:"pages"`
}
