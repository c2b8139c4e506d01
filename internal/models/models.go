package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType is the closed set of event categories.
type EventType string

const (
	EventEarningsCall       EventType = "Earnings Calls"
	EventConference         EventType = "Conference"
	EventShareholderMeeting EventType = "Shareholder Meeting"
	EventOther              EventType = "Other"
)

// EventTypes lists every valid EventType in display order.
var EventTypes = []EventType{
	EventEarningsCall,
	EventConference,
	EventShareholderMeeting,
	EventOther,
}

// Valid reports whether t is one of the four known categories.
func (t EventType) Valid() bool {
	for _, v := range EventTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Event is one scheduled company event taken from an IR page.
type Event struct {
	EventName string    `json:"eventName"`
	Link      string    `json:"link"`
	Date      string    `json:"date"` // YYYY-MM-DD
	Time      string    `json:"time"` // includes time zone, e.g. "5:30 PM ET"
	EventType EventType `json:"eventType"`
	Ticker    string    `json:"ticker"`
}

// FetchMethod records how a document was retrieved.
type FetchMethod string

const (
	FetchNone     FetchMethod = "none"
	FetchHTTP     FetchMethod = "http"
	FetchRendered FetchMethod = "rendered"
)

// Document is raw page content for one URL.
type Document struct {
	URL       string
	Content   string
	Method    FetchMethod
	FetchedAt time.Time
}

// Empty reports whether the document has no usable content.
func (d Document) Empty() bool {
	return strings.TrimSpace(d.Content) == ""
}

// ErrorKind classifies a failed ticker for presentation.
type ErrorKind string

const (
	ErrorTokenLimit    ErrorKind = "TOKEN_LIMIT_EXCEEDED"
	ErrorInvalidFormat ErrorKind = "INVALID_FORMAT"
	ErrorGeneric       ErrorKind = "ERROR"
)

// OutcomeError describes why a ticker produced no events.
type OutcomeError struct {
	Kind    ErrorKind
	Message string
}

// Outcome is the final result for one ticker. Exactly one of Events or Err
// is meaningful: a nil Err means success, even with zero events.
type Outcome struct {
	Ticker    string
	IRPageURL string
	Events    []Event
	Err       *OutcomeError
}

// Succeeded builds a success outcome. A nil events slice becomes empty.
func Succeeded(ticker, irPageURL string, events []Event) Outcome {
	if events == nil {
		events = []Event{}
	}
	return Outcome{Ticker: ticker, IRPageURL: irPageURL, Events: events}
}

// Failed builds a failure outcome.
func Failed(ticker, irPageURL string, kind ErrorKind, message string) Outcome {
	return Outcome{
		Ticker:    ticker,
		IRPageURL: irPageURL,
		Err:       &OutcomeError{Kind: kind, Message: message},
	}
}

// Failed reports whether the outcome carries an error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// ErrorLabel is the presentation value of the error: the kind for the two
// distinguished conditions, the message otherwise.
func (o Outcome) ErrorLabel() string {
	if o.Err == nil {
		return ""
	}
	if o.Err.Kind == ErrorGeneric {
		return o.Err.Message
	}
	return string(o.Err.Kind)
}

type outcomeJSON struct {
	Ticker    string   `json:"ticker"`
	IRPageURL string   `json:"irPageUrl"`
	Events    *[]Event `json:"events,omitempty"`
	Error     string   `json:"error,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}

// MarshalJSON encodes either events or error, never both. A successful
// outcome always carries an events array, empty or not.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{Ticker: o.Ticker, IRPageURL: o.IRPageURL}
	if o.Err != nil {
		out.Error = o.ErrorLabel()
		if o.Err.Kind != ErrorGeneric {
			out.Detail = o.Err.Message
		}
	} else {
		events := o.Events
		if events == nil {
			events = []Event{}
		}
		out.Events = &events
	}
	return json.Marshal(out)
}
