package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-playground/validator/v10"

	"github.com/TobiSchelling/irevents/internal/models"
)

var validate = validator.New()

type response struct {
	Events []record `json:"events" validate:"required,dive"`
}

type record struct {
	EventName string `json:"eventName" validate:"required"`
	Link      string `json:"link" validate:"required,http_url"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time"`
	EventType string `json:"eventType" validate:"required,oneof='Earnings Calls' 'Conference' 'Shareholder Meeting' 'Other'"`
	Ticker    string `json:"ticker" validate:"required"`
}

// events normalizes the decoded records, validates all of them and converts
// them to models. A single bad record fails the batch.
func (r *response) events(ticker, sourceURL string) ([]models.Event, error) {
	for i := range r.Events {
		r.Events[i].normalize(ticker, sourceURL)
	}
	if err := validate.Struct(r); err != nil {
		return nil, describe(err)
	}

	events := make([]models.Event, len(r.Events))
	for i, rec := range r.Events {
		events[i] = models.Event{
			EventName: rec.EventName,
			Link:      rec.Link,
			Date:      rec.Date,
			Time:      rec.Time,
			EventType: models.EventType(rec.EventType),
			Ticker:    rec.Ticker,
		}
	}
	return events, nil
}

func (r *record) normalize(ticker, sourceURL string) {
	r.EventName = strings.TrimSpace(r.EventName)
	r.Time = strings.TrimSpace(r.Time)
	r.EventType = strings.TrimSpace(r.EventType)
	r.Ticker = ticker
	r.Date = normalizeDate(r.Date)
	r.Link = resolveLink(r.Link, sourceURL)
}

// normalizeDate rewrites any recognizable date as YYYY-MM-DD. Anything
// unparseable is left for validation to reject.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if _, err := time.Parse(time.DateOnly, s); err == nil {
		return s
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return s
	}
	return t.Format(time.DateOnly)
}

// resolveLink makes relative links absolute against the page they came from
// and substitutes the page itself when no link was given or the link is not
// http(s), such as "javascript:void(0)".
func resolveLink(link, sourceURL string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return sourceURL
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	if ref.Scheme != "" && !isHTTP(ref.Scheme) {
		if sourceURL == "" {
			return link
		}
		return sourceURL
	}
	if ref.IsAbs() || sourceURL == "" {
		return link
	}
	base, err := url.Parse(sourceURL)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}

func isHTTP(scheme string) bool {
	return strings.EqualFold(scheme, "http") || strings.EqualFold(scheme, "https")
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %q)", strings.TrimPrefix(fe.Namespace(), "response."), fe.Tag(), fmt.Sprint(fe.Value())))
	}
	return errors.New(strings.Join(msgs, "; "))
}
