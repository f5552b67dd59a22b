package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/flockwatch/internal/store"
	"github.com/jpalmerr/flockwatch/internal/transport"
)

// CommandPath is the service path commands are sent to, relative to the
// base URL.
const CommandPath = "/jetson/command"

// user-visible messages written to the device status
const (
	defaultAckFormat     = "Comando '%s' enviado"
	defaultRejectMessage = "Falha ao enviar comando"
	communicationFailure = "communication failure"
	statusField          = "status"
	detailField          = "detail"
)

// ErrInvalidAction is returned by [Dispatcher.Send] for an action other than
// [ActionStart] or [ActionStop]. No request is made and the store is not
// touched.
var ErrInvalidAction = errors.New("invalid action")

// Action is a command understood by the remote device.
type Action string

const (
	// ActionStart asks the device to start counting.
	ActionStart Action = "start"

	// ActionStop asks the device to stop counting.
	ActionStop Action = "stop"
)

// Actions lists every recognized action.
var Actions = []Action{ActionStart, ActionStop}

// ParseAction validates s as an [Action].
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStart, ActionStop:
		return a, nil
	default:
		return "", fmt.Errorf("%w %q (expected %q or %q)", ErrInvalidAction, s, ActionStart, ActionStop)
	}
}

// Outcome is the reconciled result of one dispatch.
//
// Accepted reports whether the service acknowledged the command; Message is
// the text written to the device status in either case.
type Outcome struct {
	// ID correlates the dispatch with its log lines.
	ID string `json:"id"`

	// Action is the command that was sent.
	Action Action `json:"action"`

	// Accepted is true when the service answered with a 2xx status.
	Accepted bool `json:"accepted"`

	// Message is the acknowledgement or the rejection reason.
	Message string `json:"message"`

	// Err is the transport failure behind a rejection, if any.
	Err error `json:"-"`
}

// Status returns the device status this outcome was reconciled into.
func (o Outcome) Status() store.DeviceStatus {
	if o.Accepted {
		return store.Acknowledged(o.Message)
	}
	return store.Error(o.Message)
}

// Dispatcher sends commands and writes their outcome into a [store.Store].
//
// Dispatcher is safe for concurrent use. Concurrent sends are not
// serialized: each one writes its final status when it completes, so the
// last send to finish determines the stored status.
type Dispatcher struct {
	fetcher transport.Fetcher
	store   store.Store
	baseURL string
	logger  *slog.Logger
}

// NewDispatcher creates a [Dispatcher] for the service at baseURL.
// A nil logger uses slog.Default.
func NewDispatcher(fetcher transport.Fetcher, st store.Store, baseURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		fetcher: fetcher,
		store:   st,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// CommandURL returns the request URL for action.
func (d *Dispatcher) CommandURL(action Action) string {
	return d.baseURL + CommandPath + "?action=" + url.QueryEscape(string(action))
}

// Send dispatches action and reconciles the answer into the store.
//
// The device status is set to sent(action) before the request and replaced
// exactly once before Send returns:
//   - 2xx: acknowledged with the body's "status" field, or a default text
//   - non-2xx: error with the body's "detail" field, or a default text
//   - network or parse failure: error("communication failure")
//
// The only error returned is [ErrInvalidAction], for which nothing is sent.
func (d *Dispatcher) Send(ctx context.Context, action string) (Outcome, error) {
	a, err := ParseAction(action)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{ID: uuid.NewString(), Action: a}
	target := d.CommandURL(a)

	d.store.SetDeviceStatus(store.Sent(string(a)))

	start := time.Now()
	payload, err := d.fetcher.FetchJSON(ctx, target)
	latency := time.Since(start)

	if err == nil {
		outcome.Accepted = true
		outcome.Message = stringField(payload, statusField, fmt.Sprintf(defaultAckFormat, a))
	} else {
		outcome.Err = err
		outcome.Message = rejectionMessage(err)
	}

	d.store.SetDeviceStatus(outcome.Status())

	attrs := []any{
		"correlation_id", outcome.ID,
		"action", string(a),
		"url", target,
		"latency_ms", latency.Milliseconds(),
		"message", outcome.Message,
	}
	if outcome.Err != nil {
		d.logger.Warn("command rejected", append(attrs, "error", outcome.Err.Error())...)
	} else {
		d.logger.Info("command acknowledged", attrs...)
	}

	return outcome, nil
}

// rejectionMessage maps a transport failure to the user-visible text.
func rejectionMessage(err error) string {
	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) {
		payload, decodeErr := transport.DecodeJSON(httpErr.Body)
		if decodeErr != nil {
			return defaultRejectMessage
		}
		return stringField(payload, detailField, defaultRejectMessage)
	}
	return communicationFailure
}

// stringField returns payload[field] when payload is an object holding a
// non-empty string there, and fallback otherwise.
func stringField(payload any, field, fallback string) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return fallback
	}
	s, ok := obj[field].(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}
