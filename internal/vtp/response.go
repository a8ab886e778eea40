package vtp

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// transportNamespaceCanonical is the single Transport namespace this client
// emits in responses, even though it accepts all three namespaces in
// message.go on receive. This asymmetry is deliberate (see SPEC_FULL.md §9
// open questions) and must not be "fixed" into using whichever namespace
// the triggering message used.
const transportNamespaceCanonical = transportNamespaceSchema

// roleAck and roleIamalive are the two response roles this client sends.
const (
	roleAck      = "ack"
	roleIamalive = "iamalive"
)

// isoTimestamp formats t the way Python's naive datetime.now().isoformat()
// does: wall-clock time in t's location (local time for the real clock),
// no zone suffix, and a six-digit microsecond fraction only when the
// microsecond part is non-zero. Go has no built-in layout for that exact
// shape, so it's built from a fixed date-time layout plus an optional
// fractional-second suffix.
func isoTimestamp(t time.Time) string {
	s := t.Format("2006-01-02T15:04:05")
	if t.Nanosecond() >= 1000 {
		s += t.Format(".000000")
	}
	return s
}

// formResponse builds the fixed VTP response template of spec.md §6.2,
// substituting role, origin, response (responder IVORN) and a timestamp
// drawn from clock. No XML canonicalization or library round-trip is
// performed — the literal byte layout is the contract, matching
// original_source/gcn/voeventclient.py's _form_response.
func formResponse(clock clockwork.Clock, role, origin, response string) []byte {
	ts := isoTimestamp(clock.Now())
	var b []byte
	b = append(b, "<?xml version='1.0' encoding='UTF-8'?>"...)
	b = append(b, `<trn:Transport role="`...)
	b = append(b, role...)
	b = append(b, `" version="1.0" xmlns:trn="`...)
	b = append(b, transportNamespaceCanonical...)
	b = append(b, `" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="`...)
	b = append(b, transportNamespaceCanonical...)
	b = append(b, ` http://telescope-networks.org/schema/Transport-v1.1.xsd"><Origin>`...)
	b = append(b, origin...)
	b = append(b, `</Origin><Response>`...)
	b = append(b, response...)
	b = append(b, `</Response><TimeStamp>`...)
	b = append(b, ts...)
	b = append(b, `</TimeStamp></trn:Transport>`...)
	return b
}

// formAck builds an ack response for a received VOEvent: origin is the
// event's own IVORN, response is this client's IVORN.
func formAck(clock clockwork.Clock, eventIVORN, clientIVORN string) []byte {
	return formResponse(clock, roleAck, eventIVORN, clientIVORN)
}

// formIamalive builds an iamalive response: origin is the Transport
// message's <Origin> text, response is this client's IVORN.
func formIamalive(clock clockwork.Clock, origin, clientIVORN string) []byte {
	return formResponse(clock, roleIamalive, origin, clientIVORN)
}
