// Package vtp implements the VOEvent Transport Protocol: a length-prefixed
// TCP framing for VOEvent XML payloads, with ack/iamalive control messages,
// a reconnecting client, and the endpoint-pool/backoff strategy that drives
// it.
package vtp

// Kind classifies a parsed Message by its root element.
type Kind int

const (
	// KindUnknown is any XML document whose root element isn't recognized.
	KindUnknown Kind = iota
	// KindTransportIamalive is a Transport root with role="iamalive".
	KindTransportIamalive
	// KindTransportOther is a Transport root with any other (or missing) role.
	KindTransportOther
	// KindVOEvent is a VOEvent v1.1/v2.0 root carrying a usable ivorn.
	KindVOEvent
	// KindVOEventNoIVORN is a VOEvent root missing its ivorn attribute.
	KindVOEventNoIVORN
)

func (k Kind) String() string {
	switch k {
	case KindTransportIamalive:
		return "transport/iamalive"
	case KindTransportOther:
		return "transport/other"
	case KindVOEvent:
		return "voevent"
	case KindVOEventNoIVORN:
		return "voevent/no-ivorn"
	default:
		return "unknown"
	}
}

// Message is the result of classifying one payload (C3).
type Message struct {
	Kind Kind

	// Origin is the Transport <Origin> text, populated for KindTransportIamalive.
	Origin string

	// IVORN is the VOEvent ivorn attribute, populated for KindVOEvent.
	IVORN string
}

// Recognised Transport root namespaces, accepted for compatibility with
// older and alternately-cased deployments of the protocol. Exactly one of
// these (transportNamespaceCanonical, see response.go) is ever emitted.
const (
	transportNamespaceXML1   = "http://telescope-networks.org/xml/Transport/v1.1"
	transportNamespaceSchema = "http://telescope-networks.org/schema/Transport/v1.1"
	transportNamespaceWWW    = "http://www.telescope-networks.org/xml/Transport/v1.1"
	voeventNamespaceV11      = "http://www.ivoa.net/xml/VOEvent/v1.1"
	voeventNamespaceV20      = "http://www.ivoa.net/xml/VOEvent/v2.0"
)

var transportNamespaces = map[string]bool{
	transportNamespaceXML1:   true,
	transportNamespaceSchema: true,
	transportNamespaceWWW:    true,
}

var voeventNamespaces = map[string]bool{
	voeventNamespaceV11: true,
	voeventNamespaceV20: true,
}
