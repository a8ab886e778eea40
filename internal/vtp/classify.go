package vtp

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// ParseError wraps an XML parse failure. The raw payload is preserved so
// callers can log it base64-encoded, per spec §4.3 step 1 (protects
// non-UTF-8 bytes from mangling the log line).
type ParseError struct {
	Payload []byte
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vtp: failed to parse XML payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Classify parses payload as XML and identifies its message kind (C3).
// On parse failure it returns a *ParseError and logs the payload
// base64-encoded at error level; the caller is expected to unwind the
// connection, matching original_source/gcn/voeventclient.py's
// _ingest_packet, which re-raises XMLSyntaxError after logging.
func Classify(log *slog.Logger, payload []byte) (Message, *etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil {
		log.Error("failed to parse XML payload",
			"error", err,
			"payload_base64", base64.StdEncoding.EncodeToString(payload))
		return Message{}, nil, &ParseError{Payload: payload, Err: err}
	}

	root := doc.Root()
	if root == nil {
		log.Error("XML payload has no root element")
		return Message{}, nil, &ParseError{Payload: payload, Err: fmt.Errorf("empty document")}
	}

	switch {
	case root.Tag == "Transport" && transportNamespaces[rootNamespaceURI(root)]:
		return classifyTransport(log, root), root, nil
	case root.Tag == "VOEvent" && voeventNamespaces[rootNamespaceURI(root)]:
		return classifyVOEvent(log, root), root, nil
	default:
		log.Error("received XML document with unrecognized root tag",
			"tag", qualifiedName(root), "namespace", rootNamespaceURI(root))
		return Message{Kind: KindUnknown}, root, nil
	}
}

func classifyTransport(log *slog.Logger, root *etree.Element) Message {
	roleAttr := root.SelectAttr("role")
	if roleAttr == nil {
		log.Error("received transport message without a role")
		return Message{Kind: KindTransportOther}
	}
	if roleAttr.Value != roleIamalive {
		log.Error("received transport message with unrecognized role", "role", roleAttr.Value)
		return Message{Kind: KindTransportOther}
	}

	origin := ""
	if el := root.FindElement("./Origin"); el != nil {
		origin = el.Text()
	}
	return Message{Kind: KindTransportIamalive, Origin: origin}
}

func classifyVOEvent(log *slog.Logger, root *etree.Element) Message {
	ivornAttr := root.SelectAttr("ivorn")
	if ivornAttr == nil {
		log.Error("received voevent message without ivorn")
		return Message{Kind: KindVOEventNoIVORN}
	}
	return Message{Kind: KindVOEvent, IVORN: ivornAttr.Value}
}

// GetNoticeType extracts the integer GCN packet type from a parsed VOEvent,
// via ./What/Param[@name='Packet_Type']/@value. Its result is undefined
// (ok == false) for non-VOEvent payloads, matching spec §4.3's notice-type
// extraction note.
func GetNoticeType(root *etree.Element) (noticeType int, ok bool) {
	param := root.FindElement("./What/Param[@name='Packet_Type']")
	if param == nil {
		return 0, false
	}
	value := strings.TrimSpace(param.SelectAttrValue("value", ""))
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// qualifiedName renders an element's tag as written in the document
// (prefix:local, or just local when unprefixed), for log messages only.
func qualifiedName(el *etree.Element) string {
	if el.Space == "" {
		return el.Tag
	}
	return el.Space + ":" + el.Tag
}

// rootNamespaceURI resolves el's namespace prefix (or the default
// namespace, if el.Space is empty) to its declared URI by scanning el's
// own attributes for the corresponding xmlns binding. Every VTP message
// this protocol produces declares its namespace directly on the root
// element (see the templates in spec §6.2 and the VOEvent examples in
// original_source), so a root-local scan is sufficient; there is no need
// to walk ancestor elements the way a general-purpose namespace resolver
// would.
func rootNamespaceURI(el *etree.Element) string {
	if el.Space == "" {
		if a := el.SelectAttr("xmlns"); a != nil {
			return a.Value
		}
		return ""
	}
	for _, a := range el.Attr {
		if a.Space == "xmlns" && a.Key == el.Space {
			return a.Value
		}
	}
	return ""
}
