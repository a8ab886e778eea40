// Package handlers provides payload-handler adapters for the VTP client:
// notice-type filters, a file archiver, and a channel-based hand-off for
// decoupling handler latency from the connection loop.
//
// original_source/gcn/handlers.py implements include_notice_types,
// exclude_notice_types, and archive as decorators. Go has no decorator
// syntax, so each is re-architected per spec §9 as a higher-order function
// that takes (and returns) a Handler value — the same composition, built
// from ordinary closures instead of inheritance or metaprogramming.
package handlers

import (
	"log/slog"
	"net/url"
	"os"

	"github.com/beevik/etree"
	"github.com/nasa-gcn/pygcn/internal/vtp"
)

// Handler processes one dispatched VOEvent: the raw payload bytes and the
// parsed XML root. It is invoked once per VOEvent, after the ack response
// has already been sent. Defined as an alias of vtp.Handler so adapters in
// this package can be passed directly to vtp.ConnConfig.Handler.
type Handler = vtp.Handler

// IncludeNoticeTypes wraps inner so it only runs when the VOEvent's notice
// type is one of types. Payloads with no extractable notice type are
// dropped silently, matching get_notice_type's behavior of raising (here:
// simply not matching) on a missing Packet_Type param.
func IncludeNoticeTypes(inner Handler, types ...int) Handler {
	set := toSet(types)
	return func(payload []byte, root *etree.Element) {
		if n, ok := vtp.GetNoticeType(root); ok && set[n] {
			inner(payload, root)
		}
	}
}

// ExcludeNoticeTypes wraps inner so it runs for every notice type except
// those in types.
func ExcludeNoticeTypes(inner Handler, types ...int) Handler {
	set := toSet(types)
	return func(payload []byte, root *etree.Element) {
		if n, ok := vtp.GetNoticeType(root); ok && !set[n] {
			inner(payload, root)
		}
	}
}

func toSet(types []int) map[int]bool {
	set := make(map[int]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// Archive writes payload to a file named by the URL-percent-encoded ivorn
// attribute, in the current working directory, truncating any existing
// file of the same name. It mirrors original_source/gcn/handlers.py's
// archive handler exactly, including its filename scheme
// (urllib.parse.quote_plus).
func Archive(log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(payload []byte, root *etree.Element) {
		ivornAttr := root.SelectAttr("ivorn")
		if ivornAttr == nil {
			log.Error("archive handler invoked on payload without ivorn")
			return
		}
		filename := url.QueryEscape(ivornAttr.Value)
		if err := os.WriteFile(filename, payload, 0o644); err != nil {
			log.Error("failed to archive payload", "ivorn", ivornAttr.Value, "error", err)
			return
		}
		log.Info("archived", "ivorn", ivornAttr.Value, "file", filename)
	}
}

// Delivery is one payload handed off through a QueueHandler.
type Delivery struct {
	Payload []byte
	Root    *etree.Element
}

// QueueHandler returns a Handler that non-blockingly enqueues each
// delivery onto a channel, plus the channel itself for a consumer goroutine
// to drain — the Go substitute for original_source/gcn/cmdline.py's
// worker-thread-with-internal-queue pattern (spec §9): the producer side
// (this Handler) only ever enqueues; a separate goroutine of the caller's
// own owns consumption.
//
// If the channel is full, the delivery is logged and dropped rather than
// blocking the connection loop — slow consumers must size bufferSize
// generously or drain faster, never stall the reader.
func QueueHandler(log *slog.Logger, bufferSize int) (Handler, <-chan Delivery) {
	if log == nil {
		log = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	ch := make(chan Delivery, bufferSize)
	h := func(payload []byte, root *etree.Element) {
		select {
		case ch <- Delivery{Payload: payload, Root: root}:
		default:
			log.Warn("dropping delivery, consumer queue is full", "capacity", bufferSize)
		}
	}
	return h, ch
}
