package relay

import (
	"bytes"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// serveSSE streams relayed payloads as Server-Sent Events, one "message"
// event per payload.
//
// Every write carries a deadline so a stalled client cannot pin the handler
// after the hub or the server has moved on.
func (r *Relay) serveSSE(w http.ResponseWriter, req *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				r.logger.Debug("sse write deadlines not supported", zap.Error(err))
				deadlinesSupported = false
			}
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := r.hub.NewClient(TransportSSE)
	if err := r.hub.Register(c); err != nil {
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}
	defer r.hub.Unregister(c)

	// comment line so the client sees the stream open before the first event
	if err := writeAndFlush([]byte(": connected\n\n")); err != nil {
		return
	}

	for {
		select {
		case msg := <-c.Send():
			if err := writeAndFlush(formatEvent(msg)); err != nil {
				r.logger.Debug("sse write failed", zap.String("client", c.ID()), zap.Error(err))
				return
			}

		case <-c.Done():
			return

		case <-req.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// formatEvent frames payload as a "message" event. Multi-line payloads get
// one data field per line, which clients rejoin with newlines. CRLF, CR and
// LF all end a line in an event stream, so all three split the payload.
func formatEvent(payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("event: message\n")
	for {
		i := bytes.IndexAny(payload, "\r\n")
		if i < 0 {
			break
		}
		writeData(&buf, payload[:i])
		if payload[i] == '\r' && i+1 < len(payload) && payload[i+1] == '\n' {
			i++
		}
		payload = payload[i+1:]
	}
	writeData(&buf, payload)
	buf.WriteByte('\n')
	return buf.Bytes()
}

func writeData(buf *bytes.Buffer, line []byte) {
	buf.WriteString("data: ")
	buf.Write(line)
	buf.WriteByte('\n')
}
