package restapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/creack/pty"
	"github.com/gorilla/mux"
)

// handleAttach proxies bytes between the requesting HTTP client and a
// container's console socket. It hijacks the underlying connection
// rather than using a websocket library, since net/http's Hijacker is
// the stdlib-native way to hand a raw duplex connection to application
// code once the HTTP handshake completes.
func (g *Gateway) handleAttach(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	handle, err := g.reg.Console(name)
	if err != nil {
		g.log.Error().Err(err).Str("name", name).Msg("attach failed: no such container")
		writeError(w, engineErrorStatus(err), err.Error())
		return
	}
	if handle.Console == nil {
		writeError(w, http.StatusInternalServerError, "console socket not connected")
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	conn, _, err := hijacker.Hijack()
	if err != nil {
		g.log.Error().Err(err).Str("name", name).Msg("hijack failed")
		return
	}
	defer conn.Close()

	if ws, ok := winsizeFromRequest(r); ok {
		g.log.Debug().Str("name", name).Uint16("cols", ws.Cols).Uint16("rows", ws.Rows).
			Msg("client negotiated terminal size (not yet forwarded to monitor)")
	}

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(handle.Console, conn)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(conn, handle.Console)
		done <- struct{}{}
	}()
	<-done
}

// winsizeFromRequest reads optional `cols`/`rows` query parameters and
// builds the pty.Winsize the client negotiated, so a future terminal
// multiplexer on top of the console proxy can forward it the same way
// the monitor's own pty is resized. Returns ok=false when either
// parameter is absent or unparsable, leaving the console at its
// existing size.
func winsizeFromRequest(r *http.Request) (ws *pty.Winsize, ok bool) {
	cols, err1 := strconv.ParseUint(r.URL.Query().Get("cols"), 10, 16)
	rows, err2 := strconv.ParseUint(r.URL.Query().Get("rows"), 10, 16)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	return &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}, true
}
