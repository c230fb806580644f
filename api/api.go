// Package api serves a soft UART over HTTP.
//
//	GET  /version  build info
//	GET  /status   Status as JSON
//	POST /tx       queue the request body for transmission
//	GET  /rx       everything buffered, up to MaxBody bytes; 204 if nothing
//	GET  /ws       websocket: binary frames in both directions
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/speters/softuart/softuart"
)

// MaxBody limits a single /tx request and a single /rx response.
const MaxBody = 4096

type server struct {
	uart *softuart.UART
	info Info
}

// NewRouter returns the routes for u.
func NewRouter(u *softuart.UART, info Info) *mux.Router {
	s := &server{uart: u, info: info}

	router := mux.NewRouter()
	router.HandleFunc("/version", s.version).Methods("GET")
	router.HandleFunc("/status", s.status).Methods("GET")
	router.HandleFunc("/tx", s.transmit).Methods("POST")
	router.HandleFunc("/rx", s.receive).Methods("GET")
	router.Handle("/ws", websocket.Handler(s.stream))
	return router
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	e.Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(code)
	w.Write([]byte(err.Error()))
}

func (s *server) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info)
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusOf(s.uart))
}

func (s *server) transmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > MaxBody {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	n, err := s.uart.Write(body)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	log.WithField("bytes", n).Debug("queued via HTTP")
	writeJSON(w, http.StatusOK, TxResult{Queued: n})
}

func (s *server) receive(w http.ResponseWriter, r *http.Request) {
	var out []byte
	buf := make([]byte, 256)
	for len(out) < MaxBody {
		n, ok := s.uart.ReadLine(buf[:min(len(buf), MaxBody-len(out)+1)])
		if !ok || n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// stream pumps bytes between the websocket and the UART until either side
// is done.
func (s *server) stream(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()

	logger := log.WithField("remote", ws.Request().RemoteAddr)
	logger.Info("websocket attached")

	go func() {
		defer cancel()
		defer ws.Close()
		buf := make([]byte, 256)
		for {
			n, err := s.uart.ReadBlocking(ctx, buf)
			if err != nil {
				return
			}
			if _, err := ws.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 256)
	for ctx.Err() == nil {
		n, err := ws.Read(buf)
		if n > 0 {
			if _, werr := s.uart.Write(buf[:n]); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	logger.Info("websocket detached")
}
