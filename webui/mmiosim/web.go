package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"io"
	"io/fs"
	"io/ioutil"
	"log"
	"mmiosim/interfaces"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	broadcastBacklog = 256
	socketBacklog    = 64
)

type WebServer struct {
	listenAddr string

	commandHandler interfaces.ViewCommandHandler

	mux *http.ServeMux

	socketsRw sync.RWMutex
	sockets   []*Socket

	// broadcast channel to all sockets:
	q chan ViewModelUpdate
}

type Socket struct {
	ws   *WebServer
	req  *http.Request
	conn net.Conn

	// write channel:
	q         chan ViewModelUpdate
	done      chan struct{}
	closeOnce sync.Once
}

type ViewModelUpdate struct {
	View      string      `json:"v"`
	ViewModel interface{} `json:"m"`
}

// NewWebServer serves content and a websocket at /ws/ for bidirectional communication with the UI.
func NewWebServer(listenAddr string, content fs.FS) *WebServer {
	s := &WebServer{
		listenAddr: listenAddr,
		mux:        http.NewServeMux(),
		sockets:    make([]*Socket, 0, 2),
		q:          make(chan ViewModelUpdate, broadcastBacklog),
	}

	// handle websockets:
	s.mux.Handle("/ws/", http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(req, rw)
		if err != nil {
			log.Printf("web: upgrade: %v\n", err)
			return
		}

		// create the Socket to handle bidirectional communication:
		socket := NewSocket(s, req, conn)
		s.appendSocket(socket)

		// start by sending all view models to this new socket:
		if s.commandHandler != nil {
			s.commandHandler.NotifyViewTo(socket)
		}
	}))

	// serve the embedded static content:
	s.mux.Handle("/", MaxAge(http.FileServer(http.FS(content))))

	// handle the broadcast channel:
	go s.handleBroadcast()

	return s
}

func (s *WebServer) Handler() http.Handler { return s.mux }

func (s *WebServer) appendSocket(socket *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()
	s.sockets = append(s.sockets, socket)
}

func (s *WebServer) removeSocket(k *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()

	for i, sk := range s.sockets {
		if sk == k {
			s.sockets = append(s.sockets[:i:i], s.sockets[i+1:]...)
			break
		}
	}
}

// Serve listens until ctx is done.
func (s *WebServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web: serving on %s\n", s.listenAddr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *WebServer) NotifyView(view string, viewModel interface{}) {
	// send to the broadcast channel so that all connected websockets get the update:
	s.q <- ViewModelUpdate{
		View:      view,
		ViewModel: viewModel,
	}
}

func (s *WebServer) ProvideViewCommandHandler(commandHandler interfaces.ViewCommandHandler) {
	s.commandHandler = commandHandler
}

func (s *WebServer) handleBroadcast() {
	// read updates from the broadcast channel:
	for u := range s.q {
		s.socketsRw.RLock()
		sockets := s.sockets
		s.socketsRw.RUnlock()

		// broadcast to all connected sockets:
		for _, k := range sockets {
			k.send(u)
		}
	}
}

func NewSocket(s *WebServer, req *http.Request, conn net.Conn) *Socket {
	k := &Socket{
		ws:   s,
		req:  req,
		conn: conn,
		q:    make(chan ViewModelUpdate, socketBacklog),
		done: make(chan struct{}),
	}

	go k.readHandler()
	go k.writeHandler()

	return k
}

func (k *Socket) NotifyView(view string, viewModel interface{}) {
	k.send(ViewModelUpdate{
		View:      view,
		ViewModel: viewModel,
	})
}

// send never blocks the caller; a socket that cannot keep up loses the update.
func (k *Socket) send(u ViewModelUpdate) {
	select {
	case k.q <- u:
	case <-k.done:
	default:
		log.Printf("web: socket %s: backlog full; dropped '%s' update\n", k.req.RemoteAddr, u.View)
	}
}

func (k *Socket) close() {
	k.closeOnce.Do(func() {
		close(k.done)
		_ = k.conn.Close()
		k.ws.removeSocket(k)
	})
}

type CommandRequest struct {
	View    string          `json:"v"`
	Command string          `json:"c"`
	Args    json.RawMessage `json:"a"`
}

func (k *Socket) readHandler() {
	// the reader is in control of the lifetime of the socket:
	defer k.close()

	r := wsutil.NewReader(k.conn, ws.StateServerSide)

	for {
		hdr, err := r.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("web: error reading next websocket frame: %v\n", err)
			}
			break
		}
		if hdr.OpCode == ws.OpClose {
			break
		}

		switch hdr.OpCode {
		case ws.OpText:
			if err = k.handleText(r); err != nil {
				log.Printf("web: %v\n", err)
			}
		case ws.OpBinary:
			if err = k.handleBinary(r); err != nil {
				log.Printf("web: %v\n", err)
			}
		}

		// skip whatever the handler left unread:
		if err = r.Discard(); err != nil {
			log.Printf("web: discard: %v\n", err)
			break
		}
	}
}

func (k *Socket) handleText(r io.Reader) error {
	// read a JSON command request:
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return fmt.Errorf("error reading json command request: %w", err)
	}
	var creq CommandRequest
	if err = json.Unmarshal(b, &creq); err != nil {
		return fmt.Errorf("error decoding json command request: %w", err)
	}

	// command handler:
	if k.ws.commandHandler == nil {
		return fmt.Errorf("no view command handler provided")
	}

	ce, err := k.ws.commandHandler.CommandFor(creq.View, creq.Command)
	if err != nil {
		return fmt.Errorf("error handling json command: %w", err)
	}

	// instantiate a specific args type for the command:
	args := ce.CreateArgs()
	if args != nil && len(creq.Args) > 0 {
		// deserialize json:
		if err = json.Unmarshal(creq.Args, args); err != nil {
			return fmt.Errorf("error deserializing json command args: %w", err)
		}
	}

	// execute the command:
	if err = ce.Execute(args); err != nil {
		return fmt.Errorf("error handling json command within executor: %w", err)
	}
	return nil
}

// handleBinary reads a binary command frame:
//
//	[1] view name string length
//	[n] view name string
//	[1] command name string length
//	[n] command name string
//	[...] remaining data sent directly as []byte arg to command executor
func (k *Socket) handleBinary(r io.Reader) error {
	viewName, err := readTinyString(r)
	if err != nil {
		return fmt.Errorf("error reading binary command view name: %w", err)
	}
	commandName, err := readTinyString(r)
	if err != nil {
		return fmt.Errorf("error reading binary command command name: %w", err)
	}

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return fmt.Errorf("error reading binary command payload: %w", err)
	}

	// command handler:
	if k.ws.commandHandler == nil {
		return fmt.Errorf("no view command handler provided")
	}

	ce, err := k.ws.commandHandler.CommandFor(viewName, commandName)
	if err != nil {
		return fmt.Errorf("error handling binary command: %w", err)
	}

	// execute the command:
	if err = ce.Execute(data); err != nil {
		return fmt.Errorf("error handling binary command within executor: %w", err)
	}
	return nil
}

func readTinyString(buf io.Reader) (value string, err error) {
	var length [1]byte
	if _, err = io.ReadFull(buf, length[:]); err != nil {
		return
	}

	valueBytes := make([]byte, length[0])
	if _, err = io.ReadFull(buf, valueBytes); err != nil {
		return
	}

	value = string(valueBytes)
	return
}

func (k *Socket) writeHandler() {
	var (
		w       = wsutil.NewWriter(k.conn, ws.StateServerSide, ws.OpText)
		encoder = json.NewEncoder(w)
	)

	// wait for ViewModelUpdates on the channel:
	for {
		select {
		case <-k.done:
			return
		case u := <-k.q:
			var err error
			if err = encoder.Encode(&u); err != nil {
				log.Printf("web: encode '%s': %v\n", u.View, err)
				continue
			}
			if err = w.Flush(); err != nil {
				log.Printf("web: flush: %v\n", err)
				k.close()
				return
			}
		}
	}
}
