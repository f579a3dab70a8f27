package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeDeadline     = 5 * time.Second
	messageBufferSize = 64
)

// clientWriter is the only goroutine that writes to its connection. Socket deadlines
// use wall-clock time since the kernel enforces them.
type clientWriter struct {
	connection  *websocket.Conn
	sendChannel chan []byte
	pingChannel chan struct{}
	doneChannel chan struct{}
	exited      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newClientWriter(connection *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		sendChannel: make(chan []byte, messageBufferSize),
		pingChannel: make(chan struct{}, 1),
		doneChannel: make(chan struct{}),
		exited:      make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	defer cw.wg.Done()
	defer close(cw.exited)

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = cw.connection.Close()
				return
			}
		case <-cw.pingChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = cw.connection.Close()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// send enqueues msg without blocking. It returns false if the buffer is full.
func (cw *clientWriter) send(msg []byte) bool {
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) ping() {
	select {
	case cw.pingChannel <- struct{}{}:
	default:
	}
}

func (cw *clientWriter) isOpen() bool {
	select {
	case <-cw.doneChannel:
		return false
	case <-cw.exited:
		return false
	default:
		return true
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		// Signal the run goroutine to exit first
		close(cw.doneChannel)

		// Wait for run goroutine to exit before writing close frame
		// This prevents concurrent writes to the WebSocket connection
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)

		_ = cw.connection.Close()
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(time.Now().Add(writeDeadline))
}
