package api

import (
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The daemon binds to loopback; origin checks add nothing there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream tails the terminal's pipe-pane log over a websocket.
// Existing content is replayed first, then the stream follows appends,
// woken by fsnotify with a polling fallback.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.terminals.Get(id); err != nil {
		writeError(w, err)
		return
	}
	logPath := s.terminals.LogPath(id)

	file, err := os.Open(logPath)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no log for terminal " + id})
		return
	}
	defer file.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("stream %s: upgrade: %v", id, err)
		return
	}
	defer conn.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("stream %s: watcher: %v", id, err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(logPath); err != nil {
		log.Printf("stream %s: watch %s: %v", id, logPath, err)
		return
	}

	// Reader side only surfaces disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 4096)
	var offset int64
	flush := func() bool {
		for {
			n, err := file.ReadAt(buf, offset)
			if n > 0 {
				offset += int64(n)
				if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					return false
				}
			}
			if err == io.EOF {
				return true
			}
			if err != nil {
				log.Printf("stream %s: read: %v", id, err)
				return false
			}
		}
	}

	if !flush() {
		return
	}

	// Fallback ticker covers editors/filesystems that coalesce events.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write != 0 {
				if !flush() {
					return
				}
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("stream %s: watch error: %v", id, err)
		case <-ticker.C:
			if !flush() {
				return
			}
		}
	}
}
