package api

import (
	"log"
	"net/http"
	"os"
	"os/exec"
	"strconv"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"
)

// handleAttach bridges a real `tmux attach-session` PTY over a
// websocket, giving the viewer full terminal semantics (echo, cursor,
// signals). Attachments are read-only unless ?write=1.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.terminals.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writable := r.URL.Query().Get("write") == "1"
	rows := queryUint16(r, "rows", 24)
	cols := queryUint16(r, "cols", 80)

	args := []string{}
	if s.tmuxCfg.Socket != "" {
		args = append(args, "-S", s.tmuxCfg.Socket)
	}
	if writable {
		args = append(args, "attach-session", "-t", t.SessionName)
	} else {
		args = append(args, "attach-session", "-r", "-t", t.SessionName)
	}
	args = append(args, ";", "select-window", "-t", t.SessionName+":"+t.WindowName)

	cmd := exec.Command(s.tmuxCfg.Bin, args...)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to attach: " + err.Error()})
		return
	}
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols})

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("attach %s: upgrade: %v", id, err)
		ptmx.Close()
		_ = cmd.Process.Kill()
		return
	}

	done := make(chan struct{})

	// PTY -> websocket.
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// Websocket -> PTY, dropped for read-only viewers.
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				ptmx.Close()
				return
			}
			if !writable {
				continue
			}
			if _, err := ptmx.Write(data); err != nil {
				return
			}
		}
	}()

	<-done
	conn.Close()
	ptmx.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
}

func queryUint16(r *http.Request, key string, fallback uint16) uint16 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil || n == 0 {
		return fallback
	}
	return uint16(n)
}
