package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the websocket frame for the streaming ask channel.
type Message struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	Question   string `json:"question,omitempty"`
}

// handleWebSocket streams answers chunk by chunk. The client sends an "ask"
// message carrying a question and a document ID; the server replies with a
// sequence of "stream" frames followed by a "done" frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("server: websocket read failed: %v", err)
			}
			return
		}

		if msg.Type != "ask" {
			s.writeWSError(conn, "unsupported message type")
			continue
		}
		s.streamAnswer(r, conn, msg)
	}
}

func (s *Server) streamAnswer(r *http.Request, conn *websocket.Conn, msg Message) {
	question := strings.TrimSpace(msg.Question)
	if question == "" || msg.DocumentID == "" {
		s.writeWSError(conn, "question and documentId are required")
		return
	}

	ctx := r.Context()

	embeddings, err := s.embedder.CreateEmbedding(ctx, []string{question})
	if err != nil {
		s.writeWSError(conn, err.Error())
		return
	}

	entries, err := s.store.Query(ctx, []string{msg.DocumentID}, embeddings[0], 3)
	if err != nil {
		s.writeWSError(conn, err.Error())
		return
	}
	if len(entries) == 0 {
		s.writeWSError(conn, "no relevant content found")
		return
	}

	chunks := make([]string, len(entries))
	for i, entry := range entries {
		chunks[i] = entry.Text
	}

	err = s.generator.AnswerStream(ctx, question, chunks, func(chunk string) {
		if err := conn.WriteJSON(Message{Type: "stream", Content: chunk}); err != nil {
			log.Printf("server: websocket write failed: %v", err)
		}
	})
	if err != nil {
		s.writeWSError(conn, err.Error())
		return
	}

	if err := conn.WriteJSON(Message{Type: "done", DocumentID: msg.DocumentID}); err != nil {
		log.Printf("server: websocket write failed: %v", err)
	}
}

func (s *Server) writeWSError(conn *websocket.Conn, detail string) {
	if err := conn.WriteJSON(Message{Type: "error", Content: detail}); err != nil {
		log.Printf("server: websocket write failed: %v", err)
	}
}
