package stub

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleStartSession(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image field"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil || len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty image"})
		return
	}

	doc := s.store.createSession(s.userID(c), header.Filename, image)
	s.logger.InfoTag("STUB", "start_session doc_id=%s (%d bytes)", doc.ID, len(image))
	c.JSON(http.StatusOK, gin.H{"answer": doc.Summary, "doc_id": doc.ID})
}

func (s *Server) handleAsk(c *gin.Context) {
	var body struct {
		Question string `json:"question"`
		DocID    string `json:"doc_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	userID := s.userID(c)
	doc, ok := s.store.sessionDoc(userID, body.DocID)
	if !ok {
		// Same 200-with-error-body contract as the real backend.
		c.JSON(http.StatusOK, gin.H{"error": legacyNoSession, "code": "no_session"})
		return
	}

	answer := fmt.Sprintf("Stub answer about %q: %s", doc.Title, body.Question)
	s.store.appendMessages(userID, doc.ID,
		historyMessage{Role: "user", Text: body.Question},
		historyMessage{Role: "assistant", Text: answer},
	)
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// fakeMPEG is a recognizable non-silent payload; the client never
// inspects TTS bytes beyond handing them to the player.
var fakeMPEG = append([]byte("ID3"), make([]byte, 125)...)

func (s *Server) handleTTS(c *gin.Context) {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", fakeMPEG)
}

func (s *Server) handleSTT(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	defer file.Close()
	if _, err := io.Copy(io.Discard, file); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable audio"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": s.Transcript})
}

func (s *Server) handleConversation(c *gin.Context) {
	docID := c.Query("doc_id")
	doc, ok := s.store.doc(s.userID(c), docID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"messages": []historyMessage{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": doc.Messages})
}

func (s *Server) handleRecentDocs(c *gin.Context) {
	docs := s.store.recent(s.userID(c))
	items := make([]gin.H, 0, len(docs))
	for _, doc := range docs {
		items = append(items, gin.H{
			"doc_id": doc.ID,
			"mtime":  doc.MTime,
			"path":   doc.Path,
			"title":  doc.Title,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleImage(c *gin.Context) {
	path := c.Query("path")
	image, ok := s.store.imageByPath(s.userID(c), path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", image)
}

func (s *Server) handleDeleteDoc(c *gin.Context) {
	var body struct {
		DocID string `json:"doc_id"`
		Path  string `json:"path"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.DocID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "doc_id is required"})
		return
	}
	removed := s.store.delete(s.userID(c), body.DocID)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleFeedback(c *gin.Context) {
	var body struct {
		DocID    string `json:"doc_id"`
		Feedback string `json:"feedback"`
		Summary  string `json:"summary"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.DocID == "" || body.Feedback == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "doc_id and feedback are required"})
		return
	}
	s.logger.InfoTag("STUB", "feedback doc_id=%s feedback=%s", body.DocID, body.Feedback)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
