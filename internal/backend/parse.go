package backend

import (
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// The backend has historically answered start_session with either
// {answer, doc_id} or {summary, id}, and STT with either a bare string or
// {text}. These parsers normalize every known shape at the boundary so the
// rest of the client sees one type.

type startSessionBody struct {
	Answer  *string     `json:"answer"`
	Summary *string     `json:"summary"`
	DocID   interface{} `json:"doc_id"`
	ID      interface{} `json:"id"`
}

func parseStartSession(raw []byte) *Session {
	session := &Session{}
	if len(raw) == 0 {
		return session
	}

	var body startSessionBody
	if err := sonic.Unmarshal(raw, &body); err != nil {
		// Unparsable bodies degrade to an empty session, which the
		// conversation layer tolerates.
		return session
	}

	switch {
	case body.Answer != nil:
		session.Summary = *body.Answer
	case body.Summary != nil:
		session.Summary = *body.Summary
	}

	if id := normalizeID(body.DocID); id != "" {
		session.DocID = id
	} else {
		session.DocID = normalizeID(body.ID)
	}
	return session
}

// normalizeID renders a doc id that may arrive as string or number.
func normalizeID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func parseSTT(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}

	// JSON object shape: {"text": "..."}
	if strings.HasPrefix(text, "{") {
		var body struct {
			Text string `json:"text"`
		}
		if err := sonic.Unmarshal(raw, &body); err == nil {
			return strings.TrimSpace(body.Text)
		}
		return ""
	}

	// Plain string, possibly JSON-quoted.
	if strings.HasPrefix(text, "\"") {
		var s string
		if err := sonic.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return text
}

type askBody struct {
	Answer string `json:"answer"`
	Error  string `json:"error"`
	Code   string `json:"code"`
}

func parseAsk(raw []byte) (string, error) {
	var body askBody
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return "", &APIError{Op: "ask", Message: "unrecognized response shape: " + truncate(string(raw), 120)}
	}
	if body.Error != "" {
		return "", &APIError{Op: "ask", Code: body.Code, Message: body.Error}
	}
	return body.Answer, nil
}
