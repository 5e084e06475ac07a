package backend

// Session is the backend-held association between a document and its
// analyzed content. All follow-up Q&A is scoped to it.
type Session struct {
	DocID   string
	Summary string
}

// HistoryMessage is one persisted conversation entry.
type HistoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// RecentDoc is one entry of the recent-documents listing.
type RecentDoc struct {
	DocID string  `json:"doc_id"`
	MTime float64 `json:"mtime"`
	Path  string  `json:"path"`
	Title string  `json:"title,omitempty"`
}
