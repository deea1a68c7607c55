package schema

import "time"

// KnowledgeBase is a named collection of files owned by a single user.
type KnowledgeBase struct {
	ID          string    `json:"knowledge_id"`
	OwnerID     string    `json:"user_id"`
	Name        string    `json:"knowledge_name"`
	Description string    `json:"description,omitempty"`
	ValidFrom   time.Time `json:"valid_from,omitempty"`
	ValidUntil  time.Time `json:"valid_until,omitempty"`
}

// File is a single ingested document. Files are immutable after ingestion;
// deleting one cascades to every derived index entry.
type File struct {
	ID          string     `json:"file_id"`
	KnowledgeID string     `json:"knowledge_id"`
	OwnerID     string     `json:"user_id"`
	Visibility  Visibility `json:"permission_level"`
	SourceURL   string     `json:"source_url,omitempty"`
	LocalPath   string     `json:"local_path,omitempty"`
	Size        int64      `json:"size"`
	UploadedAt  time.Time  `json:"uploaded_at"`
}

// FileDetail holds the parsed metadata of a file, kept separately from the
// basic record because parsing happens after upload.
type FileDetail struct {
	FileID          string   `json:"file_id"`
	Title           string   `json:"title,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	Category        string   `json:"category,omitempty"`
	TableOfContents []string `json:"table_of_contents,omitempty"`
}

// User is a registered account. Credentials are checked by simple equality;
// the deployed form is a demonstration, not production auth.
type User struct {
	ID       string `json:"user_id"`
	Name     string `json:"user_name"`
	Password string `json:"-"`
}

// GraphElement is an entity node or typed relation extracted from a file's
// text into the document graph. SourceID ties it back to the originating
// chunk so file deletion can sweep it.
type GraphElement struct {
	ID          string     `json:"id"`
	FileID      string     `json:"file_id"`
	KnowledgeID string     `json:"knowledge_id"`
	Visibility  Visibility `json:"permission_level"`
	SourceID    string     `json:"source_id"`
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Description string     `json:"description,omitempty"`
}
