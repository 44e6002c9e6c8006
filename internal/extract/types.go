package extract

// Mode selects how a file's content is handed to the model.
type Mode string

const (
	// ModeText extracts plain text.
	ModeText Mode = "text"
	// ModeImage renders or collects page images.
	ModeImage Mode = "image"
)

// File is one input to extraction.
type File struct {
	Path string `json:"path"`
	Mode Mode   `json:"mode"`
}

// Content is the extracted form of a file. Images are base64-encoded PNG,
// one per page.
type Content struct {
	// Hash is the hex SHA-256 of the file bytes.
	Hash   string   `json:"hash"`
	Type   string   `json:"type"`
	Mode   Mode     `json:"mode"`
	Text   string   `json:"text,omitempty"`
	Images []string `json:"images,omitempty"`
}
