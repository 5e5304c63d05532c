package media

// Media kinds attached to a published article.
//
// Only images are staged on disk; a video is always an external URL
// reference, never a file.
const (
	KindImage = "image"
	KindVideo = "video"
)

// Upload describes a freshly uploaded file sitting in the inbox area.
// The inbox copy stays valid until the caller removes it; staging never
// moves it.
type Upload struct {
	Path         string
	OriginalName string
}

// Ref points at one pending image (the reference, not the bytes).
//
// Token is a generated durable id embedded in every filename derived from
// this ref. It replaces fragile name-substring matching when a staged copy
// has to be relocated after a crash.
type Ref struct {
	Kind         string `json:"kind"`
	Token        string `json:"token"`
	StagedPath   string `json:"staged_path"`
	OriginalName string `json:"original_name"`
}

// Location is the permanent home of a promoted file.
type Location struct {
	Path string
	URL  string
}
