package domain

// File describes a local file handed to the attachment pipeline.
type File struct {
	Name string
	Size int64
	MIME string
	Path string
}
