package models

// Blob is a stored object: ID is what the store needs to delete it, URL is
// what clients use to fetch it.
type Blob struct {
	ID  string
	URL string
}

// Upload is a bounded, fully buffered file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}
