package domain

import "strings"

// File categories accepted by the download gateway.
const (
	CategoryDocuments = "documents"
	CategoryImages    = "images"
	CategoryVideos    = "videos"
	CategoryResources = "resources"
)

// Categories lists every category a member file may belong to.
var Categories = []string{
	CategoryDocuments,
	CategoryImages,
	CategoryVideos,
	CategoryResources,
}

// IsCategory reports whether name is one of the fixed categories.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// IsSafeFilename reports whether name is a bare file name with no path
// separators, parent references or NUL bytes.
func IsSafeFilename(name string) bool {
	return name != "" &&
		!strings.Contains(name, "..") &&
		!strings.ContainsAny(name, "/\\\x00")
}

// MemberFile describes a downloadable file registered in the manifest.
type MemberFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Filename    string `json:"filename"`
	UploadDate  string `json:"uploadDate"`
	Size        string `json:"size"`
}
