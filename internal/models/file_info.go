package models

import "time"

// FileInfo represents metadata about a spooled file.
type FileInfo struct {
	ID         string    `json:"id" msgpack:"id"`
	Name       string    `json:"name" msgpack:"name"`
	Size       int64     `json:"size" msgpack:"size"`
	UploadedAt time.Time `json:"uploadedAt" msgpack:"uploadedAt"`
	Status     string    `json:"status" msgpack:"status"` // "receiving", "spooled", "error"
}
