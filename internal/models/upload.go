package models

// GeneratedFile is one output file produced by an analysis job.
type GeneratedFile struct {
	Name string `json:"name" msgpack:"name"`
	URL  string `json:"url" msgpack:"url"`
	Size int64  `json:"size,omitempty" msgpack:"size,omitempty"`
}

// UploadResult is the backend's answer to a successful upload.
type UploadResult struct {
	JobID   string          `json:"job_id"`
	Files   []GeneratedFile `json:"files,omitempty"`
	Success bool            `json:"success,omitempty"`
}

// ErrorResponse is the body the backend sends with a non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Field is one accompanying form value sent along with the file.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
