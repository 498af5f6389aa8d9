package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// JobSummary is one entry of the backend's job listing.
type JobSummary struct {
	ID         string `json:"id" msgpack:"id"`
	Created    int64  `json:"created" msgpack:"created"` // Unix seconds
	FilesCount int    `json:"files_count" msgpack:"files_count"`
}

// CreatedAt returns the creation instant.
func (j JobSummary) CreatedAt() time.Time {
	return time.UnixMilli(j.Created * 1000)
}

// UnmarshalJSON accepts fractional timestamps, which are truncated to whole seconds.
func (j *JobSummary) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string      `json:"id"`
		Created    json.Number `json:"created"`
		FilesCount int         `json:"files_count"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	j.ID = raw.ID
	j.FilesCount = raw.FilesCount
	j.Created = 0

	if raw.Created == "" {
		return nil
	}
	if n, err := raw.Created.Int64(); err == nil {
		j.Created = n
		return nil
	}
	f, err := raw.Created.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid created timestamp %q", raw.Created)
	}
	j.Created = int64(f)
	return nil
}
