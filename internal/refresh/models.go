package refresh

import "time"

// RefreshRequest optionally substitutes the survey year and field list for a
// single run. Anything omitted falls back to the server configuration.
type RefreshRequest struct {
	Year   string   `json:"year,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// RunResult describes the most recent run.
type RunResult struct {
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Year          string    `json:"year"`
	Fields        []string  `json:"fields"`
	SourceRows    int       `json:"source_rows"`
	Updated       int       `json:"updated"`
	DuplicateKeys int       `json:"duplicate_keys"`
	Error         string    `json:"error,omitempty"`
}
