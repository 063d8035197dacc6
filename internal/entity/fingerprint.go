package entity

import "time"

// ContentFingerprint is the last known content identity of a logical file.
// The fingerprint store keeps exactly one per logical ID and only ever for
// bytes that were fully written and verified at the destination.
type ContentFingerprint struct {
	LogicalID  string    `yaml:"id"`
	Hash       string    `yaml:"hash"` // hex encoded sha256 of the file content
	SizeBytes  int64     `yaml:"size"`
	ObservedAt time.Time `yaml:"observed_at"`
}

// LedgerEntry records the most recent successful materialization of a
// logical file. One entry per logical ID.
type LedgerEntry struct {
	LogicalID       string    `yaml:"id"`
	Filename        string    `yaml:"filename"`
	DestinationPath string    `yaml:"path"`
	SizeBytes       int64     `yaml:"size"`
	DownloadedAt    time.Time `yaml:"downloaded_at"`
	Category        Category  `yaml:"category"`
}
