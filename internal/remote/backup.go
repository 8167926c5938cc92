package remote

import (
	"encoding/base64"
	"time"

	"github.com/abm1119/bita/internal/codec"
)

// Backup is the wire shape of a slot record.
type Backup struct {
	// Data is the standard base64 encoding of a database image.
	Data string `json:"data"`

	// Timestamp is the upload time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// EncodeBackup wraps a database image for upload.
func EncodeBackup(image []byte, now time.Time) Backup {
	return Backup{
		Data:      base64.StdEncoding.EncodeToString(image),
		Timestamp: now.UnixMilli(),
	}
}

// Decode returns the database image carried by b.
// A payload that is not valid base64 is reported as a corrupt snapshot.
func (b Backup) Decode() ([]byte, error) {
	image, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return nil, &codec.CorruptSnapshotError{Reason: "backup payload is not base64", Err: err}
	}
	return image, nil
}

// Time returns the upload time.
func (b Backup) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}
