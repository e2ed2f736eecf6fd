// Package batch decrypts whole directory trees of containers and blobs on a
// bounded worker pool.
package batch

import (
	"time"

	"github.com/zing22845/go-wxcrypt/cryptoerr"
	"github.com/zing22845/go-wxcrypt/dbcrypt"
)

const (
	DefaultMaxWorkers      = 16
	DefaultLedgerBatchSize = 200

	ContainerExt = ".db"
	BlobExt      = ".dat"
)

type TaskKind uint8

const (
	TaskContainer TaskKind = iota
	TaskBlob
)

func (k TaskKind) String() string {
	switch k {
	case TaskContainer:
		return "container"
	case TaskBlob:
		return "blob"
	}
	return "unknown"
}

// Task is one file to decrypt. For containers Destination is the output file,
// for blobs it is the output directory and DstName optionally renames the file.
type Task struct {
	Kind        TaskKind
	Profile     dbcrypt.Profile
	Key         string
	XorKey      byte
	Source      string
	Destination string
	DstName     string
}

func (t *Task) id() string {
	return t.Source + "\x00" + t.Destination + "\x00" + t.DstName
}

// Result is the outcome of one Task.
type Result struct {
	Task    Task
	Kind    cryptoerr.Kind
	Output  string
	Skipped bool
	Pages   uint32
	Written int64
	Err     error
	Elapsed time.Duration
}
