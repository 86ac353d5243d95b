package queries

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// SliceStatus is the lifecycle state of a slice.
type SliceStatus string

const (
	SliceStatusPending   SliceStatus = "PENDING"
	SliceStatusDeploying SliceStatus = "DEPLOYING"
	SliceStatusDeployed  SliceStatus = "DEPLOYED"
	SliceStatusError     SliceStatus = "ERROR"
)

// VmState is the lifecycle state of a single VM.
type VmState string

const (
	VmStatePending  VmState = "PENDING"
	VmStateDeployed VmState = "DEPLOYED"
	VmStateError    VmState = "ERROR"
)

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
}

type Slice struct {
	ID        int64
	OwnerID   int64
	Name      string
	Status    SliceStatus
	Template  []byte
	CreatedAt pgtype.Timestamptz
}

type Vm struct {
	ID            int64
	SliceID       int64
	Name          string
	ImageID       pgtype.Int8
	Cpu           int32
	Ram           int32
	Disk          int32
	NumInterfaces int32
	State         VmState
	WorkerID      pgtype.Int4
	Pid           pgtype.Int4
	VncPort       pgtype.Int4
}

type Link struct {
	ID      int64
	SliceID int64
	VmAID   int64
	VmBID   int64
	VlanID  int32
}

type Image struct {
	ID             int64
	Name           string
	Path           string
	Sha256         string
	Size           int64
	ReferenceCount int32
}

type Flavor struct {
	ID   int64
	Name string
	Cpu  int32
	Ram  int32
	Disk int32
}
