// Package engine describes the document engine the coordinator drives, and ships
// a small local stand-in so the command line tools work end to end.
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied means access to the layer was revoked for good.
	ErrAccessDenied = errors.New("access denied")
	// ErrCancelled reports a sync or download cancelled locally.
	ErrCancelled = errors.New("cancelled")
	// ErrInvalidToken means the token could not be decoded or was rejected.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidDescriptor is returned for descriptors invalidated by RemoveAllLocalStorage.
	ErrInvalidDescriptor = errors.New("descriptor is no longer valid")
	// ErrBusy is returned when a download for the layer is already running.
	ErrBusy = errors.New("download already in progress")
)

// Descriptor is the engine-owned handle of one downloadable layer. Handles are
// compared by pointer identity; the engine hands out one per layer.
type Descriptor struct {
	documentID string
	layerName  string
}

// NewDescriptor creates a detached handle. Engines intern their own; this is
// for collaborators that fake an engine.
func NewDescriptor(documentID, layerName string) *Descriptor {
	return &Descriptor{documentID: documentID, layerName: layerName}
}

func (d *Descriptor) DocumentID() string { return d.documentID }
func (d *Descriptor) LayerName() string  { return d.layerName }

func (d *Descriptor) String() string {
	if d.layerName == "" {
		return d.documentID
	}
	return fmt.Sprintf("%s/%s", d.documentID, d.layerName)
}

// Engine is the surface consumed by the coordinator.
type Engine interface {
	IsDownloaded(d *Descriptor) bool
	BeginDownload(d *Descriptor, token string) error
	Reauthenticate(d *Descriptor, token string)
	RemoveLocalStorage(d *Descriptor) error
	RemoveAllLocalStorage() error
	DescriptorForToken(token string) (*Descriptor, error)
	// SetListener registers the single receiver of asynchronous events.
	SetListener(Listener)
}

// EventKind enumerates the asynchronous notifications an engine emits.
type EventKind int

const (
	DownloadFinished EventKind = iota
	DownloadFailed
	SyncFailed
	AuthenticationNeeded
	ReauthenticationSucceeded
	ReauthenticationFailed
)

func (k EventKind) String() string {
	switch k {
	case DownloadFinished:
		return "download finished"
	case DownloadFailed:
		return "download failed"
	case SyncFailed:
		return "sync failed"
	case AuthenticationNeeded:
		return "authentication needed"
	case ReauthenticationSucceeded:
		return "reauthentication succeeded"
	case ReauthenticationFailed:
		return "reauthentication failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event carries Token for ReauthenticationSucceeded and Err for the failure kinds.
type Event struct {
	Kind       EventKind
	Descriptor *Descriptor
	Token      string
	Err        error
}

// Listener receives events on an engine goroutine.
type Listener func(Event)
