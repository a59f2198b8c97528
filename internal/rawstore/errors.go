package rawstore

import "errors"

// ErrMetaRequiresTracking is returned by Compose (and by NewClustered)
// when a meta_supported=false store is used without an outer Tracking
// wrapper (§4.4 "Composition rule").
var ErrMetaRequiresTracking = errors.New("rawstore: store does not support metadata natively; wrap it in Tracking")

// ErrNotFound is returned by Open/Unlink-adjacent lookups when a blob
// was never created. fsengine's Flush treats it as nothing to sync;
// its other paths wrap any Open failure as bjerrors.IoError.
var ErrNotFound = errors.New("rawstore: blob not found")
