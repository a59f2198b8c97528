package mountadapter

import (
	"time"

	"github.com/bijoufs/bijou/internal/fsengine"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MountOptions configures the host-facing mount (§6 "Mount adapter").
type MountOptions struct {
	// AllowOther permits users other than the mount owner to access
	// the filesystem (requires user_allow_other in /etc/fuse.conf).
	AllowOther bool
	// ReadOnly rejects every mutating operation at the kernel level.
	ReadOnly bool
	// Debug logs every FUSE request/response; noisy, diagnostic only.
	Debug bool
}

// Mount attaches engine to mountpoint and returns the running FUSE
// server. Callers should defer server.Unmount() and call
// server.Wait() to block until the mount is torn down (§5 "Mount
// lifecycle").
func Mount(mountpoint string, engine *fsengine.Bijou, opts MountOptions) (*fuse.Server, error) {
	entryTimeout := time.Second
	attrTimeout := time.Second

	fsOpts := &fs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
			FsName:     "bijou",
			Name:       "bijou",
		},
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
	}
	if opts.ReadOnly {
		fsOpts.MountOptions.Options = append(fsOpts.MountOptions.Options, "ro")
	}

	root := NewRoot(engine)
	return fs.Mount(mountpoint, root, fsOpts)
}
