package engine

import "github.com/hollowaylabs/dcp/provider"

// Direction is the transfer direction of a whole batch. It is classified
// exactly once from the destination and never re-evaluated per item.
type Direction int

const (
	// Upload pushes local files to the remote store.
	Upload Direction = iota
	// Download fetches remote objects to the local filesystem.
	Download
)

func (d Direction) String() string {
	if d == Download {
		return "download"
	}
	return "upload"
}

// participle is the verb form used in summary lines ("Finished uploading ...").
func (d Direction) participle() string {
	if d == Download {
		return "downloading"
	}
	return "uploading"
}

// ClassifyDestination decides the batch direction from the destination's
// shape: no scheme prefix, or an explicit file:// prefix, means a local
// destination and therefore a download; any other prefix means an upload.
func ClassifyDestination(dest string) Direction {
	scheme, _, ok := provider.SplitURI(dest)
	if !ok || scheme == "file" {
		return Download
	}
	return Upload
}
