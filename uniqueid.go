package gomavlib

import "sync/atomic"

var uniqueIDSeq atomic.Uint64

// uniqueID is an opaque, comparable, process-wide unique identifier used as
// the hashable key behind ConnectionID and ChannelID.
type uniqueID uint64

func newUniqueID() uniqueID {
	return uniqueID(uniqueIDSeq.Add(1))
}
