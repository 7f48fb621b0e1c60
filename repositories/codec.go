package repositories

import "github.com/fxamacker/cbor/v2"

// enc is the encode mode shared by every repository. The library's
// default time mode stores unix seconds, which would truncate CreatedAt
// and make messageKey diverge between Append and a later Update.
var enc = mustEncMode()

func mustEncMode() cbor.EncMode {
	mode, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}
