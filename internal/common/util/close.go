package util

import (
	"io"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
)

// CloseResource closes c, logging rather than returning any error. For read-only resources, where a failed close
// cannot lose data.
func CloseResource(ctx *sizercontext.Context, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		ctx.Log.WithError(err).Warnf("Failed to close %s cleanly", name)
	}
}
