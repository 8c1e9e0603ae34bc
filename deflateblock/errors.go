package deflateblock

import (
	"fmt"

	"github.com/randallfarmer/blockzip/blkerr"
)

func formatErrorf(format string, args ...interface{}) error {
	return blkerr.Wrap(blkerr.ErrFormat, fmt.Sprintf(format, args...))
}
