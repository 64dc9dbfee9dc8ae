package display

import (
	"fmt"
	"io"

	"github.com/backmassage/vidmask/internal/term"
)

const banner = `       _     _                     _
__   _(_) __| |_ __ ___   __ _ ___| | __
\ \ / / |/ _` + "`" + ` | '_ ` + "`" + ` _ \ / _` + "`" + ` / __| |/ /
 \ V /| | (_| | | | | | | (_| \__ \   <
  \_/ |_|\__,_|_| |_| |_|\__,_|___/_|\_\
`

// PrintBanner writes the ASCII art banner to w, in magenta when colors are
// enabled.
func PrintBanner(w io.Writer) {
	fmt.Fprint(w, term.Magenta+banner+term.NC)
	fmt.Fprintln(w)
}
