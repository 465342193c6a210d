// compileinfoprint is imported by every readquant binary for the side effect
// of printing its compileinfo to os.Stderr
package compileinfoprint

import "github.com/carbocation/readquant/compileinfo"

func init() {
	compileinfo.PrintToStdErr()
}
