//go:build wasm

package main

import (
	"syscall/js"
)

func main() {
	// Export functions to JavaScript
	js.Global().Set("TmscanCreateScanner", js.FuncOf(createScanner))
	js.Global().Set("TmscanFindNextMatch", js.FuncOf(findNextMatch))
	js.Global().Set("TmscanDestroyScanner", js.FuncOf(destroyScanner))
	js.Global().Set("TmscanGetPatternSets", js.FuncOf(getPatternSets))

	// Keep WASM running
	<-make(chan struct{})
}
