//go:build no7z

package archive

// 7z support is compiled out; the dispatcher logs the gap and rejects
// the format alongside other unsupported extensions.
var sevenZipExtract extractFunc
