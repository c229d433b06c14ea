// Package ocr defines the contract between the extraction pipeline and
// third-party text-recognition engines (for example, Tesseract or
// cloud services). The interfaces are intentionally small and
// transport-agnostic so engines can be backed by native libraries or
// remote APIs without leaking provider-specific concerns into callers.
package ocr
