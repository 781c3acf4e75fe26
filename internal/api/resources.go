package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// resourceHandler serves module resources from dir with gzip compression
// for clients that accept it.
func resourceHandler(dir string) http.Handler {
	files := http.StripPrefix("/resources/", http.FileServer(http.Dir(dir)))
	return gzhttp.GzipHandler(files)
}
