// Command lfsd is a standalone Git LFS object server backed by a
// content-addressed blob store.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/handlers"

	"github.com/wzshiming/lfsd"
	"github.com/wzshiming/lfsd/pkg/authenticate"
	"github.com/wzshiming/lfsd/pkg/lfs"
)

var (
	addr     = ":8080"
	dataDir  = "./data"
	readOnly = false

	s3SignEndpoint = ""
	s3Endpoint     = ""
	s3AccessKey    = ""
	s3SecretKey    = ""
	s3Bucket       = ""
	s3UsePathStyle = false

	// Authentication flags
	httpUsername = ""
	httpPassword = ""
	httpToken    = ""
)

func init() {
	flag.StringVar(&addr, "addr", ":8080", "HTTP server address")
	flag.StringVar(&dataDir, "data", "./data", "Directory containing LFS objects")
	flag.BoolVar(&readOnly, "readonly-storage", false, "Reject every write to the blob store")
	flag.StringVar(&s3Endpoint, "s3-endpoint", "", "S3 endpoint")
	flag.StringVar(&s3SignEndpoint, "s3-sign-endpoint", "", "S3 signing endpoint (if different from s3-endpoint)")
	flag.StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	flag.StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")
	flag.StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name")
	flag.BoolVar(&s3UsePathStyle, "s3-use-path-style", false, "Use path style for S3 URLs")

	// Authentication flags
	flag.StringVar(&httpUsername, "http-username", "", "Username for HTTP basic authentication")
	flag.StringVar(&httpPassword, "http-password", "", "Password for HTTP basic authentication")
	flag.StringVar(&httpToken, "http-token", "", "OAuth token for HTTP authentication (used as password with any username)")

	flag.Parse()
}

func main() {
	absRootDir, err := filepath.Abs(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting absolute path of data directory: %v\n", err)
		os.Exit(1)
	}

	opts := []lfsd.Option{
		lfsd.WithRootDir(absRootDir),
	}

	if readOnly {
		opts = append(opts, lfsd.WithReadOnly())
		log.Printf("Read-only storage mode enabled\n")
	}

	// Configure HTTP authentication
	if httpUsername != "" || httpToken != "" {
		opts = append(opts, lfsd.WithAuthenticate(&authenticate.Static{
			Username: httpUsername,
			Password: httpPassword,
			Token:    httpToken,
		}))
		log.Printf("HTTP authentication enabled\n")
	}

	if s3Endpoint != "" && s3Bucket != "" {
		opts = append(opts,
			lfsd.WithLFSS3(
				lfs.NewS3(
					"lfs",
					s3Endpoint,
					s3AccessKey,
					s3SecretKey,
					s3Bucket,
					s3UsePathStyle,
					s3SignEndpoint,
				),
			),
		)
	}

	log.Printf("Starting lfsd server on %s, serving objects from %s\n", addr, absRootDir)

	var handler http.Handler = lfsd.NewHandler(opts...)

	handler = handlers.CompressHandler(handler)
	handler = handlers.LoggingHandler(os.Stderr, handler)

	if err := http.ListenAndServe(addr, handler); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}
}
