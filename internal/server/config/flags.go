package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophrelay/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   WebSocket bind address (e.g., ":8765")
//	-h string   gRPC health bind address
//	-d string   database DSN
//	-store      account store: postgres, sqlite or memory
//	-s string   ticket HMAC secret key
//	-t int      ticket validity, minutes
//	-u int      unauthenticated timeout, seconds (0 disables)
//	-w int      write timeout, seconds
//	-m int      maximum frame size, bytes
//	-i int      PBKDF2 iterations
//	-p string   duplicate session policy: replace or keep
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-h", "-d", "-store", "-s", "-t", "-u", "-w", "-m", "-i", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.HealthAddrGRPC, "h", config.HealthAddrGRPC, "address and port of the gRPC health service")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StoreKind, "store", config.StoreKind, "account store (postgres, sqlite, memory)")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	ticketValidity := fs.Int("t", int(config.TicketValidityDuration.Minutes()), "ticket validity (in minutes)")
	unauthTimeout := fs.Int("u", int(config.UnauthenticatedTimeout.Seconds()), "unauthenticated timeout (in seconds)")
	writeTimeout := fs.Int("w", int(config.WriteTimeout.Seconds()), "write timeout (in seconds)")

	fs.Int64Var(&config.MaxFrameBytes, "m", config.MaxFrameBytes, "maximum frame size (in bytes)")
	fs.IntVar(&config.PasswordIterations, "i", config.PasswordIterations, "PBKDF2 iterations")
	fs.StringVar(&config.DuplicateSessionPolicy, "p", config.DuplicateSessionPolicy, "duplicate session policy (replace, keep)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TicketValidityDuration = time.Duration(*ticketValidity) * time.Minute
	config.UnauthenticatedTimeout = time.Duration(*unauthTimeout) * time.Second
	config.WriteTimeout = time.Duration(*writeTimeout) * time.Second
}
