package version

// Version is the current version of chfile.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.4.0"

// Name is the application name.
const Name = "chfile"

// Description is a short description of the application.
const Description = "ClickHouse and flat file ingestion wizard"
