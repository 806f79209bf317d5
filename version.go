package hmi

// Version is the release of the client library and CLI.
const Version = "0.4.0"
