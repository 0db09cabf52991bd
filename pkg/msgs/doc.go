// Package msgs defines the messages carrying decoded readings to consumers.
package msgs

// Readings are serialized as protobuf for MQTT and stream captures,
// and as JSON for web clients.
//
// Producer: spcd
// Consumer: spcmon, web dashboards, reading stores
