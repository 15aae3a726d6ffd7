// Package mqtt bridges the answer engine onto an MQTT broker so kiosks,
// signage, and other embedded clients can ask questions without speaking
// HTTP. Questions arrive on <prefix>/<instance>/ask/<session> and replies
// are published to <prefix>/<instance>/reply/<session>, so each client
// keeps its own conversation by choosing a session segment.
//
// The bridge uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection. On every (re-)connect it
// re-subscribes to the ask filter and publishes a retained "online"
// birth message to the availability topic. A will message ensures the
// availability topic transitions to "offline" on unexpected disconnects.
package mqtt
