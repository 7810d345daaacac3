// Package mqtt defines the broker facing contract used to mirror charger
// activity to MQTT subscribers.
package mqtt

import "errors"

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt client not connected")

// Publisher sends a payload to a topic. Implementations retry transient
// failures before returning an error.
type Publisher interface {
	Publish(topic string, payload []byte) error
}
